package kv

// The coordinator database schema. Rows are canonical CBOR, keys are raw
// bytes, composite keys concatenate fixed width parts so cursor prefix
// scans stay cheap.
var (
	// Append only event log. Keys are big endian sequence numbers
	// assigned from the bucket sequence, values are event rows.
	eventsBucket = []byte("events")

	// Index buckets for event queries.
	eventIDIndicesBucket     = []byte("event-id-indices")     // event id -> be8(seq)
	eventRefIndicesBucket    = []byte("event-ref-indices")    // ref ++ be8(seq) -> nil
	eventKindIndicesBucket   = []byte("event-kind-indices")   // kind ++ be8(seq) -> nil
	eventAuthorIndicesBucket = []byte("event-author-indices") // from ++ be8(seq) -> nil

	// Bounty pools keyed by ref.
	poolsBucket = []byte("bounty-pools")

	// Host registry and the serve index proven by receipts.
	hostsBucket           = []byte("hosts")             // pubkey -> host row
	serveRecordsBucket    = []byte("serve-records")     // host ++ cid -> serve row
	serveCIDIndicesBucket = []byte("serve-cid-indices") // cid ++ host -> nil

	// Receipts keyed by payment hash, with an epoch index for settlement
	// gathering.
	receiptsBucket            = []byte("receipts")
	receiptEpochIndicesBucket = []byte("receipt-epoch-indices") // be8(epoch) ++ payment hash -> nil

	// Frozen settlement outcomes.
	summariesBucket          = []byte("epoch-summaries")      // be8(epoch) ++ host ++ cid -> summary row
	summaryHostIndicesBucket = []byte("summary-host-indices") // host ++ be8(epoch) ++ cid -> nil

	// Pin contracts.
	pinsBucket          = []byte("pin-contracts")   // contract id -> pin row
	pinCIDIndicesBucket = []byte("pin-cid-indices") // cid ++ contract id -> nil

	// Citation graph. Both buckets carry the full edge row so either
	// direction resolves in one prefix scan. Counts are maintained per
	// node alongside the rows.
	edgesBucket             = []byte("citation-edges")      // source node ++ target ++ event id -> edge row
	edgeTargetIndicesBucket = []byte("edge-target-indices") // target ++ source node ++ event id -> edge row
	edgeOutCountsBucket     = []byte("edge-out-counts")     // source node -> be8(count)
	edgeInCountsBucket      = []byte("edge-in-counts")      // target -> be8(count)

	// Availability probe history.
	spotChecksBucket = []byte("spot-checks") // host ++ be8(checked at ms) -> check row

	// Deployment metadata.
	metadataBucket = []byte("coordinator-metadata")

	// Keys inside the metadata bucket.
	genesisTimestampKey = []byte("genesis-timestamp")
	operatorSeedKey     = []byte("operator-seed")
	protocolVolumeKey   = []byte("protocol-volume")
)
