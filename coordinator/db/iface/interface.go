// Package iface defines the database interface used by the coordinator,
// also containing a scoped ReadOnlyDatabase for query only consumers.
package iface

import (
	"context"
	"crypto/ed25519"
	"io"

	"github.com/karstnet/karst/coordinator/db/filters"
	"github.com/karstnet/karst/coordinator/types"
	"github.com/karstnet/karst/protocol"
	"github.com/karstnet/karst/protocol/primitives"
)

// ReadOnlyDatabase defines a struct which only has read access to
// coordinator data.
type ReadOnlyDatabase interface {
	// Event log access.
	Event(ctx context.Context, id [32]byte) (*types.LoggedEvent, error)
	EventBySeq(ctx context.Context, seq uint64) (*types.LoggedEvent, error)
	Events(ctx context.Context, f *filters.QueryFilter) ([]*types.LoggedEvent, error)
	EventCount(ctx context.Context) (uint64, error)
	ReplayEvents(ctx context.Context, fn func(*types.LoggedEvent) error) error
	// Bounty pools.
	Pool(ctx context.Context, key [32]byte) (*types.BountyPool, error)
	Pools(ctx context.Context, minBalance int64, limit int) ([]*types.BountyPool, error)
	ProtocolVolume(ctx context.Context) (int64, error)
	// Host registry.
	Host(ctx context.Context, pubkey [32]byte) (*types.HostRecord, error)
	Hosts(ctx context.Context) ([]*types.HostRecord, error)
	ActiveHosts(ctx context.Context) ([]*types.HostRecord, error)
	ServeRecordsByHost(ctx context.Context, host [32]byte) ([]*types.ServeRecord, error)
	HostsServing(ctx context.Context, cid [32]byte) ([]*types.ServeRecord, error)
	// Receipts.
	HasReceipt(ctx context.Context, paymentHash [32]byte) bool
	ReceiptsByEpoch(ctx context.Context, epoch primitives.Epoch) ([]*protocol.Receipt, error)
	// Settlement outcomes.
	HasEpochSummaries(ctx context.Context, epoch primitives.Epoch) (bool, error)
	EpochSummaries(ctx context.Context, epoch primitives.Epoch) ([]*types.EpochSummary, error)
	EpochSummariesByHost(ctx context.Context, host [32]byte, limit int) ([]*types.EpochSummary, error)
	LatestSettledEpoch(ctx context.Context) (primitives.Epoch, bool, error)
	// Pin contracts.
	PinContract(ctx context.Context, id string) (*types.PinContract, error)
	PinsByCID(ctx context.Context, cid [32]byte) ([]*types.PinContract, error)
	// Citation graph.
	EdgesFrom(ctx context.Context, node [32]byte) ([]*types.CitationEdge, error)
	EdgesTo(ctx context.Context, ref [32]byte) ([]*types.CitationEdge, error)
	EdgeCounts(ctx context.Context, node [32]byte) (out, in uint64, err error)
	AllEdges(ctx context.Context) ([]*types.CitationEdge, error)
	// Availability probes.
	SpotChecks(ctx context.Context, host [32]byte, limit int) ([]*types.SpotCheckResult, error)
	SpotChecksSince(ctx context.Context, host [32]byte, since primitives.Epoch) ([]*types.SpotCheckResult, error)
	// Deployment metadata.
	GenesisTimestamp(ctx context.Context) (int64, error)
	DatabasePath() string
}

// Database defines the full persistence surface of the coordinator. Writes
// that must be atomic with respect to each other are bundled into Apply
// methods so the store commits them in one transaction.
type Database interface {
	io.Closer
	ReadOnlyDatabase

	ApplyEvent(ctx context.Context, app *types.EventApplication) (*types.ApplyResult, error)
	ApplyReceipt(ctx context.Context, rcpt *protocol.Receipt, ev *protocol.Event) (bool, error)
	ApplySettlement(ctx context.Context, st *types.Settlement) error
	ApplyPinCreate(ctx context.Context, pin *types.PinContract) (*types.PinCreateResult, error)
	CancelPinContract(ctx context.Context, id string) (*types.PinCancelResult, error)
	SaveHostStatus(ctx context.Context, pubkey [32]byte, status types.HostStatus) error
	SaveHostAvailability(ctx context.Context, pubkey [32]byte, score float64, status types.HostStatus) error
	SaveSpotCheck(ctx context.Context, result *types.SpotCheckResult) error
	PruneReceipts(ctx context.Context, olderThan primitives.Epoch) (int, error)
	SaveGenesisTimestamp(ctx context.Context, ts int64) error
	OperatorKey(ctx context.Context) (ed25519.PrivateKey, error)
	Backup(ctx context.Context, outputDir string) error
	ClearDB() error
}
