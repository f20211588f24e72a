package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/karstnet/karst/config/params"
	"github.com/karstnet/karst/coordinator/cache"
	"github.com/karstnet/karst/coordinator/db"
	dbtest "github.com/karstnet/karst/coordinator/db/testing"
	"github.com/karstnet/karst/coordinator/types"
	"github.com/karstnet/karst/encoding/bytesutil"
	lntest "github.com/karstnet/karst/lightning/testing"
	"github.com/karstnet/karst/protocol"
	"github.com/karstnet/karst/protocol/primitives"
	"github.com/karstnet/karst/testing/assert"
	"github.com/karstnet/karst/testing/require"
	"github.com/karstnet/karst/testing/util"
	"github.com/pkg/errors"
)

func fastPowConfig(t *testing.T) {
	params.SetupTestConfigCleanup(t)
	cfg := params.KarstConfig().Copy()
	cfg.PowDifficultyBits = 8
	params.OverrideKarstConfig(cfg)
}

// genesisAtEpoch places genesis so that the wall clock sits inside the
// given epoch.
func genesisAtEpoch(epoch int64) int64 {
	return time.Now().UnixMilli() - epoch*params.KarstConfig().EpochLengthMS
}

func newTestService(t *testing.T, store db.Database, cfg *Config) *Service {
	t.Helper()
	cfg.DB = store
	if cfg.Bindings == nil {
		cfg.Bindings = cache.NewPaymentBindings()
	}
	if cfg.GenesisMS == 0 {
		cfg.GenesisMS = genesisAtEpoch(5)
	}
	s, err := NewService(context.Background(), cfg)
	require.NoError(t, err)
	return s
}

func requireAccepted(t *testing.T, rej *Error) {
	t.Helper()
	if rej != nil {
		t.Fatalf("unexpected rejection: %v", rej)
	}
}

func TestSubmitEvent_FundCreditsPool(t *testing.T) {
	store := dbtest.SetupDB(t)
	ctx := context.Background()
	s := newTestService(t, store, &Config{})
	cid := util.Root32(0xAA)

	ev := util.NewSignedEvent(t, util.EventOpts{Kind: protocol.KindFund, Ref: cid, Sats: 1000})
	res, rej := s.SubmitEvent(ctx, ev.Wire())
	requireAccepted(t, rej)
	assert.Equal(t, false, res.Duplicate)
	assert.Equal(t, int64(850), res.PoolCredit)
	assert.Equal(t, int64(150), res.ProtocolFee)
	assert.Equal(t, util.EventID(t, ev), res.EventID)

	pool, err := store.Pool(ctx, cid)
	require.NoError(t, err)
	assert.Equal(t, int64(850), pool.Balance)
	assert.Equal(t, int64(1000), pool.TotalTipped)
	volume, err := store.ProtocolVolume(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), volume)
}

func TestSubmitEvent_DuplicateIsIdempotent(t *testing.T) {
	store := dbtest.SetupDB(t)
	ctx := context.Background()
	s := newTestService(t, store, &Config{})
	cid := util.Root32(0xAB)

	ev := util.NewSignedEvent(t, util.EventOpts{Kind: protocol.KindFund, Ref: cid, Sats: 400})
	first, rej := s.SubmitEvent(ctx, ev.Wire())
	requireAccepted(t, rej)
	second, rej := s.SubmitEvent(ctx, ev.Wire())
	requireAccepted(t, rej)

	assert.Equal(t, false, first.Duplicate)
	assert.Equal(t, true, second.Duplicate)
	assert.Equal(t, first.EventID, second.EventID)
	assert.Equal(t, first.Seq, second.Seq)
	assert.Equal(t, int64(0), second.PoolCredit)

	pool, err := store.Pool(ctx, cid)
	require.NoError(t, err)
	assert.Equal(t, int64(400), pool.TotalTipped)
	count, err := store.EventCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestSubmitEvent_InvalidSignature(t *testing.T) {
	store := dbtest.SetupDB(t)
	s := newTestService(t, store, &Config{})

	ev := util.NewSignedEvent(t, util.EventOpts{Body: []byte("hello")})
	w := ev.Wire()
	w.TS++ // signature no longer covers the envelope
	_, rej := s.SubmitEvent(context.Background(), w)
	require.NotNil(t, rej)
	assert.Equal(t, "invalid_signature", rej.Code)
	assert.Equal(t, 401, rej.Status)
}

func TestSubmitEvent_PowGate(t *testing.T) {
	fastPowConfig(t)
	store := dbtest.SetupDB(t)
	ctx := context.Background()
	s := newTestService(t, store, &Config{RequirePow: true})

	bare := util.NewSignedEvent(t, util.EventOpts{Body: []byte("no pow")})
	_, rej := s.SubmitEvent(ctx, bare.Wire())
	require.NotNil(t, rej)
	assert.Equal(t, "pow_required", rej.Code)
	assert.Equal(t, 422, rej.Status)

	solved := util.NewSignedEvent(t, util.EventOpts{Body: []byte("with pow"), Pow: true})
	res, rej := s.SubmitEvent(ctx, solved.Wire())
	requireAccepted(t, rej)
	assert.Equal(t, false, res.Duplicate)

	tampered := util.NewSignedEvent(t, util.EventOpts{Body: []byte("bad pow"), Pow: true})
	w := tampered.Wire()
	nonce := *w.PowNonce + 1
	w.PowNonce = &nonce
	_, rej = s.SubmitEvent(ctx, w)
	require.NotNil(t, rej)
	assert.Equal(t, "invalid_pow", rej.Code)
}

func TestSubmitEvent_OperatorExemptFromPow(t *testing.T) {
	fastPowConfig(t)
	store := dbtest.SetupDB(t)
	ctx := context.Background()
	s := newTestService(t, store, &Config{RequirePow: true})

	opKey, err := store.OperatorKey(ctx)
	require.NoError(t, err)
	ev := util.NewSignedEvent(t, util.EventOpts{Key: opKey, Kind: protocol.KindAnnounce, Ref: util.Root32(0x01)})
	res, rej := s.SubmitEvent(ctx, ev.Wire())
	requireAccepted(t, rej)
	assert.Equal(t, false, res.Duplicate)
}

func TestSubmitEvent_RateLimited(t *testing.T) {
	store := dbtest.SetupDB(t)
	ctx := context.Background()
	s := newTestService(t, store, &Config{FreeWritesPerSecond: 1})

	author := util.TestKey(t, 21)
	for i := 0; i < 10; i++ {
		ev := util.NewSignedEvent(t, util.EventOpts{Key: author, TS: int64(1000 + i)})
		_, rej := s.SubmitEvent(ctx, ev.Wire())
		requireAccepted(t, rej)
	}
	ev := util.NewSignedEvent(t, util.EventOpts{Key: author, TS: 2000})
	_, rej := s.SubmitEvent(ctx, ev.Wire())
	require.NotNil(t, rej)
	assert.Equal(t, "rate_limited", rej.Code)
	assert.Equal(t, 429, rej.Status)

	// A different author is not throttled by the first one's bucket.
	other := util.NewSignedEvent(t, util.EventOpts{Key: util.TestKey(t, 22), TS: 2001})
	_, rej = s.SubmitEvent(ctx, other.Wire())
	requireAccepted(t, rej)
}

func TestSubmitEvent_PaymentGateLifecycle(t *testing.T) {
	store := dbtest.SetupDB(t)
	ctx := context.Background()
	ln := lntest.NewBackend()
	bindings := cache.NewPaymentBindings()
	s := newTestService(t, store, &Config{Lightning: ln, Bindings: bindings})

	ev := util.NewSignedEvent(t, util.EventOpts{Kind: protocol.KindPost, Ref: util.Root32(0xAC), Sats: 500, Body: []byte("paid post")})
	id := util.EventID(t, ev)

	_, rej := s.SubmitEvent(ctx, ev.Wire())
	require.NotNil(t, rej)
	assert.Equal(t, "payment_required", rej.Code)
	assert.Equal(t, 402, rej.Status)

	pr, rej := s.CreatePaymentRequest(ctx, id, 500)
	requireAccepted(t, rej)
	require.Equal(t, false, pr.DevMode)
	ph, err := bytesutil.DecodeHex32(pr.PaymentHash)
	require.NoError(t, err)

	_, rej = s.SubmitEvent(ctx, ev.Wire())
	require.NotNil(t, rej)
	assert.Equal(t, "payment_not_settled", rej.Code)
	assert.Equal(t, 402, rej.Status)

	ln.Settle(ph, 500)
	res, rej := s.SubmitEvent(ctx, ev.Wire())
	requireAccepted(t, rej)
	assert.Equal(t, false, res.Duplicate)
	assert.Equal(t, int64(425), res.PoolCredit)
	assert.Equal(t, int64(75), res.ProtocolFee)

	// The binding is consumed with the commit, yet re-ingesting the
	// identical event stays an idempotent success.
	_, ok := bindings.ByEventHash(id)
	assert.Equal(t, false, ok)
	again, rej := s.SubmitEvent(ctx, ev.Wire())
	requireAccepted(t, rej)
	assert.Equal(t, true, again.Duplicate)

	pool, err := store.Pool(ctx, util.Root32(0xAC))
	require.NoError(t, err)
	assert.Equal(t, int64(500), pool.TotalTipped)
}

func TestSubmitEvent_SatsMismatch(t *testing.T) {
	store := dbtest.SetupDB(t)
	ctx := context.Background()
	ln := lntest.NewBackend()
	s := newTestService(t, store, &Config{Lightning: ln})

	ev := util.NewSignedEvent(t, util.EventOpts{Kind: protocol.KindFund, Ref: util.Root32(0xAD), Sats: 500})
	_, rej := s.CreatePaymentRequest(ctx, util.EventID(t, ev), 400)
	requireAccepted(t, rej)

	_, rej = s.SubmitEvent(ctx, ev.Wire())
	require.NotNil(t, rej)
	assert.Equal(t, "sats_mismatch", rej.Code)
	assert.Equal(t, 422, rej.Status)
}

func TestSubmitEvent_PaymentInsufficient(t *testing.T) {
	store := dbtest.SetupDB(t)
	ctx := context.Background()
	ln := lntest.NewBackend()
	s := newTestService(t, store, &Config{Lightning: ln})

	ev := util.NewSignedEvent(t, util.EventOpts{Kind: protocol.KindFund, Ref: util.Root32(0xAE), Sats: 500})
	id := util.EventID(t, ev)
	pr, rej := s.CreatePaymentRequest(ctx, id, 500)
	requireAccepted(t, rej)
	ph, err := bytesutil.DecodeHex32(pr.PaymentHash)
	require.NoError(t, err)

	ln.Settle(ph, 300)
	_, rej = s.SubmitEvent(ctx, ev.Wire())
	require.NotNil(t, rej)
	assert.Equal(t, "payment_insufficient", rej.Code)
	assert.Equal(t, 402, rej.Status)
}

func TestSubmitEvent_LndUnavailable(t *testing.T) {
	store := dbtest.SetupDB(t)
	ctx := context.Background()
	ln := lntest.NewBackend()
	s := newTestService(t, store, &Config{Lightning: ln})

	ev := util.NewSignedEvent(t, util.EventOpts{Kind: protocol.KindFund, Ref: util.Root32(0xAF), Sats: 500})
	_, rej := s.CreatePaymentRequest(ctx, util.EventID(t, ev), 500)
	requireAccepted(t, rej)

	ln.LookupErr = errors.New("connection refused")
	_, rej = s.SubmitEvent(ctx, ev.Wire())
	require.NotNil(t, rej)
	assert.Equal(t, "lnd_unavailable", rej.Code)
	assert.Equal(t, 503, rej.Status)
}

func TestSubmitEvent_HostUpsert(t *testing.T) {
	store := dbtest.SetupDB(t)
	ctx := context.Background()
	s := newTestService(t, store, &Config{})

	body, err := protocol.EncodePayload(&protocol.HostPayload{
		Endpoint: "http://host1.example:9000",
		Pricing:  protocol.HostPricing{MinRequestSats: 2, SatsPerGB: 40},
	})
	require.NoError(t, err)
	key := util.TestKey(t, 31)
	ev := util.NewSignedEvent(t, util.EventOpts{Key: key, Kind: protocol.KindHost, Body: body})
	_, rej := s.SubmitEvent(ctx, ev.Wire())
	requireAccepted(t, rej)

	host, err := store.Host(ctx, util.Pubkey32(t, key))
	require.NoError(t, err)
	require.NotNil(t, host)
	assert.Equal(t, "http://host1.example:9000", host.Endpoint)
	assert.Equal(t, int64(2), host.MinRequestSats)
	assert.Equal(t, int64(40), host.SatsPerGB)
	assert.Equal(t, types.HostPending, host.Status)
	assert.Equal(t, primitives.Epoch(5), host.RegisteredEpoch)
}

func TestSubmitEvent_MalformedHostBodyStillLogs(t *testing.T) {
	store := dbtest.SetupDB(t)
	ctx := context.Background()
	s := newTestService(t, store, &Config{})

	key := util.TestKey(t, 32)
	ev := util.NewSignedEvent(t, util.EventOpts{Key: key, Kind: protocol.KindHost, Body: []byte("not cbor")})
	res, rej := s.SubmitEvent(ctx, ev.Wire())
	requireAccepted(t, rej)
	assert.Equal(t, false, res.Duplicate)

	host, err := store.Host(ctx, util.Pubkey32(t, key))
	require.NoError(t, err)
	assert.Equal(t, (*types.HostRecord)(nil), host)
}
