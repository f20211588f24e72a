package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/karstnet/karst/config/params"
	coreepoch "github.com/karstnet/karst/coordinator/core/epoch"
	dbtest "github.com/karstnet/karst/coordinator/db/testing"
	"github.com/karstnet/karst/coordinator/types"
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

func genesisAtEpoch(epoch int64) int64 {
	return time.Now().UnixMilli() - epoch*params.KarstConfig().EpochLengthMS
}

// fakeSettler records settle calls and replays a scripted outcome.
type fakeSettler struct {
	calls []primitives.Epoch
	err   error
}

func (f *fakeSettler) Settle(_ context.Context, epoch primitives.Epoch) (*coreepoch.Result, error) {
	f.calls = append(f.calls, epoch)
	if f.err != nil {
		return nil, f.err
	}
	return &coreepoch.Result{Epoch: epoch}, nil
}

func TestTick_SettlesPreviousEpoch(t *testing.T) {
	store := dbtest.SetupDB(t)
	ctx := context.Background()
	settler := &fakeSettler{}
	var settled []*coreepoch.Result
	s, err := NewService(ctx, &Config{
		DB:        store,
		Settler:   settler,
		GenesisMS: genesisAtEpoch(5),
		OnSettle:  func(r *coreepoch.Result) { settled = append(settled, r) },
	})
	require.NoError(t, err)

	require.NoError(t, s.Tick(ctx))
	require.Equal(t, 1, len(settler.calls))
	assert.Equal(t, primitives.Epoch(4), settler.calls[0])
	assert.Equal(t, int64(4), s.LastSettled())
	require.Equal(t, 1, len(settled))
	assert.Equal(t, primitives.Epoch(4), settled[0].Epoch)

	// The epoch is settled, the next tick is a no-op.
	require.NoError(t, s.Tick(ctx))
	assert.Equal(t, 1, len(settler.calls))
}

func TestTick_FailureRetriesNextTick(t *testing.T) {
	store := dbtest.SetupDB(t)
	ctx := context.Background()
	settler := &fakeSettler{err: errors.New("store closed")}
	var failures []error
	s, err := NewService(ctx, &Config{
		DB:        store,
		Settler:   settler,
		GenesisMS: genesisAtEpoch(5),
		OnError:   func(err error) { failures = append(failures, err) },
	})
	require.NoError(t, err)

	require.ErrorContains(t, "store closed", s.Tick(ctx))
	assert.Equal(t, int64(-1), s.LastSettled())
	require.Equal(t, 1, len(failures))
	require.ErrorContains(t, "store closed", s.Status())

	settler.err = nil
	require.NoError(t, s.Tick(ctx))
	require.Equal(t, 2, len(settler.calls))
	assert.Equal(t, primitives.Epoch(4), settler.calls[1])
	assert.Equal(t, int64(4), s.LastSettled())
	require.NoError(t, s.Status())
}

func TestNewService_BootstrapsMarkerFromStore(t *testing.T) {
	store := dbtest.SetupDB(t)
	ctx := context.Background()
	require.NoError(t, store.ApplySettlement(ctx, &types.Settlement{Epoch: 4}))

	settler := &fakeSettler{}
	s, err := NewService(ctx, &Config{DB: store, Settler: settler, GenesisMS: genesisAtEpoch(5)})
	require.NoError(t, err)
	assert.Equal(t, int64(4), s.LastSettled())

	require.NoError(t, s.Tick(ctx))
	assert.Equal(t, 0, len(settler.calls))
}

func TestTick_PrunesReceiptsBelowWindow(t *testing.T) {
	fastPowConfig(t)
	store := dbtest.SetupDB(t)
	ctx := context.Background()

	host := util.Pubkey32(t, util.TestKey(t, 11))
	for i, epoch := range []primitives.Epoch{1, 4} {
		ph := util.Root32(0x70)
		ph[31] = byte(i)
		rcpt := util.NewReceipt(t, util.ReceiptOpts{Epoch: epoch, HostPubkey: host, FileRoot: util.Root32(0xBB), PaymentHash: ph, PriceSats: 2})
		_, err := store.ApplyReceipt(ctx, rcpt, nil)
		require.NoError(t, err)
	}

	s, err := NewService(ctx, &Config{DB: store, Settler: &fakeSettler{}, GenesisMS: genesisAtEpoch(5)})
	require.NoError(t, err)
	require.NoError(t, s.Tick(ctx))

	old, err := store.ReceiptsByEpoch(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, len(old))
	kept, err := store.ReceiptsByEpoch(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, 1, len(kept))
}

func TestTick_GenesisInFuture(t *testing.T) {
	store := dbtest.SetupDB(t)
	ctx := context.Background()
	settler := &fakeSettler{}
	s, err := NewService(ctx, &Config{
		DB:        store,
		Settler:   settler,
		GenesisMS: time.Now().Add(time.Hour).UnixMilli(),
	})
	require.NoError(t, err)
	require.NoError(t, s.Tick(ctx))
	assert.Equal(t, 0, len(settler.calls))
}
