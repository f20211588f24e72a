package kv

import (
	"context"
	"testing"

	"github.com/karstnet/karst/config/params"
	"github.com/karstnet/karst/coordinator/types"
	"github.com/karstnet/karst/protocol"
	"github.com/karstnet/karst/protocol/primitives"
	"github.com/karstnet/karst/testing/assert"
	"github.com/karstnet/karst/testing/require"
	"github.com/karstnet/karst/testing/util"
	bolt "go.etcd.io/bbolt"
)

func TestStore_ApplySettlement_Atomic(t *testing.T) {
	params.SetupTestConfigCleanup(t)
	store := setupDB(t)
	ctx := context.Background()

	cid := util.Root32(0x81)
	host := util.Root32(0x82)
	require.NoError(t, store.db.Update(func(tx *bolt.Tx) error {
		_, _, err := creditPoolTx(tx, cid, 1000)
		return err
	}))
	pin := &types.PinContract{
		ID:              "f7c3bc1d-1234-4b10-9a70-000000000001",
		CID:             cid,
		Owner:           util.Root32(0x83),
		MinCopies:       2,
		DurationEpochs:  10,
		BudgetSats:      400,
		RemainingBudget: 400,
		DrainRate:       40,
		Status:          types.PinActive,
		CreatedEpoch:    1,
		EndEpoch:        11,
	}
	_, err := store.ApplyPinCreate(ctx, pin)
	require.NoError(t, err)

	summaryEv := util.NewSignedEvent(t, util.EventOpts{
		Key:  util.TestKey(t, 9),
		Kind: protocol.KindEpochSummary,
		Ref:  cid,
		TS:   777,
	})
	st := &types.Settlement{
		Epoch: 4,
		Summaries: []*types.EpochSummary{
			{Epoch: 4, Host: host, CID: cid, ReceiptCount: 12, UniqueClients: 3, RewardSats: 200, AutoBidSats: 10, EgressRoyaltySats: 1},
		},
		PoolDebits:   []*types.PoolDebitOp{{Key: cid, Amount: 201}},
		AutoBids:     []*types.PoolCreditOp{{Key: cid, GrossSats: 10}},
		PinDrains:    []*types.PinDrainOp{{ID: pin.ID, Drain: 40}},
		SummaryEvent: summaryEv,
	}
	require.NoError(t, store.ApplySettlement(ctx, st))

	has, err := store.HasEpochSummaries(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, true, has)

	sums, err := store.EpochSummaries(ctx, 4)
	require.NoError(t, err)
	require.Equal(t, 1, len(sums))
	assert.DeepEqual(t, st.Summaries[0], sums[0])

	byHost, err := store.EpochSummariesByHost(ctx, host, 0)
	require.NoError(t, err)
	require.Equal(t, 1, len(byHost))

	latest, settled, err := store.LatestSettledEpoch(ctx)
	require.NoError(t, err)
	assert.Equal(t, true, settled)
	assert.Equal(t, true, latest == 4)

	// Pool drained by the debit, then credited by the auto bid.
	// Credits: 850 from the tip, 341 from the pin budget (fee 59 at
	// volume 1000), 9 from the auto bid (fee 1 at volume 1400).
	pool, err := store.Pool(ctx, cid)
	require.NoError(t, err)
	assert.Equal(t, int64(850+341-201+9), pool.Balance)
	assert.Equal(t, true, pool.LastPayoutEpoch == 4)

	// Pin budget drained.
	stored, err := store.PinContract(ctx, pin.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(360), stored.RemainingBudget)
	assert.Equal(t, types.PinActive, stored.Status)

	// Summary event appended to the log.
	count, err := store.EventCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestStore_ApplySettlement_AlreadySettled(t *testing.T) {
	params.SetupTestConfigCleanup(t)
	store := setupDB(t)
	ctx := context.Background()

	require.NoError(t, store.ApplySettlement(ctx, &types.Settlement{Epoch: 2}))
	err := store.ApplySettlement(ctx, &types.Settlement{Epoch: 2})
	require.ErrorIs(t, err, ErrAlreadySettled)
	err = store.ApplySettlement(ctx, &types.Settlement{Epoch: 1})
	require.ErrorIs(t, err, ErrAlreadySettled)
	require.NoError(t, store.ApplySettlement(ctx, &types.Settlement{Epoch: 3}))

	latest, settled, err := store.LatestSettledEpoch(ctx)
	require.NoError(t, err)
	assert.Equal(t, true, settled)
	assert.Equal(t, true, latest == 3)
}

func TestStore_EpochSummariesByHost_NewestFirstAndLimit(t *testing.T) {
	params.SetupTestConfigCleanup(t)
	store := setupDB(t)
	ctx := context.Background()
	host := util.Root32(0x91)

	for epoch := uint64(1); epoch <= 3; epoch++ {
		st := &types.Settlement{
			Epoch: primitives.Epoch(epoch),
			Summaries: []*types.EpochSummary{
				{Epoch: primitives.Epoch(epoch), Host: host, CID: util.Root32(byte(epoch)), RewardSats: int64(epoch * 100)},
			},
		}
		require.NoError(t, store.ApplySettlement(ctx, st))
	}

	sums, err := store.EpochSummariesByHost(ctx, host, 2)
	require.NoError(t, err)
	require.Equal(t, 2, len(sums))
	assert.Equal(t, true, sums[0].Epoch == 3)
	assert.Equal(t, true, sums[1].Epoch == 2)
}
