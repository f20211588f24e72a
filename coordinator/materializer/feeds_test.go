package materializer

import (
	"context"
	"testing"

	"github.com/karstnet/karst/coordinator/db"
	dbtest "github.com/karstnet/karst/coordinator/db/testing"
	"github.com/karstnet/karst/coordinator/types"
	"github.com/karstnet/karst/encoding/bytesutil"
	"github.com/karstnet/karst/protocol"
	"github.com/karstnet/karst/testing/assert"
	"github.com/karstnet/karst/testing/require"
	"github.com/karstnet/karst/testing/util"
)

func newTestService(t *testing.T, store db.Database) *Service {
	t.Helper()
	s, err := NewService(&Config{DB: store})
	require.NoError(t, err)
	return s
}

// applyEvent writes a signed event straight to the store, crediting the
// ref pool when the event carries sats.
func applyEvent(t *testing.T, store db.Database, ev *protocol.Event) [32]byte {
	t.Helper()
	id := util.EventID(t, ev)
	app := &types.EventApplication{Event: ev, ID: id}
	if ev.Sats > 0 {
		app.PoolCredit = &types.PoolCreditOp{Key: ev.Ref, GrossSats: ev.Sats}
	}
	_, err := store.ApplyEvent(context.Background(), app)
	require.NoError(t, err)
	return id
}

func announceBody(t *testing.T, title string, tags ...string) []byte {
	t.Helper()
	body, err := protocol.EncodePayload(&protocol.AnnouncePayload{Title: title, Tags: tags})
	require.NoError(t, err)
	return body
}

func TestFundedFeed_RanksPoolsAndAttachesAnnounce(t *testing.T) {
	store := dbtest.SetupDB(t)
	svc := newTestService(t, store)
	ctx := context.Background()

	refA, refB := util.Root32(0xAA), util.Root32(0xBB)
	applyEvent(t, store, util.NewSignedEvent(t, util.EventOpts{
		Kind: protocol.KindAnnounce, Ref: refA, Body: announceBody(t, "Dataset A"), TS: 1000,
	}))
	idB := applyEvent(t, store, util.NewSignedEvent(t, util.EventOpts{
		Kind: protocol.KindAnnounce, Ref: refB, Body: announceBody(t, "Dataset B"), TS: 2000,
	}))
	applyEvent(t, store, util.NewSignedEvent(t, util.EventOpts{
		Kind: protocol.KindFund, Ref: refA, Sats: 1000, TS: 3000,
	}))
	applyEvent(t, store, util.NewSignedEvent(t, util.EventOpts{
		Kind: protocol.KindFund, Ref: refB, Sats: 4000, TS: 4000,
	}))

	feed, err := svc.FundedFeed(ctx, 0, 10)
	require.NoError(t, err)
	require.Equal(t, 2, len(feed))

	// Richest pool first, balances as the store credited them.
	assert.Equal(t, bytesutil.EncodeHex(refB[:]), feed[0].Ref)
	assert.Equal(t, bytesutil.EncodeHex(refA[:]), feed[1].Ref)
	poolB, err := store.Pool(ctx, refB)
	require.NoError(t, err)
	assert.Equal(t, poolB.Balance, feed[0].Balance)
	assert.Equal(t, poolB.TotalTipped, feed[0].TotalTipped)
	if feed[0].Balance <= feed[1].Balance {
		t.Fatalf("expected %d > %d", feed[0].Balance, feed[1].Balance)
	}

	require.NotNil(t, feed[0].Announce)
	assert.Equal(t, bytesutil.EncodeHex(idB[:]), feed[0].Announce.EventID)
	require.NotNil(t, feed[0].Announce.Metadata)
	assert.Equal(t, "Dataset B", feed[0].Announce.Metadata.Title)
	require.NotNil(t, feed[1].Announce)
	assert.Equal(t, "Dataset A", feed[1].Announce.Metadata.Title)
}

func TestFundedFeed_MinBalanceFilters(t *testing.T) {
	store := dbtest.SetupDB(t)
	svc := newTestService(t, store)
	ctx := context.Background()

	refA, refB := util.Root32(0xAA), util.Root32(0xBB)
	applyEvent(t, store, util.NewSignedEvent(t, util.EventOpts{
		Kind: protocol.KindFund, Ref: refA, Sats: 100, TS: 1000,
	}))
	applyEvent(t, store, util.NewSignedEvent(t, util.EventOpts{
		Kind: protocol.KindFund, Ref: refB, Sats: 4000, TS: 2000,
	}))

	feed, err := svc.FundedFeed(ctx, 1000, 10)
	require.NoError(t, err)
	require.Equal(t, 1, len(feed))
	assert.Equal(t, bytesutil.EncodeHex(refB[:]), feed[0].Ref)

	// A pool with no announce still lists, without metadata.
	assert.Equal(t, (*Announcement)(nil), feed[0].Announce)
}

func TestFundedFeed_AnnounceCacheLifecycle(t *testing.T) {
	store := dbtest.SetupDB(t)
	svc := newTestService(t, store)
	ctx := context.Background()

	ref := util.Root32(0xCC)
	applyEvent(t, store, util.NewSignedEvent(t, util.EventOpts{
		Kind: protocol.KindFund, Ref: ref, Sats: 500, TS: 1000,
	}))

	// No announce yet. The miss must not stick.
	feed, err := svc.FundedFeed(ctx, 0, 10)
	require.NoError(t, err)
	require.Equal(t, 1, len(feed))
	assert.Equal(t, (*Announcement)(nil), feed[0].Announce)

	applyEvent(t, store, util.NewSignedEvent(t, util.EventOpts{
		Kind: protocol.KindAnnounce, Ref: ref, Body: announceBody(t, "v1"), TS: 2000,
	}))
	feed, err = svc.FundedFeed(ctx, 0, 10)
	require.NoError(t, err)
	require.NotNil(t, feed[0].Announce)
	assert.Equal(t, "v1", feed[0].Announce.Metadata.Title)

	// A newer announce for the same ref serves stale from the cache.
	applyEvent(t, store, util.NewSignedEvent(t, util.EventOpts{
		Kind: protocol.KindAnnounce, Ref: ref, Body: announceBody(t, "v2"), TS: 3000,
	}))
	feed, err = svc.FundedFeed(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, "v1", feed[0].Announce.Metadata.Title)

	// A fresh service sees the newer announce.
	feed, err = newTestService(t, store).FundedFeed(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, "v2", feed[0].Announce.Metadata.Title)
}

func TestRecentFeed_PagesNewestFirst(t *testing.T) {
	store := dbtest.SetupDB(t)
	svc := newTestService(t, store)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		applyEvent(t, store, util.NewSignedEvent(t, util.EventOpts{
			Kind: protocol.KindAnnounce,
			Ref:  util.Root32(byte(i)),
			Body: announceBody(t, "item"),
			TS:   int64(i) * 1000,
		}))
	}

	page, err := svc.RecentFeed(ctx, 2, 0, "")
	require.NoError(t, err)
	require.Equal(t, 2, len(page))
	assert.Equal(t, int64(5000), page[0].TS)
	assert.Equal(t, int64(4000), page[1].TS)

	page, err = svc.RecentFeed(ctx, 2, 2, "")
	require.NoError(t, err)
	require.Equal(t, 2, len(page))
	assert.Equal(t, int64(3000), page[0].TS)
	assert.Equal(t, int64(2000), page[1].TS)

	page, err = svc.RecentFeed(ctx, 10, 4, "")
	require.NoError(t, err)
	require.Equal(t, 1, len(page))
	assert.Equal(t, int64(1000), page[0].TS)
}

func TestRecentFeed_TagFilter(t *testing.T) {
	store := dbtest.SetupDB(t)
	svc := newTestService(t, store)
	ctx := context.Background()

	applyEvent(t, store, util.NewSignedEvent(t, util.EventOpts{
		Kind: protocol.KindAnnounce, Ref: util.Root32(1),
		Body: announceBody(t, "one", "music"), TS: 1000,
	}))
	applyEvent(t, store, util.NewSignedEvent(t, util.EventOpts{
		Kind: protocol.KindAnnounce, Ref: util.Root32(2),
		Body: announceBody(t, "two", "video"), TS: 2000,
	}))
	applyEvent(t, store, util.NewSignedEvent(t, util.EventOpts{
		Kind: protocol.KindAnnounce, Ref: util.Root32(3),
		Body: announceBody(t, "three", "music", "live"), TS: 3000,
	}))

	page, err := svc.RecentFeed(ctx, 10, 0, "music")
	require.NoError(t, err)
	require.Equal(t, 2, len(page))
	assert.Equal(t, "three", page[0].Metadata.Title)
	assert.Equal(t, "one", page[1].Metadata.Title)

	// Offset pages within the filtered feed, not the raw log.
	page, err = svc.RecentFeed(ctx, 1, 1, "music")
	require.NoError(t, err)
	require.Equal(t, 1, len(page))
	assert.Equal(t, "one", page[0].Metadata.Title)

	page, err = svc.RecentFeed(ctx, 10, 0, "nosuchtag")
	require.NoError(t, err)
	assert.Equal(t, 0, len(page))
}

func TestRecentFeed_SkipsUndecodableBodies(t *testing.T) {
	store := dbtest.SetupDB(t)
	svc := newTestService(t, store)
	ctx := context.Background()

	applyEvent(t, store, util.NewSignedEvent(t, util.EventOpts{
		Kind: protocol.KindAnnounce, Ref: util.Root32(1),
		Body: []byte("not cbor at all"), TS: 1000,
	}))
	applyEvent(t, store, util.NewSignedEvent(t, util.EventOpts{
		Kind: protocol.KindAnnounce, Ref: util.Root32(2),
		Body: announceBody(t, "good"), TS: 2000,
	}))

	page, err := svc.RecentFeed(ctx, 10, 0, "")
	require.NoError(t, err)
	require.Equal(t, 1, len(page))
	assert.Equal(t, "good", page[0].Metadata.Title)
}
