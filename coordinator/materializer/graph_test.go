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

func applyEdge(t *testing.T, store db.Database, edge *types.CitationEdge) {
	t.Helper()
	ev := util.NewSignedEvent(t, util.EventOpts{
		Kind: protocol.KindPost, Ref: edge.SourceNode, TS: int64(edge.SourceEvent[0]) * 1000,
	})
	_, err := store.ApplyEvent(context.Background(), &types.EventApplication{
		Event: ev,
		ID:    edge.SourceEvent,
		Edges: []*types.CitationEdge{edge},
	})
	require.NoError(t, err)
}

func TestGraph_ReturnsBothDirections(t *testing.T) {
	store := dbtest.SetupDB(t)
	svc := newTestService(t, store)
	ctx := context.Background()

	ref := util.Root32(0x10)
	citer := util.Root32(0x20)
	cited := util.Root32(0x30)

	// citer cites ref, ref cites cited.
	applyEdge(t, store, &types.CitationEdge{
		SourceEvent: util.Root32(1),
		SourceNode:  citer,
		TargetRef:   ref,
		EdgeSats:    10,
		Kind:        protocol.KindPost,
	})
	applyEdge(t, store, &types.CitationEdge{
		SourceEvent: util.Root32(2),
		SourceNode:  ref,
		TargetRef:   cited,
		Kind:        protocol.KindList,
	})

	view, err := svc.Graph(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, bytesutil.EncodeHex(ref[:]), view.Ref)
	assert.Equal(t, uint64(1), view.IncomingCount)
	assert.Equal(t, uint64(1), view.OutgoingCount)

	require.Equal(t, 1, len(view.Incoming))
	assert.Equal(t, bytesutil.EncodeHex(citer[:]), view.Incoming[0].SourceNode)
	assert.Equal(t, int64(10), view.Incoming[0].Sats)
	assert.Equal(t, int64(protocol.KindPost), view.Incoming[0].Kind)

	require.Equal(t, 1, len(view.Outgoing))
	assert.Equal(t, bytesutil.EncodeHex(cited[:]), view.Outgoing[0].TargetRef)
}

func TestGraph_EmptyDirections(t *testing.T) {
	store := dbtest.SetupDB(t)
	svc := newTestService(t, store)

	view, err := svc.Graph(context.Background(), util.Root32(0x99))
	require.NoError(t, err)
	assert.Equal(t, 0, len(view.Incoming))
	assert.Equal(t, 0, len(view.Outgoing))
	assert.Equal(t, uint64(0), view.IncomingCount)
	assert.Equal(t, uint64(0), view.OutgoingCount)
}

func TestTopRefs_RanksAndLimits(t *testing.T) {
	store := dbtest.SetupDB(t)
	svc := newTestService(t, store)
	ctx := context.Background()

	hub := util.Root32(0xAA)
	for i := 1; i <= 3; i++ {
		applyEdge(t, store, &types.CitationEdge{
			SourceEvent: util.Root32(byte(i)),
			SourceNode:  util.Root32(byte(0x40 + i)),
			TargetRef:   hub,
			EdgeSats:    100,
			Kind:        protocol.KindFund,
		})
	}
	applyEdge(t, store, &types.CitationEdge{
		SourceEvent: util.Root32(9),
		SourceNode:  util.Root32(0x41),
		TargetRef:   util.Root32(0xBB),
		Kind:        protocol.KindPost,
	})

	top, err := svc.TopRefs(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, 2, len(top))

	// The heavily cited hub outranks everything else.
	assert.Equal(t, bytesutil.EncodeHex(hub[:]), top[0].Ref)
	if top[0].Rank < top[1].Rank {
		t.Fatalf("ranks out of order: %f < %f", top[0].Rank, top[1].Rank)
	}
}
