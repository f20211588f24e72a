package kv

import (
	"bytes"
	"context"

	"github.com/karstnet/karst/coordinator/types"
	"github.com/karstnet/karst/encoding/bytesutil"
	"github.com/karstnet/karst/encoding/canonical"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"go.opencensus.io/trace"
)

// saveEdgeTx writes a citation edge under both scan directions and bumps
// the per node degree counters. Edges are keyed by (source node, target,
// source event) so one event citing the same target twice stays one edge,
// and an edge already present leaves the counters untouched.
func saveEdgeTx(tx *bolt.Tx, edge *types.CitationEdge) error {
	key := compositeKey(edge.SourceNode[:], edge.TargetRef[:], edge.SourceEvent[:])
	if tx.Bucket(edgesBucket).Get(key) != nil {
		return nil
	}
	enc, err := canonical.Marshal(edge)
	if err != nil {
		return err
	}
	if err := tx.Bucket(edgesBucket).Put(key, enc); err != nil {
		return err
	}
	idxKey := compositeKey(edge.TargetRef[:], edge.SourceNode[:], edge.SourceEvent[:])
	if err := tx.Bucket(edgeTargetIndicesBucket).Put(idxKey, enc); err != nil {
		return err
	}
	if err := bumpCountTx(tx.Bucket(edgeOutCountsBucket), edge.SourceNode); err != nil {
		return err
	}
	return bumpCountTx(tx.Bucket(edgeInCountsBucket), edge.TargetRef)
}

func bumpCountTx(bkt *bolt.Bucket, node [32]byte) error {
	var count uint64
	if enc := bkt.Get(node[:]); enc != nil {
		count = bytesutil.BytesToUint64BigEndian(enc)
	}
	return bkt.Put(node[:], bytesutil.Uint64ToBytesBigEndian(count+1))
}

func scanEdges(bkt *bolt.Bucket, prefix []byte) ([]*types.CitationEdge, error) {
	edges := make([]*types.CitationEdge, 0)
	c := bkt.Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		edge := &types.CitationEdge{}
		if err := canonical.Unmarshal(v, edge); err != nil {
			return nil, errors.Wrap(err, "could not decode edge row")
		}
		edges = append(edges, edge)
	}
	return edges, nil
}

// EdgesFrom returns the citations a node makes.
func (s *Store) EdgesFrom(ctx context.Context, node [32]byte) ([]*types.CitationEdge, error) {
	ctx, span := trace.StartSpan(ctx, "coordinatorDB.EdgesFrom")
	defer span.End()
	var edges []*types.CitationEdge
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		edges, err = scanEdges(tx.Bucket(edgesBucket), node[:])
		return err
	})
	return edges, err
}

// EdgesTo returns the citations a ref receives.
func (s *Store) EdgesTo(ctx context.Context, ref [32]byte) ([]*types.CitationEdge, error) {
	ctx, span := trace.StartSpan(ctx, "coordinatorDB.EdgesTo")
	defer span.End()
	var edges []*types.CitationEdge
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		edges, err = scanEdges(tx.Bucket(edgeTargetIndicesBucket), ref[:])
		return err
	})
	return edges, err
}

// EdgeCounts returns how many citations a node makes and receives.
func (s *Store) EdgeCounts(ctx context.Context, node [32]byte) (out, in uint64, err error) {
	ctx, span := trace.StartSpan(ctx, "coordinatorDB.EdgeCounts")
	defer span.End()
	err = s.db.View(func(tx *bolt.Tx) error {
		if enc := tx.Bucket(edgeOutCountsBucket).Get(node[:]); enc != nil {
			out = bytesutil.BytesToUint64BigEndian(enc)
		}
		if enc := tx.Bucket(edgeInCountsBucket).Get(node[:]); enc != nil {
			in = bytesutil.BytesToUint64BigEndian(enc)
		}
		return nil
	})
	return out, in, err
}

// AllEdges returns the whole citation graph for rank computation.
func (s *Store) AllEdges(ctx context.Context) ([]*types.CitationEdge, error) {
	ctx, span := trace.StartSpan(ctx, "coordinatorDB.AllEdges")
	defer span.End()
	edges := make([]*types.CitationEdge, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(edgesBucket).ForEach(func(_, enc []byte) error {
			edge := &types.CitationEdge{}
			if err := canonical.Unmarshal(enc, edge); err != nil {
				return errors.Wrap(err, "could not decode edge row")
			}
			edges = append(edges, edge)
			return nil
		})
	})
	return edges, err
}
