package kv

import (
	"bytes"
	"context"

	"github.com/karstnet/karst/coordinator/types"
	"github.com/karstnet/karst/encoding/bytesutil"
	"github.com/karstnet/karst/encoding/canonical"
	"github.com/karstnet/karst/protocol/primitives"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"go.opencensus.io/trace"
)

// ErrAlreadySettled is returned when a settlement is applied for an epoch
// at or below the latest settled one.
var ErrAlreadySettled = errors.New("epoch already settled")

var lastSettledEpochKey = []byte("last-settled-epoch")

// ApplySettlement freezes one epoch: summary rows, pool drains, auto bid
// credits, pin budget reductions and the summary event all commit in one
// transaction, or none of them do.
func (s *Store) ApplySettlement(ctx context.Context, st *types.Settlement) error {
	ctx, span := trace.StartSpan(ctx, "coordinatorDB.ApplySettlement")
	defer span.End()
	encSummaries := make([][]byte, len(st.Summaries))
	for i, sum := range st.Summaries {
		enc, err := canonical.Marshal(sum)
		if err != nil {
			return err
		}
		encSummaries[i] = enc
	}
	var encEvent []byte
	var evID [32]byte
	if st.SummaryEvent != nil {
		var err error
		encEvent, err = marshalEvent(st.SummaryEvent)
		if err != nil {
			return err
		}
		evID, err = st.SummaryEvent.ID()
		if err != nil {
			return err
		}
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(metadataBucket)
		if enc := meta.Get(lastSettledEpochKey); enc != nil {
			last := primitives.Epoch(bytesutil.BytesToUint64BigEndian(enc))
			if st.Epoch <= last {
				return ErrAlreadySettled
			}
		}
		epochKey := bytesutil.Uint64ToBytesBigEndian(uint64(st.Epoch))
		sumBkt := tx.Bucket(summariesBucket)
		hostIdx := tx.Bucket(summaryHostIndicesBucket)
		for i, sum := range st.Summaries {
			if err := sumBkt.Put(compositeKey(epochKey, sum.Host[:], sum.CID[:]), encSummaries[i]); err != nil {
				return err
			}
			if err := hostIdx.Put(compositeKey(sum.Host[:], epochKey, sum.CID[:]), nil); err != nil {
				return err
			}
		}
		pools := tx.Bucket(poolsBucket)
		for _, debit := range st.PoolDebits {
			if _, err := drainPoolTx(pools, debit.Key, debit.Amount, st.Epoch, true); err != nil {
				return err
			}
		}
		for _, bid := range st.AutoBids {
			if _, _, err := creditPoolTx(tx, bid.Key, bid.GrossSats); err != nil {
				return err
			}
		}
		pins := tx.Bucket(pinsBucket)
		for _, drain := range st.PinDrains {
			if err := drainPinTx(pins, drain); err != nil {
				return err
			}
		}
		if st.SummaryEvent != nil {
			if existing := tx.Bucket(eventIDIndicesBucket).Get(evID[:]); existing == nil {
				if _, err := saveEventTx(tx, evID, st.SummaryEvent, encEvent); err != nil {
					return err
				}
			}
		}
		return meta.Put(lastSettledEpochKey, epochKey)
	})
}

// HasEpochSummaries checks whether any summary rows were frozen for the
// epoch.
func (s *Store) HasEpochSummaries(ctx context.Context, epoch primitives.Epoch) (bool, error) {
	ctx, span := trace.StartSpan(ctx, "coordinatorDB.HasEpochSummaries")
	defer span.End()
	prefix := bytesutil.Uint64ToBytesBigEndian(uint64(epoch))
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(summariesBucket).Cursor()
		k, _ := c.Seek(prefix)
		found = k != nil && bytes.HasPrefix(k, prefix)
		return nil
	})
	return found, err
}

// EpochSummaries returns the frozen settlement rows of one epoch.
func (s *Store) EpochSummaries(ctx context.Context, epoch primitives.Epoch) ([]*types.EpochSummary, error) {
	ctx, span := trace.StartSpan(ctx, "coordinatorDB.EpochSummaries")
	defer span.End()
	prefix := bytesutil.Uint64ToBytesBigEndian(uint64(epoch))
	summaries := make([]*types.EpochSummary, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(summariesBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			sum := &types.EpochSummary{}
			if err := canonical.Unmarshal(v, sum); err != nil {
				return errors.Wrap(err, "could not decode summary row")
			}
			summaries = append(summaries, sum)
		}
		return nil
	})
	return summaries, err
}

// EpochSummariesByHost returns a host's settlement rows, newest epoch
// first, capped at limit when limit is positive.
func (s *Store) EpochSummariesByHost(ctx context.Context, host [32]byte, limit int) ([]*types.EpochSummary, error) {
	ctx, span := trace.StartSpan(ctx, "coordinatorDB.EpochSummariesByHost")
	defer span.End()
	summaries := make([]*types.EpochSummary, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		primary := tx.Bucket(summariesBucket)
		c := tx.Bucket(summaryHostIndicesBucket).Cursor()
		for k, _ := seekLast(c, host[:]); k != nil && bytes.HasPrefix(k, host[:]); k, _ = c.Prev() {
			epochKey, cid := k[32:40], k[40:]
			enc := primary.Get(compositeKey(epochKey, host[:], cid))
			if enc == nil {
				continue
			}
			sum := &types.EpochSummary{}
			if err := canonical.Unmarshal(enc, sum); err != nil {
				return errors.Wrap(err, "could not decode summary row")
			}
			summaries = append(summaries, sum)
			if limit > 0 && len(summaries) >= limit {
				return nil
			}
		}
		return nil
	})
	return summaries, err
}

// LatestSettledEpoch returns the newest settled epoch. The second return
// is false when nothing has settled yet.
func (s *Store) LatestSettledEpoch(ctx context.Context) (primitives.Epoch, bool, error) {
	ctx, span := trace.StartSpan(ctx, "coordinatorDB.LatestSettledEpoch")
	defer span.End()
	var epoch primitives.Epoch
	settled := false
	err := s.db.View(func(tx *bolt.Tx) error {
		if enc := tx.Bucket(metadataBucket).Get(lastSettledEpochKey); enc != nil {
			epoch = primitives.Epoch(bytesutil.BytesToUint64BigEndian(enc))
			settled = true
		}
		return nil
	})
	return epoch, settled, err
}

// seekLast positions the cursor on the last key carrying the prefix, or
// returns nil when no key does.
func seekLast(c *bolt.Cursor, prefix []byte) ([]byte, []byte) {
	succ := make([]byte, len(prefix))
	copy(succ, prefix)
	i := len(succ) - 1
	for ; i >= 0; i-- {
		if succ[i] < 0xff {
			succ[i]++
			break
		}
	}
	var k, v []byte
	if i < 0 {
		k, v = c.Last()
	} else if k, v = c.Seek(succ[:i+1]); k == nil {
		k, v = c.Last()
	} else {
		k, v = c.Prev()
	}
	if k != nil && bytes.HasPrefix(k, prefix) {
		return k, v
	}
	return nil, nil
}
