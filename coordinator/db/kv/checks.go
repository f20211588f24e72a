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

// SaveSpotCheck appends one probe outcome to the host's history. Keys
// carry the probe time plus an insertion counter so probes in the same
// millisecond never collide.
func (s *Store) SaveSpotCheck(ctx context.Context, result *types.SpotCheckResult) error {
	ctx, span := trace.StartSpan(ctx, "coordinatorDB.SaveSpotCheck")
	defer span.End()
	enc, err := canonical.Marshal(result)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(spotChecksBucket)
		seq, err := bkt.NextSequence()
		if err != nil {
			return err
		}
		key := compositeKey(
			result.Host[:],
			bytesutil.Uint64ToBytesBigEndian(uint64(result.CheckedAt)),
			bytesutil.Uint64ToBytesBigEndian(seq),
		)
		return bkt.Put(key, enc)
	})
}

// SpotChecks returns a host's probe history, newest first, capped at
// limit when limit is positive.
func (s *Store) SpotChecks(ctx context.Context, host [32]byte, limit int) ([]*types.SpotCheckResult, error) {
	ctx, span := trace.StartSpan(ctx, "coordinatorDB.SpotChecks")
	defer span.End()
	results := make([]*types.SpotCheckResult, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(spotChecksBucket).Cursor()
		for k, v := seekLast(c, host[:]); k != nil && bytes.HasPrefix(k, host[:]); k, v = c.Prev() {
			res := &types.SpotCheckResult{}
			if err := canonical.Unmarshal(v, res); err != nil {
				return errors.Wrap(err, "could not decode spot check row")
			}
			results = append(results, res)
			if limit > 0 && len(results) >= limit {
				return nil
			}
		}
		return nil
	})
	return results, err
}

// SpotChecksSince returns a host's probe outcomes for epochs at or after
// since, oldest first.
func (s *Store) SpotChecksSince(ctx context.Context, host [32]byte, since primitives.Epoch) ([]*types.SpotCheckResult, error) {
	ctx, span := trace.StartSpan(ctx, "coordinatorDB.SpotChecksSince")
	defer span.End()
	results := make([]*types.SpotCheckResult, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(spotChecksBucket).Cursor()
		for k, v := c.Seek(host[:]); k != nil && bytes.HasPrefix(k, host[:]); k, v = c.Next() {
			res := &types.SpotCheckResult{}
			if err := canonical.Unmarshal(v, res); err != nil {
				return errors.Wrap(err, "could not decode spot check row")
			}
			if res.Epoch >= since {
				results = append(results, res)
			}
		}
		return nil
	})
	return results, err
}
