package kv

import (
	"context"
	"sort"

	"github.com/karstnet/karst/coordinator/core/royalty"
	"github.com/karstnet/karst/coordinator/types"
	"github.com/karstnet/karst/encoding/bytesutil"
	"github.com/karstnet/karst/encoding/canonical"
	"github.com/karstnet/karst/protocol/primitives"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"go.opencensus.io/trace"
)

func unmarshalPool(enc []byte) (*types.BountyPool, error) {
	if enc == nil {
		return nil, nil
	}
	pool := &types.BountyPool{}
	if err := canonical.Unmarshal(enc, pool); err != nil {
		return nil, errors.Wrap(err, "could not decode pool row")
	}
	return pool, nil
}

func putPool(bkt *bolt.Bucket, pool *types.BountyPool) error {
	enc, err := canonical.Marshal(pool)
	if err != nil {
		return err
	}
	return bkt.Put(pool.Key[:], enc)
}

// creditPoolTx applies the pool credit rule: the founder fee is split off
// against the cumulative protocol volume before this credit, the volume
// advances by the gross amount, and the pool keeps the remainder.
func creditPoolTx(tx *bolt.Tx, key [32]byte, gross int64) (fee, credited int64, err error) {
	if gross <= 0 {
		return 0, 0, nil
	}
	meta := tx.Bucket(metadataBucket)
	var volume int64
	if enc := meta.Get(protocolVolumeKey); enc != nil {
		volume = int64(bytesutil.BytesToUint64BigEndian(enc))
	}
	fee, credited = royalty.Split(gross, volume)
	if err := meta.Put(protocolVolumeKey, bytesutil.Uint64ToBytesBigEndian(uint64(volume+gross))); err != nil {
		return 0, 0, err
	}
	bkt := tx.Bucket(poolsBucket)
	pool, err := unmarshalPool(bkt.Get(key[:]))
	if err != nil {
		return 0, 0, err
	}
	if pool == nil {
		pool = &types.BountyPool{Key: key}
	}
	pool.Balance += credited
	pool.TotalTipped += gross
	return fee, credited, putPool(bkt, pool)
}

// drainPoolTx reduces a pool balance, clamping at zero. A missing pool
// drains nothing. When markPayout is set and anything drained, the pool
// records the epoch of its last payout.
func drainPoolTx(bkt *bolt.Bucket, key [32]byte, amount int64, epoch primitives.Epoch, markPayout bool) (int64, error) {
	if amount <= 0 {
		return 0, nil
	}
	pool, err := unmarshalPool(bkt.Get(key[:]))
	if err != nil {
		return 0, err
	}
	if pool == nil {
		return 0, nil
	}
	drained := amount
	if drained > pool.Balance {
		drained = pool.Balance
	}
	if drained == 0 {
		return 0, nil
	}
	pool.Balance -= drained
	if markPayout {
		pool.LastPayoutEpoch = epoch
	}
	return drained, putPool(bkt, pool)
}

// Pool retrieval by key. Returns nil when no sats were ever credited.
func (s *Store) Pool(ctx context.Context, key [32]byte) (*types.BountyPool, error) {
	ctx, span := trace.StartSpan(ctx, "coordinatorDB.Pool")
	defer span.End()
	var pool *types.BountyPool
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		pool, err = unmarshalPool(tx.Bucket(poolsBucket).Get(key[:]))
		return err
	})
	return pool, err
}

// Pools returns pools with at least minBalance sats, richest first,
// capped at limit when limit is positive.
func (s *Store) Pools(ctx context.Context, minBalance int64, limit int) ([]*types.BountyPool, error) {
	ctx, span := trace.StartSpan(ctx, "coordinatorDB.Pools")
	defer span.End()
	pools := make([]*types.BountyPool, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(poolsBucket).ForEach(func(_, enc []byte) error {
			pool, err := unmarshalPool(enc)
			if err != nil {
				return err
			}
			if pool.Balance >= minBalance {
				pools = append(pools, pool)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i].Balance > pools[j].Balance })
	if limit > 0 && len(pools) > limit {
		pools = pools[:limit]
	}
	return pools, nil
}

// ProtocolVolume returns the cumulative gross sats ever credited through
// the pool credit rule.
func (s *Store) ProtocolVolume(ctx context.Context) (int64, error) {
	ctx, span := trace.StartSpan(ctx, "coordinatorDB.ProtocolVolume")
	defer span.End()
	var volume int64
	err := s.db.View(func(tx *bolt.Tx) error {
		if enc := tx.Bucket(metadataBucket).Get(protocolVolumeKey); enc != nil {
			volume = int64(bytesutil.BytesToUint64BigEndian(enc))
		}
		return nil
	})
	return volume, err
}
