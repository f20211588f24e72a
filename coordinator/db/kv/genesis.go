package kv

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"

	"github.com/karstnet/karst/encoding/bytesutil"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"go.opencensus.io/trace"
)

// SaveGenesisTimestamp persists the epoch zero timestamp. The value is
// write once: an initialized datadir refuses a different value so two
// deployments never mix epoch numbering in one database.
func (s *Store) SaveGenesisTimestamp(ctx context.Context, ts int64) error {
	ctx, span := trace.StartSpan(ctx, "coordinatorDB.SaveGenesisTimestamp")
	defer span.End()
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(metadataBucket)
		if existing := bkt.Get(genesisTimestampKey); existing != nil {
			stored := int64(bytesutil.BytesToUint64BigEndian(existing))
			if stored != ts {
				return errors.Errorf("datadir was initialized with genesis %d, refusing %d", stored, ts)
			}
			return nil
		}
		return bkt.Put(genesisTimestampKey, bytesutil.Uint64ToBytesBigEndian(uint64(ts)))
	})
}

// GenesisTimestamp returns the stored epoch zero timestamp, zero for a
// fresh datadir.
func (s *Store) GenesisTimestamp(ctx context.Context) (int64, error) {
	ctx, span := trace.StartSpan(ctx, "coordinatorDB.GenesisTimestamp")
	defer span.End()
	var ts int64
	err := s.db.View(func(tx *bolt.Tx) error {
		if enc := tx.Bucket(metadataBucket).Get(genesisTimestampKey); enc != nil {
			ts = int64(bytesutil.BytesToUint64BigEndian(enc))
		}
		return nil
	})
	return ts, err
}

// OperatorKey returns the coordinator's ed25519 signing key, generating
// and persisting a fresh one the first time a datadir is used. The key
// authors receipt wrapper and epoch summary events.
func (s *Store) OperatorKey(ctx context.Context) (ed25519.PrivateKey, error) {
	ctx, span := trace.StartSpan(ctx, "coordinatorDB.OperatorKey")
	defer span.End()
	var seed []byte
	err := s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(metadataBucket)
		if existing := bkt.Get(operatorSeedKey); existing != nil {
			seed = make([]byte, len(existing))
			copy(seed, existing)
			return nil
		}
		seed = make([]byte, ed25519.SeedSize)
		if _, err := rand.Read(seed); err != nil {
			return err
		}
		log.Info("Generated a new operator signing key")
		return bkt.Put(operatorSeedKey, seed)
	})
	if err != nil {
		return nil, err
	}
	if len(seed) != ed25519.SeedSize {
		return nil, errors.New("stored operator seed has the wrong size")
	}
	return ed25519.NewKeyFromSeed(seed), nil
}
