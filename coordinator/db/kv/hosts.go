package kv

import (
	"bytes"
	"context"

	"github.com/karstnet/karst/config/params"
	"github.com/karstnet/karst/coordinator/types"
	"github.com/karstnet/karst/encoding/canonical"
	"github.com/karstnet/karst/protocol/primitives"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"go.opencensus.io/trace"
)

func unmarshalHost(enc []byte) (*types.HostRecord, error) {
	if enc == nil {
		return nil, nil
	}
	host := &types.HostRecord{}
	if err := canonical.Unmarshal(enc, host); err != nil {
		return nil, errors.Wrap(err, "could not decode host row")
	}
	return host, nil
}

func putHost(bkt *bolt.Bucket, host *types.HostRecord) error {
	enc, err := canonical.Marshal(host)
	if err != nil {
		return err
	}
	return bkt.Put(host.Pubkey[:], enc)
}

// upsertHostTx creates or refreshes a registry row from a HOST event. The
// first announcement registers the host as PENDING with the default
// availability score, later ones only update endpoint and pricing.
func upsertHostTx(tx *bolt.Tx, op *types.HostUpsertOp) error {
	bkt := tx.Bucket(hostsBucket)
	host, err := unmarshalHost(bkt.Get(op.Pubkey[:]))
	if err != nil {
		return err
	}
	if host == nil {
		host = &types.HostRecord{
			Pubkey:            op.Pubkey,
			Status:            types.HostPending,
			AvailabilityScore: params.KarstConfig().DefaultAvailabilityScore,
			RegisteredEpoch:   op.Epoch,
		}
	}
	host.Endpoint = op.Endpoint
	host.MinRequestSats = op.MinRequestSats
	host.SatsPerGB = op.SatsPerGB
	return putHost(bkt, host)
}

// upsertServeRecordTx marks that a host serves a cid. Existing records
// keep their original epoch.
func upsertServeRecordTx(tx *bolt.Tx, host, cid [32]byte, epoch primitives.Epoch) error {
	bkt := tx.Bucket(serveRecordsBucket)
	key := compositeKey(host[:], cid[:])
	if bkt.Get(key) != nil {
		return nil
	}
	enc, err := canonical.Marshal(&types.ServeRecord{Host: host, CID: cid, RegisteredEpoch: epoch})
	if err != nil {
		return err
	}
	if err := bkt.Put(key, enc); err != nil {
		return err
	}
	return tx.Bucket(serveCIDIndicesBucket).Put(compositeKey(cid[:], host[:]), nil)
}

// Host retrieval by pubkey. Returns nil for unknown hosts.
func (s *Store) Host(ctx context.Context, pubkey [32]byte) (*types.HostRecord, error) {
	ctx, span := trace.StartSpan(ctx, "coordinatorDB.Host")
	defer span.End()
	var host *types.HostRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		host, err = unmarshalHost(tx.Bucket(hostsBucket).Get(pubkey[:]))
		return err
	})
	return host, err
}

// Hosts returns every registered host.
func (s *Store) Hosts(ctx context.Context) ([]*types.HostRecord, error) {
	ctx, span := trace.StartSpan(ctx, "coordinatorDB.Hosts")
	defer span.End()
	hosts := make([]*types.HostRecord, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(hostsBucket).ForEach(func(_, enc []byte) error {
			host, err := unmarshalHost(enc)
			if err != nil {
				return err
			}
			hosts = append(hosts, host)
			return nil
		})
	})
	return hosts, err
}

// ActiveHosts returns the hosts the availability monitor may probe: hosts
// that are not leaving or slashed and published an endpoint.
func (s *Store) ActiveHosts(ctx context.Context) ([]*types.HostRecord, error) {
	ctx, span := trace.StartSpan(ctx, "coordinatorDB.ActiveHosts")
	defer span.End()
	hosts := make([]*types.HostRecord, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(hostsBucket).ForEach(func(_, enc []byte) error {
			host, err := unmarshalHost(enc)
			if err != nil {
				return err
			}
			if host.Status == types.HostUnbonding || host.Status == types.HostSlashed {
				return nil
			}
			if host.Endpoint == "" {
				return nil
			}
			hosts = append(hosts, host)
			return nil
		})
	})
	return hosts, err
}

// SaveHostStatus moves a host to the given lifecycle state.
func (s *Store) SaveHostStatus(ctx context.Context, pubkey [32]byte, status types.HostStatus) error {
	ctx, span := trace.StartSpan(ctx, "coordinatorDB.SaveHostStatus")
	defer span.End()
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(hostsBucket)
		host, err := unmarshalHost(bkt.Get(pubkey[:]))
		if err != nil {
			return err
		}
		if host == nil {
			return errors.New("unknown host")
		}
		host.Status = status
		return putHost(bkt, host)
	})
}

// SaveHostAvailability records the outcome of a scoring pass: the new
// availability score and the lifecycle state it maps to, in one write.
func (s *Store) SaveHostAvailability(ctx context.Context, pubkey [32]byte, score float64, status types.HostStatus) error {
	ctx, span := trace.StartSpan(ctx, "coordinatorDB.SaveHostAvailability")
	defer span.End()
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(hostsBucket)
		host, err := unmarshalHost(bkt.Get(pubkey[:]))
		if err != nil {
			return err
		}
		if host == nil {
			return errors.New("unknown host")
		}
		host.AvailabilityScore = score
		host.Status = status
		return putHost(bkt, host)
	})
}

// ServeRecordsByHost returns every cid a host has proven it serves.
func (s *Store) ServeRecordsByHost(ctx context.Context, host [32]byte) ([]*types.ServeRecord, error) {
	ctx, span := trace.StartSpan(ctx, "coordinatorDB.ServeRecordsByHost")
	defer span.End()
	records := make([]*types.ServeRecord, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(serveRecordsBucket).Cursor()
		for k, v := c.Seek(host[:]); k != nil && bytes.HasPrefix(k, host[:]); k, v = c.Next() {
			rec := &types.ServeRecord{}
			if err := canonical.Unmarshal(v, rec); err != nil {
				return errors.Wrap(err, "could not decode serve row")
			}
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}

// HostsServing returns the serve records of every host proven to serve a
// cid.
func (s *Store) HostsServing(ctx context.Context, cid [32]byte) ([]*types.ServeRecord, error) {
	ctx, span := trace.StartSpan(ctx, "coordinatorDB.HostsServing")
	defer span.End()
	records := make([]*types.ServeRecord, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		primary := tx.Bucket(serveRecordsBucket)
		c := tx.Bucket(serveCIDIndicesBucket).Cursor()
		for k, _ := c.Seek(cid[:]); k != nil && bytes.HasPrefix(k, cid[:]); k, _ = c.Next() {
			host := k[32:]
			enc := primary.Get(compositeKey(host, cid[:]))
			if enc == nil {
				continue
			}
			rec := &types.ServeRecord{}
			if err := canonical.Unmarshal(enc, rec); err != nil {
				return errors.Wrap(err, "could not decode serve row")
			}
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}
