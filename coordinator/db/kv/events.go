package kv

import (
	"bytes"
	"context"
	"sort"

	"github.com/karstnet/karst/coordinator/db/filters"
	"github.com/karstnet/karst/coordinator/types"
	"github.com/karstnet/karst/encoding/bytesutil"
	"github.com/karstnet/karst/protocol"
	bolt "go.etcd.io/bbolt"
	"go.opencensus.io/trace"
)

// ApplyEvent appends an event and its side effects in one transaction.
// Applying the same event id twice is a no-op that reports the original
// sequence number.
func (s *Store) ApplyEvent(ctx context.Context, app *types.EventApplication) (*types.ApplyResult, error) {
	ctx, span := trace.StartSpan(ctx, "coordinatorDB.ApplyEvent")
	defer span.End()
	enc, err := marshalEvent(app.Event)
	if err != nil {
		return nil, err
	}
	res := &types.ApplyResult{}
	err = s.db.Update(func(tx *bolt.Tx) error {
		if existing := tx.Bucket(eventIDIndicesBucket).Get(app.ID[:]); existing != nil {
			res.Duplicate = true
			res.Seq = bytesutil.BytesToUint64BigEndian(existing)
			return nil
		}
		seq, err := saveEventTx(tx, app.ID, app.Event, enc)
		if err != nil {
			return err
		}
		res.Seq = seq
		if app.PoolCredit != nil {
			fee, credited, err := creditPoolTx(tx, app.PoolCredit.Key, app.PoolCredit.GrossSats)
			if err != nil {
				return err
			}
			res.ProtocolFee = fee
			res.PoolCredit = credited
		}
		if app.HostUpsert != nil {
			if err := upsertHostTx(tx, app.HostUpsert); err != nil {
				return err
			}
		}
		for _, edge := range app.Edges {
			if err := saveEdgeTx(tx, edge); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// saveEventTx writes the event row under the next sequence number and
// maintains the id, ref, kind and author indices.
func saveEventTx(tx *bolt.Tx, id [32]byte, ev *protocol.Event, enc []byte) (uint64, error) {
	bkt := tx.Bucket(eventsBucket)
	seq, err := bkt.NextSequence()
	if err != nil {
		return 0, err
	}
	seqKey := bytesutil.Uint64ToBytesBigEndian(seq)
	if err := bkt.Put(seqKey, enc); err != nil {
		return 0, err
	}
	if err := tx.Bucket(eventIDIndicesBucket).Put(id[:], seqKey); err != nil {
		return 0, err
	}
	if err := tx.Bucket(eventRefIndicesBucket).Put(compositeKey(ev.Ref[:], seqKey), nil); err != nil {
		return 0, err
	}
	if err := tx.Bucket(eventKindIndicesBucket).Put(compositeKey([]byte{byte(ev.Kind)}, seqKey), nil); err != nil {
		return 0, err
	}
	if err := tx.Bucket(eventAuthorIndicesBucket).Put(compositeKey(ev.From[:], seqKey), nil); err != nil {
		return 0, err
	}
	return seq, nil
}

// Event retrieval by id. Returns nil when the id is unknown.
func (s *Store) Event(ctx context.Context, id [32]byte) (*types.LoggedEvent, error) {
	ctx, span := trace.StartSpan(ctx, "coordinatorDB.Event")
	defer span.End()
	var logged *types.LoggedEvent
	err := s.db.View(func(tx *bolt.Tx) error {
		seqKey := tx.Bucket(eventIDIndicesBucket).Get(id[:])
		if seqKey == nil {
			return nil
		}
		enc := tx.Bucket(eventsBucket).Get(seqKey)
		if enc == nil {
			return nil
		}
		ev, err := unmarshalEvent(enc)
		if err != nil {
			return err
		}
		logged = &types.LoggedEvent{
			Seq:   bytesutil.BytesToUint64BigEndian(seqKey),
			ID:    id,
			Event: ev,
		}
		return nil
	})
	return logged, err
}

// EventBySeq returns the event at a log position. Returns nil when the
// sequence number was never assigned.
func (s *Store) EventBySeq(ctx context.Context, seq uint64) (*types.LoggedEvent, error) {
	ctx, span := trace.StartSpan(ctx, "coordinatorDB.EventBySeq")
	defer span.End()
	var logged *types.LoggedEvent
	err := s.db.View(func(tx *bolt.Tx) error {
		enc := tx.Bucket(eventsBucket).Get(bytesutil.Uint64ToBytesBigEndian(seq))
		if enc == nil {
			return nil
		}
		ev, err := unmarshalEvent(enc)
		if err != nil {
			return err
		}
		id, err := ev.ID()
		if err != nil {
			return err
		}
		logged = &types.LoggedEvent{Seq: seq, ID: id, Event: ev}
		return nil
	})
	return logged, err
}

// ReplayEvents walks the log in sequence order. The log is the source of
// truth, every derived view can be rebuilt from a replay. Iteration stops
// at the first error fn returns.
func (s *Store) ReplayEvents(ctx context.Context, fn func(*types.LoggedEvent) error) error {
	ctx, span := trace.StartSpan(ctx, "coordinatorDB.ReplayEvents")
	defer span.End()
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(eventsBucket).ForEach(func(k, enc []byte) error {
			ev, err := unmarshalEvent(enc)
			if err != nil {
				return err
			}
			id, err := ev.ID()
			if err != nil {
				return err
			}
			return fn(&types.LoggedEvent{
				Seq:   bytesutil.BytesToUint64BigEndian(k),
				ID:    id,
				Event: ev,
			})
		})
	})
}

// Events retrieves events by filter criteria, newest first. Indexed
// attributes resolve through the index buckets and intersect, the rest of
// the filter applies after decoding.
func (s *Store) Events(ctx context.Context, f *filters.QueryFilter) ([]*types.LoggedEvent, error) {
	ctx, span := trace.StartSpan(ctx, "coordinatorDB.Events")
	defer span.End()
	if f == nil {
		f = filters.NewFilter()
	}
	since, hasSince := int64(0), false
	if v, ok := f.Filters()[filters.Since]; ok {
		since, hasSince = v.(int64), true
	}
	events := make([]*types.LoggedEvent, 0)
	skipped := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(eventsBucket)
		collect := func(seqKey, enc []byte) (bool, error) {
			ev, err := unmarshalEvent(enc)
			if err != nil {
				return false, err
			}
			if hasSince && ev.TS < since {
				return true, nil
			}
			if skipped < f.Offset() {
				skipped++
				return true, nil
			}
			id, err := ev.ID()
			if err != nil {
				return false, err
			}
			events = append(events, &types.LoggedEvent{
				Seq:   bytesutil.BytesToUint64BigEndian(seqKey),
				ID:    id,
				Event: ev,
			})
			return f.Limit() == 0 || len(events) < f.Limit(), nil
		}
		seqs, indexed := candidateSeqs(tx, f)
		if indexed {
			for _, seq := range seqs {
				seqKey := bytesutil.Uint64ToBytesBigEndian(seq)
				enc := bkt.Get(seqKey)
				if enc == nil {
					continue
				}
				more, err := collect(seqKey, enc)
				if err != nil {
					return err
				}
				if !more {
					return nil
				}
			}
			return nil
		}
		c := bkt.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			more, err := collect(k, v)
			if err != nil {
				return err
			}
			if !more {
				return nil
			}
		}
		return nil
	})
	return events, err
}

// candidateSeqs resolves the indexed filter attributes to a descending
// list of sequence numbers. The second return reports whether any indexed
// attribute was set at all.
func candidateSeqs(tx *bolt.Tx, f *filters.QueryFilter) ([]uint64, bool) {
	type indexScan struct {
		bucket []byte
		prefix []byte
	}
	scans := make([]indexScan, 0, 3)
	for k, v := range f.Filters() {
		switch k {
		case filters.Ref:
			ref := v.([32]byte)
			scans = append(scans, indexScan{eventRefIndicesBucket, ref[:]})
		case filters.Kind:
			kind := v.(protocol.Kind)
			scans = append(scans, indexScan{eventKindIndicesBucket, []byte{byte(kind)}})
		case filters.Author:
			author := v.([32]byte)
			scans = append(scans, indexScan{eventAuthorIndicesBucket, author[:]})
		}
	}
	if len(scans) == 0 {
		return nil, false
	}
	var intersection map[uint64]struct{}
	for _, scan := range scans {
		found := make(map[uint64]struct{})
		c := tx.Bucket(scan.bucket).Cursor()
		for k, _ := c.Seek(scan.prefix); k != nil && bytes.HasPrefix(k, scan.prefix); k, _ = c.Next() {
			found[bytesutil.BytesToUint64BigEndian(k[len(scan.prefix):])] = struct{}{}
		}
		if intersection == nil {
			intersection = found
			continue
		}
		for seq := range intersection {
			if _, ok := found[seq]; !ok {
				delete(intersection, seq)
			}
		}
	}
	seqs := make([]uint64, 0, len(intersection))
	for seq := range intersection {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] > seqs[j] })
	return seqs, true
}

// EventCount returns the number of events in the log. The log is append
// only, so the bucket sequence equals the row count.
func (s *Store) EventCount(ctx context.Context) (uint64, error) {
	ctx, span := trace.StartSpan(ctx, "coordinatorDB.EventCount")
	defer span.End()
	var count uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(eventsBucket).Sequence()
		return nil
	})
	return count, err
}
