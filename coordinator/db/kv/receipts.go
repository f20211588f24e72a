package kv

import (
	"bytes"
	"context"

	"github.com/karstnet/karst/encoding/bytesutil"
	"github.com/karstnet/karst/protocol"
	"github.com/karstnet/karst/protocol/primitives"
	bolt "go.etcd.io/bbolt"
	"go.opencensus.io/trace"
)

// ApplyReceipt stores a receipt, marks the host as serving the receipt's
// cid and appends the wrapping event, all in one transaction. A receipt
// whose payment hash is already known changes nothing and reports true.
func (s *Store) ApplyReceipt(ctx context.Context, rcpt *protocol.Receipt, ev *protocol.Event) (bool, error) {
	ctx, span := trace.StartSpan(ctx, "coordinatorDB.ApplyReceipt")
	defer span.End()
	encReceipt, err := marshalReceipt(rcpt)
	if err != nil {
		return false, err
	}
	var encEvent []byte
	var evID [32]byte
	if ev != nil {
		encEvent, err = marshalEvent(ev)
		if err != nil {
			return false, err
		}
		evID, err = ev.ID()
		if err != nil {
			return false, err
		}
	}
	duplicate := false
	err = s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(receiptsBucket)
		if bkt.Get(rcpt.PaymentHash[:]) != nil {
			duplicate = true
			return nil
		}
		if err := bkt.Put(rcpt.PaymentHash[:], encReceipt); err != nil {
			return err
		}
		epochKey := bytesutil.Uint64ToBytesBigEndian(uint64(rcpt.Epoch))
		if err := tx.Bucket(receiptEpochIndicesBucket).Put(compositeKey(epochKey, rcpt.PaymentHash[:]), nil); err != nil {
			return err
		}
		if err := upsertServeRecordTx(tx, rcpt.HostPubkey, rcpt.CID(), rcpt.Epoch); err != nil {
			return err
		}
		if ev != nil {
			if _, err := saveEventTx(tx, evID, ev, encEvent); err != nil {
				return err
			}
		}
		return nil
	})
	return duplicate, err
}

// HasReceipt checks if a receipt with the given payment hash exists.
func (s *Store) HasReceipt(ctx context.Context, paymentHash [32]byte) bool {
	ctx, span := trace.StartSpan(ctx, "coordinatorDB.HasReceipt")
	defer span.End()
	exists := false
	// #nosec G104. Always returns nil.
	s.db.View(func(tx *bolt.Tx) error {
		exists = tx.Bucket(receiptsBucket).Get(paymentHash[:]) != nil
		return nil
	})
	return exists
}

// ReceiptsByEpoch returns every receipt accepted for the given epoch.
func (s *Store) ReceiptsByEpoch(ctx context.Context, epoch primitives.Epoch) ([]*protocol.Receipt, error) {
	ctx, span := trace.StartSpan(ctx, "coordinatorDB.ReceiptsByEpoch")
	defer span.End()
	receipts := make([]*protocol.Receipt, 0)
	prefix := bytesutil.Uint64ToBytesBigEndian(uint64(epoch))
	err := s.db.View(func(tx *bolt.Tx) error {
		primary := tx.Bucket(receiptsBucket)
		c := tx.Bucket(receiptEpochIndicesBucket).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			enc := primary.Get(k[len(prefix):])
			if enc == nil {
				continue
			}
			rcpt, err := unmarshalReceipt(enc)
			if err != nil {
				return err
			}
			receipts = append(receipts, rcpt)
		}
		return nil
	})
	return receipts, err
}

// PruneReceipts deletes receipts accepted for epochs before olderThan.
// Settled epochs no longer need their receipts once the dispute window
// has passed. Returns the number of receipts removed.
func (s *Store) PruneReceipts(ctx context.Context, olderThan primitives.Epoch) (int, error) {
	ctx, span := trace.StartSpan(ctx, "coordinatorDB.PruneReceipts")
	defer span.End()
	cutoff := bytesutil.Uint64ToBytesBigEndian(uint64(olderThan))
	pruned := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		primary := tx.Bucket(receiptsBucket)
		idx := tx.Bucket(receiptEpochIndicesBucket)
		c := idx.Cursor()
		for k, _ := c.First(); k != nil && bytes.Compare(k[:8], cutoff) < 0; k, _ = c.Next() {
			if err := primary.Delete(k[8:]); err != nil {
				return err
			}
			if err := c.Delete(); err != nil {
				return err
			}
			pruned++
		}
		return nil
	})
	return pruned, err
}
