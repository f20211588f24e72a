package kv

import (
	"bytes"
	"context"
	"math"

	"github.com/karstnet/karst/config/params"
	"github.com/karstnet/karst/coordinator/types"
	"github.com/karstnet/karst/encoding/canonical"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"go.opencensus.io/trace"
)

// ErrPinNotActive is returned when cancelling a pin that is exhausted or
// already cancelled.
var ErrPinNotActive = errors.New("pin contract is not active")

func unmarshalPin(enc []byte) (*types.PinContract, error) {
	if enc == nil {
		return nil, nil
	}
	pin := &types.PinContract{}
	if err := canonical.Unmarshal(enc, pin); err != nil {
		return nil, errors.Wrap(err, "could not decode pin row")
	}
	return pin, nil
}

func putPin(bkt *bolt.Bucket, pin *types.PinContract) error {
	enc, err := canonical.Marshal(pin)
	if err != nil {
		return err
	}
	return bkt.Put([]byte(pin.ID), enc)
}

// ApplyPinCreate stores a new pin contract and credits its budget to the
// content's pool through the usual credit rule, in one transaction.
func (s *Store) ApplyPinCreate(ctx context.Context, pin *types.PinContract) (*types.PinCreateResult, error) {
	ctx, span := trace.StartSpan(ctx, "coordinatorDB.ApplyPinCreate")
	defer span.End()
	res := &types.PinCreateResult{}
	err := s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(pinsBucket)
		if bkt.Get([]byte(pin.ID)) != nil {
			return errors.New("pin contract id already exists")
		}
		if err := putPin(bkt, pin); err != nil {
			return err
		}
		if err := tx.Bucket(pinCIDIndicesBucket).Put(compositeKey(pin.CID[:], []byte(pin.ID)), nil); err != nil {
			return err
		}
		fee, credited, err := creditPoolTx(tx, pin.CID, pin.BudgetSats)
		if err != nil {
			return err
		}
		res.ProtocolFee = fee
		res.PoolCredit = credited
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// CancelPinContract cancels an active pin. The unspent budget minus the
// cancellation fee leaves the pool, clamped at the pool balance. Returns
// nil for an unknown id.
func (s *Store) CancelPinContract(ctx context.Context, id string) (*types.PinCancelResult, error) {
	ctx, span := trace.StartSpan(ctx, "coordinatorDB.CancelPinContract")
	defer span.End()
	var res *types.PinCancelResult
	err := s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(pinsBucket)
		pin, err := unmarshalPin(bkt.Get([]byte(id)))
		if err != nil {
			return err
		}
		if pin == nil {
			return nil
		}
		if pin.Status != types.PinActive {
			return ErrPinNotActive
		}
		fee := int64(math.Floor(float64(pin.RemainingBudget) * params.KarstConfig().PinCancelFeePct))
		refund := pin.RemainingBudget - fee
		drained, err := drainPoolTx(tx.Bucket(poolsBucket), pin.CID, refund, 0, false)
		if err != nil {
			return err
		}
		pin.RemainingBudget = 0
		pin.Status = types.PinCancelled
		if err := putPin(bkt, pin); err != nil {
			return err
		}
		res = &types.PinCancelResult{Pin: pin, Refund: drained, CancelFee: fee}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, err
}

// drainPinTx reduces a pin's remaining budget, moving it to EXHAUSTED
// when the budget hits zero.
func drainPinTx(bkt *bolt.Bucket, op *types.PinDrainOp) error {
	pin, err := unmarshalPin(bkt.Get([]byte(op.ID)))
	if err != nil {
		return err
	}
	if pin == nil || pin.Status != types.PinActive {
		return nil
	}
	drain := op.Drain
	if drain > pin.RemainingBudget {
		drain = pin.RemainingBudget
	}
	if drain <= 0 {
		return nil
	}
	pin.RemainingBudget -= drain
	if pin.RemainingBudget == 0 {
		pin.Status = types.PinExhausted
	}
	return putPin(bkt, pin)
}

// PinContract retrieval by id. Returns nil for unknown ids.
func (s *Store) PinContract(ctx context.Context, id string) (*types.PinContract, error) {
	ctx, span := trace.StartSpan(ctx, "coordinatorDB.PinContract")
	defer span.End()
	var pin *types.PinContract
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		pin, err = unmarshalPin(tx.Bucket(pinsBucket).Get([]byte(id)))
		return err
	})
	return pin, err
}

// PinsByCID returns every pin contract on a cid, any status.
func (s *Store) PinsByCID(ctx context.Context, cid [32]byte) ([]*types.PinContract, error) {
	ctx, span := trace.StartSpan(ctx, "coordinatorDB.PinsByCID")
	defer span.End()
	pins := make([]*types.PinContract, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		primary := tx.Bucket(pinsBucket)
		c := tx.Bucket(pinCIDIndicesBucket).Cursor()
		for k, _ := c.Seek(cid[:]); k != nil && bytes.HasPrefix(k, cid[:]); k, _ = c.Next() {
			pin, err := unmarshalPin(primary.Get(k[32:]))
			if err != nil {
				return err
			}
			if pin != nil {
				pins = append(pins, pin)
			}
		}
		return nil
	})
	return pins, err
}
