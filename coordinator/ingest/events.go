package ingest

import (
	"context"

	"github.com/karstnet/karst/config/params"
	"github.com/karstnet/karst/coordinator/core/graph"
	"github.com/karstnet/karst/coordinator/types"
	"github.com/karstnet/karst/encoding/bytesutil"
	"github.com/karstnet/karst/protocol"
	"github.com/karstnet/karst/time/epochs"
	"go.opencensus.io/trace"
)

// EventResult reports an accepted envelope. Duplicate submissions of an
// already logged event succeed without repeating any side effect.
type EventResult struct {
	EventID     [32]byte
	Seq         uint64
	Duplicate   bool
	PoolCredit  int64
	ProtocolFee int64
}

// SubmitEvent runs the write pipeline for one envelope: field validation,
// signature verification, the proof of work or payment gate, side effect
// derivation, and the atomic apply.
func (s *Service) SubmitEvent(ctx context.Context, w *protocol.Envelope) (*EventResult, *Error) {
	ctx, span := trace.StartSpan(ctx, "ingest.SubmitEvent")
	defer span.End()

	ev, verr := w.Parse()
	if verr != nil {
		return nil, s.reject(verr.Code, verr.Detail)
	}
	validSig, err := ev.VerifySignature()
	if err != nil {
		return nil, internalError(err)
	}
	if !validSig {
		return nil, s.reject("invalid_signature", "ed25519 verification against from failed")
	}
	id, err := ev.ID()
	if err != nil {
		return nil, internalError(err)
	}

	// An already logged event is acknowledged as is. This must come
	// before the payment gate: the binding of a paid event was consumed
	// when it first committed.
	if logged, err := s.cfg.DB.Event(ctx, id); err != nil {
		return nil, internalError(err)
	} else if logged != nil {
		return &EventResult{EventID: id, Seq: logged.Seq, Duplicate: true}, nil
	}

	var binding *types.PendingPayment
	if ev.Sats == 0 {
		if rej := s.checkFreeWrite(ev); rej != nil {
			return nil, rej
		}
	} else if s.cfg.Lightning != nil {
		var rej *Error
		binding, rej = s.checkPayment(ctx, id, ev.Sats)
		if rej != nil {
			return nil, rej
		}
	}

	app := &types.EventApplication{Event: ev, ID: id, Edges: graph.ExtractEdges(ev, id)}
	if ev.Sats > 0 {
		app.PoolCredit = &types.PoolCreditOp{Key: ev.Ref, GrossSats: ev.Sats}
	}
	if ev.Kind == protocol.KindHost {
		// A HOST body that does not decode still logs the event, it
		// just touches no registry row.
		if payload, err := protocol.DecodeHostPayload(ev.Body); err == nil {
			app.HostUpsert = &types.HostUpsertOp{
				Pubkey:         ev.From,
				Endpoint:       payload.Endpoint,
				MinRequestSats: payload.Pricing.MinRequestSats,
				SatsPerGB:      payload.Pricing.SatsPerGB,
				Epoch:          epochs.CurrentEpoch(s.cfg.GenesisMS),
			}
		}
	}

	applied, err := s.cfg.DB.ApplyEvent(ctx, app)
	if err != nil {
		return nil, internalError(err)
	}
	// The binding is single use and survives failed applies for retry.
	if binding != nil && !applied.Duplicate {
		s.cfg.Bindings.Delete(binding.PaymentHash)
	}
	if !applied.Duplicate {
		eventsIngestedTotal.WithLabelValues(ev.Kind.String()).Inc()
		s.eventRate.Incr(1)
		if applied.PoolCredit > 0 {
			poolCreditSatsTotal.Add(float64(applied.PoolCredit))
		}
	}
	return &EventResult{
		EventID:     id,
		Seq:         applied.Seq,
		Duplicate:   applied.Duplicate,
		PoolCredit:  applied.PoolCredit,
		ProtocolFee: applied.ProtocolFee,
	}, nil
}

// checkFreeWrite gates zero sat events behind the proof of work and the
// optional per author rate limiter. Coordinator authored events are
// exempt, their signature already proves authority.
func (s *Service) checkFreeWrite(ev *protocol.Event) *Error {
	if ev.From == s.operatorPub {
		return nil
	}
	if s.cfg.RequirePow {
		if ev.Pow == nil {
			return s.reject("pow_required", "zero sat writes must carry a proof of work")
		}
		if !ev.VerifyPow(params.KarstConfig().PowDifficultyBits) {
			return s.reject("invalid_pow", "proof of work does not meet the difficulty")
		}
	}
	if s.freeLimiter != nil {
		key := bytesutil.EncodeHex(ev.From[:])
		if s.freeLimiter.Remaining(key) < 1 {
			return s.reject("rate_limited", "too many free writes from this author")
		}
		s.freeLimiter.Add(key, 1)
	}
	return nil
}

// checkPayment resolves the invoice bound to the event hash and requires
// it settled for at least the envelope amount.
func (s *Service) checkPayment(ctx context.Context, eventHash [32]byte, sats int64) (*types.PendingPayment, *Error) {
	binding, ok := s.cfg.Bindings.ByEventHash(eventHash)
	if !ok {
		return nil, s.reject("payment_required", "no invoice bound to this event hash")
	}
	if binding.Sats != sats {
		return nil, s.reject("sats_mismatch", "bound invoice amount differs from the envelope sats")
	}
	status, err := s.cfg.Lightning.LookupInvoice(ctx, binding.PaymentHash)
	if err != nil {
		return nil, s.reject("lnd_unavailable", err.Error())
	}
	if !status.Settled {
		return nil, s.reject("payment_not_settled", "invoice has not settled")
	}
	if status.AmtPaidSats < sats {
		return nil, s.reject("payment_insufficient", "settled amount is below the envelope sats")
	}
	return binding, nil
}

func (s *Service) reject(code, detail string) *Error {
	eventsRejectedTotal.WithLabelValues(code).Inc()
	return newError(code, detail)
}
