package ingest

import (
	"context"
	"time"

	"github.com/karstnet/karst/config/params"
	"github.com/karstnet/karst/protocol"
	"github.com/karstnet/karst/time/epochs"
	"go.opencensus.io/trace"
)

// ReceiptResult reports an accepted receipt. A duplicate payment hash is
// an idempotent success, not an error.
type ReceiptResult struct {
	PaymentHash [32]byte
	CID         [32]byte
	Duplicate   bool
}

// SubmitReceipt verifies an egress receipt and persists it together with
// the host serve record and the coordinator authored RECEIPT_SUBMIT
// event.
func (s *Service) SubmitReceipt(ctx context.Context, w *protocol.ReceiptEnvelope) (*ReceiptResult, *Error) {
	ctx, span := trace.StartSpan(ctx, "ingest.SubmitReceipt")
	defer span.End()
	cfg := params.KarstConfig()

	if len(s.cfg.MintPubkeys) == 0 {
		return nil, newError("no_mint_pubkeys_configured", "coordinator has no receipt mint keys")
	}
	rcpt, verr := w.Parse()
	if verr != nil {
		return nil, newError(verr.Code, verr.Detail)
	}
	if !rcpt.VerifyMintToken(s.cfg.MintPubkeys) {
		return nil, newError("invalid_receipt", "mint token does not verify against any configured key")
	}
	if !rcpt.VerifyPow(cfg.PowDifficultyBits) {
		return nil, newError("invalid_receipt", "receipt proof of work does not meet the difficulty")
	}
	validSig, err := rcpt.VerifyClientSig()
	if err != nil {
		return nil, internalError(err)
	}
	if !validSig {
		return nil, newError("invalid_receipt", "client signature does not verify")
	}
	current := epochs.CurrentEpoch(s.cfg.GenesisMS)
	if rcpt.Epoch > current || rcpt.Epoch < current.SubOrZero(cfg.ReceiptEpochWindow) {
		return nil, newError("epoch_out_of_range", "receipt epoch is outside the accepted window")
	}

	wrapper, err := s.receiptEvent(rcpt)
	if err != nil {
		return nil, internalError(err)
	}
	duplicate, err := s.cfg.DB.ApplyReceipt(ctx, rcpt, wrapper)
	if err != nil {
		return nil, internalError(err)
	}
	if duplicate {
		receiptsDuplicateTotal.Inc()
	} else {
		receiptsIngestedTotal.Inc()
	}
	return &ReceiptResult{PaymentHash: rcpt.PaymentHash, CID: rcpt.CID(), Duplicate: duplicate}, nil
}

// receiptEvent composes the operator signed log entry recording that a
// receipt was accepted for the cid.
func (s *Service) receiptEvent(rcpt *protocol.Receipt) (*protocol.Event, error) {
	body, err := protocol.EncodePayload(&protocol.ReceiptSubmitPayload{
		PaymentHash: rcpt.PaymentHash[:],
		HostPubkey:  rcpt.HostPubkey[:],
		Epoch:       uint64(rcpt.Epoch),
		PriceSats:   rcpt.PriceSats,
	})
	if err != nil {
		return nil, err
	}
	return protocol.SignEvent(s.operatorKey, protocol.KindReceiptSubmit, rcpt.CID(), body, 0, time.Now().UnixMilli())
}
