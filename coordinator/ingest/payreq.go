package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/karstnet/karst/config/params"
	"github.com/karstnet/karst/encoding/bytesutil"
	"go.opencensus.io/trace"
)

// PaymentRequest is an invoice bound to a pending event write. When the
// coordinator runs without a lightning backend only DevMode and the
// event hash are populated.
type PaymentRequest struct {
	Invoice     string    `json:"invoice,omitempty"`
	PaymentHash string    `json:"payment_hash,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
	DevMode     bool      `json:"dev_mode,omitempty"`
	EventHash   string    `json:"event_hash"`
}

// PaymentState reports how far along a bound invoice is.
type PaymentState struct {
	Settled   bool   `json:"settled"`
	State     string `json:"state"`
	EventHash string `json:"event_hash"`
	Sats      int64  `json:"sats"`
}

// CreatePaymentRequest issues an invoice for a paid event write and binds
// it to the event hash. The binding is single use and expires with the
// invoice.
func (s *Service) CreatePaymentRequest(ctx context.Context, eventHash [32]byte, sats int64) (*PaymentRequest, *Error) {
	ctx, span := trace.StartSpan(ctx, "ingest.CreatePaymentRequest")
	defer span.End()

	if sats <= 0 {
		return nil, newError("invalid_sats", "sats must be positive")
	}
	eventHex := bytesutil.EncodeHex(eventHash[:])
	if s.cfg.Lightning == nil {
		return &PaymentRequest{DevMode: true, EventHash: eventHex}, nil
	}
	memo := fmt.Sprintf("karst event %s", eventHex[:16])
	inv, err := s.cfg.Lightning.CreateInvoice(ctx, sats, memo, params.KarstConfig().InvoiceExpirySecs)
	if err != nil {
		log.WithError(err).Error("Could not create invoice")
		return nil, newError("lnd_unavailable", "lightning backend rejected the invoice request")
	}
	binding := s.cfg.Bindings.Bind(eventHash, inv.PaymentHash, inv.Bolt11, sats)
	return &PaymentRequest{
		Invoice:     inv.Bolt11,
		PaymentHash: bytesutil.EncodeHex(inv.PaymentHash[:]),
		ExpiresAt:   binding.ExpiresAt,
		EventHash:   eventHex,
	}, nil
}

// PaymentStatus reports the settlement state of a bound invoice.
func (s *Service) PaymentStatus(ctx context.Context, paymentHash [32]byte) (*PaymentState, *Error) {
	ctx, span := trace.StartSpan(ctx, "ingest.PaymentStatus")
	defer span.End()

	binding, ok := s.cfg.Bindings.ByPaymentHash(paymentHash)
	if !ok {
		return nil, newError("not_found", "no pending payment for that payment hash")
	}
	if s.cfg.Lightning == nil {
		return &PaymentState{
			State:     "DEV_MODE",
			EventHash: bytesutil.EncodeHex(binding.EventHash[:]),
			Sats:      binding.Sats,
		}, nil
	}
	status, err := s.cfg.Lightning.LookupInvoice(ctx, paymentHash)
	if err != nil {
		log.WithError(err).Error("Could not look up invoice")
		return nil, newError("lnd_unavailable", "lightning backend did not answer the invoice lookup")
	}
	return &PaymentState{
		Settled:   status.Settled,
		State:     status.State,
		EventHash: bytesutil.EncodeHex(binding.EventHash[:]),
		Sats:      binding.Sats,
	}, nil
}
