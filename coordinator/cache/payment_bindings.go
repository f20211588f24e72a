// Package cache holds the coordinator's in memory stores: payment
// bindings awaiting settlement and materialized feed snapshots.
package cache

import (
	"time"

	"github.com/karstnet/karst/config/params"
	"github.com/karstnet/karst/coordinator/types"
	"github.com/karstnet/karst/encoding/bytesutil"
	gcache "github.com/patrickmn/go-cache"
)

// PaymentBindings tracks invoices issued for paid event writes until the
// client settles them. Entries are indexed both by event hash and by
// payment hash and expire after the binding TTL, so an unpaid invoice
// never pins memory.
type PaymentBindings struct {
	byEvent   *gcache.Cache
	byPayment *gcache.Cache
}

// NewPaymentBindings initializes the dual indexed binding cache with the
// configured TTL and sweep period.
func NewPaymentBindings() *PaymentBindings {
	cfg := params.KarstConfig()
	return &PaymentBindings{
		byEvent:   gcache.New(cfg.PaymentBindingTTL, cfg.PaymentSweepPeriod),
		byPayment: gcache.New(cfg.PaymentBindingTTL, cfg.PaymentSweepPeriod),
	}
}

// Bind records an invoice for a pending event write and returns the
// binding. Rebinding the same event hash replaces the previous invoice.
func (p *PaymentBindings) Bind(eventHash, paymentHash [32]byte, bolt11 string, sats int64) *types.PendingPayment {
	now := time.Now()
	binding := &types.PendingPayment{
		EventHash:   eventHash,
		PaymentHash: paymentHash,
		Bolt11:      bolt11,
		Sats:        sats,
		CreatedAt:   now,
		ExpiresAt:   now.Add(params.KarstConfig().PaymentBindingTTL),
	}
	if prev, ok := p.ByEventHash(eventHash); ok {
		p.byPayment.Delete(bytesutil.EncodeHex(prev.PaymentHash[:]))
	}
	p.byEvent.SetDefault(bytesutil.EncodeHex(eventHash[:]), binding)
	p.byPayment.SetDefault(bytesutil.EncodeHex(paymentHash[:]), binding)
	return binding
}

// ByEventHash looks up the live binding of an event hash.
func (p *PaymentBindings) ByEventHash(eventHash [32]byte) (*types.PendingPayment, bool) {
	return toBinding(p.byEvent.Get(bytesutil.EncodeHex(eventHash[:])))
}

// ByPaymentHash looks up the live binding of a payment hash.
func (p *PaymentBindings) ByPaymentHash(paymentHash [32]byte) (*types.PendingPayment, bool) {
	return toBinding(p.byPayment.Get(bytesutil.EncodeHex(paymentHash[:])))
}

// Delete drops a binding by payment hash, clearing both indexes. Called
// once the payment settles and the event commits.
func (p *PaymentBindings) Delete(paymentHash [32]byte) {
	binding, ok := p.ByPaymentHash(paymentHash)
	if !ok {
		return
	}
	p.byEvent.Delete(bytesutil.EncodeHex(binding.EventHash[:]))
	p.byPayment.Delete(bytesutil.EncodeHex(paymentHash[:]))
}

// Count returns the number of live bindings.
func (p *PaymentBindings) Count() int {
	return p.byPayment.ItemCount()
}

func toBinding(item interface{}, ok bool) (*types.PendingPayment, bool) {
	if !ok {
		return nil, false
	}
	binding, ok := item.(*types.PendingPayment)
	return binding, ok
}
