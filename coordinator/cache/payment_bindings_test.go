package cache

import (
	"testing"
	"time"

	"github.com/karstnet/karst/config/params"
	"github.com/karstnet/karst/testing/assert"
	"github.com/karstnet/karst/testing/require"
	"github.com/karstnet/karst/testing/util"
)

func TestPaymentBindings_RoundTrip(t *testing.T) {
	params.SetupTestConfigCleanup(t)
	bindings := NewPaymentBindings()

	eventHash := util.Root32(0x01)
	paymentHash := util.Root32(0x02)
	binding := bindings.Bind(eventHash, paymentHash, "lnbc5u1test", 500)
	assert.Equal(t, int64(500), binding.Sats)
	assert.Equal(t, 1, bindings.Count())

	byEvent, ok := bindings.ByEventHash(eventHash)
	require.Equal(t, true, ok)
	assert.Equal(t, paymentHash, byEvent.PaymentHash)
	byPayment, ok := bindings.ByPaymentHash(paymentHash)
	require.Equal(t, true, ok)
	assert.Equal(t, eventHash, byPayment.EventHash)
	assert.Equal(t, "lnbc5u1test", byPayment.Bolt11)

	_, ok = bindings.ByEventHash(util.Root32(0x03))
	assert.Equal(t, false, ok)
}

func TestPaymentBindings_Delete(t *testing.T) {
	params.SetupTestConfigCleanup(t)
	bindings := NewPaymentBindings()

	eventHash := util.Root32(0x04)
	paymentHash := util.Root32(0x05)
	bindings.Bind(eventHash, paymentHash, "lnbc1u1test", 100)
	bindings.Delete(paymentHash)

	_, ok := bindings.ByEventHash(eventHash)
	assert.Equal(t, false, ok)
	_, ok = bindings.ByPaymentHash(paymentHash)
	assert.Equal(t, false, ok)
	assert.Equal(t, 0, bindings.Count())

	// Deleting an unknown hash is a no-op.
	bindings.Delete(util.Root32(0x06))
}

func TestPaymentBindings_RebindReplacesInvoice(t *testing.T) {
	params.SetupTestConfigCleanup(t)
	bindings := NewPaymentBindings()

	eventHash := util.Root32(0x07)
	first := util.Root32(0x08)
	second := util.Root32(0x09)
	bindings.Bind(eventHash, first, "lnbc1u1old", 100)
	bindings.Bind(eventHash, second, "lnbc1u1new", 100)

	byEvent, ok := bindings.ByEventHash(eventHash)
	require.Equal(t, true, ok)
	assert.Equal(t, second, byEvent.PaymentHash)
	// The superseded payment hash no longer resolves.
	_, ok = bindings.ByPaymentHash(first)
	assert.Equal(t, false, ok)
	assert.Equal(t, 1, bindings.Count())
}

func TestPaymentBindings_Expiry(t *testing.T) {
	params.SetupTestConfigCleanup(t)
	cfg := params.KarstConfig().Copy()
	cfg.PaymentBindingTTL = 20 * time.Millisecond
	cfg.PaymentSweepPeriod = 5 * time.Millisecond
	params.OverrideKarstConfig(cfg)

	bindings := NewPaymentBindings()
	bindings.Bind(util.Root32(0x0A), util.Root32(0x0B), "lnbc1u1exp", 100)

	time.Sleep(40 * time.Millisecond)
	_, ok := bindings.ByEventHash(util.Root32(0x0A))
	assert.Equal(t, false, ok)
	_, ok = bindings.ByPaymentHash(util.Root32(0x0B))
	assert.Equal(t, false, ok)
}
