// Package testing provides an in memory lightning backend for tests.
package testing

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/karstnet/karst/lightning"
	"github.com/pkg/errors"
)

// Backend is a mock lightning node. Invoices are held in memory and
// settle only when the test marks them settled.
type Backend struct {
	lock      sync.Mutex
	counter   uint64
	invoices  map[[32]byte]*lightning.InvoiceStatus
	CreateErr error
	LookupErr error
}

// NewBackend creates an empty mock backend.
func NewBackend() *Backend {
	return &Backend{invoices: make(map[[32]byte]*lightning.InvoiceStatus)}
}

// CreateInvoice issues a deterministic invoice in the OPEN state.
func (b *Backend) CreateInvoice(_ context.Context, valueSats int64, memo string, _ int64) (*lightning.Invoice, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.CreateErr != nil {
		return nil, b.CreateErr
	}
	b.counter++
	var seed [8]byte
	binary.BigEndian.PutUint64(seed[:], b.counter)
	hash := sha256.Sum256(append(seed[:], memo...))
	b.invoices[hash] = &lightning.InvoiceStatus{State: "OPEN"}
	return &lightning.Invoice{
		PaymentHash: hash,
		Bolt11:      fmt.Sprintf("lnmock%d0sats%d", valueSats, b.counter),
	}, nil
}

// LookupInvoice reports the state of a previously created invoice.
func (b *Backend) LookupInvoice(_ context.Context, paymentHash [32]byte) (*lightning.InvoiceStatus, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.LookupErr != nil {
		return nil, b.LookupErr
	}
	status, ok := b.invoices[paymentHash]
	if !ok {
		return nil, errors.New("unable to locate invoice")
	}
	cp := *status
	return &cp, nil
}

// Settle marks an invoice settled for the given amount.
func (b *Backend) Settle(paymentHash [32]byte, amtPaidSats int64) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.invoices[paymentHash] = &lightning.InvoiceStatus{
		Settled:     true,
		State:       "SETTLED",
		AmtPaidSats: amtPaidSats,
	}
}

// Cancel marks an invoice canceled.
func (b *Backend) Cancel(paymentHash [32]byte) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.invoices[paymentHash] = &lightning.InvoiceStatus{State: "CANCELED"}
}
