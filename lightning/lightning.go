// Package lightning abstracts the node used to issue and inspect the
// invoices that gate paid event writes.
package lightning

import (
	"context"

	"github.com/pkg/errors"
)

// ErrUnavailable is returned when no backend is configured or the node
// cannot be reached. Callers surface it as a service unavailable
// condition rather than a client error.
var ErrUnavailable = errors.New("lightning backend unavailable")

// Invoice is a freshly issued payment request.
type Invoice struct {
	PaymentHash [32]byte
	Bolt11      string
}

// InvoiceStatus reports the settlement state of an invoice.
type InvoiceStatus struct {
	Settled     bool
	State       string
	AmtPaidSats int64
}

// Backend creates and looks up invoices.
type Backend interface {
	// CreateInvoice issues an invoice for the given amount.
	CreateInvoice(ctx context.Context, valueSats int64, memo string, expirySecs int64) (*Invoice, error)
	// LookupInvoice reports the current state of an invoice.
	LookupInvoice(ctx context.Context, paymentHash [32]byte) (*InvoiceStatus, error)
}
