package ingest

import "net/http"

// Error is a structured rejection from the ingest pipeline. The code is
// machine readable and stable, the status is the HTTP mapping of the
// error taxonomy: validation and authority checks that fail cleanly map
// to 4xx, unavailable externals to 503.
type Error struct {
	Code   string `json:"error"`
	Detail string `json:"detail,omitempty"`
	Status int    `json:"-"`
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Code
	}
	return e.Code + ": " + e.Detail
}

// statusForCode maps the documented error codes onto HTTP statuses.
// Unlisted codes are validation failures.
var statusForCode = map[string]int{
	"invalid_signature":          http.StatusUnauthorized,
	"invalid_receipt":            http.StatusUnauthorized,
	"not_found":                  http.StatusNotFound,
	"payment_required":           http.StatusPaymentRequired,
	"payment_not_settled":        http.StatusPaymentRequired,
	"payment_insufficient":       http.StatusPaymentRequired,
	"rate_limited":               http.StatusTooManyRequests,
	"lnd_unavailable":            http.StatusServiceUnavailable,
	"no_mint_pubkeys_configured": http.StatusServiceUnavailable,
	"internal_error":             http.StatusInternalServerError,
}

func newError(code, detail string) *Error {
	status, ok := statusForCode[code]
	if !ok {
		status = http.StatusUnprocessableEntity
	}
	return &Error{Code: code, Detail: detail, Status: status}
}

func internalError(err error) *Error {
	return newError("internal_error", err.Error())
}
