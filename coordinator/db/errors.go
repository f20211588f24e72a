package db

import "github.com/karstnet/karst/coordinator/db/kv"

// ErrAlreadySettled can be used to determine if ApplySettlement rejected
// an epoch because it is not newer than the last settled one. Callers
// treat it as an idempotent no-op rather than a failure.
var ErrAlreadySettled = kv.ErrAlreadySettled

// ErrPinNotActive is returned when cancelling a pin contract that has
// already been exhausted or cancelled.
var ErrPinNotActive = kv.ErrPinNotActive
