package driven

import "errors"

// Sentinel errors shared by the driven ports. Adapters return them unwrapped
// (or wrapped with %w) so callers can classify outcomes with errors.Is.
var (
	// ErrInsufficientFunds means the authoritative bounded decrement failed.
	// No balance mutation and no activity record were produced.
	ErrInsufficientFunds = errors.New("insufficient credits")

	// ErrValidation means the request was malformed and rejected before any
	// store access.
	ErrValidation = errors.New("invalid spend request")

	// ErrTransient means the store was unavailable or a lock wait timed out.
	// The operation left no partial state and is safe to retry with the same
	// idempotency key.
	ErrTransient = errors.New("transient ledger store error")
)
