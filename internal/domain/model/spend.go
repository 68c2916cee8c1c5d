package model

import "fmt"

// SpendRequest describes one attempt to consume credits. IdempotencyKey is a
// caller-supplied opaque token; retries of the same logical action must reuse
// the same key to guarantee at-most-once debiting.
type SpendRequest struct {
	Principal      string
	Amount         int64
	Kind           ActivityKind
	Title          string
	Metadata       map[string]string
	IdempotencyKey string

	// Score is an optional outcome score (0-100) recorded on the audit
	// entry, e.g. the overall score of a completed mock interview.
	Score *float64
}

// Validate checks the request shape before any store access. A non-nil error
// means the request must be rejected with no state change.
func (r SpendRequest) Validate() error {
	if r.Principal == "" {
		return fmt.Errorf("principal is required")
	}
	if r.Amount <= 0 {
		return fmt.Errorf("amount must be positive, got %d", r.Amount)
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("unknown activity kind %q", r.Kind)
	}
	if r.IdempotencyKey == "" {
		return fmt.Errorf("idempotency key is required")
	}
	if r.Score != nil && (*r.Score < 0 || *r.Score > 100) {
		return fmt.Errorf("score must be between 0 and 100, got %v", *r.Score)
	}
	return nil
}
