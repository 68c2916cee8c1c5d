package model

import "time"

// CreditBalance is the authoritative remaining-credit state for one principal.
// Remaining is never negative in any observable state; the ledger store
// enforces the bound atomically on every delta.
type CreditBalance struct {
	Principal string
	Remaining int64
	UpdatedAt time.Time
}

// SpendReceipt is the committed outcome of one spend, grant, or refund.
// Deduped is true when the receipt was replayed from a previously committed
// idempotency key rather than produced by a fresh debit.
type SpendReceipt struct {
	Principal  string
	ActivityID string
	Amount     int64
	Remaining  int64
	Deduped    bool
	Committed  time.Time
}
