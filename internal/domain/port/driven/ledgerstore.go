package driven

import (
	"context"

	"github.com/careerforge/creditledger/internal/domain/model"
)

// LedgerStore defines the driven port for authoritative balance persistence.
//
// Implementations must serialize mutations per principal: concurrent
// ApplyDelta calls for one principal observe a single total order of applied
// deltas. Reads may run concurrently with writes and must reflect a committed
// snapshot, never a partially applied transaction.
type LedgerStore interface {
	// GetBalance returns the balance for principal, auto-provisioning a zero
	// balance if none exists. It never fails for a well-formed principal.
	GetBalance(ctx context.Context, principal string) (model.CreditBalance, error)

	// ApplyDelta atomically applies delta (negative for spend, positive for
	// grant) subject to remaining+delta >= 0. Returns ErrInsufficientFunds
	// without mutating state when the bound would be violated, and
	// ErrTransient when the store cannot serialize the mutation in time.
	ApplyDelta(ctx context.Context, principal string, delta int64) (model.CreditBalance, error)
}
