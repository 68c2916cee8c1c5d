package driven

import (
	"context"
	"time"

	"github.com/careerforge/creditledger/internal/domain/model"
)

// SpendStore defines the driven port for the atomic debit-plus-audit commit.
// A commit couples three writes in one transaction: the bounded balance
// delta, the activity record insert, and the idempotency key insert. Either
// all three land or none does; an orphaned debit with no audit trail is
// never an acceptable end state.
type SpendStore interface {
	// Commit applies the request as one atomic transaction. record.ID and
	// record.CreatedAt must be set by the caller. delta is negative for a
	// spend and positive for a grant or refund.
	//
	// Returns ErrInsufficientFunds when the balance bound would be violated
	// (nothing written), and ErrTransient when the transaction could not be
	// serialized (nothing written, safe to retry with the same key).
	Commit(ctx context.Context, key string, delta int64, record model.ActivityRecord) (model.SpendReceipt, error)

	// GetCommitted returns the receipt previously committed under key, or
	// (nil, nil) when the key is unknown.
	GetCommitted(ctx context.Context, key string) (*model.SpendReceipt, error)

	// PruneIdempotencyKeys removes keys committed before cutoff and returns
	// the number removed. Activity records and balances are untouched.
	PruneIdempotencyKeys(ctx context.Context, cutoff time.Time) (int64, error)
}
