package driven

import (
	"context"

	"github.com/careerforge/creditledger/internal/domain/model"
)

// ActivityStore defines the driven port for the append-only audit log.
// Records are immutable: no update or delete is exposed. Inserts happen only
// inside the SpendStore commit transaction, so this port is read-only.
type ActivityStore interface {
	// List returns up to limit records for principal, newest first, starting
	// after the opaque cursor (empty cursor means the newest record). The
	// returned cursor is empty when no further pages exist.
	List(ctx context.Context, principal string, limit int, cursor string) ([]model.ActivityRecord, string, error)

	// CountByPrincipal returns the number of audit records for principal.
	CountByPrincipal(ctx context.Context, principal string) (int64, error)
}
