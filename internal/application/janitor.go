package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/careerforge/creditledger/internal/domain/port/driven"
	"github.com/careerforge/creditledger/internal/observability"
)

// Janitor prunes idempotency keys older than the retention window. The
// window only has to outlive client retry timeouts; the audit trail and
// balances are never touched.
type Janitor struct {
	spends    driven.SpendStore
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
}

// NewJanitor creates a Janitor that sweeps every interval, removing keys
// committed more than retention ago.
func NewJanitor(spends driven.SpendStore, retention, interval time.Duration) *Janitor {
	return &Janitor{
		spends:    spends,
		retention: retention,
		interval:  interval,
		logger:    slog.Default(),
	}
}

// Start runs an immediate sweep, then sweeps on the configured interval.
// It blocks until the context is canceled.
func (j *Janitor) Start(ctx context.Context) {
	j.sweep(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("idempotency janitor stopped")
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-j.retention)
	pruned, err := j.spends.PruneIdempotencyKeys(ctx, cutoff)
	if err != nil {
		j.logger.Error("idempotency key sweep failed", "error", err)
		return
	}
	if pruned > 0 {
		observability.IdempotencyKeysPruned.Add(float64(pruned))
		j.logger.Info("pruned idempotency keys", "count", pruned, "cutoff", cutoff)
	}
}
