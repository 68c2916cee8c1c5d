package sqlite

import (
	"context"
	"fmt"

	"github.com/careerforge/creditledger/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.StatsStore = (*StatsRepo)(nil)

// StatsRepo implements the administrative aggregate read. It runs on the
// reader pool with relaxed consistency: concurrent commits may make the
// numbers transiently undercount, which is fine for reporting.
type StatsRepo struct {
	db *DB
}

// NewStatsRepo creates a new StatsRepo.
func NewStatsRepo(db *DB) *StatsRepo {
	return &StatsRepo{db: db}
}

// AggregateStats returns principal counts and the total amount ever spent.
// Refunds and administrative grants are excluded from the spend total.
func (r *StatsRepo) AggregateStats(ctx context.Context) (driven.UsageStats, error) {
	var stats driven.UsageStats

	const balancesQuery = `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN remaining > 0 THEN 1 ELSE 0 END), 0)
		FROM balances`
	if err := r.db.Reader.QueryRowContext(ctx, balancesQuery).
		Scan(&stats.TotalPrincipals, &stats.ActivePrincipals); err != nil {
		return driven.UsageStats{}, fmt.Errorf("aggregate balances: %w", err)
	}

	const spentQuery = `
		SELECT COALESCE(SUM(amount_spent), 0)
		FROM activities
		WHERE kind NOT IN (?, ?)`
	if err := r.db.Reader.QueryRowContext(ctx, spentQuery, "refund", "admin_grant").
		Scan(&stats.TotalAmountSpent); err != nil {
		return driven.UsageStats{}, fmt.Errorf("aggregate spend: %w", err)
	}

	return stats, nil
}
