package driven

import "context"

// UsageStats is an eventually consistent aggregate over all principals.
// Numbers may transiently undercount under concurrent writes; acceptable for
// reporting, never for authorization.
type UsageStats struct {
	TotalPrincipals  int64
	ActivePrincipals int64
	TotalAmountSpent int64
}

// StatsStore defines the driven port for the administrative aggregate read.
type StatsStore interface {
	AggregateStats(ctx context.Context) (UsageStats, error)
}
