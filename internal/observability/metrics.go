// Package observability defines the Prometheus metrics exported by the
// ledger service on /metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SpendAttempts counts spend outcomes by kind.
var SpendAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "creditledger",
	Subsystem: "spend",
	Name:      "attempts_total",
	Help:      "Spend attempts by outcome (committed, deduped, insufficient_funds, validation, transient, error).",
}, []string{"outcome"})

// SpendDuration tracks end-to-end spend latency including retries.
var SpendDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "creditledger",
	Subsystem: "spend",
	Name:      "duration_seconds",
	Help:      "End-to-end spend duration in seconds.",
	Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
})

// CacheLookups counts balance cache hits and misses on the optimistic path.
var CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "creditledger",
	Subsystem: "cache",
	Name:      "lookups_total",
	Help:      "Balance cache lookups by result (hit, miss).",
}, []string{"result"})

// IdempotencyKeysPruned counts keys removed by the retention janitor.
var IdempotencyKeysPruned = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "creditledger",
	Subsystem: "idempotency",
	Name:      "keys_pruned_total",
	Help:      "Idempotency keys removed after the retention window.",
})

// RefundsIssued counts compensating refunds after failed generations.
var RefundsIssued = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "creditledger",
	Subsystem: "generate",
	Name:      "refunds_total",
	Help:      "Compensating refunds issued for failed content generations.",
})
