// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/careerforge/creditledger/internal/domain/model"
	"github.com/careerforge/creditledger/internal/domain/port/driven"
	"github.com/careerforge/creditledger/internal/observability"
)

// SpendService coordinates the atomic debit-plus-audit commit. It owns the
// optimistic pre-check, the in-flight and durable idempotency guards, bounded
// retry of transient store failures, and cache reconciliation after every
// attempt.
type SpendService struct {
	ledger driven.LedgerStore
	spends driven.SpendStore
	cache  *BalanceCache
	logger *slog.Logger

	// maxAttempts bounds authoritative commit attempts per call; after that
	// the transient error surfaces to the caller instead of looping.
	maxAttempts   uint64
	retryInterval time.Duration

	// inflight collapses concurrent retries of one idempotency key into a
	// single authoritative call, so duplicate debits cannot race ahead of
	// durable dedup state.
	inflight singleflight.Group
}

// NewSpendService creates a SpendService. maxAttempts must be at least 1.
func NewSpendService(ledger driven.LedgerStore, spends driven.SpendStore, cache *BalanceCache, maxAttempts int) *SpendService {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &SpendService{
		ledger:        ledger,
		spends:        spends,
		cache:         cache,
		logger:        slog.Default(),
		maxAttempts:   uint64(maxAttempts),
		retryInterval: 50 * time.Millisecond,
	}
}

// Spend authorizes and records one consumption of credits. Retries with the
// same idempotency key return the originally committed receipt without
// re-debiting.
func (s *SpendService) Spend(ctx context.Context, req model.SpendRequest) (model.SpendReceipt, error) {
	start := time.Now()
	receipt, err := s.spend(ctx, req)
	observability.SpendDuration.Observe(time.Since(start).Seconds())
	observability.SpendAttempts.WithLabelValues(outcomeLabel(receipt, err)).Inc()
	return receipt, err
}

func (s *SpendService) spend(ctx context.Context, req model.SpendRequest) (model.SpendReceipt, error) {
	if err := req.Validate(); err != nil {
		return model.SpendReceipt{}, fmt.Errorf("%w: %v", driven.ErrValidation, err)
	}
	if req.Kind.IsCredit() {
		return model.SpendReceipt{}, fmt.Errorf("%w: activity kind %q is not spendable", driven.ErrValidation, req.Kind)
	}

	// Durable replay before any optimistic gating: a committed key returns
	// its original receipt even when that commit drained the balance below
	// the requested amount, so the pre-check must not see the retry.
	if prev, err := s.spends.GetCommitted(ctx, req.IdempotencyKey); err == nil && prev != nil {
		s.reconcile(ctx, req.Principal)
		return *prev, nil
	}

	// Optimistic pre-check for early feedback. A fresh cache entry showing
	// insufficient funds short-circuits before the store; a stale or missing
	// entry falls through to the authoritative path, which alone authorizes.
	if bal, ok := s.cache.Peek(req.Principal); ok {
		observability.CacheLookups.WithLabelValues("hit").Inc()
		if bal.Remaining < req.Amount {
			s.reconcile(ctx, req.Principal)
			return model.SpendReceipt{}, fmt.Errorf("spend %d for %q: %w", req.Amount, req.Principal, driven.ErrInsufficientFunds)
		}
	} else {
		observability.CacheLookups.WithLabelValues("miss").Inc()
	}

	receipt, err := s.commit(ctx, req.IdempotencyKey, -req.Amount, model.ActivityRecord{
		ID:          uuid.NewString(),
		Principal:   req.Principal,
		Kind:        req.Kind,
		Title:       req.Title,
		AmountSpent: req.Amount,
		Score:       req.Score,
		Metadata:    req.Metadata,
		CreatedAt:   time.Now().UTC(),
	})

	if err == nil && !receipt.Deduped {
		// Speculative local view first; reconcile overwrites it with the
		// authoritative value immediately after.
		s.cache.ApplyDelta(req.Principal, -req.Amount)
	}
	s.reconcile(ctx, req.Principal)

	return receipt, err
}

// Grant applies an administrative positive delta (top-up or compensating
// refund) with the same transactional and idempotency machinery as Spend.
func (s *SpendService) Grant(ctx context.Context, principal string, amount int64, kind model.ActivityKind, title string, key string) (model.SpendReceipt, error) {
	if principal == "" || key == "" {
		return model.SpendReceipt{}, fmt.Errorf("%w: principal and idempotency key are required", driven.ErrValidation)
	}
	if amount <= 0 {
		return model.SpendReceipt{}, fmt.Errorf("%w: grant amount must be positive, got %d", driven.ErrValidation, amount)
	}
	if !kind.IsCredit() {
		return model.SpendReceipt{}, fmt.Errorf("%w: activity kind %q is not a grant", driven.ErrValidation, kind)
	}

	receipt, err := s.commit(ctx, key, amount, model.ActivityRecord{
		ID:          uuid.NewString(),
		Principal:   principal,
		Kind:        kind,
		Title:       title,
		AmountSpent: amount,
		CreatedAt:   time.Now().UTC(),
	})

	if err == nil && !receipt.Deduped {
		s.cache.ApplyDelta(principal, amount)
	}
	s.reconcile(ctx, principal)

	return receipt, err
}

// commit funnels one logical action through the in-flight guard, the durable
// replay check, and a bounded-retry authoritative transaction.
func (s *SpendService) commit(ctx context.Context, key string, delta int64, record model.ActivityRecord) (model.SpendReceipt, error) {
	// executed is set only when this caller's closure actually ran; callers
	// that piggyback on another's in-flight attempt never run it.
	var executed bool
	v, err, _ := s.inflight.Do(key, func() (any, error) {
		executed = true
		// Durable replay fast path: a previously committed key returns the
		// original receipt before any new transaction begins.
		if prev, err := s.spends.GetCommitted(ctx, key); err != nil {
			return model.SpendReceipt{}, err
		} else if prev != nil {
			return *prev, nil
		}

		policy := backoff.WithContext(
			backoff.WithMaxRetries(newBackOff(s.retryInterval), s.maxAttempts-1), ctx)

		return backoff.RetryWithData(func() (model.SpendReceipt, error) {
			receipt, err := s.spends.Commit(ctx, key, delta, record)
			if err != nil && !errors.Is(err, driven.ErrTransient) {
				return model.SpendReceipt{}, backoff.Permanent(err)
			}
			return receipt, err
		}, policy)
	})
	if err != nil {
		return model.SpendReceipt{}, err
	}

	receipt := v.(model.SpendReceipt)
	if !executed {
		// This caller's receipt came from another caller's in-flight attempt.
		receipt.Deduped = true
	}
	return receipt, nil
}

// Balance returns the balance for principal, read-through: a fresh cache hit
// unless forceRefresh, otherwise the authoritative store value (which also
// repopulates the cache).
func (s *SpendService) Balance(ctx context.Context, principal string, forceRefresh bool) (model.CreditBalance, error) {
	if !forceRefresh {
		if bal, ok := s.cache.Peek(principal); ok {
			return bal, nil
		}
	}
	return s.Refresh(ctx, principal)
}

// Refresh re-reads the authoritative balance and replaces the cache entry.
func (s *SpendService) Refresh(ctx context.Context, principal string) (model.CreditBalance, error) {
	bal, err := s.ledger.GetBalance(ctx, principal)
	if err != nil {
		s.cache.Invalidate(principal)
		return model.CreditBalance{}, err
	}
	s.cache.Put(bal)
	return bal, nil
}

// reconcile refreshes the cache after a spend attempt, success or failure.
// Failures here only degrade the cached view, never the committed state.
func (s *SpendService) reconcile(ctx context.Context, principal string) {
	if _, err := s.Refresh(ctx, principal); err != nil {
		s.logger.Warn("balance reconciliation failed", "principal", principal, "error", err)
	}
}

// newBackOff returns the retry policy for transient store failures.
func newBackOff(initial time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = 1 * time.Second
	return b
}

// outcomeLabel maps a spend result onto the metrics outcome label.
func outcomeLabel(receipt model.SpendReceipt, err error) string {
	switch {
	case err == nil && receipt.Deduped:
		return "deduped"
	case err == nil:
		return "committed"
	case errors.Is(err, driven.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, driven.ErrValidation):
		return "validation"
	case errors.Is(err, driven.ErrTransient):
		return "transient"
	default:
		return "error"
	}
}
