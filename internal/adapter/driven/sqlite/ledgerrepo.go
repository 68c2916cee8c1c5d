package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/careerforge/creditledger/internal/domain/model"
	"github.com/careerforge/creditledger/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.LedgerStore = (*LedgerRepo)(nil)

// LedgerRepo is the SQLite implementation of the LedgerStore port. Mutations
// go through the single-connection writer, which gives one total order of
// applied deltas per principal; the bounded decrement is a single conditional
// UPDATE so the remaining >= 0 invariant holds in every committed state.
type LedgerRepo struct {
	db *DB
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(db *DB) *LedgerRepo {
	return &LedgerRepo{db: db}
}

// GetBalance returns the balance for principal, provisioning a zero balance
// on first reference.
func (r *LedgerRepo) GetBalance(ctx context.Context, principal string) (model.CreditBalance, error) {
	const query = `SELECT remaining, updated_at FROM balances WHERE principal = ?`

	var remaining int64
	var updatedAt string
	err := r.db.Reader.QueryRowContext(ctx, query, principal).Scan(&remaining, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return r.provision(ctx, principal)
	}
	if err != nil {
		return model.CreditBalance{}, classify(fmt.Sprintf("get balance for %q", principal), err)
	}

	ts, err := parseTime(updatedAt)
	if err != nil {
		return model.CreditBalance{}, fmt.Errorf("parse updated_at for %q: %w", principal, err)
	}

	return model.CreditBalance{Principal: principal, Remaining: remaining, UpdatedAt: ts}, nil
}

// ApplyDelta atomically applies delta subject to remaining+delta >= 0. The
// conditional UPDATE with RETURNING is a single statement, so no other writer
// can interleave between check and mutation.
func (r *LedgerRepo) ApplyDelta(ctx context.Context, principal string, delta int64) (model.CreditBalance, error) {
	if _, err := r.provision(ctx, principal); err != nil {
		return model.CreditBalance{}, err
	}

	now := time.Now().UTC()
	const query = `
		UPDATE balances
		SET remaining = remaining + ?, updated_at = ?
		WHERE principal = ? AND remaining + ? >= 0
		RETURNING remaining`

	var remaining int64
	err := r.db.Writer.QueryRowContext(ctx, query, delta, formatTime(now), principal, delta).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CreditBalance{}, fmt.Errorf("apply delta %d for %q: %w", delta, principal, driven.ErrInsufficientFunds)
	}
	if err != nil {
		return model.CreditBalance{}, classify(fmt.Sprintf("apply delta %d for %q", delta, principal), err)
	}

	return model.CreditBalance{Principal: principal, Remaining: remaining, UpdatedAt: now}, nil
}

// provision inserts a zero balance row if none exists, then returns the row.
func (r *LedgerRepo) provision(ctx context.Context, principal string) (model.CreditBalance, error) {
	now := time.Now().UTC()
	const insert = `INSERT INTO balances (principal, remaining, updated_at) VALUES (?, 0, ?)
		ON CONFLICT(principal) DO NOTHING`
	if _, err := r.db.Writer.ExecContext(ctx, insert, principal, formatTime(now)); err != nil {
		return model.CreditBalance{}, classify(fmt.Sprintf("provision balance for %q", principal), err)
	}

	const query = `SELECT remaining, updated_at FROM balances WHERE principal = ?`
	var remaining int64
	var updatedAt string
	if err := r.db.Writer.QueryRowContext(ctx, query, principal).Scan(&remaining, &updatedAt); err != nil {
		return model.CreditBalance{}, classify(fmt.Sprintf("read provisioned balance for %q", principal), err)
	}

	ts, err := parseTime(updatedAt)
	if err != nil {
		return model.CreditBalance{}, fmt.Errorf("parse updated_at for %q: %w", principal, err)
	}

	return model.CreditBalance{Principal: principal, Remaining: remaining, UpdatedAt: ts}, nil
}

// formatTime renders a timestamp in the canonical column format.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime parses a timestamp from the formats SQLite may hand back.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %q", s)
}

// classify wraps a store error, mapping lock contention and busy timeouts to
// the retryable transient sentinel.
func classify(op string, err error) error {
	msg := err.Error()
	if strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") {
		return fmt.Errorf("%s: %w: %s", op, driven.ErrTransient, msg)
	}
	return fmt.Errorf("%s: %w", op, err)
}
