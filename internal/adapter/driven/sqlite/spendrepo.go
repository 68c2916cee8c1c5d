package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/careerforge/creditledger/internal/domain/model"
	"github.com/careerforge/creditledger/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SpendStore = (*SpendRepo)(nil)

// SpendRepo is the SQLite implementation of the SpendStore port. One commit
// is one transaction on the writer connection holding the balance delta, the
// activity record, and the idempotency key. The idempotency key is re-checked
// inside the transaction, so a retry that lost the singleflight race still
// replays instead of double-debiting.
type SpendRepo struct {
	db *DB
}

// NewSpendRepo creates a new SpendRepo.
func NewSpendRepo(db *DB) *SpendRepo {
	return &SpendRepo{db: db}
}

// Commit applies the bounded delta, appends the audit record, and stores the
// idempotency key as one atomic unit.
func (r *SpendRepo) Commit(ctx context.Context, key string, delta int64, record model.ActivityRecord) (model.SpendReceipt, error) {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return model.SpendReceipt{}, classify("begin spend transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	// Replay check under the transaction: a concurrent commit of the same key
	// either already landed (replay it) or will conflict on the primary key.
	if receipt, ok, err := lookupKey(ctx, tx, key); err != nil {
		return model.SpendReceipt{}, err
	} else if ok {
		receipt.Deduped = true
		return receipt, nil
	}

	principal := record.Principal
	now := record.CreatedAt

	const provision = `INSERT INTO balances (principal, remaining, updated_at) VALUES (?, 0, ?)
		ON CONFLICT(principal) DO NOTHING`
	if _, err := tx.ExecContext(ctx, provision, principal, formatTime(now)); err != nil {
		return model.SpendReceipt{}, classify(fmt.Sprintf("provision balance for %q", principal), err)
	}

	const debit = `
		UPDATE balances
		SET remaining = remaining + ?, updated_at = ?
		WHERE principal = ? AND remaining + ? >= 0
		RETURNING remaining`

	var remaining int64
	err = tx.QueryRowContext(ctx, debit, delta, formatTime(now), principal, delta).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SpendReceipt{}, fmt.Errorf("commit spend for %q: %w", principal, driven.ErrInsufficientFunds)
	}
	if err != nil {
		return model.SpendReceipt{}, classify(fmt.Sprintf("debit %q", principal), err)
	}

	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return model.SpendReceipt{}, fmt.Errorf("marshal metadata: %w", err)
	}
	if record.Metadata == nil {
		metadata = []byte("{}")
	}

	const insertActivity = `
		INSERT INTO activities (id, principal, kind, title, amount_spent, score, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, insertActivity,
		record.ID, principal, string(record.Kind), record.Title,
		record.AmountSpent, record.Score, string(metadata), formatTime(now))
	if err != nil {
		return model.SpendReceipt{}, classify(fmt.Sprintf("append activity for %q", principal), err)
	}

	const insertKey = `
		INSERT INTO idempotency_keys (key, principal, activity_id, amount, remaining, committed_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, insertKey, key, principal, record.ID, record.AmountSpent, remaining, formatTime(now))
	if err != nil {
		return model.SpendReceipt{}, classify(fmt.Sprintf("store idempotency key for %q", principal), err)
	}

	if err := tx.Commit(); err != nil {
		return model.SpendReceipt{}, classify("commit spend transaction", err)
	}

	return model.SpendReceipt{
		Principal:  principal,
		ActivityID: record.ID,
		Amount:     record.AmountSpent,
		Remaining:  remaining,
		Committed:  now,
	}, nil
}

// GetCommitted returns the receipt previously committed under key, or
// (nil, nil) when the key is unknown.
func (r *SpendRepo) GetCommitted(ctx context.Context, key string) (*model.SpendReceipt, error) {
	receipt, ok, err := lookupKey(ctx, r.db.Reader, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	receipt.Deduped = true
	return &receipt, nil
}

// PruneIdempotencyKeys removes keys committed before cutoff.
func (r *SpendRepo) PruneIdempotencyKeys(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM idempotency_keys WHERE committed_at < ?`
	res, err := r.db.Writer.ExecContext(ctx, query, formatTime(cutoff))
	if err != nil {
		return 0, classify("prune idempotency keys", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune idempotency keys: rows affected: %w", err)
	}
	return n, nil
}

// querier is the subset of *sql.DB and *sql.Tx used by lookupKey.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func lookupKey(ctx context.Context, q querier, key string) (model.SpendReceipt, bool, error) {
	const query = `
		SELECT principal, activity_id, amount, remaining, committed_at
		FROM idempotency_keys WHERE key = ?`

	var receipt model.SpendReceipt
	var committedAt string
	err := q.QueryRowContext(ctx, query, key).
		Scan(&receipt.Principal, &receipt.ActivityID, &receipt.Amount, &receipt.Remaining, &committedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SpendReceipt{}, false, nil
	}
	if err != nil {
		return model.SpendReceipt{}, false, classify(fmt.Sprintf("lookup idempotency key %q", key), err)
	}

	receipt.Committed, err = parseTime(committedAt)
	if err != nil {
		return model.SpendReceipt{}, false, fmt.Errorf("parse committed_at for key %q: %w", key, err)
	}

	return receipt, true, nil
}
