package sqlite

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/careerforge/creditledger/internal/domain/model"
	"github.com/careerforge/creditledger/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ActivityStore = (*ActivityRepo)(nil)

// ActivityRepo is the SQLite implementation of the ActivityStore port.
// Reads only: inserts happen inside SpendRepo.Commit.
type ActivityRepo struct {
	db *DB
}

// NewActivityRepo creates a new ActivityRepo.
func NewActivityRepo(db *DB) *ActivityRepo {
	return &ActivityRepo{db: db}
}

// List returns up to limit records for principal, newest first. The cursor is
// an opaque keyset position; pass the returned cursor to resume, an empty
// string to start from the newest record.
func (r *ActivityRepo) List(ctx context.Context, principal string, limit int, cursor string) ([]model.ActivityRecord, string, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT id, principal, kind, title, amount_spent, score, metadata, created_at
		FROM activities
		WHERE principal = ?`
	args := []any{principal}

	if cursor != "" {
		createdAt, id, err := decodeCursor(cursor)
		if err != nil {
			return nil, "", fmt.Errorf("decode cursor: %w: %v", driven.ErrValidation, err)
		}
		query += ` AND (created_at < ? OR (created_at = ? AND id < ?))`
		args = append(args, createdAt, createdAt, id)
	}

	// Fetch one extra row to learn whether a further page exists.
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit+1)

	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", classify(fmt.Sprintf("list activities for %q", principal), err)
	}
	defer rows.Close()

	var records []model.ActivityRecord
	for rows.Next() {
		var rec model.ActivityRecord
		var kind, metadata, createdAt string
		if err := rows.Scan(&rec.ID, &rec.Principal, &kind, &rec.Title,
			&rec.AmountSpent, &rec.Score, &metadata, &createdAt); err != nil {
			return nil, "", fmt.Errorf("scan activity: %w", err)
		}

		rec.Kind = model.ActivityKind(kind)
		if err := json.Unmarshal([]byte(metadata), &rec.Metadata); err != nil {
			return nil, "", fmt.Errorf("unmarshal metadata for activity %q: %w", rec.ID, err)
		}
		rec.CreatedAt, err = parseTime(createdAt)
		if err != nil {
			return nil, "", fmt.Errorf("parse created_at for activity %q: %w", rec.ID, err)
		}

		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("iterate activities: %w", err)
	}

	var next string
	if len(records) > limit {
		records = records[:limit]
		last := records[len(records)-1]
		next = encodeCursor(formatTime(last.CreatedAt), last.ID)
	}

	return records, next, nil
}

// CountByPrincipal returns the number of audit records for principal.
func (r *ActivityRepo) CountByPrincipal(ctx context.Context, principal string) (int64, error) {
	const query = `SELECT COUNT(*) FROM activities WHERE principal = ?`
	var n int64
	if err := r.db.Reader.QueryRowContext(ctx, query, principal).Scan(&n); err != nil {
		return 0, classify(fmt.Sprintf("count activities for %q", principal), err)
	}
	return n, nil
}

// encodeCursor packs a keyset position into an opaque token.
func encodeCursor(createdAt, id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(createdAt + "|" + id))
}

// decodeCursor unpacks a token produced by encodeCursor.
func decodeCursor(cursor string) (createdAt, id string, err error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", "", fmt.Errorf("malformed cursor: %w", err)
	}
	createdAt, id, ok := strings.Cut(string(raw), "|")
	if !ok || createdAt == "" || id == "" {
		return "", "", fmt.Errorf("malformed cursor %q", raw)
	}
	return createdAt, id, nil
}
