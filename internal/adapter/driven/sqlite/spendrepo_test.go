package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careerforge/creditledger/internal/domain/model"
	"github.com/careerforge/creditledger/internal/domain/port/driven"
)

func makeSpendRecord(principal string, amount int64) model.ActivityRecord {
	return model.ActivityRecord{
		ID:          uuid.NewString(),
		Principal:   principal,
		Kind:        model.KindCVGenerated,
		Title:       "Generated CV",
		AmountSpent: amount,
		Metadata:    map[string]string{"template": "modern"},
		CreatedAt:   time.Now().UTC(),
	}
}

func TestSpendRepo_Commit_DebitPlusAudit(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedgerRepo(db)
	spends := NewSpendRepo(db)
	activities := NewActivityRepo(db)
	ctx := context.Background()

	_, err := ledger.ApplyDelta(ctx, "user-1", 10)
	require.NoError(t, err)

	rec := makeSpendRecord("user-1", 3)
	receipt, err := spends.Commit(ctx, "key-1", -3, rec)
	require.NoError(t, err)

	assert.Equal(t, int64(7), receipt.Remaining)
	assert.Equal(t, rec.ID, receipt.ActivityID)
	assert.False(t, receipt.Deduped)

	bal, err := ledger.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), bal.Remaining)

	count, err := activities.CountByPrincipal(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSpendRepo_Commit_ScoreRoundTrips(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedgerRepo(db)
	spends := NewSpendRepo(db)
	activities := NewActivityRepo(db)
	ctx := context.Background()

	_, err := ledger.ApplyDelta(ctx, "user-1", 10)
	require.NoError(t, err)

	rec := makeSpendRecord("user-1", 2)
	rec.Kind = model.KindMockInterviewCompleted
	score := 92.5
	rec.Score = &score

	_, err = spends.Commit(ctx, "key-1", -2, rec)
	require.NoError(t, err)

	listed, _, err := activities.List(ctx, "user-1", 10, "")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.NotNil(t, listed[0].Score)
	assert.Equal(t, 92.5, *listed[0].Score)
}

func TestSpendRepo_Commit_ReplaySameKey(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedgerRepo(db)
	spends := NewSpendRepo(db)
	activities := NewActivityRepo(db)
	ctx := context.Background()

	_, err := ledger.ApplyDelta(ctx, "user-1", 10)
	require.NoError(t, err)

	first, err := spends.Commit(ctx, "key-x", -3, makeSpendRecord("user-1", 3))
	require.NoError(t, err)

	second, err := spends.Commit(ctx, "key-x", -3, makeSpendRecord("user-1", 3))
	require.NoError(t, err)

	assert.True(t, second.Deduped)
	assert.Equal(t, first.ActivityID, second.ActivityID)
	assert.Equal(t, first.Remaining, second.Remaining)

	// Balance decreased by exactly 3, not 6.
	bal, err := ledger.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), bal.Remaining)

	count, err := activities.CountByPrincipal(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSpendRepo_Commit_InsufficientFundsWritesNothing(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedgerRepo(db)
	spends := NewSpendRepo(db)
	activities := NewActivityRepo(db)
	ctx := context.Background()

	_, err := spends.Commit(ctx, "key-1", -5, makeSpendRecord("user-new", 5))
	require.ErrorIs(t, err, driven.ErrInsufficientFunds)

	bal, err := ledger.GetBalance(ctx, "user-new")
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal.Remaining)

	count, err := activities.CountByPrincipal(ctx, "user-new")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count, "no audit record on failure")

	replay, err := spends.GetCommitted(ctx, "key-1")
	require.NoError(t, err)
	assert.Nil(t, replay, "failed attempt must not commit the key")
}

func TestSpendRepo_Commit_ContentionExactlyOneWins(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedgerRepo(db)
	spends := NewSpendRepo(db)
	activities := NewActivityRepo(db)
	ctx := context.Background()

	_, err := ledger.ApplyDelta(ctx, "user-1", 10)
	require.NoError(t, err)

	amounts := []int64{5, 7}
	errs := make([]error, len(amounts))

	var wg sync.WaitGroup
	for i, amount := range amounts {
		wg.Add(1)
		go func(i int, amount int64) {
			defer wg.Done()
			_, errs[i] = spends.Commit(ctx, uuid.NewString(), -amount, makeSpendRecord("user-1", amount))
		}(i, amount)
	}
	wg.Wait()

	var spent int64
	successes := 0
	for i, err := range errs {
		if err == nil {
			successes++
			spent += amounts[i]
		} else {
			require.ErrorIs(t, err, driven.ErrInsufficientFunds)
		}
	}
	require.Equal(t, 1, successes, "exactly one concurrent spend must commit")

	bal, err := ledger.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 10-spent, bal.Remaining)

	// Audit correspondence: record count equals successful spend count.
	count, err := activities.CountByPrincipal(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(successes), count)
}

func TestSpendRepo_GetCommitted_UnknownKey(t *testing.T) {
	db := setupTestDB(t)
	spends := NewSpendRepo(db)

	receipt, err := spends.GetCommitted(context.Background(), "no-such-key")
	require.NoError(t, err)
	assert.Nil(t, receipt)
}

func TestSpendRepo_PruneIdempotencyKeys(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedgerRepo(db)
	spends := NewSpendRepo(db)
	activities := NewActivityRepo(db)
	ctx := context.Background()

	_, err := ledger.ApplyDelta(ctx, "user-1", 10)
	require.NoError(t, err)

	_, err = spends.Commit(ctx, "old-key", -2, makeSpendRecord("user-1", 2))
	require.NoError(t, err)

	pruned, err := spends.PruneIdempotencyKeys(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	receipt, err := spends.GetCommitted(ctx, "old-key")
	require.NoError(t, err)
	assert.Nil(t, receipt)

	// The audit trail and balance survive pruning.
	count, err := activities.CountByPrincipal(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	bal, err := ledger.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(8), bal.Remaining)
}
