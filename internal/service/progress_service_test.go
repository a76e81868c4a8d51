package service

import (
	"caseprep_backend/internal/model"
	"caseprep_backend/internal/util"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestEnsureBootstrapGrantsSignupBonus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	row, err := env.progress.EnsureBootstrap(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, row.IsBootstrap())
	assert.Equal(t, "user-1", row.UserID)

	balance, err := env.credit.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, balance)

	page, err := env.credit.ListTransactions(ctx, "user-1", 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(1), page.Total)
	txns := page.List.([]model.CreditTransaction)
	assert.Equal(t, model.TransactionPromotion, txns[0].TransactionType)
	assert.Equal(t, 3, txns[0].Amount)
	require.NotNil(t, txns[0].Reference)
	assert.Equal(t, "signup_bonus:user-1", *txns[0].Reference)
}

func TestEnsureBootstrapIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.progress.EnsureBootstrap(ctx, "user-1")
	require.NoError(t, err)
	second, err := env.progress.EnsureBootstrap(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	balance, err := env.credit.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, balance)
}

func TestEnsureBootstrapConcurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.progress.EnsureBootstrap(ctx, "user-1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	audit, err := env.credit.Audit(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, audit.Balance)
	assert.True(t, audit.Consistent)

	var markers int64
	require.NoError(t, env.db.Model(&model.UserCaseProgress{}).
		Where("user_id = ? AND case_id IS NULL", "user-1").
		Count(&markers).Error)
	assert.Equal(t, int64(1), markers)
}

func TestEnsureBootstrapSkipsUsersWithProgress(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.progress.StartCase(ctx, "user-1", "case-1", 2)
	require.NoError(t, err)

	row, err := env.progress.EnsureBootstrap(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, row.CaseID)
	assert.Equal(t, "case-1", *row.CaseID)

	balance, err := env.credit.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, balance)
}

func TestStartCaseResetsProgress(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	row, err := env.progress.StartCase(ctx, "user-1", "case-1", 5)
	require.NoError(t, err)
	assert.Equal(t, 0, row.CompletedSections)
	assert.Equal(t, 5, row.TotalSections)
	assert.False(t, row.IsCompleted)

	_, err = env.progress.RecordSectionCompletion(ctx, "user-1", "case-1")
	require.NoError(t, err)

	row, err = env.progress.StartCase(ctx, "user-1", "case-1", 5)
	require.NoError(t, err)
	assert.Equal(t, 0, row.CompletedSections)

	_, err = env.progress.StartCase(ctx, "user-1", "case-2", 0)
	assert.ErrorIs(t, err, util.ErrValidation)
}

func TestRecordSectionCompletionClampsAtTotal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.progress.StartCase(ctx, "user-1", "case-1", 2)
	require.NoError(t, err)

	snap, err := env.progress.RecordSectionCompletion(ctx, "user-1", "case-1")
	require.NoError(t, err)
	assert.Equal(t, ProgressSnapshot{CaseID: "case-1", CompletedSections: 1, TotalSections: 2}, snap)

	snap, err = env.progress.RecordSectionCompletion(ctx, "user-1", "case-1")
	require.NoError(t, err)
	assert.Equal(t, 2, snap.CompletedSections)
	assert.True(t, snap.IsCompleted)

	snap, err = env.progress.RecordSectionCompletion(ctx, "user-1", "case-1")
	require.NoError(t, err)
	assert.Equal(t, 2, snap.CompletedSections)
	assert.True(t, snap.IsCompleted)

	row, err := env.progress.GetProgress(ctx, "user-1", "case-1")
	require.NoError(t, err)
	assert.Equal(t, 2, row.CompletedSections)
	assert.True(t, row.IsCompleted)
}

func TestRecordSectionCompletionRequiresStartedCase(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.progress.RecordSectionCompletion(context.Background(), "user-1", "missing")
	assert.ErrorIs(t, err, util.ErrCaseNotStarted)

	_, err = env.progress.GetProgress(context.Background(), "user-1", "missing")
	assert.ErrorIs(t, err, util.ErrCaseNotStarted)
}

func TestConcurrentCompletionsStayMonotonic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.progress.StartCase(ctx, "user-1", "case-1", 4)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := env.progress.RecordSectionCompletion(ctx, "user-1", "case-1")
			if assert.NoError(t, err) {
				assert.LessOrEqual(t, snap.CompletedSections, snap.TotalSections)
			}
		}()
	}
	wg.Wait()

	row, err := env.progress.GetProgress(ctx, "user-1", "case-1")
	require.NoError(t, err)
	assert.Equal(t, 4, row.CompletedSections)
	assert.True(t, row.IsCompleted)
}

func TestAdvanceFromOnlyMovesTheFrontier(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.progress.StartCase(ctx, "user-1", "case-1", 3)
	require.NoError(t, err)

	advance := func(position int) ProgressSnapshot {
		var snap ProgressSnapshot
		require.NoError(t, env.db.Transaction(func(tx *gorm.DB) error {
			var err error
			snap, err = env.progress.AdvanceFromTx(ctx, tx, "user-1", "case-1", position)
			return err
		}))
		return snap
	}

	assert.Equal(t, 1, advance(0).CompletedSections)
	// passing an earlier section again does not count twice
	assert.Equal(t, 1, advance(0).CompletedSections)
	assert.Equal(t, 2, advance(1).CompletedSections)
	snap := advance(2)
	assert.Equal(t, 3, snap.CompletedSections)
	assert.True(t, snap.IsCompleted)
	assert.Equal(t, 3, advance(2).CompletedSections)
}

func TestListProgressExcludesBootstrapRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.progress.EnsureBootstrap(ctx, "user-1")
	require.NoError(t, err)
	_, err = env.progress.StartCase(ctx, "user-1", "case-1", 2)
	require.NoError(t, err)
	_, err = env.progress.StartCase(ctx, "user-1", "case-2", 3)
	require.NoError(t, err)

	rows, err := env.progress.ListProgress(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.False(t, row.IsBootstrap())
	}
}
