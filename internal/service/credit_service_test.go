package service

import (
	"caseprep_backend/internal/model"
	"caseprep_backend/internal/util"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddCredits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	txn, err := env.credit.AddCredits(ctx, CreditEntry{
		UserID:      "user-1",
		Amount:      10,
		Type:        model.TransactionPurchase,
		Description: "Purchased 10 credits",
		Metadata:    map[string]interface{}{"sessionId": "cs_1"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, txn.ID)
	assert.Equal(t, 10, txn.Amount)
	assert.Nil(t, txn.Reference)

	balance, err := env.credit.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 10, balance)

	_, err = env.credit.AddCredits(ctx, CreditEntry{UserID: "user-1", Amount: 5, Type: model.TransactionTest})
	require.NoError(t, err)

	balance, err = env.credit.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 15, balance)
}

func TestAddCreditsRejectsInvalidInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.credit.AddCredits(ctx, CreditEntry{UserID: "user-1", Amount: 0, Type: model.TransactionPromotion})
	assert.ErrorIs(t, err, util.ErrInvalidAmount)

	_, err = env.credit.AddCredits(ctx, CreditEntry{UserID: "user-1", Amount: -4, Type: model.TransactionPromotion})
	assert.ErrorIs(t, err, util.ErrInvalidAmount)

	_, err = env.credit.AddCredits(ctx, CreditEntry{UserID: "user-1", Amount: 4, Type: model.TransactionUsage})
	assert.ErrorIs(t, err, util.ErrValidation)

	_, err = env.credit.AddCredits(ctx, CreditEntry{Amount: 4, Type: model.TransactionPromotion})
	assert.ErrorIs(t, err, util.ErrValidation)

	balance, err := env.credit.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, balance)
}

func TestAddCreditsDuplicateReference(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	entry := CreditEntry{
		UserID:    "user-1",
		Amount:    20,
		Type:      model.TransactionPurchase,
		Reference: "checkout:cs_dup",
	}

	_, err := env.credit.AddCredits(ctx, entry)
	require.NoError(t, err)

	_, err = env.credit.AddCredits(ctx, entry)
	assert.ErrorIs(t, err, util.ErrDuplicateTransaction)
	assert.True(t, IsDuplicate(err))

	balance, err := env.credit.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 20, balance)

	page, err := env.credit.ListTransactions(ctx, "user-1", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
}

func TestDebitCredits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.credit.AddCredits(ctx, CreditEntry{UserID: "user-1", Amount: 2, Type: model.TransactionPromotion})
	require.NoError(t, err)

	txn, err := env.credit.DebitCredits(ctx, "user-1", 1, "Started case")
	require.NoError(t, err)
	assert.Equal(t, -1, txn.Amount)
	assert.Equal(t, model.TransactionUsage, txn.TransactionType)

	balance, err := env.credit.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, balance)
}

func TestDebitCreditsInsufficientFunds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// no balance row at all
	_, err := env.credit.DebitCredits(ctx, "nobody", 1, "Started case")
	assert.ErrorIs(t, err, util.ErrInsufficientFunds)

	_, err = env.credit.AddCredits(ctx, CreditEntry{UserID: "user-1", Amount: 1, Type: model.TransactionPromotion})
	require.NoError(t, err)

	_, err = env.credit.DebitCredits(ctx, "user-1", 2, "Started case")
	assert.ErrorIs(t, err, util.ErrInsufficientFunds)

	balance, err := env.credit.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, balance)

	page, err := env.credit.ListTransactions(ctx, "user-1", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total, "a rejected debit must not append a usage row")

	_, err = env.credit.DebitCredits(ctx, "user-1", 0, "free")
	assert.ErrorIs(t, err, util.ErrInvalidAmount)
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.credit.AddCredits(ctx, CreditEntry{UserID: "user-1", Amount: 5, Type: model.TransactionPurchase})
	require.NoError(t, err)

	const attempts = 12
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, rejected := 0, 0
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.credit.DebitCredits(ctx, "user-1", 1, "Started case")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if assert.ErrorIs(t, err, util.ErrInsufficientFunds) {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, attempts-5, rejected)

	audit, err := env.credit.Audit(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, audit.Balance)
	assert.Equal(t, 0, audit.LedgerSum)
	assert.True(t, audit.Consistent)
}

func TestLedgerConservation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	steps := []struct {
		add    int
		debit  int
		expect int
	}{
		{add: 3, expect: 3},
		{debit: 1, expect: 2},
		{debit: 5, expect: 2},
		{add: 10, expect: 12},
		{debit: 12, expect: 0},
		{debit: 1, expect: 0},
	}
	for _, step := range steps {
		if step.add > 0 {
			_, err := env.credit.AddCredits(ctx, CreditEntry{UserID: "user-1", Amount: step.add, Type: model.TransactionPromotion})
			require.NoError(t, err)
		}
		if step.debit > 0 {
			env.credit.DebitCredits(ctx, "user-1", step.debit, "debit")
		}

		audit, err := env.credit.Audit(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, step.expect, audit.Balance)
		assert.True(t, audit.Consistent, "balance %d drifted from ledger sum %d", audit.Balance, audit.LedgerSum)
	}
}

func TestListTransactionsPaging(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := env.credit.AddCredits(ctx, CreditEntry{UserID: "user-1", Amount: 1, Type: model.TransactionTest})
		require.NoError(t, err)
	}
	_, err := env.credit.AddCredits(ctx, CreditEntry{UserID: "user-2", Amount: 1, Type: model.TransactionTest})
	require.NoError(t, err)

	page, err := env.credit.ListTransactions(ctx, "user-1", 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	assert.Equal(t, 2, page.Page)
	assert.Len(t, page.List, 2)

	page, err = env.credit.ListTransactions(ctx, "user-1", 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.Limit)
}
