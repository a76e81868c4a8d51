package repository

import (
	"caseprep_backend/internal/config"
	"caseprep_backend/internal/model"
	"caseprep_backend/pkg/database"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestUpsertBalanceQualifiesColumnOnPostgres(t *testing.T) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=localhost user=caseprep dbname=caseprep sslmode=disable",
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)

	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return upsertBalance(tx, &model.CreditBalance{UserID: "u1", CurrentBalance: 3, UpdatedAt: time.Now()})
	})

	assert.Contains(t, sql, `ON CONFLICT ("user_id") DO UPDATE`)
	assert.Contains(t, sql, `"current_balance"=credit_balances.current_balance + 3`)
	assert.NotContains(t, sql, `"current_balance"=current_balance`)
}

func TestApplyAccumulatesCredits(t *testing.T) {
	db, err := database.Open(&config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"}, "test")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	repo := NewCreditRepository(db)

	for _, amount := range []int{3, 10, -1} {
		err := db.Transaction(func(tx *gorm.DB) error {
			return repo.Apply(tx, &model.CreditTransaction{UserID: "u1", Amount: amount, TransactionType: model.TransactionPurchase})
		})
		require.NoError(t, err)
	}

	balance, err := repo.GetBalance(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 12, balance)

	sum, err := repo.SumByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, balance, sum)
}
