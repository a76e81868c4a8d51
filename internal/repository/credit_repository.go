package repository

import (
	"caseprep_backend/internal/model"
	"caseprep_backend/internal/util"
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CreditRepository struct {
	DB *gorm.DB
}

func NewCreditRepository(db *gorm.DB) *CreditRepository {
	return &CreditRepository{DB: db}
}

// Apply appends txn to the ledger and moves the materialised balance by
// txn.Amount. It must run inside tx so both writes commit together.
// Negative amounts are conditional: the balance is only decremented when it
// covers the debit, otherwise util.ErrInsufficientFunds is returned and nothing
// is written.
func (r *CreditRepository) Apply(tx *gorm.DB, txn *model.CreditTransaction) error {
	if txn.Amount == 0 {
		return util.ErrInvalidAmount
	}
	if txn.ID == "" {
		txn.ID = model.GenerateUUID()
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now()
	}

	if txn.Amount < 0 {
		return r.debit(tx, txn)
	}
	return r.credit(tx, txn)
}

func (r *CreditRepository) credit(tx *gorm.DB, txn *model.CreditTransaction) error {
	insert := tx
	if txn.Reference != nil {
		insert = tx.Clauses(clause.OnConflict{DoNothing: true})
	}
	result := insert.Create(txn)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return util.ErrDuplicateTransaction
	}

	balance := model.CreditBalance{
		UserID:         txn.UserID,
		CurrentBalance: txn.Amount,
		UpdatedAt:      txn.CreatedAt,
	}
	return upsertBalance(tx, &balance).Error
}

// upsertBalance inserts the balance row or adds balance.CurrentBalance to the
// existing one. The column is table-qualified because postgres also exposes
// "excluded" inside DO UPDATE.
func upsertBalance(tx *gorm.DB, balance *model.CreditBalance) *gorm.DB {
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"current_balance": gorm.Expr("credit_balances.current_balance + ?", balance.CurrentBalance),
			"updated_at":      balance.UpdatedAt,
		}),
	}).Create(balance)
}

func (r *CreditRepository) debit(tx *gorm.DB, txn *model.CreditTransaction) error {
	cost := -txn.Amount
	result := tx.Model(&model.CreditBalance{}).
		Where("user_id = ? AND current_balance >= ?", txn.UserID, cost).
		Updates(map[string]interface{}{
			"current_balance": gorm.Expr("current_balance - ?", cost),
			"updated_at":      txn.CreatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return util.ErrInsufficientFunds
	}
	if err := tx.Create(txn).Error; err != nil {
		return fmt.Errorf("append usage transaction: %w", err)
	}
	return nil
}

// GetBalance returns 0 for users without a balance row.
func (r *CreditRepository) GetBalance(ctx context.Context, userID string) (int, error) {
	var balance model.CreditBalance
	err := r.DB.WithContext(ctx).Where("user_id = ?", userID).First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return balance.CurrentBalance, nil
}

// SumByUser totals the ledger for a user.
func (r *CreditRepository) SumByUser(ctx context.Context, userID string) (int, error) {
	var sum int
	err := r.DB.WithContext(ctx).Model(&model.CreditTransaction{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return sum, err
}

func (r *CreditRepository) List(ctx context.Context, userID string, page, limit int) ([]model.CreditTransaction, int64, error) {
	var txns []model.CreditTransaction
	var total int64

	query := r.DB.WithContext(ctx).Model(&model.CreditTransaction{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&txns).Error
	return txns, total, err
}

func (r *CreditRepository) FindByReference(ctx context.Context, reference string) (*model.CreditTransaction, error) {
	var txn model.CreditTransaction
	err := r.DB.WithContext(ctx).Where("reference = ?", reference).First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}
