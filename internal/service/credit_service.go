package service

import (
	"caseprep_backend/internal/model"
	"caseprep_backend/internal/repository"
	"caseprep_backend/internal/util"
	"caseprep_backend/pkg/logger"
	"caseprep_backend/pkg/monitoring"
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CreditEntry describes a positive ledger movement.
type CreditEntry struct {
	UserID      string
	Amount      int
	Type        model.TransactionType
	Description string
	Metadata    map[string]interface{}
	// Reference, when set, makes the entry idempotent.
	Reference string
}

type CreditAudit struct {
	UserID     string `json:"userId"`
	Balance    int    `json:"balance"`
	LedgerSum  int    `json:"ledgerSum"`
	Consistent bool   `json:"consistent"`
}

type CreditService struct {
	DB         *gorm.DB
	CreditRepo *repository.CreditRepository
}

func NewCreditService(db *gorm.DB, creditRepo *repository.CreditRepository) *CreditService {
	return &CreditService{
		DB:         db,
		CreditRepo: creditRepo,
	}
}

// AddCredits appends a promotion, purchase or test entry and raises the
// balance. A repeated Reference returns util.ErrDuplicateTransaction.
func (s *CreditService) AddCredits(ctx context.Context, entry CreditEntry) (*model.CreditTransaction, error) {
	var txn *model.CreditTransaction
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		txn, err = s.AddCreditsTx(tx, entry)
		return err
	})
	if err != nil {
		return nil, err
	}
	logger.Log.Info("Credits added",
		zap.String("userID", entry.UserID),
		zap.Int("amount", entry.Amount),
		zap.String("type", string(entry.Type)))
	return txn, nil
}

// AddCreditsTx is AddCredits inside a caller-owned transaction.
func (s *CreditService) AddCreditsTx(tx *gorm.DB, entry CreditEntry) (*model.CreditTransaction, error) {
	if entry.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", util.ErrValidation)
	}
	if entry.Amount <= 0 {
		return nil, util.ErrInvalidAmount
	}
	switch entry.Type {
	case model.TransactionPromotion, model.TransactionPurchase, model.TransactionTest:
	default:
		return nil, fmt.Errorf("%w: transaction type %q cannot add credits", util.ErrValidation, entry.Type)
	}

	txn := &model.CreditTransaction{
		UserID:          entry.UserID,
		Amount:          entry.Amount,
		TransactionType: entry.Type,
		Description:     entry.Description,
	}
	if len(entry.Metadata) > 0 {
		txn.Metadata = datatypes.JSONMap(entry.Metadata)
	}
	if entry.Reference != "" {
		ref := entry.Reference
		txn.Reference = &ref
	}

	if err := s.CreditRepo.Apply(tx, txn); err != nil {
		return nil, err
	}
	monitoring.CreditTransactions.WithLabelValues(string(entry.Type)).Inc()
	return txn, nil
}

// DebitCredits charges amount or fails with util.ErrInsufficientFunds without
// writing anything.
func (s *CreditService) DebitCredits(ctx context.Context, userID string, amount int, description string) (*model.CreditTransaction, error) {
	var txn *model.CreditTransaction
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		txn, err = s.DebitCreditsTx(tx, userID, amount, description)
		return err
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// DebitCreditsTx is DebitCredits inside a caller-owned transaction.
func (s *CreditService) DebitCreditsTx(tx *gorm.DB, userID string, amount int, description string) (*model.CreditTransaction, error) {
	if amount <= 0 {
		return nil, util.ErrInvalidAmount
	}
	txn := &model.CreditTransaction{
		UserID:          userID,
		Amount:          -amount,
		TransactionType: model.TransactionUsage,
		Description:     description,
	}
	if err := s.CreditRepo.Apply(tx, txn); err != nil {
		return nil, err
	}
	monitoring.CreditTransactions.WithLabelValues(string(model.TransactionUsage)).Inc()
	return txn, nil
}

func (s *CreditService) GetBalance(ctx context.Context, userID string) (int, error) {
	return s.CreditRepo.GetBalance(ctx, userID)
}

func (s *CreditService) ListTransactions(ctx context.Context, userID string, page, limit int) (*util.PageResponse, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	txns, total, err := s.CreditRepo.List(ctx, userID, page, limit)
	if err != nil {
		return nil, err
	}
	return &util.PageResponse{List: txns, Total: total, Page: page, Limit: limit}, nil
}

// Audit compares the materialised balance with the ledger sum.
func (s *CreditService) Audit(ctx context.Context, userID string) (*CreditAudit, error) {
	balance, err := s.CreditRepo.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	sum, err := s.CreditRepo.SumByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	audit := &CreditAudit{
		UserID:     userID,
		Balance:    balance,
		LedgerSum:  sum,
		Consistent: balance == sum,
	}
	if !audit.Consistent {
		logger.Log.Error("Credit balance drifted from ledger",
			zap.String("userID", userID),
			zap.Int("balance", balance),
			zap.Int("ledgerSum", sum))
	}
	return audit, nil
}

// IsDuplicate reports whether err came from a replayed reference.
func IsDuplicate(err error) bool {
	return errors.Is(err, util.ErrDuplicateTransaction)
}
