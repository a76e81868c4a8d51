package model

import (
	"time"

	"gorm.io/datatypes"
)

type TransactionType string

const (
	TransactionPromotion TransactionType = "promotion"
	TransactionPurchase  TransactionType = "purchase"
	TransactionTest      TransactionType = "test"
	TransactionUsage     TransactionType = "usage"
)

// CreditTransaction is an append-only ledger entry. Reference is an optional
// idempotency key (e.g. a checkout session id); NULL references never collide.
// swagger:model CreditTransaction
type CreditTransaction struct {
	ID              string            `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID          string            `gorm:"type:varchar(36);not null;index" json:"userId"`
	Amount          int               `gorm:"not null" json:"amount"`
	TransactionType TransactionType   `gorm:"size:20;not null" json:"transactionType"`
	Description     string            `gorm:"size:255" json:"description"`
	Metadata        datatypes.JSONMap `json:"metadata,omitempty"`
	Reference       *string           `gorm:"size:191;uniqueIndex" json:"reference,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
}

func (CreditTransaction) TableName() string {
	return "credit_transactions"
}

// CreditBalance materialises the sum of a user's transactions.
// swagger:model CreditBalance
type CreditBalance struct {
	UserID         string    `gorm:"primaryKey;type:varchar(36)" json:"userId"`
	CurrentBalance int       `gorm:"not null;default:0" json:"currentBalance"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (CreditBalance) TableName() string {
	return "credit_balances"
}
