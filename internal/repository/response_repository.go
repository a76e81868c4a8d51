package repository

import (
	"caseprep_backend/internal/model"
	"context"

	"gorm.io/gorm"
)

type ResponseRepository struct {
	DB *gorm.DB
}

func NewResponseRepository(db *gorm.DB) *ResponseRepository {
	return &ResponseRepository{DB: db}
}

func (r *ResponseRepository) WithTx(tx *gorm.DB) *ResponseRepository {
	return &ResponseRepository{DB: tx}
}

func (r *ResponseRepository) Create(ctx context.Context, resp *model.UserResponse) error {
	return r.DB.WithContext(ctx).Create(resp).Error
}

// ListByCase returns a user's submissions for a case in submission order.
func (r *ResponseRepository) ListByCase(ctx context.Context, userID, caseID string) ([]model.UserResponse, error) {
	var responses []model.UserResponse
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND case_id = ?", userID, caseID).
		Order("created_at ASC, id ASC").
		Find(&responses).Error
	return responses, err
}
