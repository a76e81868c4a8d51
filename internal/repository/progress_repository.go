package repository

import (
	"caseprep_backend/internal/model"
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProgressRepository struct {
	DB *gorm.DB
}

func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{DB: db}
}

// WithTx returns a repository bound to an open transaction.
func (r *ProgressRepository) WithTx(tx *gorm.DB) *ProgressRepository {
	return &ProgressRepository{DB: tx}
}

// Upsert creates the (user, case) row or resets it to zero completed sections.
func (r *ProgressRepository) Upsert(ctx context.Context, progress *model.UserCaseProgress) error {
	now := time.Now()
	progress.CompletedSections = 0
	progress.IsCompleted = false
	progress.LastActivity = now

	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "case_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"completed_sections": 0,
			"total_sections":     progress.TotalSections,
			"is_completed":       false,
			"last_activity":      now,
			"updated_at":         now,
		}),
	}).Create(progress).Error
}

func (r *ProgressRepository) Find(ctx context.Context, userID, caseID string) (*model.UserCaseProgress, error) {
	var progress model.UserCaseProgress
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND case_id = ?", userID, caseID).
		First(&progress).Error
	if err != nil {
		return nil, err
	}
	return &progress, nil
}

// FindFirst returns any progress row of the user, oldest first.
func (r *ProgressRepository) FindFirst(ctx context.Context, userID string) (*model.UserCaseProgress, error) {
	var progress model.UserCaseProgress
	err := r.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		First(&progress).Error
	if err != nil {
		return nil, err
	}
	return &progress, nil
}

// CreateBootstrap inserts the case-less marker row.
func (r *ProgressRepository) CreateBootstrap(ctx context.Context, userID string) (*model.UserCaseProgress, error) {
	progress := &model.UserCaseProgress{
		UserID:       userID,
		LastActivity: time.Now(),
	}
	if err := r.DB.WithContext(ctx).Create(progress).Error; err != nil {
		return nil, err
	}
	return progress, nil
}

// CompareAndIncrement moves completed_sections from expected to expected+1.
// It reports false when another writer got there first or the case is full.
func (r *ProgressRepository) CompareAndIncrement(ctx context.Context, userID, caseID string, expected, total int) (bool, error) {
	next := expected + 1
	now := time.Now()
	result := r.DB.WithContext(ctx).Model(&model.UserCaseProgress{}).
		Where("user_id = ? AND case_id = ? AND completed_sections = ? AND completed_sections < total_sections",
			userID, caseID, expected).
		Updates(map[string]interface{}{
			"completed_sections": next,
			"is_completed":       next == total,
			"last_activity":      now,
			"updated_at":         now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Touch records activity without changing the counters.
func (r *ProgressRepository) Touch(ctx context.Context, userID, caseID string) error {
	return r.DB.WithContext(ctx).Model(&model.UserCaseProgress{}).
		Where("user_id = ? AND case_id = ?", userID, caseID).
		Update("last_activity", time.Now()).Error
}

// ListByUser returns the user's case rows, most recently active first.
func (r *ProgressRepository) ListByUser(ctx context.Context, userID string) ([]model.UserCaseProgress, error) {
	var rows []model.UserCaseProgress
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND case_id IS NOT NULL", userID).
		Order("last_activity DESC").
		Find(&rows).Error
	return rows, err
}

// CreateIfAbsent inserts a fresh (user, case) row and reports false when one
// already exists.
func (r *ProgressRepository) CreateIfAbsent(ctx context.Context, progress *model.UserCaseProgress) (bool, error) {
	progress.CompletedSections = 0
	progress.IsCompleted = false
	progress.LastActivity = time.Now()
	result := r.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(progress)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ResetCompleted restarts a finished case. It reports false when the row is
// not (or no longer) complete.
func (r *ProgressRepository) ResetCompleted(ctx context.Context, userID, caseID string, total int) (bool, error) {
	now := time.Now()
	result := r.DB.WithContext(ctx).Model(&model.UserCaseProgress{}).
		Where("user_id = ? AND case_id = ? AND is_completed = ?", userID, caseID, true).
		Updates(map[string]interface{}{
			"completed_sections": 0,
			"total_sections":     total,
			"is_completed":       false,
			"last_activity":      now,
			"updated_at":         now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
