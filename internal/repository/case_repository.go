package repository

import (
	"caseprep_backend/internal/model"
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CaseRepository struct {
	DB *gorm.DB
}

func NewCaseRepository(db *gorm.DB) *CaseRepository {
	return &CaseRepository{DB: db}
}

// FindByID loads a case with its sections ordered by order_index.
func (r *CaseRepository) FindByID(ctx context.Context, id string) (*model.BusinessCase, error) {
	var c model.BusinessCase
	err := r.DB.WithContext(ctx).
		Preload("Sections", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_index ASC")
		}).
		Where("id = ?", id).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// List returns cases without sections, newest first.
func (r *CaseRepository) List(ctx context.Context) ([]model.BusinessCase, error) {
	var cases []model.BusinessCase
	err := r.DB.WithContext(ctx).Order("created_at DESC").Find(&cases).Error
	return cases, err
}

// Upsert writes a case and its sections, replacing existing rows by id.
func (r *CaseRepository) Upsert(ctx context.Context, c *model.BusinessCase) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sections := c.Sections
		if err := tx.Omit("Sections").Clauses(clause.OnConflict{UpdateAll: true}).Create(c).Error; err != nil {
			return err
		}

		for i := range sections {
			sections[i].CaseID = c.ID
		}

		// replaced wholesale; (case_id, order_index) is unique
		if err := tx.Where("case_id = ?", c.ID).Delete(&model.CaseSection{}).Error; err != nil {
			return err
		}
		if len(sections) > 0 {
			if err := tx.Create(&sections).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
