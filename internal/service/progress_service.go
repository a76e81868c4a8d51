package service

import (
	"caseprep_backend/internal/config"
	"caseprep_backend/internal/model"
	"caseprep_backend/internal/repository"
	"caseprep_backend/internal/util"
	"caseprep_backend/pkg/logger"
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxCompletionAttempts = 5

// ProgressSnapshot is the client-facing view of a progress row.
type ProgressSnapshot struct {
	CaseID            string `json:"caseId"`
	CompletedSections int    `json:"completedSections"`
	TotalSections     int    `json:"totalSections"`
	IsCompleted       bool   `json:"isCompleted"`
}

func snapshotOf(p *model.UserCaseProgress) ProgressSnapshot {
	snap := ProgressSnapshot{
		CompletedSections: p.CompletedSections,
		TotalSections:     p.TotalSections,
		IsCompleted:       p.IsCompleted,
	}
	if p.CaseID != nil {
		snap.CaseID = *p.CaseID
	}
	return snap
}

type ProgressService struct {
	DB            *gorm.DB
	ProgressRepo  *repository.ProgressRepository
	CreditService *CreditService
	Credits       *config.CreditsConfig
}

func NewProgressService(
	db *gorm.DB,
	progressRepo *repository.ProgressRepository,
	creditService *CreditService,
	credits *config.CreditsConfig,
) *ProgressService {
	return &ProgressService{
		DB:            db,
		ProgressRepo:  progressRepo,
		CreditService: creditService,
		Credits:       credits,
	}
}

// StartCase creates or resets the (user, case) row.
func (s *ProgressService) StartCase(ctx context.Context, userID, caseID string, totalSections int) (*model.UserCaseProgress, error) {
	var progress *model.UserCaseProgress
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		progress, err = s.StartCaseTx(ctx, tx, userID, caseID, totalSections)
		return err
	})
	return progress, err
}

// StartCaseTx is StartCase inside a caller-owned transaction.
func (s *ProgressService) StartCaseTx(ctx context.Context, tx *gorm.DB, userID, caseID string, totalSections int) (*model.UserCaseProgress, error) {
	if totalSections <= 0 {
		return nil, fmt.Errorf("%w: a case needs at least one section", util.ErrValidation)
	}
	repo := s.ProgressRepo.WithTx(tx)
	id := caseID
	row := &model.UserCaseProgress{
		UserID:        userID,
		CaseID:        &id,
		TotalSections: totalSections,
	}
	if err := repo.Upsert(ctx, row); err != nil {
		return nil, err
	}
	return repo.Find(ctx, userID, caseID)
}

// RecordSectionCompletion advances the counter by exactly one. Once the case is
// complete further calls return the current snapshot unchanged.
func (s *ProgressService) RecordSectionCompletion(ctx context.Context, userID, caseID string) (ProgressSnapshot, error) {
	var snap ProgressSnapshot
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		snap, err = s.RecordSectionCompletionTx(ctx, tx, userID, caseID)
		return err
	})
	return snap, err
}

// RecordSectionCompletionTx is RecordSectionCompletion inside a caller-owned transaction.
func (s *ProgressService) RecordSectionCompletionTx(ctx context.Context, tx *gorm.DB, userID, caseID string) (ProgressSnapshot, error) {
	repo := s.ProgressRepo.WithTx(tx)

	for attempt := 0; attempt < maxCompletionAttempts; attempt++ {
		current, err := repo.Find(ctx, userID, caseID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ProgressSnapshot{}, util.ErrCaseNotStarted
		}
		if err != nil {
			return ProgressSnapshot{}, err
		}
		if current.CompletedSections >= current.TotalSections {
			return snapshotOf(current), nil
		}

		ok, err := repo.CompareAndIncrement(ctx, userID, caseID, current.CompletedSections, current.TotalSections)
		if err != nil {
			return ProgressSnapshot{}, err
		}
		if ok {
			next := current.CompletedSections + 1
			return ProgressSnapshot{
				CaseID:            caseID,
				CompletedSections: next,
				TotalSections:     current.TotalSections,
				IsCompleted:       next == current.TotalSections,
			}, nil
		}
		logger.Log.Debug("Progress increment lost a race, retrying",
			zap.String("userID", userID),
			zap.String("caseID", caseID),
			zap.Int("attempt", attempt+1))
	}
	return ProgressSnapshot{}, fmt.Errorf("progress for case %s kept changing during update", caseID)
}

// ClaimCaseTx opens the (user, case) row for a paid start: it creates a new row
// or restarts a completed one. It reports false when a concurrent start already
// holds an active row.
func (s *ProgressService) ClaimCaseTx(ctx context.Context, tx *gorm.DB, userID, caseID string, totalSections int, existing *model.UserCaseProgress) (bool, error) {
	if totalSections <= 0 {
		return false, fmt.Errorf("%w: a case needs at least one section", util.ErrValidation)
	}
	repo := s.ProgressRepo.WithTx(tx)
	if existing == nil {
		id := caseID
		return repo.CreateIfAbsent(ctx, &model.UserCaseProgress{
			UserID:        userID,
			CaseID:        &id,
			TotalSections: totalSections,
		})
	}
	return repo.ResetCompleted(ctx, userID, caseID, totalSections)
}

// AdvanceFromTx counts a passed section at the given zero-based position. Only
// the frontier section (position == completed_sections) moves the counter, so
// concurrent passes of the same section count once.
func (s *ProgressService) AdvanceFromTx(ctx context.Context, tx *gorm.DB, userID, caseID string, position int) (ProgressSnapshot, error) {
	repo := s.ProgressRepo.WithTx(tx)
	current, err := repo.Find(ctx, userID, caseID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ProgressSnapshot{}, util.ErrCaseNotStarted
	}
	if err != nil {
		return ProgressSnapshot{}, err
	}
	if current.CompletedSections != position || current.CompletedSections >= current.TotalSections {
		if err := repo.Touch(ctx, userID, caseID); err != nil {
			return ProgressSnapshot{}, err
		}
		return snapshotOf(current), nil
	}

	ok, err := repo.CompareAndIncrement(ctx, userID, caseID, position, current.TotalSections)
	if err != nil {
		return ProgressSnapshot{}, err
	}
	if !ok {
		current, err = repo.Find(ctx, userID, caseID)
		if err != nil {
			return ProgressSnapshot{}, err
		}
		return snapshotOf(current), nil
	}
	next := position + 1
	return ProgressSnapshot{
		CaseID:            caseID,
		CompletedSections: next,
		TotalSections:     current.TotalSections,
		IsCompleted:       next == current.TotalSections,
	}, nil
}

// EnsureBootstrap initialises a first-time user: it grants the signup bonus and
// writes the case-less marker row. Users with any progress row are returned as is.
func (s *ProgressService) EnsureBootstrap(ctx context.Context, userID string) (*model.UserCaseProgress, error) {
	var progress *model.UserCaseProgress
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		progress, err = s.ensureBootstrapTx(ctx, tx, userID)
		return err
	})
	if errors.Is(err, util.ErrDuplicateTransaction) {
		// a concurrent call granted the bonus and owns the marker row
		return s.ProgressRepo.FindFirst(ctx, userID)
	}
	return progress, err
}

func (s *ProgressService) ensureBootstrapTx(ctx context.Context, tx *gorm.DB, userID string) (*model.UserCaseProgress, error) {
	repo := s.ProgressRepo.WithTx(tx)

	existing, err := repo.FindFirst(ctx, userID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if bonus := s.Credits.SignupBonus; bonus > 0 {
		_, err := s.CreditService.AddCreditsTx(tx, CreditEntry{
			UserID:      userID,
			Amount:      bonus,
			Type:        model.TransactionPromotion,
			Description: "Signup bonus",
			Reference:   "signup_bonus:" + userID,
		})
		if err != nil {
			return nil, err
		}
	}

	progress, err := repo.CreateBootstrap(ctx, userID)
	if err != nil {
		return nil, err
	}
	logger.Log.Info("User bootstrapped",
		zap.String("userID", userID),
		zap.Int("signupBonus", s.Credits.SignupBonus))
	return progress, nil
}

func (s *ProgressService) GetProgress(ctx context.Context, userID, caseID string) (*model.UserCaseProgress, error) {
	progress, err := s.ProgressRepo.Find(ctx, userID, caseID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrCaseNotStarted
	}
	return progress, err
}

func (s *ProgressService) ListProgress(ctx context.Context, userID string) ([]model.UserCaseProgress, error) {
	return s.ProgressRepo.ListByUser(ctx, userID)
}
