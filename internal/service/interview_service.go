package service

import (
	"caseprep_backend/internal/config"
	"caseprep_backend/internal/model"
	"caseprep_backend/internal/repository"
	"caseprep_backend/internal/util"
	"caseprep_backend/pkg/logger"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var errConcurrentStart = errors.New("case started concurrently")

// SketchDescriber turns a sketch URL into text for the prompt.
type SketchDescriber interface {
	Describe(ctx context.Context, imageURL, language string) string
}

// Evaluator scores an assembled prompt.
type Evaluator interface {
	Evaluate(ctx context.Context, prompt *Prompt) *Evaluation
}

type StartResult struct {
	Progress       ProgressSnapshot `json:"progress"`
	Balance        int              `json:"balance"`
	Charged        bool             `json:"charged"`
	FirstSectionID string           `json:"firstSectionId"`
	// CurrentSectionID is the first section not yet passed.
	CurrentSectionID string `json:"currentSectionId"`
}

type SubmitRequest struct {
	UserID       string
	CaseID       string
	SectionID    string
	ResponseText string
	SketchURL    string
	History      []model.ConversationTurn
}

type SubmitResult struct {
	ResponseID    uint             `json:"responseId"`
	Feedback      string           `json:"feedback"`
	Passed        bool             `json:"passed"`
	Fallback      bool             `json:"fallback"`
	Progress      ProgressSnapshot `json:"progress"`
	NextSectionID string           `json:"nextSectionId,omitempty"`
}

type InterviewService struct {
	DB              *gorm.DB
	CaseService     *CaseService
	ProgressService *ProgressService
	CreditService   *CreditService
	ResponseRepo    *repository.ResponseRepository
	Sketches        SketchDescriber
	Evaluator       Evaluator
	Credits         *config.CreditsConfig
}

func NewInterviewService(
	db *gorm.DB,
	caseService *CaseService,
	progressService *ProgressService,
	creditService *CreditService,
	responseRepo *repository.ResponseRepository,
	sketches SketchDescriber,
	evaluator Evaluator,
	credits *config.CreditsConfig,
) *InterviewService {
	return &InterviewService{
		DB:              db,
		CaseService:     caseService,
		ProgressService: progressService,
		CreditService:   creditService,
		ResponseRepo:    responseRepo,
		Sketches:        sketches,
		Evaluator:       evaluator,
		Credits:         credits,
	}
}

// StartCase charges the case cost and opens progress for the case. An
// unfinished case resumes without a charge.
func (s *InterviewService) StartCase(ctx context.Context, userID, caseID string) (*StartResult, error) {
	bc, err := s.CaseService.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if len(bc.Sections) == 0 {
		return nil, fmt.Errorf("%w: case %s has no sections", util.ErrValidation, caseID)
	}

	if _, err := s.ProgressService.EnsureBootstrap(ctx, userID); err != nil {
		return nil, err
	}

	existing, err := s.ProgressService.GetProgress(ctx, userID, caseID)
	if err != nil && !errors.Is(err, util.ErrCaseNotStarted) {
		return nil, err
	}
	if existing != nil && !existing.IsCompleted {
		return s.startResult(ctx, bc, existing, false)
	}

	total := len(bc.Sections)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if s.Credits.CaseCost > 0 {
			if _, err := s.CreditService.DebitCreditsTx(tx, userID, s.Credits.CaseCost, "Started case: "+bc.Title); err != nil {
				return err
			}
		}
		claimed, err := s.ProgressService.ClaimCaseTx(ctx, tx, userID, caseID, total, existing)
		if err != nil {
			return err
		}
		if !claimed {
			return errConcurrentStart
		}
		return nil
	})
	if errors.Is(err, errConcurrentStart) {
		// the other request paid; resume its row
		existing, err = s.ProgressService.GetProgress(ctx, userID, caseID)
		if err != nil {
			return nil, err
		}
		return s.startResult(ctx, bc, existing, false)
	}
	if err != nil {
		return nil, err
	}

	progress, err := s.ProgressService.GetProgress(ctx, userID, caseID)
	if err != nil {
		return nil, err
	}
	logger.Log.Info("Case started",
		zap.String("userID", userID),
		zap.String("caseID", caseID),
		zap.Int("totalSections", total))
	return s.startResult(ctx, bc, progress, s.Credits.CaseCost > 0)
}

func (s *InterviewService) startResult(ctx context.Context, bc *model.BusinessCase, progress *model.UserCaseProgress, charged bool) (*StartResult, error) {
	balance, err := s.CreditService.GetBalance(ctx, progress.UserID)
	if err != nil {
		return nil, err
	}
	result := &StartResult{
		Progress:       snapshotOf(progress),
		Balance:        balance,
		Charged:        charged,
		FirstSectionID: bc.Sections[0].ID,
	}
	if progress.CompletedSections < len(bc.Sections) {
		result.CurrentSectionID = bc.Sections[progress.CompletedSections].ID
	}
	return result, nil
}

// Submit evaluates a response to an unlocked section, stores it and advances
// progress when the section is passed. The evaluator never fails the request;
// a storage failure always does.
func (s *InterviewService) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if err := validateSubmit(&req); err != nil {
		return nil, err
	}

	bc, position, err := s.CaseService.GetSection(ctx, req.CaseID, req.SectionID)
	if err != nil {
		return nil, err
	}
	section := &bc.Sections[position]

	progress, err := s.ProgressService.GetProgress(ctx, req.UserID, req.CaseID)
	if err != nil {
		return nil, err
	}
	if position > progress.CompletedSections {
		return nil, util.ErrSectionLocked
	}

	latest := model.ConversationTurn{Role: model.RoleCandidate, Content: req.ResponseText}
	sketchDescription := ""
	if req.SketchURL != "" {
		latest.Attachments = []model.Attachment{{Type: model.AttachmentSketch, URL: req.SketchURL}}
		if s.Sketches != nil {
			sketchDescription = s.Sketches.Describe(ctx, req.SketchURL, bc.Language)
		}
	}

	prompt := BuildPrompt(bc, section, req.History, latest, sketchDescription)
	eval := s.Evaluator.Evaluate(ctx, prompt)

	transcript := make([]model.ConversationTurn, 0, len(req.History)+2)
	transcript = append(transcript, req.History...)
	transcript = append(transcript, latest, model.ConversationTurn{Role: model.RoleInterviewer, Content: eval.Feedback})
	historyJSON, err := json.Marshal(transcript)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrPersistence, err)
	}

	response := &model.UserResponse{
		UserID:              req.UserID,
		CaseID:              req.CaseID,
		SectionID:           req.SectionID,
		ResponseText:        req.ResponseText,
		SketchURL:           req.SketchURL,
		SketchDescription:   sketchDescription,
		Feedback:            eval.Feedback,
		Passed:              eval.Passed,
		Backend:             eval.Backend,
		ConversationHistory: datatypes.JSON(historyJSON),
	}

	var snap ProgressSnapshot
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ResponseRepo.WithTx(tx).Create(ctx, response); err != nil {
			return err
		}
		if eval.Passed {
			var err error
			snap, err = s.ProgressService.AdvanceFromTx(ctx, tx, req.UserID, req.CaseID, position)
			return err
		}
		repo := s.ProgressService.ProgressRepo.WithTx(tx)
		if err := repo.Touch(ctx, req.UserID, req.CaseID); err != nil {
			return err
		}
		current, err := repo.Find(ctx, req.UserID, req.CaseID)
		if err != nil {
			return err
		}
		snap = snapshotOf(current)
		return nil
	})
	if err != nil {
		logger.Log.Error("Submission not persisted",
			zap.String("userID", req.UserID),
			zap.String("caseID", req.CaseID),
			zap.String("sectionID", req.SectionID),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", util.ErrPersistence, err)
	}

	result := &SubmitResult{
		ResponseID: response.ID,
		Feedback:   eval.Feedback,
		Passed:     eval.Passed,
		Fallback:   eval.Fallback,
		Progress:   snap,
	}
	if eval.Passed && position+1 < len(bc.Sections) {
		result.NextSectionID = bc.Sections[position+1].ID
	}
	return result, nil
}

func validateSubmit(req *SubmitRequest) error {
	var missing []string
	if strings.TrimSpace(req.CaseID) == "" {
		missing = append(missing, "caseId")
	}
	if strings.TrimSpace(req.SectionID) == "" {
		missing = append(missing, "sectionId")
	}
	if strings.TrimSpace(req.ResponseText) == "" && strings.TrimSpace(req.SketchURL) == "" {
		missing = append(missing, "responseText")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", util.ErrValidation, strings.Join(missing, ", "))
	}
	for i, turn := range req.History {
		if turn.Role != model.RoleInterviewer && turn.Role != model.RoleCandidate {
			return fmt.Errorf("%w: history turn %d has unknown role %q", util.ErrValidation, i, turn.Role)
		}
	}
	return nil
}

// ListResponses returns the user's stored submissions for a case.
func (s *InterviewService) ListResponses(ctx context.Context, userID, caseID string) ([]model.UserResponse, error) {
	if caseID == "" {
		return nil, fmt.Errorf("%w: case id is required", util.ErrValidation)
	}
	return s.ResponseRepo.ListByCase(ctx, userID, caseID)
}
