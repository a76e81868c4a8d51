package service

import (
	"caseprep_backend/internal/config"
	"caseprep_backend/internal/model"
	"caseprep_backend/internal/repository"
	"caseprep_backend/pkg/database"
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(&config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"}, "test")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// testEnv bundles the services backed by one in-memory database.
type testEnv struct {
	db        *gorm.DB
	credits   *config.CreditsConfig
	creditRep *repository.CreditRepository
	credit    *CreditService
	progress  *ProgressService
	cases     *CaseService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	credits := &config.CreditsConfig{SignupBonus: 3, CaseCost: 1}
	creditRepo := repository.NewCreditRepository(db)
	creditSvc := NewCreditService(db, creditRepo)
	return &testEnv{
		db:        db,
		credits:   credits,
		creditRep: creditRepo,
		credit:    creditSvc,
		progress:  NewProgressService(db, repository.NewProgressRepository(db), creditSvc, credits),
		cases:     NewCaseService(repository.NewCaseRepository(db), nil, 0),
	}
}

// seedCase stores a case with n sections titled "Section 1".."Section n".
func (e *testEnv) seedCase(t *testing.T, id, language string, n int) *model.BusinessCase {
	t.Helper()
	bc := &model.BusinessCase{
		ID:       id,
		Title:    "Case " + id,
		Company:  "Acme",
		Industry: "Retail",
		Language: language,
	}
	for i := 0; i < n; i++ {
		bc.Sections = append(bc.Sections, model.CaseSection{
			ID:         fmt.Sprintf("%s-s%d", id, i+1),
			Title:      fmt.Sprintf("Section %d", i+1),
			Prompt:     fmt.Sprintf("Question %d?", i+1),
			OrderIndex: i,
			Criteria:   "Be structured.",
		})
	}
	require.NoError(t, e.cases.CaseRepo.Upsert(context.Background(), bc))
	return bc
}

type fakeBackend struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Complete(ctx context.Context, prompt string) (string, error) {
	b.mu.Lock()
	b.prompts = append(b.prompts, prompt)
	b.mu.Unlock()
	return b.reply, b.err
}

func (b *fakeBackend) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.prompts)
}

type fakeSketcher struct {
	description string
}

func (s *fakeSketcher) Describe(ctx context.Context, imageURL, language string) string {
	return s.description
}
