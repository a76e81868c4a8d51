package service

import (
	"caseprep_backend/internal/model"
	"caseprep_backend/internal/repository"
	"caseprep_backend/internal/util"
	"caseprep_backend/pkg/logger"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

const caseCachePrefix = "case:"

// CaseSeedFile is the on-disk catalogue format.
type CaseSeedFile struct {
	Cases []model.BusinessCase `yaml:"cases"`
}

type CaseService struct {
	CaseRepo *repository.CaseRepository
	Redis    *redis.Client
	CacheTTL time.Duration
}

// NewCaseService accepts a nil redis client, in which case every read hits the database.
func NewCaseService(caseRepo *repository.CaseRepository, rdb *redis.Client, ttl time.Duration) *CaseService {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CaseService{
		CaseRepo: caseRepo,
		Redis:    rdb,
		CacheTTL: ttl,
	}
}

// GetCase returns the case with its sections ordered by order_index.
func (s *CaseService) GetCase(ctx context.Context, caseID string) (*model.BusinessCase, error) {
	if caseID == "" {
		return nil, fmt.Errorf("%w: case id is required", util.ErrValidation)
	}

	if c := s.readCache(ctx, caseID); c != nil {
		return c, nil
	}

	c, err := s.CaseRepo.FindByID(ctx, caseID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrCaseNotFound
	}
	if err != nil {
		return nil, err
	}

	s.writeCache(ctx, c)
	return c, nil
}

func (s *CaseService) ListCases(ctx context.Context) ([]model.BusinessCase, error) {
	return s.CaseRepo.List(ctx)
}

// GetSection resolves a section of the given case and its zero-based position.
func (s *CaseService) GetSection(ctx context.Context, caseID, sectionID string) (*model.BusinessCase, int, error) {
	c, err := s.GetCase(ctx, caseID)
	if err != nil {
		return nil, -1, err
	}
	for i := range c.Sections {
		if c.Sections[i].ID == sectionID {
			return c, i, nil
		}
	}
	return nil, -1, util.ErrSectionNotFound
}

// Seed upserts every case of a YAML catalogue file.
func (s *CaseService) Seed(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}
	return s.SeedBytes(ctx, data)
}

func (s *CaseService) SeedBytes(ctx context.Context, data []byte) (int, error) {
	var file CaseSeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("%w: parse seed file: %v", util.ErrValidation, err)
	}

	for i := range file.Cases {
		c := &file.Cases[i]
		if err := validateSeedCase(c); err != nil {
			return i, err
		}
		if err := s.CaseRepo.Upsert(ctx, c); err != nil {
			return i, fmt.Errorf("seed case %s: %w", c.ID, err)
		}
		s.invalidate(ctx, c.ID)
		logger.Log.Info("Seeded case",
			zap.String("caseID", c.ID),
			zap.Int("sections", len(c.Sections)))
	}
	return len(file.Cases), nil
}

func validateSeedCase(c *model.BusinessCase) error {
	if c.ID == "" || c.Title == "" {
		return fmt.Errorf("%w: seeded cases need an id and a title", util.ErrValidation)
	}
	if c.Language == "" {
		c.Language = "sv"
	}
	seen := make(map[int]bool, len(c.Sections))
	for i := range c.Sections {
		sec := &c.Sections[i]
		if sec.ID == "" {
			sec.ID = model.GenerateUUID()
		}
		if sec.Prompt == "" {
			return fmt.Errorf("%w: section %s of case %s has no prompt", util.ErrValidation, sec.ID, c.ID)
		}
		if seen[sec.OrderIndex] {
			return fmt.Errorf("%w: duplicate order_index %d in case %s", util.ErrValidation, sec.OrderIndex, c.ID)
		}
		seen[sec.OrderIndex] = true
	}
	return nil
}

func (s *CaseService) readCache(ctx context.Context, caseID string) *model.BusinessCase {
	if s.Redis == nil {
		return nil
	}
	data, err := s.Redis.Get(ctx, caseCachePrefix+caseID).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Log.Warn("Case cache read failed", zap.String("caseID", caseID), zap.Error(err))
		}
		return nil
	}
	var c model.BusinessCase
	if err := json.Unmarshal(data, &c); err != nil {
		return nil
	}
	return &c
}

func (s *CaseService) writeCache(ctx context.Context, c *model.BusinessCase) {
	if s.Redis == nil {
		return
	}
	data, err := json.Marshal(c)
	if err != nil {
		return
	}
	if err := s.Redis.Set(ctx, caseCachePrefix+c.ID, data, s.CacheTTL).Err(); err != nil {
		logger.Log.Warn("Case cache write failed", zap.String("caseID", c.ID), zap.Error(err))
	}
}

func (s *CaseService) invalidate(ctx context.Context, caseID string) {
	if s.Redis == nil {
		return
	}
	s.Redis.Del(ctx, caseCachePrefix+caseID)
}
