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
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type AuthService struct {
	UserRepo *repository.UserRepository
	Cfg      *config.Config
}

func NewAuthService(userRepo *repository.UserRepository, cfg *config.Config) *AuthService {
	return &AuthService{
		UserRepo: userRepo,
		Cfg:      cfg,
	}
}

// Register creates a credentials account and returns a token for it.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*model.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || len(password) < 8 {
		return nil, "", fmt.Errorf("%w: a valid email and a password of at least 8 characters are required", util.ErrValidation)
	}

	_, err := s.UserRepo.FindByEmail(ctx, email)
	if err == nil {
		return nil, "", util.ErrEmailRegistered
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}
	user := &model.User{
		Name:     strings.TrimSpace(name),
		Email:    email,
		Password: string(hashedPassword),
		Provider: "credentials",
		Role:     model.Candidate,
		LastSeen: time.Now(),
	}
	if err := s.UserRepo.Create(ctx, user); err != nil {
		return nil, "", err
	}

	token, err := util.GenerateJWT(user, s.Cfg.JWT.Secret, s.Cfg.JWT.ExpireTime)
	if err != nil {
		return nil, "", err
	}
	logger.Log.Info("User registered", zap.String("userID", user.ID))
	return user, token, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*model.User, string, error) {
	user, err := s.UserRepo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, "", util.ErrInvalidCredentials
	}
	if user.Password == "" {
		// accounts created from external identity tokens have no password
		return nil, "", util.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, "", util.ErrInvalidCredentials
	}

	token, err := util.GenerateJWT(user, s.Cfg.JWT.Secret, s.Cfg.JWT.ExpireTime)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// EnsureUser creates the users row for an authenticated principal on first sight.
func (s *AuthService) EnsureUser(ctx context.Context, claims *util.Claims) error {
	user := &model.User{
		UUIDBase: model.UUIDBase{ID: claims.UserID},
		Name:     claims.Name,
		Email:    strings.ToLower(claims.Email),
		Provider: "oauth",
		Role:     claims.Role,
		LastSeen: time.Now(),
	}
	return s.UserRepo.CreateIfMissing(ctx, user)
}

func (s *AuthService) GetCurrentUser(ctx context.Context, claims *util.Claims) (*model.User, error) {
	user, err := s.UserRepo.FindByID(ctx, claims.UserID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrUserNotFound
	}
	return user, err
}
