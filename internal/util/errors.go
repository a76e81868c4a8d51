package util

import "errors"

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrEmailRegistered      = errors.New("email already registered")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrValidation           = errors.New("validation failed")
	ErrCaseNotFound         = errors.New("case not found")
	ErrSectionNotFound      = errors.New("section not found")
	ErrCaseNotStarted       = errors.New("case not started")
	ErrSectionLocked        = errors.New("section not yet unlocked")
	ErrInsufficientFunds    = errors.New("insufficient credits")
	ErrInvalidAmount        = errors.New("credit amount must be a positive integer")
	ErrInvalidCreditPackage = errors.New("invalid credit package")
	ErrDuplicateTransaction = errors.New("transaction already applied")
	ErrWebhookSignature     = errors.New("webhook signature verification failed")
	ErrPersistence          = errors.New("failed to persist submission")
	ErrUpstreamUnavailable  = errors.New("upstream service unavailable")
	ErrPaymentsDisabled     = errors.New("payments are not configured")
)
