package service

import (
	"errors"

	"github.com/aussiebroadwan/starter/internal/api/identity"
)

var (
	ErrAuthentication    = errors.New("invalid_token")
	ErrTokenExpired      = errors.New("token_expired")
	ErrTokenKindMismatch = errors.New("invalid_token_kind")
	ErrTokenReplayed     = errors.New("token_replayed")
	ErrUserNotFound      = errors.New("user_not_found")
	ErrRateLimitExceeded = errors.New("rate_limit_exceeded")
	ErrInvalidRequest    = errors.New("invalid_request")

	ErrUnsupportedProvider        = identity.ErrUnsupportedProvider
	ErrIdentityVerificationFailed = identity.ErrIdentityVerificationFailed
)
