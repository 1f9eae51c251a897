package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/starter/internal/api/domain"
	"github.com/aussiebroadwan/starter/internal/api/store"
	"github.com/aussiebroadwan/starter/pkg/idx"
	"github.com/aussiebroadwan/starter/pkg/metricsx"
	"github.com/aussiebroadwan/starter/pkg/slogx"
)

//go:generate mockgen -destination=mocks/identity_verifier.go -package=mocks . IdentityVerifier

// IdentityVerifier resolves a provider access token to the identity behind it.
type IdentityVerifier interface {
	Verify(ctx context.Context, provider domain.Provider, accessToken string) (domain.IdentityAssertion, error)
}

// LoginParams carries what the client sent to the login endpoint. Email and
// Name are fallbacks for providers that withhold them.
type LoginParams struct {
	Provider    string
	AccessToken string
	Email       string
	Name        string
}

type AuthService struct {
	Store    store.Store
	Tokens   *TokenService
	Identity IdentityVerifier

	// RefreshProfileOnLogin overwrites stored name, image and verification
	// state with what the provider returned on every login.
	RefreshProfileOnLogin bool
}

// Login verifies the provider token, upserts the user by email and issues a
// token pair.
func (s *AuthService) Login(ctx context.Context, p LoginParams) (domain.TokenPair, error) {
	log := slogx.FromContext(ctx)
	provider := domain.Provider(strings.ToLower(strings.TrimSpace(p.Provider)))

	assertion, err := s.Identity.Verify(ctx, provider, p.AccessToken)
	if err != nil {
		metricsx.Logins.WithLabelValues(string(provider), "rejected").Inc()
		log.Info("identity verification failed", "provider", provider, "err", err)
		return domain.TokenPair{}, err
	}

	profile := domain.User{
		Email:         normalizeEmail(assertion.Email),
		Name:          assertion.Name,
		Image:         assertion.AvatarURL,
		EmailVerified: assertion.EmailVerified,
	}
	if profile.Email == "" {
		// Caller-supplied addresses are never treated as verified.
		profile.Email = normalizeEmail(p.Email)
		profile.EmailVerified = false
	}
	if profile.Name == "" {
		profile.Name = strings.TrimSpace(p.Name)
	}
	if profile.Email == "" {
		metricsx.Logins.WithLabelValues(string(provider), "rejected").Inc()
		return domain.TokenPair{}, fmt.Errorf("%w: email is required", ErrInvalidRequest)
	}

	user, err := s.upsertUser(ctx, profile)
	if err != nil {
		metricsx.Logins.WithLabelValues(string(provider), "error").Inc()
		return domain.TokenPair{}, err
	}

	pair, err := s.Tokens.Issue(user.ID)
	if err != nil {
		metricsx.Logins.WithLabelValues(string(provider), "error").Inc()
		return domain.TokenPair{}, err
	}

	metricsx.Logins.WithLabelValues(string(provider), "ok").Inc()
	log.Info("user logged in", "user_id", user.ID, "provider", provider)
	return pair, nil
}

func (s *AuthService) upsertUser(ctx context.Context, profile domain.User) (domain.User, error) {
	var user domain.User

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		existing, err := tx.Users().GetUserByEmail(ctx, profile.Email)
		switch {
		case err == nil:
			user = existing
			if !s.RefreshProfileOnLogin {
				return nil
			}
			user.Name = profile.Name
			user.Image = profile.Image
			user.EmailVerified = profile.EmailVerified
			return tx.Users().UpdateProfile(ctx, user)

		case errors.Is(err, store.ErrNotFound):
			user = profile
			user.ID = idx.New().String()
			return tx.Users().CreateUser(ctx, user)

		default:
			return err
		}
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		// Lost a race with a concurrent first login for the same email.
		return s.Store.Users().GetUserByEmail(ctx, profile.Email)
	}
	return user, err
}

// Refresh trades a refresh token for a new pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	return s.Tokens.Refresh(ctx, refreshToken)
}

// Logout revokes refreshToken when one is given. Tokens that no longer
// validate are already unusable, so they are not an error here.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}

	err := s.Tokens.Revoke(ctx, refreshToken)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrAuthentication), errors.Is(err, ErrTokenExpired), errors.Is(err, ErrTokenKindMismatch):
		slogx.FromContext(ctx).Debug("logout with unusable refresh token", "err", err)
		return nil
	default:
		return err
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
