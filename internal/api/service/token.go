package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/starter/internal/api/domain"
	"github.com/aussiebroadwan/starter/internal/api/store"
	"github.com/aussiebroadwan/starter/pkg/cryptox"
	"github.com/aussiebroadwan/starter/pkg/denylist"
	"github.com/aussiebroadwan/starter/pkg/idx"
	"github.com/aussiebroadwan/starter/pkg/metricsx"
	"github.com/aussiebroadwan/starter/pkg/slogx"
	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultAccessTTL  = time.Hour
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// TokenService mints and validates sealed token envelopes. Nothing about an
// issued token is stored; the denylist only remembers consumed refresh ids.
type TokenService struct {
	Sealer     *cryptox.Sealer
	Store      store.Store
	Denylist   denylist.List
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// RotateRefresh makes every refresh token single use. When false the
	// presented refresh token is handed back unchanged.
	RotateRefresh bool

	// Now defaults to time.Now.
	Now func() time.Time
}

func (s *TokenService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Issue returns a fresh access and refresh pair for subject.
func (s *TokenService) Issue(subject string) (domain.TokenPair, error) {
	access, _, err := s.mint(subject, domain.TokenKindAccess)
	if err != nil {
		return domain.TokenPair{}, err
	}
	refresh, _, err := s.mint(subject, domain.TokenKindRefresh)
	if err != nil {
		return domain.TokenPair{}, err
	}
	return domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    domain.TokenType,
	}, nil
}

func (s *TokenService) mint(subject string, kind domain.TokenKind) (string, domain.TokenPayload, error) {
	ttl := s.AccessTTL
	if kind == domain.TokenKindRefresh {
		ttl = s.RefreshTTL
	}

	now := s.now()
	payload := domain.TokenPayload{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        idx.NewAt(now).String(),
			Subject:   subject,
			Issuer:    s.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", domain.TokenPayload{}, fmt.Errorf("marshal token payload: %w", err)
	}
	envelope, err := s.Sealer.Seal(raw)
	if err != nil {
		return "", domain.TokenPayload{}, fmt.Errorf("seal token: %w", err)
	}

	metricsx.TokensIssued.WithLabelValues(string(kind)).Inc()
	return envelope, payload, nil
}

// Validate opens envelope and checks it is an unexpired token of kind.
// Failures are reported in this order: ErrAuthentication,
// ErrTokenKindMismatch, ErrTokenExpired.
func (s *TokenService) Validate(envelope string, kind domain.TokenKind) (domain.TokenPayload, error) {
	payload, err := s.validate(envelope, kind)
	result := "ok"
	if err != nil {
		result = err.Error()
	}
	metricsx.TokenValidations.WithLabelValues(result).Inc()
	return payload, err
}

func (s *TokenService) validate(envelope string, kind domain.TokenKind) (domain.TokenPayload, error) {
	raw, err := s.Sealer.Open(envelope)
	if err != nil {
		return domain.TokenPayload{}, ErrAuthentication
	}

	var payload domain.TokenPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.TokenPayload{}, ErrAuthentication
	}
	if payload.Subject == "" || payload.ExpiresAt == nil || payload.IssuedAt == nil {
		return domain.TokenPayload{}, ErrAuthentication
	}
	if payload.Kind != domain.TokenKindAccess && payload.Kind != domain.TokenKindRefresh {
		return domain.TokenPayload{}, ErrAuthentication
	}

	if payload.Kind != kind {
		return domain.TokenPayload{}, ErrTokenKindMismatch
	}

	// Valid through the expiry second itself.
	if s.now().Unix() > payload.ExpiresAt.Unix() {
		return domain.TokenPayload{}, ErrTokenExpired
	}

	return payload, nil
}

// Authenticate accepts an access envelope and returns its subject.
func (s *TokenService) Authenticate(_ context.Context, envelope string) (string, error) {
	payload, err := s.Validate(envelope, domain.TokenKindAccess)
	if err != nil {
		return "", err
	}
	return payload.Subject, nil
}

// Refresh exchanges a refresh envelope for a new pair. The subject must still
// exist. With rotation on the presented token is consumed and a second use
// fails with ErrTokenReplayed.
func (s *TokenService) Refresh(ctx context.Context, envelope string) (domain.TokenPair, error) {
	log := slogx.FromContext(ctx)

	payload, err := s.Validate(envelope, domain.TokenKindRefresh)
	if err != nil {
		return domain.TokenPair{}, err
	}

	user, err := s.Store.Users().GetUserByID(ctx, payload.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.TokenPair{}, ErrUserNotFound
		}
		return domain.TokenPair{}, err
	}

	if !s.RotateRefresh {
		if revoked, err := s.revoked(ctx, payload.ID); err != nil {
			return domain.TokenPair{}, err
		} else if revoked {
			return domain.TokenPair{}, ErrTokenReplayed
		}

		access, _, err := s.mint(user.ID, domain.TokenKindAccess)
		if err != nil {
			return domain.TokenPair{}, err
		}
		return domain.TokenPair{
			AccessToken:  access,
			RefreshToken: envelope,
			TokenType:    domain.TokenType,
		}, nil
	}

	first, err := s.consume(ctx, payload)
	if err != nil {
		return domain.TokenPair{}, err
	}
	if !first {
		log.Warn("refresh token replayed", "sub", payload.Subject, "jti", payload.ID)
		return domain.TokenPair{}, ErrTokenReplayed
	}

	return s.Issue(user.ID)
}

// Revoke makes a refresh envelope unusable for the rest of its lifetime.
func (s *TokenService) Revoke(ctx context.Context, envelope string) error {
	payload, err := s.Validate(envelope, domain.TokenKindRefresh)
	if err != nil {
		return err
	}
	_, err = s.consume(ctx, payload)
	return err
}

func (s *TokenService) consume(ctx context.Context, p domain.TokenPayload) (bool, error) {
	if s.Denylist == nil || p.ID == "" {
		return true, nil
	}
	// Tokens stay valid through their expiry second, so the entry must outlive it.
	first, err := s.Denylist.Consume(ctx, p.ID, p.ExpiresAt.Time.Add(time.Second))
	if err != nil {
		return false, fmt.Errorf("denylist consume: %w", err)
	}
	return first, nil
}

func (s *TokenService) revoked(ctx context.Context, id string) (bool, error) {
	if s.Denylist == nil || id == "" {
		return false, nil
	}
	found, err := s.Denylist.Contains(ctx, id)
	if err != nil {
		return false, fmt.Errorf("denylist lookup: %w", err)
	}
	return found, nil
}
