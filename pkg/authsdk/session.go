package authsdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
)

// Session holds a token pair. Calls that fail with token_expired refresh the
// pair once and retry.
type Session struct {
	client *SDKClient

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
}

func newSession(client *SDKClient, tokens *TokenResponse) *Session {
	return &Session{
		client:       client,
		accessToken:  tokens.AccessToken,
		refreshToken: tokens.RefreshToken,
	}
}

// AccessToken returns the current access token.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// RefreshToken returns the current refresh token.
func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// Refresh swaps the pair for a new one.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx, s.accessToken)
}

// refreshLocked refreshes unless another caller already replaced stale.
func (s *Session) refreshLocked(ctx context.Context, stale string) error {
	if s.accessToken != stale {
		return nil
	}
	if s.refreshToken == "" {
		return fmt.Errorf("access token expired and no refresh token available")
	}

	tokens, err := s.client.Refresh(ctx, s.refreshToken)
	if err != nil {
		return fmt.Errorf("failed to refresh token: %w", err)
	}
	s.accessToken = tokens.AccessToken
	s.refreshToken = tokens.RefreshToken
	return nil
}

// Logout revokes the refresh token held by this session.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	refreshToken := s.refreshToken
	s.accessToken, s.refreshToken = "", ""
	s.mu.Unlock()

	return s.client.Logout(ctx, refreshToken)
}

// Me returns the user the session belongs to.
func (s *Session) Me(ctx context.Context) (*User, error) {
	var user User
	if err := s.getJSON(ctx, "/v1/users/me", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUsers returns one page of users. Zero page or limit use server defaults.
func (s *Session) ListUsers(ctx context.Context, page, limit int) (*UserPage, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/v1/users"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out UserPage
	if err := s.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Session) getJSON(ctx context.Context, path string, target any) error {
	token := s.AccessToken()

	err := s.get(ctx, path, token, target)
	if !errors.Is(err, ErrTokenExpired) {
		return err
	}

	s.mu.Lock()
	rerr := s.refreshLocked(ctx, token)
	s.mu.Unlock()
	if rerr != nil {
		return rerr
	}

	return s.get(ctx, path, s.AccessToken(), target)
}

func (s *Session) get(ctx context.Context, path, token string, target any) error {
	resp, err := s.client.doRequest(ctx, http.MethodGet, path, nil, token)
	if err != nil {
		return err
	}
	return decodeJSON(resp, target, http.StatusOK)
}
