package http

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/starter/internal/api/domain"
	"github.com/aussiebroadwan/starter/internal/api/service"
	"github.com/aussiebroadwan/starter/pkg/authsdk"
	"github.com/aussiebroadwan/starter/pkg/httpx"
)

type AuthHandler struct {
	AuthService *service.AuthService
	Errors      *ErrorWriter
}

// HandleLogin exchanges a provider access token for a token pair.
//
//	@Summary		Log in with an OAuth provider
//	@Description	Verifies the provider access token against the provider's userinfo endpoint,
//	@Description	creates or updates the user matched by email and returns a token pair.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest	true	"Provider credentials"
//	@Success		200		{object}	authsdk.TokenResponse
//	@Failure		400		{object}	authsdk.APIError	"invalid_request or unsupported_provider"
//	@Failure		401		{object}	authsdk.APIError	"identity_verification_failed"
//	@Failure		429		{object}	authsdk.APIError	"rate_limit_exceeded"
//	@Router			/v1/auth/login [post]
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if strings.TrimSpace(req.Provider) == "" || req.AccessToken == "" {
		authsdk.ErrInvalidRequest.WithDescription("provider and access_token are required").WriteError(w)
		return
	}

	pair, err := h.AuthService.Login(r.Context(), service.LoginParams{
		Provider:    req.Provider,
		AccessToken: req.AccessToken,
		Email:       req.Email,
		Name:        req.Name,
	})
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, tokenResponse(pair))
}

// HandleRefresh trades a refresh token for a new pair.
//
//	@Summary		Refresh tokens
//	@Description	Validates the refresh token and issues a new access token. Refresh tokens are
//	@Description	single use when rotation is enabled.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RefreshRequest	true	"Refresh token"
//	@Success		200		{object}	authsdk.TokenResponse
//	@Failure		400		{object}	authsdk.APIError	"invalid_request"
//	@Failure		401		{object}	authsdk.APIError	"invalid_token, token_expired, invalid_token_kind, token_replayed or user_not_found"
//	@Router			/v1/auth/refresh [post]
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RefreshRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil || req.RefreshToken == "" {
		authsdk.ErrInvalidRequest.WithDescription("refresh_token is required").WriteError(w)
		return
	}

	pair, err := h.AuthService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, tokenResponse(pair))
}

// HandleLogout revokes the supplied refresh token, if any.
//
//	@Summary		Log out
//	@Description	Sessions are stateless; a refresh token in the body is revoked.
//	@Tags			Auth
//	@Accept			json
//	@Param			request	body	authsdk.RefreshRequest	false	"Refresh token to revoke"
//	@Success		204
//	@Failure		400	{object}	authsdk.APIError	"invalid_request"
//	@Router			/v1/auth/logout [post]
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RefreshRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.AuthService.Logout(r.Context(), req.RefreshToken); err != nil {
		h.Errors.Write(w, r, err)
		return
	}

	httpx.NoCache(w)
	w.WriteHeader(http.StatusNoContent)
}

func tokenResponse(p domain.TokenPair) authsdk.TokenResponse {
	return authsdk.TokenResponse{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    p.TokenType,
	}
}
