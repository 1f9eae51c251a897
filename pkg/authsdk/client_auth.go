package authsdk

import (
	"context"
	"net/http"
)

// LoginTokens performs POST /v1/auth/login and returns the raw token pair.
func (c *SDKClient) LoginTokens(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/auth/login", req, "")
	if err != nil {
		return nil, err
	}

	var tokens TokenResponse
	if err := decodeJSON(resp, &tokens, http.StatusOK); err != nil {
		return nil, err
	}
	return &tokens, nil
}

// Refresh performs POST /v1/auth/refresh.
func (c *SDKClient) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/auth/refresh", RefreshRequest{RefreshToken: refreshToken}, "")
	if err != nil {
		return nil, err
	}

	var tokens TokenResponse
	if err := decodeJSON(resp, &tokens, http.StatusOK); err != nil {
		return nil, err
	}
	return &tokens, nil
}

// Logout performs POST /v1/auth/logout, revoking refreshToken when given.
func (c *SDKClient) Logout(ctx context.Context, refreshToken string) error {
	var body any
	if refreshToken != "" {
		body = RefreshRequest{RefreshToken: refreshToken}
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/auth/logout", body, "")
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}
