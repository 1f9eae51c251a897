package authsdk

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// SDKClient is a client for the starter API. It performs unauthenticated
// operations and creates authenticated Sessions.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewSDKClient creates a new API client.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NewSessionFromTokens creates an authenticated session from tokens obtained
// earlier, for example ones persisted by the caller.
func (c *SDKClient) NewSessionFromTokens(accessToken, refreshToken string) *Session {
	return &Session{
		client:       c,
		accessToken:  accessToken,
		refreshToken: refreshToken,
	}
}

// Login exchanges a provider access token for a Session.
func (c *SDKClient) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	tokens, err := c.LoginTokens(ctx, req)
	if err != nil {
		return nil, err
	}
	return newSession(c, tokens), nil
}
