package authsdk

import (
	"time"

	"github.com/aussiebroadwan/starter/pkg/pagination"
)

// LoginRequest is the body of POST /v1/auth/login.
type LoginRequest struct {
	Provider    string `json:"provider"`
	AccessToken string `json:"access_token"`
	Email       string `json:"email,omitempty"`
	Name        string `json:"name,omitempty"`
}

// RefreshRequest is the body of POST /v1/auth/refresh and, optionally,
// POST /v1/auth/logout.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenResponse is returned by login and refresh.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// User is the public view of a user record.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name,omitempty"`
	Image         string    `json:"image,omitempty"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// UserPage is one page of GET /v1/users.
type UserPage = pagination.Page[User]

// Health statuses.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// ServiceHealth is one dependency's probe result.
type ServiceHealth struct {
	Status    string  `json:"status"`
	LatencyMS float64 `json:"latency_ms"`
	Error     string  `json:"error,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string                   `json:"status"`
	Version  string                   `json:"version"`
	Services map[string]ServiceHealth `json:"services"`
}

// StatusResponse is returned by the liveness and readiness probes.
type StatusResponse struct {
	Status string `json:"status"`
}
