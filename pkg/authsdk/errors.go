package authsdk

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/aussiebroadwan/starter/pkg/httpx"
)

// Error codes written in the "error" field of a response body.
const (
	ErrorCodeInvalidRequest             = "invalid_request"
	ErrorCodeInvalidToken               = "invalid_token"
	ErrorCodeTokenExpired               = "token_expired"
	ErrorCodeInvalidTokenKind           = "invalid_token_kind"
	ErrorCodeTokenReplayed              = "token_replayed"
	ErrorCodeUnsupportedProvider        = "unsupported_provider"
	ErrorCodeIdentityVerificationFailed = "identity_verification_failed"
	ErrorCodeRateLimitExceeded          = "rate_limit_exceeded"
	ErrorCodeUserNotFound               = "user_not_found"
	ErrorCodeInternalServerError        = "internal_server_error"
	ErrorCodeServiceUnavailable         = "service_unavailable"
)

// APIError is the error body every endpoint writes. It is used by the server
// to render responses and by the client to report them.
type APIError struct {
	// StatusCode is the HTTP status code for this error
	StatusCode int `json:"-"`

	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`

	// Set on 500 responses only.
	Message   string `json:"message,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	switch {
	case e.Description != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Description)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	default:
		return e.Code
	}
}

// Is matches on code so sentinels below work with errors.Is.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && t.Code == e.Code
}

// WriteError writes this APIError to an HTTP response writer.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.WriteJSON(w, e.StatusCode, e)
}

// WithDescription returns a copy with a different description.
func (e *APIError) WithDescription(desc string) *APIError {
	cp := *e
	cp.Description = desc
	return &cp
}

// Predefined errors, one per code.
var (
	ErrInvalidRequest = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request is malformed or missing required parameters",
	}

	ErrInvalidToken = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidToken,
		Description: "the token is invalid",
	}

	ErrTokenExpired = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeTokenExpired,
		Description: "the token has expired",
	}

	ErrInvalidTokenKind = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidTokenKind,
		Description: "the token is not valid for this operation",
	}

	ErrTokenReplayed = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeTokenReplayed,
		Description: "the refresh token has already been used or revoked",
	}

	ErrUnsupportedProvider = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeUnsupportedProvider,
		Description: "provider must be one of google, github, facebook",
	}

	ErrIdentityVerificationFailed = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeIdentityVerificationFailed,
		Description: "the identity provider rejected the access token",
	}

	ErrRateLimitExceeded = &APIError{
		StatusCode:  http.StatusTooManyRequests,
		Code:        ErrorCodeRateLimitExceeded,
		Description: "Too many requests. Please try again later.",
	}

	ErrUserNotFound = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeUserNotFound,
		Description: "the user no longer exists",
	}

	ErrServiceUnavailable = &APIError{
		StatusCode:  http.StatusServiceUnavailable,
		Code:        ErrorCodeServiceUnavailable,
		Description: "the service is not ready",
	}
)

// RateLimitError is returned for 429 responses.
type RateLimitError struct {
	*APIError

	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

func (e *RateLimitError) Unwrap() error { return e.APIError }

// parseErrorResponse turns a non-2xx response into a typed error.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	apiErr := &APIError{}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Code == "" {
		apiErr = &APIError{
			Code:        ErrorCodeInternalServerError,
			Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		}
	}
	apiErr.StatusCode = resp.StatusCode

	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{
			APIError:   apiErr,
			Limit:      headerInt(resp.Header, httpx.HeaderRateLimitLimit),
			Remaining:  headerInt(resp.Header, httpx.HeaderRateLimitRemaining),
			RetryAfter: time.Duration(headerInt(resp.Header, httpx.HeaderRetryAfter)) * time.Second,
		}
	}
	return apiErr
}

func headerInt(h http.Header, key string) int {
	n, _ := strconv.Atoi(h.Get(key))
	return n
}
