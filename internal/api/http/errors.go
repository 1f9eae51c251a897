package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/starter/internal/api/service"
	"github.com/aussiebroadwan/starter/pkg/authsdk"
	"github.com/aussiebroadwan/starter/pkg/httpx"
	"github.com/aussiebroadwan/starter/pkg/slogx"
)

// ErrorWriter renders service errors as API responses. Anything it cannot
// map is logged and answered with a 500; Expose controls whether the real
// message reaches the client.
type ErrorWriter struct {
	Expose bool
}

func (e *ErrorWriter) Write(w http.ResponseWriter, r *http.Request, err error) {
	if apiErr := apiError(err); apiErr != nil {
		apiErr.WriteError(w)
		return
	}

	slogx.FromContext(r.Context()).Error("unhandled error", "err", err)
	httpx.InternalError(w, r, err, e.Expose)
}

func apiError(err error) *authsdk.APIError {
	switch {
	case errors.Is(err, httpx.ErrMissingBearer):
		return authsdk.ErrInvalidToken.WithDescription("missing bearer token")
	case errors.Is(err, service.ErrAuthentication):
		return authsdk.ErrInvalidToken
	case errors.Is(err, service.ErrTokenExpired):
		return authsdk.ErrTokenExpired
	case errors.Is(err, service.ErrTokenKindMismatch):
		return authsdk.ErrInvalidTokenKind
	case errors.Is(err, service.ErrTokenReplayed):
		return authsdk.ErrTokenReplayed
	case errors.Is(err, service.ErrUnsupportedProvider):
		return authsdk.ErrUnsupportedProvider
	case errors.Is(err, service.ErrIdentityVerificationFailed):
		return authsdk.ErrIdentityVerificationFailed
	case errors.Is(err, service.ErrRateLimitExceeded):
		return authsdk.ErrRateLimitExceeded
	case errors.Is(err, service.ErrUserNotFound):
		return authsdk.ErrUserNotFound
	case errors.Is(err, service.ErrInvalidRequest):
		return authsdk.ErrInvalidRequest.WithDescription(
			strings.TrimPrefix(err.Error(), service.ErrInvalidRequest.Error()+": "),
		)
	}
	return nil
}
