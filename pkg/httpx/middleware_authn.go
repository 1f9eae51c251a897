package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/starter/pkg/slogx"
)

// Authenticator resolves a bearer credential to its subject.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (subject string, err error)
}

// ErrorWriter renders an authentication failure. When nil, AuthnMiddleware
// answers with a bare 401.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// AuthnMiddleware requires an "Authorization: Bearer" header accepted by a.
func AuthnMiddleware(a Authenticator, onError ErrorWriter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			raw, ok := BearerToken(r)
			if !ok {
				writeBearerError(w, "missing bearer token")
				if onError != nil {
					onError(w, r, ErrMissingBearer)
				} else {
					w.WriteHeader(http.StatusUnauthorized)
				}
				return
			}

			sub, err := a.Authenticate(ctx, raw)
			if err != nil {
				log.Warn("bearer token rejected", "err", err)
				writeBearerError(w, err.Error())
				if onError != nil {
					onError(w, r, err)
				} else {
					w.WriteHeader(http.StatusUnauthorized)
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSubject(ctx, sub)))
		})
	}
}

// BearerToken extracts the credential from an Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(authz, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RFC 6750 challenge header; the body is left to the caller.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
}
