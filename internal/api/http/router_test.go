package http_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/starter/internal/api/domain"
	httpapi "github.com/aussiebroadwan/starter/internal/api/http"
	"github.com/aussiebroadwan/starter/internal/api/identity"
	"github.com/aussiebroadwan/starter/internal/api/service"
	"github.com/aussiebroadwan/starter/internal/api/store/drivers/sqlite"
	"github.com/aussiebroadwan/starter/pkg/authsdk"
	"github.com/aussiebroadwan/starter/pkg/cryptox"
	"github.com/aussiebroadwan/starter/pkg/denylist"
	"github.com/aussiebroadwan/starter/pkg/ratelimit"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	router *httpapi.Router
	store  *sqlite.Store
}

// newFixture wires the router against an in-memory store and a fake Google
// userinfo endpoint that accepts tokens of the form "good:<email>".
func newFixture(t *testing.T, configure ...func(*httpapi.Router)) *fixture {
	t.Helper()
	return newFixtureWithLogger(t, slog.New(slog.NewTextHandler(io.Discard, nil)), configure...)
}

func newFixtureWithLogger(t *testing.T, logger *slog.Logger, configure ...func(*httpapi.Router)) *fixture {
	t.Helper()

	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		email, ok := strings.CutPrefix(token, "good:")
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sub":            "g-" + email,
			"email":          email,
			"name":           "Test User",
			"email_verified": true,
		})
	}))
	t.Cleanup(provider.Close)

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	key, err := cryptox.DeriveKey([]byte("router-test-secret"), cryptox.DeriveHKDF)
	require.NoError(t, err)
	sealer, err := cryptox.NewSealer(key)
	require.NoError(t, err)

	tokens := &service.TokenService{
		Sealer:        sealer,
		Store:         st,
		Denylist:      denylist.NewMemory(),
		Issuer:        "starter-test",
		AccessTTL:     service.DefaultAccessTTL,
		RefreshTTL:    service.DefaultRefreshTTL,
		RotateRefresh: true,
	}

	router := httpapi.NewRouter("test", st, logger)
	router.TokenService = tokens
	router.AuthService = &service.AuthService{
		Store:    st,
		Tokens:   tokens,
		Identity: identity.NewVerifier(identity.WithEndpoint(domain.ProviderGoogle, provider.URL)),
	}
	router.UserService = &service.UserService{Store: st}
	router.Limiter = ratelimit.NewMemory(ratelimit.Config{Requests: 1000, Window: time.Minute})

	for _, fn := range configure {
		fn(router)
	}
	router.ApplyRoutes()

	return &fixture{router: router, store: st}
}

func (f *fixture) do(t *testing.T, method, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()

	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		buf, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(buf)
	}

	req := httptest.NewRequest(method, path, rdr)
	req.RemoteAddr = "192.0.2.1:1234"
	if rdr != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) login(t *testing.T, email string) authsdk.TokenResponse {
	t.Helper()

	rec := f.do(t, http.MethodPost, "/v1/auth/login", authsdk.LoginRequest{
		Provider:    "google",
		AccessToken: "good:" + email,
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out authsdk.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) authsdk.APIError {
	t.Helper()
	var e authsdk.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e), rec.Body.String())
	return e
}

func TestLoginAndMe(t *testing.T) {
	f := newFixture(t)

	pair := f.login(t, "Alice@Example.com")
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, "bearer", pair.TokenType)

	rec := f.do(t, http.MethodGet, "/v1/users/me", nil, pair.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)

	var me authsdk.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	require.Equal(t, "alice@example.com", me.Email)
	require.Equal(t, "Test User", me.Name)
	require.True(t, me.EmailVerified)
}

func TestLoginAliasRoute(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/login", authsdk.LoginRequest{
		Provider:    "google",
		AccessToken: "good:bob@example.com",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"malformed body", "{not json", http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest},
		{"missing token", authsdk.LoginRequest{Provider: "google"}, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest},
		{"unsupported provider", authsdk.LoginRequest{Provider: "twitter", AccessToken: "x"}, http.StatusBadRequest, authsdk.ErrorCodeUnsupportedProvider},
		{"rejected by provider", authsdk.LoginRequest{Provider: "google", AccessToken: "bad"}, http.StatusUnauthorized, authsdk.ErrorCodeIdentityVerificationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/v1/auth/login", tt.body, "")
			require.Equal(t, tt.status, rec.Code)
			require.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}
}

func TestRefreshRotation(t *testing.T) {
	f := newFixture(t)
	pair := f.login(t, "carol@example.com")

	rec := f.do(t, http.MethodPost, "/v1/auth/refresh", authsdk.RefreshRequest{RefreshToken: pair.RefreshToken}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var next authsdk.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &next))
	require.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	rec = f.do(t, http.MethodPost, "/v1/auth/refresh", authsdk.RefreshRequest{RefreshToken: pair.RefreshToken}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, authsdk.ErrorCodeTokenReplayed, decodeError(t, rec).Code)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	f := newFixture(t)
	pair := f.login(t, "dave@example.com")

	rec := f.do(t, http.MethodPost, "/v1/auth/refresh", authsdk.RefreshRequest{RefreshToken: pair.AccessToken}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, authsdk.ErrorCodeInvalidTokenKind, decodeError(t, rec).Code)
}

func TestRefreshMissingToken(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/auth/refresh", authsdk.RefreshRequest{}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, authsdk.ErrorCodeInvalidRequest, decodeError(t, rec).Code)
}

func TestLogout(t *testing.T) {
	f := newFixture(t)

	t.Run("empty body", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/auth/logout", nil, "")
		require.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("garbage token is ignored", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/auth/logout", authsdk.RefreshRequest{RefreshToken: "garbage"}, "")
		require.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("revokes refresh token", func(t *testing.T) {
		pair := f.login(t, "erin@example.com")

		rec := f.do(t, http.MethodPost, "/v1/auth/logout", authsdk.RefreshRequest{RefreshToken: pair.RefreshToken}, "")
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = f.do(t, http.MethodPost, "/v1/auth/refresh", authsdk.RefreshRequest{RefreshToken: pair.RefreshToken}, "")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, authsdk.ErrorCodeTokenReplayed, decodeError(t, rec).Code)
	})
}

func TestMeRequiresBearer(t *testing.T) {
	f := newFixture(t)

	t.Run("missing", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/v1/users/me", nil, "")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
		require.Equal(t, authsdk.ErrorCodeInvalidToken, decodeError(t, rec).Code)
	})

	t.Run("tampered", func(t *testing.T) {
		pair := f.login(t, "frank@example.com")
		tampered := pair.AccessToken[:len(pair.AccessToken)-2] + "AA"
		if tampered == pair.AccessToken {
			tampered = pair.AccessToken[:len(pair.AccessToken)-2] + "BB"
		}

		rec := f.do(t, http.MethodGet, "/v1/users/me", nil, tampered)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, authsdk.ErrorCodeInvalidToken, decodeError(t, rec).Code)
	})

	t.Run("refresh token as bearer", func(t *testing.T) {
		pair := f.login(t, "grace@example.com")

		rec := f.do(t, http.MethodGet, "/v1/users/me", nil, pair.RefreshToken)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, authsdk.ErrorCodeInvalidTokenKind, decodeError(t, rec).Code)
	})
}

func TestListUsers(t *testing.T) {
	f := newFixture(t)

	var pair authsdk.TokenResponse
	for i := range 3 {
		pair = f.login(t, fmt.Sprintf("user%d@example.com", i))
	}

	rec := f.do(t, http.MethodGet, "/v1/users?page=1&limit=2", nil, pair.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)

	var page authsdk.UserPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Data, 2)
	require.Equal(t, 3, page.Meta.Total)
	require.Equal(t, 2, page.Meta.TotalPages)
	require.True(t, page.Meta.HasNext)
	require.False(t, page.Meta.HasPrev)

	rec = f.do(t, http.MethodGet, "/v1/users?limit=0", nil, pair.AccessToken)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, authsdk.ErrorCodeInvalidRequest, decodeError(t, rec).Code)
}

func TestRateLimiting(t *testing.T) {
	f := newFixture(t, func(r *httpapi.Router) {
		r.Limiter = ratelimit.NewMemory(ratelimit.Config{Requests: 2, Window: time.Minute})
	})

	for i := range 2 {
		rec := f.do(t, http.MethodPost, "/v1/auth/logout", nil, "")
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
		require.Equal(t, fmt.Sprint(1-i), rec.Header().Get("X-RateLimit-Remaining"))
	}

	rec := f.do(t, http.MethodPost, "/v1/auth/logout", nil, "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, rec.Header().Get("X-RateLimit-Reset"), rec.Header().Get("Retry-After"))
	require.Equal(t, authsdk.ErrorCodeRateLimitExceeded, decodeError(t, rec).Code)

	// Health probes are exempt.
	for range 5 {
		rec = f.do(t, http.MethodGet, "/health/live", nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var health authsdk.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	require.Equal(t, authsdk.StatusHealthy, health.Status)
	require.Equal(t, "test", health.Version)
	require.Contains(t, health.Services, "database")
	require.NotContains(t, health.Services, "redis")

	rec = f.do(t, http.MethodGet, "/health/live", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/health/ready", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
}

func TestHealthWithDatabaseDown(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Close())

	rec := f.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var health authsdk.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	require.Equal(t, authsdk.StatusUnhealthy, health.Status)
	require.Equal(t, authsdk.StatusUnhealthy, health.Services["database"].Status)
	require.NotEmpty(t, health.Services["database"].Error)

	rec = f.do(t, http.MethodGet, "/health/ready", nil, "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, authsdk.ErrorCodeServiceUnavailable, decodeError(t, rec).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.login(t, "metrics@example.com")

	rec := f.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "starter_tokens_issued_total")
}

func TestRequestIDEchoed(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health/live", nil, "")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestPanicIsLoggedWithRequestContext(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	f := newFixtureWithLogger(t, logger, func(r *httpapi.Router) {
		r.Mux.HandleFunc("GET /boom", func(http.ResponseWriter, *http.Request) {
			panic("kaboom")
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set("X-Request-ID", "req-boom-1")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "internal_server_error", body["error"])
	require.Equal(t, "req-boom-1", body["request_id"])

	entries := map[string]map[string]any{}
	for _, line := range bytes.Split(bytes.TrimSpace(logs.Bytes()), []byte("\n")) {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(line, &entry))
		entries[entry["msg"].(string)] = entry
	}

	panicLog, ok := entries["panic recovered"]
	require.True(t, ok, "panic must be logged")
	require.Equal(t, "req-boom-1", panicLog["req_id"])
	require.Equal(t, http.MethodGet, panicLog["method"])
	require.Equal(t, "/boom", panicLog["path"])

	access, ok := entries["http_request"]
	require.True(t, ok, "access log must still be written")
	require.EqualValues(t, http.StatusInternalServerError, access["status"])
}

func TestSwaggerOnlyWhenEnabled(t *testing.T) {
	off := newFixture(t)
	rec := off.do(t, http.MethodGet, "/swagger/index.html", nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	on := newFixture(t, func(r *httpapi.Router) { r.EnableSwagger = true })
	rec = on.do(t, http.MethodGet, "/swagger/doc.json", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "/v1/auth/login")
}
