package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/starter/internal/api/app"
	"github.com/aussiebroadwan/starter/pkg/authsdk"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

/*
 * End-to-end tests run the whole API in process against real Postgres and
 * Redis containers, with a stub standing in for the OAuth providers.
 * Set GO_TEST_INTEGRATION=1 to enable.
 */

type stack struct {
	BaseURL string
	Client  *authsdk.SDKClient
}

func requireIntegration(t *testing.T) {
	t.Helper()
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration tests are disabled (set GO_TEST_INTEGRATION=1)")
	}
}

func startContainer(t *testing.T, req tc.ContainerRequest, port nat.Port) string {
	t.Helper()
	ctx := context.Background()

	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := c.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := c.Host(ctx)
	require.NoError(t, err)
	mapped, err := c.MappedPort(ctx, port)
	require.NoError(t, err)

	return fmt.Sprintf("%s:%s", host, mapped.Port())
}

func startPostgres(t *testing.T) string {
	addr := startContainer(t, tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "starter",
			"POSTGRES_PASSWORD": "starter",
			"POSTGRES_DB":       "starter",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}, "5432/tcp")
	return fmt.Sprintf("postgres://starter:starter@%s/starter?sslmode=disable", addr)
}

func startRedis(t *testing.T) string {
	addr := startContainer(t, tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(60 * time.Second),
	}, "6379/tcp")
	return "redis://" + addr + "/0"
}

// startProviderStub answers like Google's userinfo endpoint for tokens of the
// form "good:<email>" and rejects everything else.
func startProviderStub(t *testing.T) string {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		email, ok := strings.CutPrefix(token, "good:")
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sub":            "g-" + email,
			"email":          email,
			"name":           "E2E User",
			"picture":        "https://example.com/avatar.png",
			"email_verified": true,
		})
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

// setupStack boots the API against fresh containers. rateLimit bounds
// requests per minute per client and path.
func setupStack(t *testing.T, rateLimit int) *stack {
	t.Helper()
	requireIntegration(t)

	cfg := app.Config{
		ProjectName:          "starter-e2e",
		Env:                  "staging",
		LogLevel:             "error",
		LogFormat:            "json",
		Port:                 8000,
		ShutdownGracePeriod:  5 * time.Second,
		HousekeepingInterval: time.Minute,
		DatabaseURL:          startPostgres(t),
		RedisURL:             startRedis(t),
		CORSOrigins:          []string{"*"},
		Auth: app.AuthConfig{
			TokenSecret:       "e2e-secret-e2e-secret-e2e-secret",
			KeyDerivation:     "hkdf",
			Issuer:            "starter-e2e",
			AccessTTL:         time.Hour,
			RefreshTTL:        24 * time.Hour,
			RotateRefresh:     true,
			IdentityTimeout:   5 * time.Second,
			GoogleUserinfoURL: startProviderStub(t),
		},
		RateLimit: app.RateLimitConfig{Requests: rateLimit, Window: time.Minute},
	}
	require.NoError(t, cfg.Validate())

	application, err := app.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close() })

	srv := httptest.NewServer(application.Handler())
	t.Cleanup(srv.Close)

	return &stack{BaseURL: srv.URL, Client: authsdk.NewSDKClient(srv.URL)}
}

func login(t *testing.T, s *stack, email string) *authsdk.Session {
	t.Helper()

	session, err := s.Client.Login(t.Context(), authsdk.LoginRequest{
		Provider:    "google",
		AccessToken: "good:" + email,
	})
	require.NoError(t, err)
	return session
}
