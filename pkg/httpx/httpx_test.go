package httpx_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aussiebroadwan/starter/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) httpx.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := httpx.Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), mw("outer"), mw("inner"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}

	t.Run("valid body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"}`))
		require.NoError(t, httpx.DecodeJSON(httptest.NewRecorder(), req, &dst))
		require.Equal(t, "a", dst.Name)
	})

	t.Run("empty body is EOF", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
		require.ErrorIs(t, httpx.DecodeJSON(httptest.NewRecorder(), req, &dst), io.EOF)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":`))
		err := httpx.DecodeJSON(httptest.NewRecorder(), req, &dst)
		require.Error(t, err)
		require.NotErrorIs(t, err, io.EOF)
	})

	t.Run("trailing data", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"} {}`))
		require.Error(t, httpx.DecodeJSON(httptest.NewRecorder(), req, &dst))
	})
}

type stubAuthenticator struct {
	sub string
	err error
}

func (s stubAuthenticator) Authenticate(_ context.Context, token string) (string, error) {
	if token != "good" {
		return "", s.err
	}
	return s.sub, nil
}

func TestAuthnMiddleware(t *testing.T) {
	errBad := errors.New("invalid_token")
	var gotErr error
	onError := func(w http.ResponseWriter, r *http.Request, err error) {
		gotErr = err
		w.WriteHeader(http.StatusUnauthorized)
	}

	h := httpx.AuthnMiddleware(stubAuthenticator{sub: "user-1", err: errBad}, onError)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sub, ok := httpx.SubjectFromContext(r.Context())
			require.True(t, ok)
			_, _ = io.WriteString(w, sub)
		}))

	t.Run("missing header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.ErrorIs(t, gotErr, httpx.ErrMissingBearer)
		require.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
	})

	t.Run("rejected token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.ErrorIs(t, gotErr, errBad)
	})

	t.Run("accepted token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "bearer good")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "user-1", rec.Body.String())
	})
}

func TestRecover(t *testing.T) {
	panicky := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-ID", "req-123")
		panic("boom")
	})

	t.Run("exposes message outside prod", func(t *testing.T) {
		rec := httptest.NewRecorder()
		httpx.Recover(true)(panicky).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		var body httpx.InternalErrorBody
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		require.Equal(t, "internal_server_error", body.Error)
		require.Equal(t, "boom", body.Message)
		require.Equal(t, "req-123", body.RequestID)
	})

	t.Run("hides message in prod", func(t *testing.T) {
		rec := httptest.NewRecorder()
		httpx.Recover(false)(panicky).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		var body httpx.InternalErrorBody
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		require.NotContains(t, body.Message, "boom")
	})
}

func TestCORS(t *testing.T) {
	h := httpx.CORS([]string{"https://app.example.com"})(okHandler())

	t.Run("preflight from allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/v1/auth/login", nil)
		req.Header.Set("Origin", "https://app.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
		require.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
	})

	t.Run("disallowed origin gets no grant", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}
