package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/starter/internal/api/service"
	"github.com/aussiebroadwan/starter/internal/api/store"
	"github.com/aussiebroadwan/starter/pkg/httpx"
	"github.com/aussiebroadwan/starter/pkg/metricsx"
	"github.com/aussiebroadwan/starter/pkg/ratelimit"
	"github.com/aussiebroadwan/starter/pkg/slogx"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	_ "github.com/aussiebroadwan/starter/api/docs" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux     *http.ServeMux
	handler http.Handler

	buildVersion string
	logger       *slog.Logger
	store        store.Store

	TokenService *service.TokenService
	AuthService  *service.AuthService
	UserService  *service.UserService

	// Limiter gates every route except the health probes and /metrics. Nil
	// disables admission control.
	Limiter ratelimit.Limiter

	// Redis is optional and only reported on by /health.
	Redis redis.UniversalClient

	CORSOrigins   []string
	ExposeErrors  bool
	EnableSwagger bool
}

func NewRouter(buildVersion string, st store.Store, logger *slog.Logger) *Router {
	return &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		store:        st,
		logger:       logger,
	}
}

// ApplyRoutes registers every route and freezes the middleware chain. Set the
// exported fields first.
func (r *Router) ApplyRoutes() {
	errs := &ErrorWriter{Expose: r.ExposeErrors}

	r.registerAuth(errs)
	r.registerUsers(errs)
	r.registerSystem()

	if r.EnableSwagger {
		r.Mux.Handle("GET /swagger/", httpSwagger.Handler())
	}

	middlewares := []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.Recover(r.ExposeErrors),
		httpx.CORS(r.CORSOrigins),
		metricsx.HTTPMiddleware,
	}
	if r.Limiter != nil {
		middlewares = append(middlewares,
			httpx.RateLimitMiddleware(r.Limiter, httpx.DefaultKeyExtractor, "/health", "/metrics"),
		)
	}

	r.handler = otelhttp.NewHandler(
		httpx.Chain(r.Mux, middlewares...),
		"api",
		otelhttp.WithFilter(func(req *http.Request) bool {
			return req.URL.Path != "/metrics" && !isHealthPath(req.URL.Path)
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
			return req.Method + " " + req.URL.Path
		}),
	)
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Starter API
//	@version		0.1.0
//	@description	Authentication, user records and health checks. Clients log in with an OAuth
//	@description	provider access token and receive encrypted bearer tokens.
//
//	@contact.name	AussieBroadWAN Team
//	@contact.url	https://github.com/aussiebroadwan/starter
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host			localhost:8000
//	@BasePath		/
//
//	@schemes		http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Encrypted access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

func (r *Router) registerAuth(errs *ErrorWriter) {
	h := &AuthHandler{AuthService: r.AuthService, Errors: errs}

	for _, prefix := range []string{"/v1/auth", ""} {
		r.Mux.HandleFunc("POST "+prefix+"/login", h.HandleLogin)
		r.Mux.HandleFunc("POST "+prefix+"/refresh", h.HandleRefresh)
		r.Mux.HandleFunc("POST "+prefix+"/logout", h.HandleLogout)
	}
}

func (r *Router) registerUsers(errs *ErrorWriter) {
	h := &UsersHandler{UserService: r.UserService, Errors: errs}
	authn := httpx.AuthnMiddleware(r.TokenService, errs.Write)

	r.Mux.Handle("GET /v1/users/me", httpx.Chain(http.HandlerFunc(h.HandleMe), authn))
	r.Mux.Handle("GET /v1/users", httpx.Chain(http.HandlerFunc(h.HandleList), authn))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /health", HealthHandler(r.buildVersion, r.store, r.Redis))
	r.Mux.Handle("GET /health/live", LiveHandler())
	r.Mux.Handle("GET /health/ready", ReadyHandler(r.store))
	r.Mux.Handle("GET /metrics", metricsx.Handler())
}

func isHealthPath(p string) bool {
	return p == "/health" || strings.HasPrefix(p, "/health/")
}
