package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	httpapi "github.com/aussiebroadwan/starter/internal/api/http"
	"github.com/aussiebroadwan/starter/internal/api/identity"
	"github.com/aussiebroadwan/starter/internal/api/service"
	"github.com/aussiebroadwan/starter/internal/api/store"
	"github.com/aussiebroadwan/starter/internal/api/store/drivers/postgres"
	"github.com/aussiebroadwan/starter/internal/api/store/drivers/sqlite"
	"github.com/aussiebroadwan/starter/pkg/cryptox"
	"github.com/aussiebroadwan/starter/pkg/denylist"
	"github.com/aussiebroadwan/starter/pkg/ratelimit"
	"github.com/aussiebroadwan/starter/pkg/slogx"
	"github.com/redis/go-redis/v9"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "0.1.0"
)

// Application encapsulates the API service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db       store.Store
	redis    *redis.Client
	sealer   *cryptox.Sealer
	limiter  ratelimit.Limiter
	denylist denylist.List

	// Services
	tokenService        *service.TokenService
	authService         *service.AuthService
	userService         *service.UserService
	housekeepingService *service.HousekeepingService

	shutdownTracing func(context.Context) error

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: cfg.ProjectName,
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	ctx := context.Background()

	shutdown, err := initTracing(ctx, cfg.Telemetry, cfg.ProjectName, BuildVersion, cfg.Env)
	if err != nil {
		return nil, err
	}
	app.shutdownTracing = shutdown

	if err := app.initDatabase(ctx); err != nil {
		return nil, err
	}
	if err := app.initRedis(ctx); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	if err := app.initSealer(); err != nil {
		_ = app.Close()
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("api service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown drains in-flight requests, then releases the backends.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down api service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.shutdownTracing(ctx); err != nil {
		app.logger.Error("error flushing traces", "error", err)
	}

	if err := app.Close(); err != nil {
		return err
	}

	app.logger.Info("api service stopped")
	return nil
}

// Handler returns the fully wired HTTP handler.
func (app *Application) Handler() http.Handler { return app.router }

// Close releases the database and Redis connections. Shutdown calls it after
// the server has drained.
func (app *Application) Close() error {
	var errs []error
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis", "error", err)
			errs = append(errs, err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// initDatabase opens the store named by DATABASE_URL and applies migrations.
func (app *Application) initDatabase(ctx context.Context) error {
	scheme, rest, ok := strings.Cut(app.cfg.DatabaseURL, "://")
	if !ok || rest == "" {
		return fmt.Errorf("invalid DATABASE_URL %q", app.cfg.DatabaseURL)
	}

	var (
		db  store.Store
		err error
	)

	switch scheme {
	case "sqlite", "sqlite3":
		db, err = sqlite.NewStore(sqliteDSN(rest))
	case "postgres", "postgresql":
		db, err = postgres.NewStore(ctx, app.cfg.DatabaseURL)
	default:
		return fmt.Errorf("unsupported DATABASE_URL scheme %q", scheme)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully", "driver", scheme)
	return nil
}

// sqliteDSN turns the path of a sqlite:// URL into a modernc DSN with WAL and
// a busy timeout. ":memory:" stays in memory.
func sqliteDSN(path string) string {
	if path == ":memory:" {
		return path
	}
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// initRedis connects when REDIS_URL is set. Without it the limiter and
// denylist stay in process.
func (app *Application) initRedis(ctx context.Context) error {
	if app.cfg.RedisURL == "" {
		app.logger.Info("redis not configured, using in-process rate limiter and denylist")
		return nil
	}

	opts, err := redis.ParseURL(app.cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	app.redis = client
	app.logger.Info("redis connected", "addr", opts.Addr)
	return nil
}

// initSealer derives the token envelope key. Outside prod a missing secret
// is replaced with a random one, which invalidates tokens on restart.
func (app *Application) initSealer() error {
	secret := app.cfg.Auth.TokenSecret
	if secret == "" {
		generated, err := cryptox.GenerateSecret(32)
		if err != nil {
			return fmt.Errorf("generate token secret: %w", err)
		}
		secret = generated
		app.logger.Warn("AUTH_TOKEN_SECRET not set, using an ephemeral secret; tokens will not survive a restart")
	}

	mode := cryptox.KeyDerivation(app.cfg.Auth.KeyDerivation)
	if mode == cryptox.DeriveLegacy {
		app.logger.Warn("legacy key derivation enabled; prefer hkdf")
	}

	key, err := cryptox.DeriveKey([]byte(secret), mode)
	if err != nil {
		return fmt.Errorf("derive token key: %w", err)
	}
	sealer, err := cryptox.NewSealer(key)
	if err != nil {
		return fmt.Errorf("token sealer: %w", err)
	}

	app.sealer = sealer
	app.logger.Info("token key ready", "derivation", mode, "fingerprint", cryptox.Fingerprint(key))
	return nil
}

// initServices initializes all business logic services.
func (app *Application) initServices() {
	rlCfg := ratelimit.Config{
		Requests: app.cfg.RateLimit.Requests,
		Window:   app.cfg.RateLimit.Window,
	}

	app.housekeepingService = service.NewHousekeepingService(app.logger, app.cfg.HousekeepingInterval)

	app.limiter = ratelimit.New(rlCfg, app.redis)
	app.denylist = denylist.New(app.redis)

	// In-process backends age out their own state.
	if sw, ok := app.limiter.(service.Sweeper); ok {
		app.housekeepingService.Register("ratelimit", sw)
	}
	if sw, ok := app.denylist.(service.Sweeper); ok {
		app.housekeepingService.Register("denylist", sw)
	}

	app.tokenService = &service.TokenService{
		Sealer:        app.sealer,
		Store:         app.db,
		Denylist:      app.denylist,
		Issuer:        app.cfg.Auth.Issuer,
		AccessTTL:     app.cfg.Auth.AccessTTL,
		RefreshTTL:    app.cfg.Auth.RefreshTTL,
		RotateRefresh: app.cfg.Auth.RotateRefresh,
	}

	app.authService = &service.AuthService{
		Store:                 app.db,
		Tokens:                app.tokenService,
		Identity:              identity.NewVerifier(app.cfg.Auth.identityOptions()...),
		RefreshProfileOnLogin: app.cfg.Auth.RefreshProfileOnLogin,
	}

	app.userService = &service.UserService{Store: app.db}
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.db, app.logger)

	router.TokenService = app.tokenService
	router.AuthService = app.authService
	router.UserService = app.userService
	router.Limiter = app.limiter
	router.CORSOrigins = app.cfg.CORSOrigins
	router.ExposeErrors = !app.cfg.IsProd()
	router.EnableSwagger = !app.cfg.IsProd()
	if app.redis != nil {
		router.Redis = app.redis
	}
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
