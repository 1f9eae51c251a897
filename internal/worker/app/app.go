package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	workerhttp "github.com/aussiebroadwan/starter/internal/worker/http"
	"github.com/aussiebroadwan/starter/internal/worker/tasks"
	"github.com/aussiebroadwan/starter/pkg/retry"
	"github.com/aussiebroadwan/starter/pkg/slogx"
)

const BuildVersion = "0.1.0"

// Application is the worker service: an HTTP intake in front of a task pool.
type Application struct {
	cfg    Config
	logger *slog.Logger

	pool   *tasks.Pool
	server *http.Server
}

func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

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

	app.pool = tasks.NewPool(tasks.Config{
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
		Retry: retry.Policy{
			MaxAttempts: cfg.RetryAttempts,
			MinWait:     cfg.RetryMinWait,
			MaxWait:     cfg.RetryMaxWait,
		},
	}, app.logger)
	tasks.RegisterDefaults(app.pool)

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           workerhttp.NewRouter(BuildVersion, app.pool, app.logger),
		ReadHeaderTimeout: 3 * time.Second,
	}

	return app, nil
}

// Run starts the pool and server and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.pool.Start()

	app.logger.Info("worker starting", "port", app.cfg.Port, "version", BuildVersion)

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
		return app.Shutdown()
	}

	return nil
}

// Shutdown stops intake first, then drains queued tasks within the grace
// period.
func (app *Application) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		_ = app.server.Close()
	}

	if err := app.pool.Close(ctx); err != nil {
		return fmt.Errorf("drain task pool: %w", err)
	}

	app.logger.Info("worker stopped")
	return nil
}
