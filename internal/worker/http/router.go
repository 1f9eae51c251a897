package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/starter/internal/worker/tasks"
	"github.com/aussiebroadwan/starter/pkg/authsdk"
	"github.com/aussiebroadwan/starter/pkg/httpx"
	"github.com/aussiebroadwan/starter/pkg/idx"
	"github.com/aussiebroadwan/starter/pkg/metricsx"
	"github.com/aussiebroadwan/starter/pkg/slogx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Submitter accepts tasks for background processing.
type Submitter interface {
	Submit(t tasks.Task) error
}

// TaskRequest is the body of POST /tasks/process.
type TaskRequest struct {
	TaskType string         `json:"task_type"`
	Data     map[string]any `json:"data"`
}

// TaskAccepted is returned once a task is queued.
type TaskAccepted struct {
	Status string `json:"status"`
	TaskID string `json:"task_id"`
}

// WorkerHealth is returned by GET /health.
type WorkerHealth struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// NewRouter builds the worker's HTTP surface.
func NewRouter(version string, pool Submitter, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer,
		slogx.HTTPMiddleware(logger),
	)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, WorkerHealth{Status: authsdk.StatusHealthy, Version: version})
	})
	r.Handle("/metrics", metricsx.Handler())

	r.Route("/tasks", func(r chi.Router) {
		r.Post("/process", processTask(pool))
	})

	return r
}

func processTask(pool Submitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := slogx.FromContext(r.Context())

		var req TaskRequest
		if err := httpx.DecodeJSON(w, r, &req); err != nil {
			authsdk.ErrInvalidRequest.WriteError(w)
			return
		}
		if strings.TrimSpace(req.TaskType) == "" || req.Data == nil {
			authsdk.ErrInvalidRequest.WithDescription("task_type and data are required").WriteError(w)
			return
		}

		task := tasks.Task{ID: idx.New().String(), Type: req.TaskType, Data: req.Data}
		if err := pool.Submit(task); err != nil {
			log.Warn("task rejected", "task_type", req.TaskType, "err", err)
			if errors.Is(err, tasks.ErrQueueFull) {
				w.Header().Set(httpx.HeaderRetryAfter, "1")
			}
			authsdk.ErrServiceUnavailable.WithDescription(err.Error()).WriteError(w)
			return
		}

		log.Info("task accepted", "task_id", task.ID, "task_type", task.Type)
		httpx.WriteJSON(w, http.StatusAccepted, TaskAccepted{Status: "accepted", TaskID: task.ID})
	}
}
