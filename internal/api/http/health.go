package http

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/aussiebroadwan/starter/internal/api/store"
	"github.com/aussiebroadwan/starter/pkg/authsdk"
	"github.com/aussiebroadwan/starter/pkg/httpx"
	"github.com/redis/go-redis/v9"
)

const probeTimeout = 2 * time.Second

// HealthHandler godoc
//
//	@Summary		Detailed health
//	@Description	Probes the database and, when configured, Redis. Always answers 200; the
//	@Description	status field is healthy, degraded or unhealthy.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	authsdk.HealthResponse
//	@Router			/health [get]
func HealthHandler(version string, st store.Store, rdb redis.UniversalClient) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		services := map[string]authsdk.ServiceHealth{
			"database": probe(ctx, st.Ping),
		}
		if rdb != nil {
			services["redis"] = probe(ctx, func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			})
		}

		httpx.WriteJSON(w, http.StatusOK, authsdk.HealthResponse{
			Status:   overallStatus(services),
			Version:  version,
			Services: services,
		})
	}
}

// LiveHandler godoc
//
//	@Summary	Liveness probe
//	@Tags		Health
//	@Produce	json
//	@Success	200	{object}	authsdk.StatusResponse
//	@Router		/health/live [get]
func LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, authsdk.StatusResponse{Status: "ok"})
	}
}

// ReadyHandler godoc
//
//	@Summary	Readiness probe
//	@Tags		Health
//	@Produce	json
//	@Success	200	{object}	authsdk.StatusResponse
//	@Failure	503	{object}	authsdk.APIError	"database not ready"
//	@Router		/health/ready [get]
func ReadyHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s := probe(r.Context(), st.Ping); s.Status != authsdk.StatusHealthy {
			authsdk.ErrServiceUnavailable.WithDescription("database not ready").WriteError(w)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, authsdk.StatusResponse{Status: "ready"})
	}
}

func probe(ctx context.Context, ping func(context.Context) error) authsdk.ServiceHealth {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	start := time.Now()
	err := ping(ctx)
	latency := math.Round(float64(time.Since(start).Microseconds())/10) / 100

	if err != nil {
		return authsdk.ServiceHealth{Status: authsdk.StatusUnhealthy, LatencyMS: latency, Error: err.Error()}
	}
	return authsdk.ServiceHealth{Status: authsdk.StatusHealthy, LatencyMS: latency}
}

func overallStatus(services map[string]authsdk.ServiceHealth) string {
	healthy, unhealthy := 0, 0
	for _, s := range services {
		if s.Status == authsdk.StatusHealthy {
			healthy++
		} else {
			unhealthy++
		}
	}
	switch {
	case unhealthy == 0:
		return authsdk.StatusHealthy
	case healthy == 0:
		return authsdk.StatusUnhealthy
	default:
		return authsdk.StatusDegraded
	}
}
