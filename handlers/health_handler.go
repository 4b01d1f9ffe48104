package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/helpdesk/ticket-gateway/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const readinessTimeout = 5 * time.Second

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
	statusDegraded  = "degraded"
)

// HealthResponse is the body of /healthz and /readyz
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
	Upstreams map[string]string `json:"upstreams,omitempty"`
}

// RedisPinger is the subset of the redis client used for readiness
type RedisPinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// UpstreamChecker probes the proxied services
type UpstreamChecker interface {
	CheckHealth(ctx context.Context) map[string]error
}

// dependencyCheck is one required readiness probe
type dependencyCheck struct {
	name  string
	probe func(ctx context.Context) error
}

type HealthHandler struct {
	checks    []dependencyCheck
	upstreams UpstreamChecker
	logger    *zap.Logger
}

// NewHealthHandler builds the probes for whatever is configured. Any
// dependency may be nil; the database entry is always reported.
func NewHealthHandler(db *sql.DB, redisClient RedisPinger, upstreams UpstreamChecker, logger *zap.Logger) *HealthHandler {
	checks := []dependencyCheck{{name: "database", probe: databaseProbe(db)}}
	if redisClient != nil {
		checks = append(checks, dependencyCheck{
			name:  "redis",
			probe: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}
	return &HealthHandler{checks: checks, upstreams: upstreams, logger: logger}
}

// databaseProbe pings and runs a trivial query. A nil pool always passes.
func databaseProbe(db *sql.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if db == nil {
			return nil
		}
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		var one int
		return db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
	}
}

func healthTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// HandleHealth handles GET /healthz. It only reports that the process serves.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, HealthResponse{Status: statusHealthy, Timestamp: healthTimestamp()})
}

// HandleReadiness handles GET /readyz. A failing dependency check fails
// readiness; a failing upstream only marks the gateway degraded.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:    statusHealthy,
		Timestamp: healthTimestamp(),
		Checks:    make(map[string]string, len(h.checks)),
	}
	code := http.StatusOK

	for _, c := range h.checks {
		if err := c.probe(ctx); err != nil {
			h.logger.Warn("readiness check failed", zap.String("check", c.name), zap.Error(err))
			resp.Checks[c.name] = statusUnhealthy
			resp.Status = statusUnhealthy
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[c.name] = statusHealthy
	}

	var degraded bool
	resp.Upstreams, degraded = h.upstreamStatuses(ctx)
	if degraded && resp.Status == statusHealthy {
		resp.Status = statusDegraded
	}

	if err := utils.WriteJSON(w, code, utils.SuccessResponse{Data: resp}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

func (h *HealthHandler) upstreamStatuses(ctx context.Context) (map[string]string, bool) {
	if h.upstreams == nil {
		return nil, false
	}
	results := h.upstreams.CheckHealth(ctx)
	statuses := make(map[string]string, len(results))
	degraded := false
	for name, err := range results {
		if err != nil {
			h.logger.Warn("upstream health check failed",
				zap.String("service", name),
				zap.Error(err))
			statuses[name] = statusUnhealthy
			degraded = true
			continue
		}
		statuses[name] = statusHealthy
	}
	return statuses, degraded
}
