package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// HealthChecker reports process liveness and backing-store readiness. Either
// backend may be nil when the server runs with in-memory storage or the
// local lock manager.
type HealthChecker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
}

func NewHealthChecker(pool *pgxpool.Pool, rdb *redis.Client) *HealthChecker {
	return &HealthChecker{pool: pool, rdb: rdb}
}

func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{
		"postgres": "disabled",
		"redis":    "disabled",
	}
	healthy := true

	if h.pool != nil {
		if err := h.pool.Ping(ctx); err != nil {
			checks["postgres"] = "unreachable: " + err.Error()
			healthy = false
		} else {
			checks["postgres"] = "ok"
		}
	}
	if h.rdb != nil {
		if err := h.rdb.Ping(ctx).Err(); err != nil {
			checks["redis"] = "unreachable: " + err.Error()
			healthy = false
		} else {
			checks["redis"] = "ok"
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, checks)
}
