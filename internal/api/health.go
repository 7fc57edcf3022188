package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const probeTimeout = 1 * time.Second

// probe checks one backing dependency. A critical probe failing takes
// readiness to error; a non-critical one only degrades it.
type probe struct {
	name     string
	critical bool
	ping     func(ctx context.Context) error
}

type HealthHandler struct {
	probes  []probe
	env     string
	version string
	log     zerolog.Logger
}

func NewHealthHandler(pool *pgxpool.Pool, rdb *redis.Client, env, version string, log zerolog.Logger) *HealthHandler {
	return &HealthHandler{
		probes: []probe{
			// Postgres holds all engine state; without it nothing works.
			// Redis only guards locking, so the api-server can limp along.
			{name: "postgres", critical: true, ping: pool.Ping},
			{name: "redis", ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
		},
		env:     env,
		version: version,
		log:     log,
	}
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Env     string `json:"env,omitempty"`
}

type ReadinessResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Env          string            `json:"env,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{
		Status:  "ok",
		Version: h.version,
		Env:     h.env,
	})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	deps := make(map[string]string, len(h.probes))
	status := "ok"

	for _, p := range h.probes {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := p.ping(ctx)
		cancel()
		if err == nil {
			deps[p.name] = "ok"
			continue
		}
		deps[p.name] = "down"
		h.log.Warn().Err(err).Str("dependency", p.name).Msg("readiness probe failed")
		if p.critical || status != "ok" {
			status = "error"
		} else {
			status = "degraded"
		}
	}

	httpStatus := http.StatusOK
	if status == "error" {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, ReadinessResponse{
		Status:       status,
		Version:      h.version,
		Env:          h.env,
		Dependencies: deps,
	})
}
