package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/opdesk/token-engine/internal/token"
)

type RouterConfig struct {
	Allocator *token.Allocator
	Delays    *token.DelayHandler
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	Logger    zerolog.Logger
	Env       string
	Version   string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version, cfg.Logger)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Post("/tokens", createTokenHandler(cfg.Allocator))
	r.Post("/tokens/emergency", createEmergencyTokenHandler(cfg.Allocator))
	r.Get("/tokens", listTokensHandler(cfg.Allocator))
	r.Post("/tokens/{id}/cancel", cancelTokenHandler(cfg.Allocator))
	r.Post("/tokens/{id}/no-show", noShowTokenHandler(cfg.Allocator))
	r.Post("/tokens/{id}/complete", completeTokenHandler(cfg.Allocator))

	r.Get("/doctors", listDoctorsHandler(cfg.Allocator))
	r.Get("/doctors/{id}/slots", doctorSlotsHandler(cfg.Allocator))
	r.Post("/doctors/{id}/delay", doctorDelayHandler(cfg.Delays))
	r.Post("/doctors/{id}/unavailable", doctorUnavailableHandler(cfg.Delays))

	r.Post("/slots/{id}/redistribute", redistributeSlotHandler(cfg.Delays))

	r.Get("/overview", overviewHandler(cfg.Allocator))

	return r
}
