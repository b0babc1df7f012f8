package api

import (
	"log/slog"
	"net/http"

	"github.com/fushimori/lakomka/internal/api/middleware"

	"github.com/go-chi/chi/v5"
	ChiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// NewGatewayRouter builds the public router. A nil redis client disables
// idempotency keys on registration.
func NewGatewayRouter(h *GatewayHandlers, redisClient *redis.Client, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(ChiMiddleware.RequestID)
	r.Use(ChiMiddleware.Logger)
	r.Use(ChiMiddleware.Recoverer)

	r.Get("/health", health)

	r.With(middleware.Idempotency(redisClient, logger)).Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.Get("/logout", h.Logout)
	r.Get("/profile", h.Profile)

	r.Handle("/metrics", promhttp.Handler())

	return r
}

func NewAuthRouter(h *AuthHandlers) http.Handler {
	r := chi.NewRouter()

	r.Use(ChiMiddleware.RequestID)
	r.Use(ChiMiddleware.Logger)
	r.Use(ChiMiddleware.Recoverer)

	r.Get("/", h.Index)
	r.Get("/health", h.Health)
	r.Get("/get_user_id", h.GetUserID)
	r.Get("/role", h.GetRole)

	r.Handle("/metrics", promhttp.Handler())

	return r
}

func health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
