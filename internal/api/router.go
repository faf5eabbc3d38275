// Package api wires the HTTP surface of a relay instance: the REST
// request/response endpoints, the websocket gateway mount, and the
// operational endpoints.
package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/bhaavyasura7/E2ee-chat/internal/api/middleware"
	"github.com/bhaavyasura7/E2ee-chat/internal/gateway"
	"github.com/bhaavyasura7/E2ee-chat/internal/handlers"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, h *handlers.Handler, gw *gateway.Gateway) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// CORS - clients connect from anywhere; payloads are opaque anyway
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Operational
	r.Get("/health", h.Health)

	// Request/response surface
	r.Post("/api/auth/login", h.Login)
	r.Get("/api/users/{userId}/status", h.OnlineStatus)
	r.Get("/api/messages", h.GetMessages)

	// Socket endpoint; authentication happens inside the handshake
	r.Get("/ws", gw.ServeWS)

	return r
}
