// Package api wires the read-only HTTP surface: session listing, message
// retrieval, and on-demand chain verification. Appending happens through
// the library and CLI, never over HTTP.
package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/attestlog/internal/api/middleware"
	"github.com/eldtechnologies/attestlog/internal/handlers"
	"github.com/eldtechnologies/attestlog/internal/store"
	"github.com/eldtechnologies/attestlog/internal/verify"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, st store.ChainStore, trusted verify.TrustedKeys) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(8 * 1024))

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)

	// CORS - the surface is read-only, so any origin may query it
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(st, trusted)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", h.Root)
	r.Get("/health", h.Health)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/sessions", h.ListSessions)
		r.Get("/sessions/{id}/messages", h.GetMessages)
		r.Get("/sessions/{id}/verify", h.VerifySession)
	})

	return r
}
