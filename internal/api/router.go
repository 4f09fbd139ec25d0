// Shelfwise - Book Recommendation Scoring Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig holds the HTTP surface settings.
type RouterConfig struct {
	CORSOrigins []string
	RateLimit   int
}

// NewRouter assembles the chi router: global middleware first, then
// versioned API routes, health probes, and the Prometheus endpoint.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(corsMiddleware(cfg.CORSOrigins))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(requestMetrics)
		r.Use(rateLimitMiddleware(cfg.RateLimit))

		r.Post("/interactions", h.RecordInteraction)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Post("/scores", h.RequestScores)
			r.Get("/recommendations", h.TopRecommendations)
		})

		r.Route("/similarity/rebuilds", func(r chi.Router) {
			r.Post("/", h.StartRebuild)
			r.Get("/{id}", h.RebuildStatus)
			r.Delete("/{id}", h.CancelRebuild)
		})

		r.Get("/health/live", h.HealthLive)
		r.Get("/health/ready", h.HealthReady)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
