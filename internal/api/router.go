// Quill - Editorial Content Platform
// Copyright 2026 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quillhq/quill

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quillhq/quill/internal/auth"
	"github.com/quillhq/quill/internal/middleware"
	"github.com/quillhq/quill/internal/pipeline"
)

// Router assembles the full HTTP surface: the defense pipeline in front,
// the admin API behind authentication, and the operational endpoints.
type Router struct {
	handler *Handler
	authn   *auth.Authenticator
	defense *pipeline.Pipeline
	chimw   *ChiMiddleware
}

// NewRouter creates a router. The defense pipeline wraps every route
// except those on its own bypass list.
func NewRouter(handler *Handler, authn *auth.Authenticator, defense *pipeline.Pipeline, chimw *ChiMiddleware) *Router {
	if chimw == nil {
		chimw = NewChiMiddleware(nil)
	}
	return &Router{
		handler: handler,
		authn:   authn,
		defense: defense,
		chimw:   chimw,
	}
}

// Setup configures all routes and returns the root handler.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order. The defense
	// pipeline runs after request identity is established and before
	// any handler logic.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chimw.CORS())
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.PrometheusMetrics)
	r.Use(router.defense.Middleware)

	// Operational endpoints. These are on the pipeline bypass list so
	// probes and scrapes cannot be rate limited or threat scanned.
	r.Get("/health", router.handler.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Authentication. The login endpoint carries its own strict per-IP
	// limiter in addition to the pipeline auth tier.
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(router.chimw.RateLimitLogin()).Post("/login", router.handler.Login)
	})

	// CSRF token issuance. Unauthenticated under the stateless and
	// double-submit bindings; the handler itself demands a session when
	// the synchronizer binding is active.
	r.Get("/api/v1/csrf-token", router.handler.CSRFToken)

	// Admin endpoints, all behind session authentication.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.authn.Middleware)

		r.Get("/alerts", router.handler.Alerts)
		r.Post("/alerts/{id}/resolve", router.handler.ResolveAlert)
		r.Get("/events", router.handler.Events)
		r.Get("/metrics/security", router.handler.SecurityMetrics)
		r.Delete("/ratelimit/{identifier}", router.handler.RateLimitReset)
		r.Get("/ws", router.handler.WebSocket)
	})

	return r
}
