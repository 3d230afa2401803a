// Quill - Editorial Content Platform
// Copyright 2026 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quillhq/quill

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/quillhq/quill/internal/logging"
	"github.com/quillhq/quill/internal/respond"
)

// ChiMiddlewareConfig holds configuration for the Chi middleware
// factories used by the admin router.
type ChiMiddlewareConfig struct {
	// CORS configuration. Origins default to empty, requiring explicit
	// configuration so deployments never ship with wildcard CORS.
	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
	CORSMaxAge           int // seconds

	// Login rate limiting, separate from the pipeline tiers. This is a
	// per-IP backstop in front of the login handler itself.
	LoginLimitRequests int
	LoginLimitWindow   time.Duration
}

// DefaultChiMiddlewareConfig returns a secure default configuration.
func DefaultChiMiddlewareConfig() *ChiMiddlewareConfig {
	return &ChiMiddlewareConfig{
		CORSAllowedOrigins:   []string{},
		CORSAllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		CORSAllowedHeaders:   []string{"Content-Type", "Authorization", "X-CSRF-Token"},
		CORSAllowCredentials: false,
		CORSMaxAge:           86400,

		LoginLimitRequests: 5,
		LoginLimitWindow:   5 * time.Minute,
	}
}

// ChiMiddleware provides Chi-compatible middleware built on the
// production-hardened go-chi ecosystem implementations.
type ChiMiddleware struct {
	config *ChiMiddlewareConfig
	cors   func(http.Handler) http.Handler
}

// NewChiMiddleware creates the middleware factory.
func NewChiMiddleware(config *ChiMiddlewareConfig) *ChiMiddleware {
	if config == nil {
		config = DefaultChiMiddlewareConfig()
	}

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   config.CORSAllowedOrigins,
		AllowedMethods:   config.CORSAllowedMethods,
		AllowedHeaders:   config.CORSAllowedHeaders,
		AllowCredentials: config.CORSAllowCredentials,
		MaxAge:           config.CORSMaxAge,
	})

	return &ChiMiddleware{
		config: config,
		cors:   corsHandler,
	}
}

// CORS returns the CORS middleware.
func (m *ChiMiddleware) CORS() func(http.Handler) http.Handler {
	return m.cors
}

// RateLimitLogin returns a strict per-IP limiter for the login
// endpoint. Limited requests receive a RATE_LIMIT taxonomy envelope.
func (m *ChiMiddleware) RateLimitLogin() func(http.Handler) http.Handler {
	return httprate.Limit(
		m.config.LoginLimitRequests,
		m.config.LoginLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			err := respond.NewError(respond.KindRateLimit, "too many login attempts", nil)
			respond.Write(w, err, logging.RequestIDFromContext(r.Context()))
		}),
	)
}
