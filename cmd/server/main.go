// Quill - Editorial Content Platform
// Copyright 2026 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quillhq/quill

// Package main is the entry point for the Quill server.
//
// Quill fronts an editorial content platform with a request-level
// defense stack: tiered rate limiting, declarative threat detection,
// CSRF protection, and correlated security monitoring, all wired into
// a single pipeline that every request passes through before reaching
// a handler.
//
// # Startup Order
//
//  1. Configuration: Koanf layered loading (defaults, YAML file, env)
//  2. Stores: in-memory or BadgerDB-backed rate limit windows
//  3. Monitor: event ring buffer, correlation rules, webhook notifier
//  4. Defense pipeline: rate limiter, threat scanner, CSRF guard
//  5. Supervisor tree: HTTP server, WebSocket hub, sweepers
//
// # Configuration
//
// Required settings (env or config.yaml):
//   - SIGNATURE_SECRET: 32+ byte secret for CSRF token signing
//   - JWT_SECRET: 32+ byte secret for session tokens, distinct from
//     SIGNATURE_SECRET
//   - ADMIN_USERNAME / ADMIN_PASSWORD: operator credentials, the
//     password must be a bcrypt hash
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the listener stops
// accepting connections, in-flight requests get the configured
// shutdown timeout, then the supervisor tree unwinds.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/quillhq/quill/internal/api"
	"github.com/quillhq/quill/internal/auth"
	"github.com/quillhq/quill/internal/config"
	"github.com/quillhq/quill/internal/csrf"
	"github.com/quillhq/quill/internal/logging"
	"github.com/quillhq/quill/internal/monitor"
	"github.com/quillhq/quill/internal/pipeline"
	"github.com/quillhq/quill/internal/ratelimit"
	"github.com/quillhq/quill/internal/supervisor"
	"github.com/quillhq/quill/internal/supervisor/services"
	ws "github.com/quillhq/quill/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", api.Version).
		Str("rate_limit_store", cfg.RateLimit.Store).
		Str("csrf_binding", cfg.CSRF.Binding).
		Msg("Starting Quill")

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("Server exited with error")
	}
}

func run(cfg *config.Config) error {
	// Rate limit window store.
	var store ratelimit.Store
	var badgerDB *badger.DB
	if cfg.RateLimit.Store == "badger" {
		opts := badger.DefaultOptions(cfg.RateLimit.StorePath)
		opts.Logger = nil // Suppress BadgerDB logs

		db, err := badger.Open(opts)
		if err != nil {
			return fmt.Errorf("open badger store: %w", err)
		}
		badgerDB = db
		store = ratelimit.NewBadgerStore(db, "")
	} else {
		store = ratelimit.NewMemoryStore()
	}
	if badgerDB != nil {
		defer func() {
			if err := badgerDB.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing badger store")
			}
		}()
	}

	limiter, err := ratelimit.NewLimiter(store, map[string]ratelimit.TierConfig{
		ratelimit.TierGlobal: {Window: cfg.RateLimit.GlobalWindow, MaxRequests: cfg.RateLimit.GlobalRequests},
		ratelimit.TierAuth:   {Window: cfg.RateLimit.AuthWindow, MaxRequests: cfg.RateLimit.AuthRequests},
		ratelimit.TierWrite:  {Window: cfg.RateLimit.WriteWindow, MaxRequests: cfg.RateLimit.WriteRequests},
	})
	if err != nil {
		return fmt.Errorf("create rate limiter: %w", err)
	}

	// Security monitor with optional webhook notification.
	mon := monitor.New(monitor.Config{
		MaxEvents:         cfg.Monitor.MaxEvents,
		Retention:         cfg.Monitor.Retention,
		NotifyMinSeverity: monitor.Severity(cfg.Monitor.NotifyMinSeverity),
	})
	if cfg.Monitor.Webhook.Enabled {
		mon.AddNotifier(monitor.NewWebhookNotifier(monitor.WebhookConfig{
			URL:         cfg.Monitor.Webhook.URL,
			Enabled:     true,
			MinInterval: cfg.Monitor.Webhook.MinInterval,
			Timeout:     cfg.Monitor.Webhook.Timeout,
		}))
	}

	hub := ws.NewHub()
	mon.SetBroadcaster(hub)

	// CSRF guard. Auth endpoints are exempt: a client has no token
	// before its first session.
	guard, syncBinding, sessions, err := buildCSRFGuard(cfg)
	if err != nil {
		return fmt.Errorf("create csrf guard: %w", err)
	}

	// Session auth for the admin API.
	tokens, err := auth.NewJWTManager(cfg.Security.JWTSecret, cfg.Security.SessionTimeout)
	if err != nil {
		return fmt.Errorf("create token manager: %w", err)
	}
	authn := auth.NewAuthenticator([]auth.Credential{{
		Username:     cfg.Security.AdminUsername,
		PasswordHash: cfg.Security.AdminPassword,
		Role:         "admin",
	}}, tokens, mon)

	// Defense pipeline in front of everything.
	defense := pipeline.New(pipeline.Config{
		BypassPaths:    cfg.Pipeline.BypassPaths,
		AuthPaths:      cfg.Pipeline.AuthPaths,
		Timeout:        cfg.Pipeline.Timeout,
		UseFingerprint: cfg.Pipeline.UseFingerprint,
	}, limiter, guard, mon)

	handler := api.NewHandler(api.HandlerDeps{
		Authenticator: authn,
		Tokens:        tokens,
		Guard:         guard,
		SyncBinding:   syncBinding,
		Monitor:       mon,
		Limiter:       limiter,
		Hub:           hub,
	})

	chimwCfg := api.DefaultChiMiddlewareConfig()
	chimwCfg.CORSAllowedOrigins = cfg.Server.CORSOrigins
	router := api.NewRouter(handler, authn, defense, api.NewChiMiddleware(chimwCfg))

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Supervisor tree.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	tree.AddMessagingService(services.NewWebSocketHubService(hub))
	tree.AddMessagingService(services.NewMetricsBroadcastService(
		func() interface{} { return mon.Metrics() }, hub, 30*time.Second))

	tree.AddMaintenanceService(services.NewSweepService(
		"ratelimit-sweeper", cfg.RateLimit.SweepInterval, limiter.Sweep))
	tree.AddMaintenanceService(services.NewSweepService(
		"monitor-sweeper", cfg.Monitor.SweepInterval,
		func(ctx context.Context) (int, error) {
			events, alerts := mon.Sweep(ctx)
			return events + alerts, nil
		}))
	if sessions != nil {
		// Sessions age out with their tokens, not with the JWT lifetime.
		maxAge := guard.Config().MaxAge
		tree.AddMaintenanceService(services.NewSweepService(
			"csrf-session-sweeper", cfg.Monitor.SweepInterval,
			func(ctx context.Context) (int, error) {
				return sessions.Sweep(maxAge), nil
			}))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", server.Addr).Msg("Serving")
	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logging.Info().Msg("Shutdown complete")
	return nil
}

// buildCSRFGuard assembles the guard for the configured binding. The
// returned synchronizer and session store are nil unless the
// synchronizer binding is active.
func buildCSRFGuard(cfg *config.Config) (*csrf.Guard, *csrf.Synchronizer, *csrf.SessionStore, error) {
	guardCfg := csrf.Config{
		Secret:       cfg.Security.SignatureSecret,
		MaxAge:       cfg.CSRF.MaxAge,
		HeaderName:   cfg.CSRF.HeaderName,
		CookieName:   cfg.CSRF.CookieName,
		CookieSecure: cfg.CSRF.CookieSecure,
		ExemptPaths:  append(append([]string{}, cfg.CSRF.ExemptPaths...), cfg.Pipeline.AuthPaths...),
	}

	switch cfg.CSRF.Binding {
	case "double_submit":
		guard, err := csrf.NewGuard(guardCfg, csrf.DoubleSubmit{})
		return guard, nil, nil, err
	case "synchronizer":
		sessions := csrf.NewSessionStore(cfg.CSRF.SessionCapacity)
		syncBinding := csrf.NewSynchronizer(sessions)
		guard, err := csrf.NewGuard(guardCfg, syncBinding)
		return guard, syncBinding, sessions, err
	default:
		guard, err := csrf.NewGuard(guardCfg, nil)
		return guard, nil, nil, err
	}
}
