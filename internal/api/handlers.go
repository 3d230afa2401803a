// Quill - Editorial Content Platform
// Copyright 2026 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quillhq/quill

package api

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	gorillaws "github.com/gorilla/websocket"

	"github.com/quillhq/quill/internal/auth"
	"github.com/quillhq/quill/internal/csrf"
	"github.com/quillhq/quill/internal/logging"
	"github.com/quillhq/quill/internal/models"
	"github.com/quillhq/quill/internal/monitor"
	"github.com/quillhq/quill/internal/ratelimit"
	"github.com/quillhq/quill/internal/respond"
	ws "github.com/quillhq/quill/internal/websocket"
)

// Version is the reported server version. Overridden at build time via
// -ldflags "-X github.com/quillhq/quill/internal/api.Version=...".
var Version = "dev"

// Handler holds the dependencies for all admin API endpoints.
type Handler struct {
	authn       *auth.Authenticator
	tokens      *auth.JWTManager
	guard       *csrf.Guard
	syncBinding *csrf.Synchronizer
	mon         *monitor.Monitor
	limiter     *ratelimit.Limiter
	hub         *ws.Hub
	upgrader    gorillaws.Upgrader
	startTime   time.Time
}

// HandlerDeps bundles the constructor dependencies for NewHandler.
// SyncBinding is optional and only set when the synchronizer CSRF
// binding is configured.
type HandlerDeps struct {
	Authenticator *auth.Authenticator
	Tokens        *auth.JWTManager
	Guard         *csrf.Guard
	SyncBinding   *csrf.Synchronizer
	Monitor       *monitor.Monitor
	Limiter       *ratelimit.Limiter
	Hub           *ws.Hub
}

// NewHandler creates the admin API handler set.
func NewHandler(deps HandlerDeps) *Handler {
	return &Handler{
		authn:       deps.Authenticator,
		tokens:      deps.Tokens,
		guard:       deps.Guard,
		syncBinding: deps.SyncBinding,
		mon:         deps.Monitor,
		limiter:     deps.Limiter,
		hub:         deps.Hub,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		startTime: time.Now(),
	}
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, &models.HealthResponse{
		Status:        "ok",
		Version:       Version,
		UptimeSeconds: time.Since(h.startTime).Seconds(),
	})
}

// Login handles POST /api/v1/auth/login. Successful logins return a
// session token; failures are recorded as login_failure events so the
// monitor can correlate brute force attempts.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondAppError(w, r, respond.NewError(respond.KindValidation, "malformed request body", err))
		return
	}
	if !validateRequest(w, r, &req) {
		return
	}

	token, err := h.authn.Login(r.Context(), req.Username, req.Password, sourceIP(r))
	if err != nil {
		if errors.Is(err, auth.ErrBadCredentials) {
			respondAppError(w, r, respond.NewError(respond.KindAuth, "invalid username or password", err))
			return
		}
		respondAppError(w, r, respond.NewError(respond.KindUnexpected, "login failed", err))
		return
	}

	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		respondAppError(w, r, respond.NewError(respond.KindUnexpected, "login failed", err))
		return
	}

	respondJSON(w, http.StatusOK, &models.LoginResponse{
		Token:     token,
		Role:      claims.Role,
		ExpiresAt: claims.ExpiresAt.Time,
	})
}

// CSRFToken handles GET /api/v1/csrf-token. The token is returned in
// the body and also set as a cookie for double-submit verification.
// Under the synchronizer binding the caller must present a session.
func (h *Handler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	var token string
	var err error

	if h.syncBinding != nil {
		session, terr := auth.TokenFromRequest(r)
		if terr != nil {
			respondAppError(w, r, respond.NewError(respond.KindAuth, "session required for CSRF token", terr))
			return
		}
		token, err = h.syncBinding.Issue(h.guard, session)
	} else {
		token, err = h.guard.GenerateToken()
	}
	if err != nil {
		respondAppError(w, r, respond.NewError(respond.KindUnexpected, "token generation failed", err))
		return
	}

	h.guard.SetCookie(w, token)
	cfg := h.guard.Config()
	respondJSON(w, http.StatusOK, &models.CSRFTokenResponse{
		Token:     token,
		Header:    cfg.HeaderName,
		MaxAgeSec: int(cfg.MaxAge.Seconds()),
	})
}

// Alerts handles GET /api/v1/alerts. Supports include_resolved,
// severity (minimum), and limit query parameters.
func (h *Handler) Alerts(w http.ResponseWriter, r *http.Request) {
	req := AlertsRequest{
		IncludeResolved: getBoolParam(r, "include_resolved", false),
		Severity:        r.URL.Query().Get("severity"),
		Limit:           getIntParam(r, "limit", 100),
	}
	if !validateRequest(w, r, &req) {
		return
	}

	alerts := h.mon.Alerts(req.IncludeResolved)
	if req.Severity != "" {
		minSev := monitor.Severity(req.Severity)
		filtered := alerts[:0]
		for _, a := range alerts {
			if a.Severity.AtLeast(minSev) {
				filtered = append(filtered, a)
			}
		}
		alerts = filtered
	}
	if req.Limit > 0 && len(alerts) > req.Limit {
		alerts = alerts[:req.Limit]
	}

	respondJSONCount(w, http.StatusOK, alerts, len(alerts))
}

// ResolveAlert handles POST /api/v1/alerts/{id}/resolve. Resolution is
// one-way; resolving an unknown or already resolved alert fails.
func (h *Handler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	req := ResolveAlertRequest{ID: chi.URLParam(r, "id")}
	if !validateRequest(w, r, &req) {
		return
	}

	resolvedBy := "system"
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		resolvedBy = claims.Username
	}

	if !h.mon.ResolveAlert(req.ID, resolvedBy) {
		respondAppError(w, r, respond.NewError(respond.KindValidation, "unknown or already resolved alert", nil))
		return
	}

	respondJSON(w, http.StatusOK, &models.ResolveAlertResponse{
		ID:         req.ID,
		Resolved:   true,
		ResolvedBy: resolvedBy,
	})
}

// Events handles GET /api/v1/events, returning recent security events
// newest first.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	req := EventsRequest{Limit: getIntParam(r, "limit", 100)}
	if !validateRequest(w, r, &req) {
		return
	}

	events := h.mon.Events(req.Limit)
	respondJSONCount(w, http.StatusOK, events, len(events))
}

// SecurityMetrics handles GET /api/v1/metrics/security, returning the
// 24-hour aggregate snapshot.
func (h *Handler) SecurityMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.mon.Metrics())
}

// RateLimitReset handles DELETE /api/v1/ratelimit/{identifier},
// clearing all tier windows for the identifier.
func (h *Handler) RateLimitReset(w http.ResponseWriter, r *http.Request) {
	req := RateLimitResetRequest{Identifier: chi.URLParam(r, "identifier")}
	if !validateRequest(w, r, &req) {
		return
	}

	if err := h.limiter.Reset(r.Context(), req.Identifier); err != nil {
		respondAppError(w, r, respond.NewError(respond.KindStorage, "rate limit reset failed", err))
		return
	}

	logging.Ctx(r.Context()).Info().
		Str("identifier", logging.SanitizeUserID(req.Identifier)).
		Msg("Rate limit windows reset")

	respondJSON(w, http.StatusOK, &models.RateLimitResetResponse{
		Identifier: req.Identifier,
		Reset:      true,
	})
}

// WebSocket handles GET /api/v1/ws, upgrading the connection and
// registering the client for alert and metrics broadcasts.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error response.
		logging.Ctx(r.Context()).Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	ws.NewClient(h.hub, conn).Start()
}

// sourceIP returns the client address without the port. The RealIP
// middleware has already folded X-Forwarded-For into RemoteAddr.
func sourceIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
