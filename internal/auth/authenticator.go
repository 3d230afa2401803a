// Quill - Editorial Content Platform
// Copyright 2026 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quillhq/quill

package auth

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/quillhq/quill/internal/logging"
	"github.com/quillhq/quill/internal/monitor"
	"github.com/quillhq/quill/internal/respond"
)

// ErrBadCredentials is the single failure for login attempts; it never says
// whether the username or the password was wrong.
var ErrBadCredentials = errors.New("invalid username or password")

// dummyHash keeps unknown-username attempts as slow as wrong-password
// attempts.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Credential is one operator account: a username and a bcrypt hash. Hashes
// come from configuration; the process never sees or stores plaintext.
type Credential struct {
	Username     string `json:"username" validate:"required"`
	PasswordHash string `json:"password_hash" validate:"required"`
	Role         string `json:"role"`
}

// Authenticator validates operator logins and issues session tokens.
type Authenticator struct {
	credentials map[string]Credential
	tokens      *JWTManager
	monitor     *monitor.Monitor
}

// NewAuthenticator builds an authenticator over the configured accounts.
func NewAuthenticator(credentials []Credential, tokens *JWTManager, mon *monitor.Monitor) *Authenticator {
	byName := make(map[string]Credential, len(credentials))
	for _, c := range credentials {
		if c.Role == "" {
			c.Role = "operator"
		}
		byName[c.Username] = c
	}
	return &Authenticator{credentials: byName, tokens: tokens, monitor: mon}
}

// Login verifies a credential pair and returns a session token. Failures
// are recorded as login_failure events so the monitor can correlate brute
// force attempts.
func (a *Authenticator) Login(ctx context.Context, username, password, sourceIP string) (string, error) {
	cred, ok := a.credentials[username]
	if !ok {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		a.recordFailure(ctx, username, sourceIP)
		return "", ErrBadCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		a.recordFailure(ctx, username, sourceIP)
		return "", ErrBadCredentials
	}

	token, err := a.tokens.GenerateToken(cred.Username, cred.Role)
	if err != nil {
		return "", err
	}

	a.monitor.LogEvent(ctx, monitor.SecurityEvent{
		Type:     monitor.EventLoginSuccess,
		Severity: monitor.SeverityLow,
		SourceIP: sourceIP,
		UserID:   username,
	})
	return token, nil
}

func (a *Authenticator) recordFailure(ctx context.Context, username, sourceIP string) {
	logging.Ctx(ctx).Warn().
		Str("username", logging.SanitizeUserID(username)).
		Str("source_ip", sourceIP).
		Msg("operator login failed")

	a.monitor.LogEvent(ctx, monitor.SecurityEvent{
		Type:     monitor.EventLoginFailure,
		Severity: monitor.SeverityMedium,
		SourceIP: sourceIP,
		UserID:   username,
	})
}

// Middleware rejects requests without a valid session token and stores the
// claims in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := TokenFromRequest(r)
		if err != nil {
			respond.Write(w, respond.NewError(respond.KindAuth, "", err),
				logging.RequestIDFromContext(r.Context()))
			return
		}

		claims, err := a.tokens.ValidateToken(token)
		if err != nil {
			respond.Write(w, respond.NewError(respond.KindAuth, "", err),
				logging.RequestIDFromContext(r.Context()))
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
	})
}

type claimsKey struct{}

// ContextWithClaims stores session claims in the context.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext returns the session claims, if authenticated.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*Claims)
	return claims, ok
}
