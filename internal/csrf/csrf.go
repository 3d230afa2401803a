// Quill - Editorial Content Platform
// Copyright 2026 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quillhq/quill

// Package csrf provides Cross-Site Request Forgery protection built on
// signed, self-describing tokens.
//
// A token is "random:issuedAtMillis:signature" where the signature is
// HMAC-SHA-256 over "random:issuedAtMillis". Tokens are stateless in the
// default scheme; the double-submit and synchronizer bindings layer extra
// checks on top of the same token format.
package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/quillhq/quill/internal/metrics"
	"github.com/quillhq/quill/internal/signature"
)

// Validation errors.
var (
	// ErrTokenMissing indicates no token was found in the request.
	ErrTokenMissing = errors.New("csrf token missing")

	// ErrTokenMalformed indicates the token does not have the expected shape.
	ErrTokenMalformed = errors.New("csrf token malformed")

	// ErrTokenExpired indicates the token's issue time is past max age.
	ErrTokenExpired = errors.New("csrf token expired")

	// ErrTokenInvalid indicates the signature does not verify.
	ErrTokenInvalid = errors.New("csrf token invalid")

	// ErrTokenMismatch indicates the two token copies disagree
	// (double-submit) or the submitted token is not the one on file
	// (synchronizer).
	ErrTokenMismatch = errors.New("csrf token mismatch")
)

// tokenParts is the exact number of colon-separated segments in a token.
const tokenParts = 3

// Config configures the guard.
type Config struct {
	// Secret signs tokens. Must be at least signature.MinSecretLength bytes.
	Secret string `json:"-" validate:"required,min=32"`

	// MaxAge is how long an issued token stays valid.
	MaxAge time.Duration `json:"max_age"`

	// HeaderName is the request header carrying the submitted token.
	HeaderName string `json:"header_name"`

	// CookieName is the cookie carrying the token copy.
	CookieName string `json:"cookie_name"`

	// FormFieldName is the form field fallback for the submitted token.
	FormFieldName string `json:"form_field_name"`

	// CookieSecure sets the Secure flag on issued cookies.
	CookieSecure bool `json:"cookie_secure"`

	// ExemptPaths are path prefixes excluded from enforcement. Webhook and
	// OAuth callback endpoints authenticate by other means and cannot carry
	// a token, so exemption here is policy, not an accident of routing.
	ExemptPaths []string `json:"exempt_paths"`
}

// DefaultConfig returns the default guard configuration.
func DefaultConfig() Config {
	return Config{
		MaxAge:        24 * time.Hour,
		HeaderName:    "X-CSRF-Token",
		CookieName:    "_csrf",
		FormFieldName: "csrf_token",
		CookieSecure:  true,
	}
}

// safeMethods never require a token, per RFC 7231 semantics.
var safeMethods = map[string]struct{}{
	http.MethodGet:     {},
	http.MethodHead:    {},
	http.MethodOptions: {},
	http.MethodTrace:   {},
}

// Binding is a strategy that ties a submitted token to its expected
// counterpart. The stateless default only checks the submitted token itself.
type Binding interface {
	// Name identifies the binding in logs and metrics.
	Name() string

	// Verify checks the request's token(s) using the guard's codec.
	Verify(g *Guard, r *http.Request) error
}

// Guard issues and verifies CSRF tokens.
type Guard struct {
	cfg     Config
	codec   *signature.Codec
	binding Binding
}

// NewGuard creates a guard. A nil binding selects the stateless scheme.
func NewGuard(cfg Config, binding Binding) (*Guard, error) {
	def := DefaultConfig()
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = def.MaxAge
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = def.HeaderName
	}
	if cfg.CookieName == "" {
		cfg.CookieName = def.CookieName
	}
	if cfg.FormFieldName == "" {
		cfg.FormFieldName = def.FormFieldName
	}

	codec, err := signature.NewCodec([]byte(cfg.Secret))
	if err != nil {
		return nil, fmt.Errorf("csrf secret: %w", err)
	}

	if binding == nil {
		binding = Stateless{}
	}

	return &Guard{cfg: cfg, codec: codec, binding: binding}, nil
}

// Config returns the guard's effective configuration.
func (g *Guard) Config() Config {
	return g.cfg
}

// GenerateToken mints a fresh token.
func (g *Guard) GenerateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("csrf random payload: %w", err)
	}

	payload := base64.RawURLEncoding.EncodeToString(buf) +
		":" + strconv.FormatInt(time.Now().UnixMilli(), 10)

	return payload + ":" + g.codec.Sign(payload), nil
}

// ValidateToken checks a token's shape, age, and signature. The signature
// comparison is constant time via the underlying codec.
func (g *Guard) ValidateToken(token string) error {
	parts := strings.Split(token, ":")
	if len(parts) != tokenParts {
		return ErrTokenMalformed
	}

	issuedMillis, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return ErrTokenMalformed
	}

	if time.Since(time.UnixMilli(issuedMillis)) > g.cfg.MaxAge {
		return ErrTokenExpired
	}

	if err := g.codec.Verify(parts[0]+":"+parts[1], parts[2]); err != nil {
		return ErrTokenInvalid
	}
	return nil
}

// VerifyRequest applies the enforcement policy: safe methods and exempt
// paths pass without a token, everything else goes through the configured
// binding. A missing or invalid token is always a rejection, never a
// silent pass.
func (g *Guard) VerifyRequest(r *http.Request) error {
	if _, ok := safeMethods[r.Method]; ok {
		return nil
	}
	if g.isExemptPath(r.URL.Path) {
		return nil
	}

	if err := g.binding.Verify(g, r); err != nil {
		metrics.CSRFFailures.WithLabelValues(failureReason(err)).Inc()
		return err
	}
	return nil
}

// SubmittedToken extracts the caller-submitted token: header first, then
// form field, then cookie.
func (g *Guard) SubmittedToken(r *http.Request) string {
	if token := r.Header.Get(g.cfg.HeaderName); token != "" {
		return token
	}
	if token := r.PostFormValue(g.cfg.FormFieldName); token != "" {
		return token
	}
	if cookie, err := r.Cookie(g.cfg.CookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// CookieToken extracts the token copy from the cookie only.
func (g *Guard) CookieToken(r *http.Request) string {
	cookie, err := r.Cookie(g.cfg.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// SetCookie writes the token cookie. HttpOnly stays off so single-page
// clients can read the value back into the request header.
func (g *Guard) SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     g.cfg.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(g.cfg.MaxAge.Seconds()),
		Secure:   g.cfg.CookieSecure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func (g *Guard) isExemptPath(path string) bool {
	for _, exempt := range g.cfg.ExemptPaths {
		if strings.HasPrefix(path, exempt) {
			return true
		}
	}
	return false
}

// tokensEqual compares two full tokens in constant time.
func tokensEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// failureReason maps a validation error onto a metrics label.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrTokenMissing):
		return "missing"
	case errors.Is(err, ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrTokenMismatch):
		return "mismatch"
	default:
		return "invalid"
	}
}

// Stateless is the default binding: the submitted token must validate on its
// own, with no server-side record.
type Stateless struct{}

// Name implements Binding.
func (Stateless) Name() string { return "stateless" }

// Verify implements Binding.
func (Stateless) Verify(g *Guard, r *http.Request) error {
	token := g.SubmittedToken(r)
	if token == "" {
		return ErrTokenMissing
	}
	return g.ValidateToken(token)
}
