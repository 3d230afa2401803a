// Quill - Editorial Content Platform
// Copyright 2026 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quillhq/quill

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// minSecretLength is the minimum byte length for signing secrets.
const minSecretLength = 32

// Validate checks the configuration for errors that would prevent the
// server from operating safely. It is called by Load after all layers
// are resolved.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateLogging,
		c.validateSecurity,
		c.validateRateLimit,
		c.validateCSRF,
		c.validateMonitor,
		c.validatePipeline,
	}

	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error, fatal, panic; got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if len(c.Security.SignatureSecret) < minSecretLength {
		return fmt.Errorf("SIGNATURE_SECRET must be at least %d bytes, got %d", minSecretLength, len(c.Security.SignatureSecret))
	}
	if len(c.Security.JWTSecret) < minSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes, got %d", minSecretLength, len(c.Security.JWTSecret))
	}
	if c.Security.SignatureSecret == c.Security.JWTSecret {
		return fmt.Errorf("SIGNATURE_SECRET and JWT_SECRET must differ")
	}
	if c.Security.AdminUsername == "" {
		return fmt.Errorf("ADMIN_USERNAME must not be empty")
	}
	if c.Security.AdminPassword == "" {
		return fmt.Errorf("ADMIN_PASSWORD must be set to a bcrypt hash")
	}
	if !strings.HasPrefix(c.Security.AdminPassword, "$2a$") && !strings.HasPrefix(c.Security.AdminPassword, "$2b$") && !strings.HasPrefix(c.Security.AdminPassword, "$2y$") {
		return fmt.Errorf("ADMIN_PASSWORD must be a bcrypt hash, not a plaintext password")
	}
	if c.Security.SessionTimeout <= 0 {
		return fmt.Errorf("SESSION_TIMEOUT must be positive, got %s", c.Security.SessionTimeout)
	}
	return nil
}

func (c *Config) validateRateLimit() error {
	tiers := []struct {
		name     string
		requests int
		window   time.Duration
	}{
		{"global", c.RateLimit.GlobalRequests, c.RateLimit.GlobalWindow},
		{"auth", c.RateLimit.AuthRequests, c.RateLimit.AuthWindow},
		{"write", c.RateLimit.WriteRequests, c.RateLimit.WriteWindow},
	}
	for _, tier := range tiers {
		if tier.requests < 1 {
			return fmt.Errorf("rate limit %s tier requests must be at least 1, got %d", tier.name, tier.requests)
		}
		if tier.window <= 0 {
			return fmt.Errorf("rate limit %s tier window must be positive, got %s", tier.name, tier.window)
		}
	}

	switch c.RateLimit.Store {
	case "memory":
	case "badger":
		if c.RateLimit.StorePath == "" {
			return fmt.Errorf("RATE_LIMIT_STORE_PATH must be set when store is badger")
		}
	default:
		return fmt.Errorf("RATE_LIMIT_STORE must be memory or badger, got %q", c.RateLimit.Store)
	}

	if c.RateLimit.SweepInterval <= 0 {
		return fmt.Errorf("RATE_LIMIT_SWEEP_INTERVAL must be positive, got %s", c.RateLimit.SweepInterval)
	}
	return nil
}

func (c *Config) validateCSRF() error {
	if c.CSRF.MaxAge <= 0 {
		return fmt.Errorf("CSRF_MAX_AGE must be positive, got %s", c.CSRF.MaxAge)
	}
	switch c.CSRF.Binding {
	case "stateless", "double_submit", "synchronizer":
	default:
		return fmt.Errorf("CSRF_BINDING must be stateless, double_submit, or synchronizer; got %q", c.CSRF.Binding)
	}
	if c.CSRF.Binding == "synchronizer" && c.CSRF.SessionCapacity < 1 {
		return fmt.Errorf("CSRF_SESSION_CAPACITY must be at least 1, got %d", c.CSRF.SessionCapacity)
	}
	for _, path := range c.CSRF.ExemptPaths {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("CSRF exempt path %q must start with /", path)
		}
	}
	return nil
}

func (c *Config) validateMonitor() error {
	if c.Monitor.MaxEvents < 1 {
		return fmt.Errorf("MONITOR_MAX_EVENTS must be at least 1, got %d", c.Monitor.MaxEvents)
	}
	if c.Monitor.Retention <= 0 {
		return fmt.Errorf("MONITOR_RETENTION must be positive, got %s", c.Monitor.Retention)
	}
	switch c.Monitor.NotifyMinSeverity {
	case "low", "medium", "high", "critical":
	default:
		return fmt.Errorf("MONITOR_NOTIFY_MIN_SEVERITY must be low, medium, high, or critical; got %q", c.Monitor.NotifyMinSeverity)
	}
	if c.Monitor.Webhook.Enabled {
		if err := validateHTTPURL(c.Monitor.Webhook.URL, "ALERT_WEBHOOK_URL"); err != nil {
			return err
		}
		if c.Monitor.Webhook.Timeout <= 0 {
			return fmt.Errorf("ALERT_WEBHOOK_TIMEOUT must be positive, got %s", c.Monitor.Webhook.Timeout)
		}
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.Timeout <= 0 {
		return fmt.Errorf("PIPELINE_TIMEOUT must be positive, got %s", c.Pipeline.Timeout)
	}
	for _, path := range append(append([]string{}, c.Pipeline.BypassPaths...), c.Pipeline.AuthPaths...) {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("pipeline path %q must start with /", path)
		}
	}
	return nil
}

// validateHTTPURL checks that the value is an absolute http or https URL.
func validateHTTPURL(value, name string) error {
	if value == "" {
		return fmt.Errorf("%s must not be empty", name)
	}
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https scheme, got %q", name, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}
	return nil
}
