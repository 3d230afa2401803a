// Quill - Editorial Content Platform
// Copyright 2026 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quillhq/quill

// Package config provides layered configuration loading for the Quill server.
//
// Configuration is resolved in three layers, each overriding the last:
//  1. Struct defaults (defaultConfig)
//  2. An optional YAML config file (config.yaml, or CONFIG_PATH)
//  3. Environment variables (explicit mapping table, highest priority)
package config

import "time"

// Config is the root configuration for the Quill server.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Security  SecurityConfig  `koanf:"security"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	CSRF      CSRFConfig      `koanf:"csrf"`
	Monitor   MonitorConfig   `koanf:"monitor"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// SecurityConfig holds secrets and operator credentials.
//
// SignatureSecret is used for CSRF token signing and must be at least
// 32 bytes. JWTSecret signs session tokens for the admin API.
// AdminPassword must be a bcrypt hash, never a plaintext password.
type SecurityConfig struct {
	SignatureSecret string        `koanf:"signature_secret"`
	JWTSecret       string        `koanf:"jwt_secret"`
	SessionTimeout  time.Duration `koanf:"session_timeout"`
	AdminUsername   string        `koanf:"admin_username"`
	AdminPassword   string        `koanf:"admin_password"`
}

// RateLimitConfig holds per-tier rate limiting settings.
//
// Store selects the backing window store: "memory" for the in-process
// sharded store, "badger" for the persistent store at StorePath.
type RateLimitConfig struct {
	GlobalRequests int           `koanf:"global_requests"`
	GlobalWindow   time.Duration `koanf:"global_window"`
	AuthRequests   int           `koanf:"auth_requests"`
	AuthWindow     time.Duration `koanf:"auth_window"`
	WriteRequests  int           `koanf:"write_requests"`
	WriteWindow    time.Duration `koanf:"write_window"`
	Store          string        `koanf:"store"`
	StorePath      string        `koanf:"store_path"`
	SweepInterval  time.Duration `koanf:"sweep_interval"`
}

// CSRFConfig holds cross-site request forgery protection settings.
//
// Binding selects the verification strategy: "stateless" verifies the
// signed token alone, "double_submit" additionally requires a matching
// cookie copy, "synchronizer" binds tokens to server-side sessions.
type CSRFConfig struct {
	MaxAge          time.Duration `koanf:"max_age"`
	HeaderName      string        `koanf:"header_name"`
	CookieName      string        `koanf:"cookie_name"`
	CookieSecure    bool          `koanf:"cookie_secure"`
	Binding         string        `koanf:"binding"`
	ExemptPaths     []string      `koanf:"exempt_paths"`
	SessionCapacity int           `koanf:"session_capacity"`
}

// MonitorConfig holds security event monitoring settings.
type MonitorConfig struct {
	MaxEvents         int           `koanf:"max_events"`
	Retention         time.Duration `koanf:"retention"`
	NotifyMinSeverity string        `koanf:"notify_min_severity"`
	SweepInterval     time.Duration `koanf:"sweep_interval"`
	Webhook           WebhookConfig `koanf:"webhook"`
}

// WebhookConfig holds alert webhook delivery settings.
type WebhookConfig struct {
	Enabled     bool          `koanf:"enabled"`
	URL         string        `koanf:"url"`
	MinInterval time.Duration `koanf:"min_interval"`
	Timeout     time.Duration `koanf:"timeout"`
}

// PipelineConfig holds request defense pipeline settings.
type PipelineConfig struct {
	BypassPaths    []string      `koanf:"bypass_paths"`
	AuthPaths      []string      `koanf:"auth_paths"`
	Timeout        time.Duration `koanf:"timeout"`
	UseFingerprint bool          `koanf:"use_fingerprint"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by the config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     nil,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Security: SecurityConfig{
			SignatureSecret: "",
			JWTSecret:       "",
			SessionTimeout:  24 * time.Hour,
			AdminUsername:   "admin",
			AdminPassword:   "",
		},
		RateLimit: RateLimitConfig{
			GlobalRequests: 300,
			GlobalWindow:   time.Minute,
			AuthRequests:   10,
			AuthWindow:     5 * time.Minute,
			WriteRequests:  60,
			WriteWindow:    time.Minute,
			Store:          "memory",
			StorePath:      "/data/quill/ratelimit",
			SweepInterval:  time.Minute,
		},
		CSRF: CSRFConfig{
			MaxAge:          24 * time.Hour,
			HeaderName:      "X-CSRF-Token",
			CookieName:      "_csrf",
			CookieSecure:    true,
			Binding:         "stateless",
			ExemptPaths:     nil,
			SessionCapacity: 10000,
		},
		Monitor: MonitorConfig{
			MaxEvents:         10000,
			Retention:         7 * 24 * time.Hour,
			NotifyMinSeverity: "critical",
			SweepInterval:     time.Hour,
			Webhook: WebhookConfig{
				Enabled:     false,
				URL:         "",
				MinInterval: time.Second,
				Timeout:     10 * time.Second,
			},
		},
		Pipeline: PipelineConfig{
			BypassPaths:    []string{"/health", "/metrics"},
			AuthPaths:      []string{"/api/v1/auth/"},
			Timeout:        250 * time.Millisecond,
			UseFingerprint: false,
		},
	}
}
