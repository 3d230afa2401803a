// Quill - Editorial Content Platform
// Copyright 2026 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quillhq/quill

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// validTestConfig returns a config that passes validation, for tests
// that mutate a single field.
func validTestConfig() *Config {
	cfg := defaultConfig()
	cfg.Security.SignatureSecret = strings.Repeat("s", 32)
	cfg.Security.JWTSecret = strings.Repeat("j", 32)
	cfg.Security.AdminPassword = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"
	return cfg
}

func TestDefaultConfigFailsValidationWithoutSecrets(t *testing.T) {
	t.Parallel()

	if err := defaultConfig().Validate(); err == nil {
		t.Fatal("expected validation to fail without secrets")
	}
}

func TestValidConfigPassesValidation(t *testing.T) {
	t.Parallel()

	if err := validTestConfig().Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"short signature secret", func(c *Config) { c.Security.SignatureSecret = "short" }},
		{"short jwt secret", func(c *Config) { c.Security.JWTSecret = "short" }},
		{"identical secrets", func(c *Config) {
			c.Security.JWTSecret = c.Security.SignatureSecret
		}},
		{"plaintext admin password", func(c *Config) { c.Security.AdminPassword = "hunter2" }},
		{"zero tier requests", func(c *Config) { c.RateLimit.GlobalRequests = 0 }},
		{"negative tier window", func(c *Config) { c.RateLimit.AuthWindow = -time.Second }},
		{"unknown store", func(c *Config) { c.RateLimit.Store = "redis" }},
		{"badger without path", func(c *Config) {
			c.RateLimit.Store = "badger"
			c.RateLimit.StorePath = ""
		}},
		{"unknown csrf binding", func(c *Config) { c.CSRF.Binding = "origin" }},
		{"relative exempt path", func(c *Config) { c.CSRF.ExemptPaths = []string{"webhooks"} }},
		{"zero monitor events", func(c *Config) { c.Monitor.MaxEvents = 0 }},
		{"unknown severity", func(c *Config) { c.Monitor.NotifyMinSeverity = "urgent" }},
		{"webhook enabled without url", func(c *Config) { c.Monitor.Webhook.Enabled = true }},
		{"webhook ftp url", func(c *Config) {
			c.Monitor.Webhook.Enabled = true
			c.Monitor.Webhook.URL = "ftp://alerts.example.com"
		}},
		{"zero pipeline timeout", func(c *Config) { c.Pipeline.Timeout = 0 }},
		{"relative bypass path", func(c *Config) { c.Pipeline.BypassPaths = []string{"health"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validTestConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	t.Parallel()

	tests := []struct {
		env  string
		want string
	}{
		{"JWT_SECRET", "security.jwt_secret"},
		{"HTTP_PORT", "server.port"},
		{"RATE_LIMIT_STORE", "ratelimit.store"},
		{"CSRF_BINDING", "csrf.binding"},
		{"ALERT_WEBHOOK_URL", "monitor.webhook.url"},
		{"PIPELINE_TIMEOUT", "pipeline.timeout"},
		{"PATH", ""},
		{"HOME", ""},
		{"RANDOM_UNRELATED_VAR", ""},
	}

	for _, tt := range tests {
		if got := envTransformFunc(tt.env); got != tt.want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", tt.env, got, tt.want)
		}
	}
}

func TestProcessSliceFieldsSplitsCommaSeparated(t *testing.T) {
	t.Parallel()

	k := koanf.New(".")
	if err := k.Set("csrf.exempt_paths", "/webhooks/github, /webhooks/stripe"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := processSliceFields(k); err != nil {
		t.Fatalf("processSliceFields: %v", err)
	}

	got := k.Strings("csrf.exempt_paths")
	want := []string{"/webhooks/github", "/webhooks/stripe"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("element %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestYAMLFileOverridesDefaults(t *testing.T) {
	t.Parallel()

	content := []byte(`
server:
  port: 9090
ratelimit:
  global_requests: 500
csrf:
  binding: double_submit
`)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		t.Fatalf("load file: %v", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.RateLimit.GlobalRequests != 500 {
		t.Errorf("RateLimit.GlobalRequests = %d, want 500", cfg.RateLimit.GlobalRequests)
	}
	if cfg.CSRF.Binding != "double_submit" {
		t.Errorf("CSRF.Binding = %q, want double_submit", cfg.CSRF.Binding)
	}
	// Untouched fields keep their defaults.
	if cfg.Monitor.MaxEvents != 10000 {
		t.Errorf("Monitor.MaxEvents = %d, want 10000", cfg.Monitor.MaxEvents)
	}
}

func TestDefaultsMatchDocumentedTiers(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	if cfg.RateLimit.GlobalRequests != 300 || cfg.RateLimit.GlobalWindow != time.Minute {
		t.Errorf("global tier = %d/%s, want 300/1m", cfg.RateLimit.GlobalRequests, cfg.RateLimit.GlobalWindow)
	}
	if cfg.RateLimit.AuthRequests != 10 || cfg.RateLimit.AuthWindow != 5*time.Minute {
		t.Errorf("auth tier = %d/%s, want 10/5m", cfg.RateLimit.AuthRequests, cfg.RateLimit.AuthWindow)
	}
	if cfg.RateLimit.WriteRequests != 60 || cfg.RateLimit.WriteWindow != time.Minute {
		t.Errorf("write tier = %d/%s, want 60/1m", cfg.RateLimit.WriteRequests, cfg.RateLimit.WriteWindow)
	}
}
