// Quill - Editorial Content Platform
// Copyright 2026 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quillhq/quill

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/quill/config.yaml",
	"/etc/quill/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load resolves the full configuration: defaults, then the config file
// if one exists, then environment variables. The result is validated
// before being returned.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Environment variables have the highest priority. Names are mapped
	// to koanf paths through an explicit table so stray variables in the
	// process environment cannot pollute the config.
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first readable config file path, honoring
// the CONFIG_PATH override. Returns "" when no file is present, which
// is not an error: env-only deployments are supported.
func findConfigFile() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		return path
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps environment variable names to koanf paths.
// Unmapped variables return "" and are skipped.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server mappings
		"http_host":          "server.host",
		"http_port":          "server.port",
		"http_read_timeout":  "server.read_timeout",
		"http_write_timeout": "server.write_timeout",
		"http_idle_timeout":  "server.idle_timeout",
		"shutdown_timeout":   "server.shutdown_timeout",
		"cors_origins":       "server.cors_origins",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",

		// Security mappings
		"signature_secret": "security.signature_secret",
		"jwt_secret":       "security.jwt_secret",
		"session_timeout":  "security.session_timeout",
		"admin_username":   "security.admin_username",
		"admin_password":   "security.admin_password",

		// Rate limit mappings
		"rate_limit_global_requests": "ratelimit.global_requests",
		"rate_limit_global_window":   "ratelimit.global_window",
		"rate_limit_auth_requests":   "ratelimit.auth_requests",
		"rate_limit_auth_window":     "ratelimit.auth_window",
		"rate_limit_write_requests":  "ratelimit.write_requests",
		"rate_limit_write_window":    "ratelimit.write_window",
		"rate_limit_store":           "ratelimit.store",
		"rate_limit_store_path":      "ratelimit.store_path",
		"rate_limit_sweep_interval":  "ratelimit.sweep_interval",

		// CSRF mappings
		"csrf_max_age":          "csrf.max_age",
		"csrf_header_name":      "csrf.header_name",
		"csrf_cookie_name":      "csrf.cookie_name",
		"csrf_cookie_secure":    "csrf.cookie_secure",
		"csrf_binding":          "csrf.binding",
		"csrf_exempt_paths":     "csrf.exempt_paths",
		"csrf_session_capacity": "csrf.session_capacity",

		// Monitor mappings
		"monitor_max_events":          "monitor.max_events",
		"monitor_retention":           "monitor.retention",
		"monitor_notify_min_severity": "monitor.notify_min_severity",
		"monitor_sweep_interval":      "monitor.sweep_interval",
		"alert_webhook_enabled":       "monitor.webhook.enabled",
		"alert_webhook_url":           "monitor.webhook.url",
		"alert_webhook_min_interval":  "monitor.webhook.min_interval",
		"alert_webhook_timeout":       "monitor.webhook.timeout",

		// Pipeline mappings
		"pipeline_bypass_paths":    "pipeline.bypass_paths",
		"pipeline_auth_paths":      "pipeline.auth_paths",
		"pipeline_timeout":         "pipeline.timeout",
		"pipeline_use_fingerprint": "pipeline.use_fingerprint",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}

// sliceFields lists config paths that accept comma-separated strings
// from environment variables.
var sliceFields = []string{
	"server.cors_origins",
	"csrf.exempt_paths",
	"pipeline.bypass_paths",
	"pipeline.auth_paths",
}

// processSliceFields converts comma-separated string values into string
// slices. YAML files produce real slices; env vars produce flat strings
// that need splitting.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceFields {
		raw := k.Get(path)
		s, ok := raw.(string)
		if !ok {
			continue
		}
		var parts []string
		for _, part := range strings.Split(s, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}
