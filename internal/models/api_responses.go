// Quill - Editorial Content Platform
// Copyright 2026 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quillhq/quill

// Package models defines the shared request and response types for the
// admin API. Error responses use the taxonomy envelope from the respond
// package; these types cover successful responses only.
package models

import "time"

// APIResponse is the standard success envelope for admin API endpoints.
//
// Example:
//
//	{
//	  "status": "ok",
//	  "data": {...},
//	  "metadata": {"timestamp": "2026-08-29T12:00:00Z"}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
}

// Metadata contains response metadata for observability.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	Count     int       `json:"count,omitempty"`
}

// LoginResponse carries a freshly issued session token.
type LoginResponse struct {
	Token     string    `json:"token"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CSRFTokenResponse carries a freshly issued CSRF token and the header
// clients must echo it in.
type CSRFTokenResponse struct {
	Token     string `json:"token"`
	Header    string `json:"header"`
	MaxAgeSec int    `json:"max_age_seconds"`
}

// HealthResponse reports liveness and basic runtime information.
type HealthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// ResolveAlertResponse confirms an alert resolution.
type ResolveAlertResponse struct {
	ID         string `json:"id"`
	Resolved   bool   `json:"resolved"`
	ResolvedBy string `json:"resolved_by"`
}

// RateLimitResetResponse confirms a rate limit window reset.
type RateLimitResetResponse struct {
	Identifier string `json:"identifier"`
	Reset      bool   `json:"reset"`
}
