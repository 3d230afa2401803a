// Quill - Editorial Content Platform
// Copyright 2026 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quillhq/quill

// Package api provides the admin HTTP surface for the defense stack:
// authentication, security alert management, metrics, and rate limit
// administration. Request structs declare their constraints with
// go-playground/validator v10 tags and are validated before any
// handler logic runs.
package api

// LoginRequest is the request body for POST /api/v1/auth/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required,min=1,max=64"`
	Password string `json:"password" validate:"required,min=1,max=256"`
}

// AlertsRequest holds the validated query parameters for GET /api/v1/alerts.
type AlertsRequest struct {
	IncludeResolved bool
	Severity        string `validate:"omitempty,severity"`
	Limit           int    `validate:"min=0,max=1000"`
}

// EventsRequest holds the validated query parameters for GET /api/v1/events.
type EventsRequest struct {
	Limit int `validate:"min=0,max=1000"`
}

// ResolveAlertRequest holds the validated path parameter for
// POST /api/v1/alerts/{id}/resolve.
type ResolveAlertRequest struct {
	ID string `validate:"required,uuid"`
}

// RateLimitResetRequest holds the validated path parameter for
// DELETE /api/v1/ratelimit/{identifier}.
type RateLimitResetRequest struct {
	Identifier string `validate:"required,min=1,max=256"`
}
