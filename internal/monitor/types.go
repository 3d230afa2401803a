// Quill - Editorial Content Platform
// Copyright 2026 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quillhq/quill

// Package monitor keeps the security event log, correlates events into
// alerts, and exposes aggregate metrics for the admin surface.
package monitor

import (
	"time"
)

// EventType enumerates the kinds of security events the platform records.
type EventType string

const (
	EventLoginFailure        EventType = "login_failure"
	EventLoginSuccess        EventType = "login_success"
	EventSuspiciousActivity  EventType = "suspicious_activity"
	EventAdminAction         EventType = "admin_action"
	EventFileUpload          EventType = "file_upload"
	EventRateLimitExceeded   EventType = "rate_limit_exceeded"
	EventRateLimiterDegraded EventType = "rate_limiter_degraded"
	EventCSRFFailure         EventType = "csrf_failure"
	EventThreatMatch         EventType = "threat_match"
	EventUnexpectedError     EventType = "unexpected_error"
)

// Severity ranks events and alerts.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// rank orders severities for threshold comparisons.
func (s Severity) rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return -1
	}
}

// AtLeast reports whether s is at or above min.
func (s Severity) AtLeast(min Severity) bool {
	return s.rank() >= min.rank()
}

// SecurityEvent is one recorded occurrence. Events are immutable once
// logged; the monitor copies what it stores and never hands out the
// internal slice.
type SecurityEvent struct {
	// ID is assigned by the monitor at log time.
	ID string `json:"id"`

	// Type classifies the event.
	Type EventType `json:"type"`

	// Severity is the event's own severity, independent of any alert.
	Severity Severity `json:"severity"`

	// SourceIP is the originating client address.
	SourceIP string `json:"source_ip"`

	// UserAgent is the client's User-Agent, truncated by the caller.
	UserAgent string `json:"user_agent,omitempty"`

	// UserID identifies the acting user when known. For admin actions it
	// doubles as the correlation actor in place of the source address.
	UserID string `json:"user_id,omitempty"`

	// Timestamp is when the event occurred. Assigned at log time when
	// zero.
	Timestamp time.Time `json:"timestamp"`

	// Details carries internal diagnostic context. Never surfaced to
	// callers; rejection responses only ever carry the sanitized
	// envelope.
	Details map[string]string `json:"details,omitempty"`
}

// SecurityAlert is the product of a correlation rule firing.
type SecurityAlert struct {
	// ID identifies the alert for the admin surface.
	ID string `json:"id"`

	// Type is the correlated event type.
	Type EventType `json:"type"`

	// Severity comes from the rule that fired.
	Severity Severity `json:"severity"`

	// SourceIP is the correlated source, or the actor for admin actions.
	SourceIP string `json:"source_ip"`

	// Message is a short operator-facing summary.
	Message string `json:"message"`

	// Count is the number of correlated events observed so far. It keeps
	// rising while the alert stays open instead of firing duplicates.
	Count int `json:"count"`

	// TriggeredAt is when the rule's threshold was first crossed.
	TriggeredAt time.Time `json:"triggered_at"`

	// LastEventAt is the timestamp of the most recent correlated event.
	LastEventAt time.Time `json:"last_event_at"`

	// Resolved, ResolvedBy, and ResolvedAt record the one-way operator
	// resolution. Alerts are never auto-closed.
	Resolved   bool       `json:"resolved"`
	ResolvedBy string     `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`

	correlationKey string
}

// CorrelationRule fires an alert when Threshold events of Type from the
// same source land within the trailing Window.
type CorrelationRule struct {
	// Type is the event type this rule watches.
	Type EventType `json:"type"`

	// Threshold is the event count that triggers the alert.
	Threshold int `json:"threshold" validate:"gt=0"`

	// Window is the trailing correlation window.
	Window time.Duration `json:"window" validate:"gt=0"`

	// Severity is assigned to the resulting alert.
	Severity Severity `json:"severity"`

	// Message summarizes the alert for operators.
	Message string `json:"message"`
}

// DefaultRules returns the default correlation table.
func DefaultRules() []CorrelationRule {
	return []CorrelationRule{
		{
			Type:      EventLoginFailure,
			Threshold: 5,
			Window:    15 * time.Minute,
			Severity:  SeverityCritical,
			Message:   "repeated login failures, possible credential stuffing",
		},
		{
			Type:      EventSuspiciousActivity,
			Threshold: 10,
			Window:    time.Hour,
			Severity:  SeverityHigh,
			Message:   "sustained suspicious activity from one source",
		},
		{
			Type:      EventAdminAction,
			Threshold: 50,
			Window:    time.Hour,
			Severity:  SeverityMedium,
			Message:   "unusually high admin action volume for one actor",
		},
		{
			Type:      EventFileUpload,
			Threshold: 100,
			Window:    time.Hour,
			Severity:  SeverityMedium,
			Message:   "upload volume from one source exceeds normal editorial use",
		},
	}
}

// Config configures the monitor.
type Config struct {
	// MaxEvents caps the event log. Oldest entries are evicted past this.
	MaxEvents int `json:"max_events"`

	// Retention is how long events and resolved alerts are kept.
	Retention time.Duration `json:"retention"`

	// Rules is the correlation table. Empty selects DefaultRules.
	Rules []CorrelationRule `json:"rules"`

	// NotifyMinSeverity is the minimum alert severity dispatched to
	// notifiers. Defaults to critical so only pager-worthy alerts leave
	// the process.
	NotifyMinSeverity Severity `json:"notify_min_severity"`
}

// DefaultConfig returns the default monitor configuration.
func DefaultConfig() Config {
	return Config{
		MaxEvents:         10000,
		Retention:         7 * 24 * time.Hour,
		Rules:             DefaultRules(),
		NotifyMinSeverity: SeverityCritical,
	}
}

// MetricsSnapshot is the read-only aggregate view over the trailing 24
// hours.
type MetricsSnapshot struct {
	// TotalEvents is the event count in the window.
	TotalEvents int `json:"total_events"`

	// EventsByType counts events per type.
	EventsByType map[EventType]int `json:"events_by_type"`

	// EventsBySeverity counts events per severity.
	EventsBySeverity map[Severity]int `json:"events_by_severity"`

	// TopOffenders lists the highest-volume sources, descending.
	TopOffenders []Offender `json:"top_offenders"`

	// OpenAlerts and ResolvedAlerts count the alert population.
	OpenAlerts     int `json:"open_alerts"`
	ResolvedAlerts int `json:"resolved_alerts"`

	// GeneratedAt is when the snapshot was taken.
	GeneratedAt time.Time `json:"generated_at"`
}

// Offender pairs a source identifier with its event volume.
type Offender struct {
	Identifier string `json:"identifier"`
	Count      int    `json:"count"`
}
