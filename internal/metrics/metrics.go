// Quill - Editorial Content Platform
// Copyright 2026 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quillhq/quill

// Package metrics provides Prometheus instrumentation for the defense
// pipeline: admissions and rejections, rate limiter decisions, threat
// matches, security events and alerts, and webhook dispatch outcomes.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline metrics
	PipelineDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quill_pipeline_decisions_total",
			Help: "Total number of defense pipeline decisions",
		},
		[]string{"decision", "stage"}, // decision: admitted|rejected, stage: bypass|rate_limit|threat|csrf|admitted
	)

	PipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quill_pipeline_duration_seconds",
			Help:    "Defense pipeline evaluation duration in seconds",
			Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		},
	)

	PipelineFailOpen = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quill_pipeline_fail_open_total",
			Help: "Total number of requests admitted because a pipeline stage failed",
		},
		[]string{"reason"}, // panic|timeout|store_error
	)

	// Rate limiter metrics
	RateLimitChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quill_ratelimit_checks_total",
			Help: "Total number of rate limiter checks",
		},
		[]string{"tier", "allowed"},
	)

	RateLimitActiveWindows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quill_ratelimit_active_windows",
			Help: "Current number of active rate limit windows",
		},
	)

	// Threat detector metrics
	ThreatMatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quill_threat_matches_total",
			Help: "Total number of threat pattern matches",
		},
		[]string{"class", "severity"},
	)

	// CSRF metrics
	CSRFFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quill_csrf_failures_total",
			Help: "Total number of CSRF verification failures",
		},
		[]string{"reason"}, // missing|invalid|expired|mismatch
	)

	// Security monitor metrics
	SecurityEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quill_security_events_total",
			Help: "Total number of security events logged",
		},
		[]string{"type", "severity"},
	)

	SecurityAlerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quill_security_alerts_total",
			Help: "Total number of security alerts generated",
		},
		[]string{"type", "severity"},
	)

	OpenAlerts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quill_security_alerts_open",
			Help: "Current number of unresolved security alerts",
		},
	)

	// Webhook dispatch metrics
	WebhookDispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quill_webhook_dispatches_total",
			Help: "Total number of alert webhook dispatch attempts",
		},
		[]string{"outcome"}, // delivered|failed|breaker_open|throttled
	)

	// Admin API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quill_api_requests_total",
			Help: "Total number of admin API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quill_api_request_duration_seconds",
			Help:    "Admin API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quill_api_active_requests",
			Help: "Current number of active admin API requests",
		},
	)
)

// RecordPipelineDecision records a pipeline admit/reject decision with the
// stage that decided it.
func RecordPipelineDecision(admitted bool, stage string, duration time.Duration) {
	decision := "rejected"
	if admitted {
		decision = "admitted"
	}
	PipelineDecisions.WithLabelValues(decision, stage).Inc()
	PipelineDuration.Observe(duration.Seconds())
}

// RecordRateLimitCheck records the outcome of a limiter check.
func RecordRateLimitCheck(tier string, allowed bool) {
	RateLimitChecks.WithLabelValues(tier, strconv.FormatBool(allowed)).Inc()
}

// RecordAPIRequest records an admin API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the active request gauge.
func TrackActiveRequest(start bool) {
	if start {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
