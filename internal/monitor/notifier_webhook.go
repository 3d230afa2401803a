// Quill - Editorial Content Platform
// Copyright 2026 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quillhq/quill

package monitor

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/quillhq/quill/internal/logging"
	"github.com/quillhq/quill/internal/metrics"
)

// WebhookConfig configures the outbound alert webhook.
type WebhookConfig struct {
	// URL is the webhook endpoint. Empty disables the notifier.
	URL string `json:"url" validate:"omitempty,url"`

	// Headers are extra request headers, typically authentication.
	Headers map[string]string `json:"headers,omitempty"`

	// Enabled gates dispatch.
	Enabled bool `json:"enabled"`

	// MinInterval is the minimum spacing between deliveries. A flapping
	// rule must not turn the webhook into a flood.
	MinInterval time.Duration `json:"min_interval"`

	// Timeout bounds one HTTP delivery.
	Timeout time.Duration `json:"timeout"`
}

// WebhookPayload is the JSON body posted to the endpoint.
type WebhookPayload struct {
	Alert     *SecurityAlert `json:"alert"`
	EventType string         `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source"`
}

// WebhookNotifier posts critical alerts to an external endpoint. Deliveries
// go through a circuit breaker so a dead endpoint stops consuming goroutines,
// and through a rate limiter so alert storms collapse into a trickle.
type WebhookNotifier struct {
	mu      sync.RWMutex
	url     string
	headers map[string]string
	enabled bool

	client  *http.Client
	breaker *gobreaker.CircuitBreaker[struct{}]
	limiter *rate.Limiter
}

// NewWebhookNotifier creates a webhook notifier.
func NewWebhookNotifier(cfg WebhookConfig) *WebhookNotifier {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "alert-webhook",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("alert webhook circuit state changed")
		},
	})

	return &WebhookNotifier{
		url:     cfg.URL,
		headers: headers,
		enabled: cfg.Enabled,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
	}
}

// Name implements Notifier.
func (n *WebhookNotifier) Name() string { return "webhook" }

// Enabled implements Notifier.
func (n *WebhookNotifier) Enabled() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.enabled && n.url != ""
}

// SetEnabled toggles dispatch at runtime.
func (n *WebhookNotifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// Send implements Notifier. Non-2xx responses count as failures toward the
// breaker. A rate-limited or breaker-open delivery is dropped, not queued;
// alert visibility is preserved by the in-process log regardless.
func (n *WebhookNotifier) Send(ctx context.Context, alert *SecurityAlert) error {
	n.mu.RLock()
	url := n.url
	headers := make(map[string]string, len(n.headers))
	for k, v := range n.headers {
		headers[k] = v
	}
	n.mu.RUnlock()

	if !n.limiter.Allow() {
		metrics.WebhookDispatches.WithLabelValues("throttled").Inc()
		return nil
	}

	payload := WebhookPayload{
		Alert:     alert,
		EventType: "security_alert",
		Timestamp: time.Now(),
		Source:    "quill",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	_, err = n.breaker.Execute(func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, err
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := n.client.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return struct{}{}, fmt.Errorf("webhook returned status %d", resp.StatusCode)
		}
		return struct{}{}, nil
	})
	if err != nil {
		metrics.WebhookDispatches.WithLabelValues("failure").Inc()
		return err
	}

	metrics.WebhookDispatches.WithLabelValues("success").Inc()
	return nil
}
