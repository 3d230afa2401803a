// Quill - Editorial Content Platform
// Copyright 2026 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quillhq/quill

package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestWebhookNotifierDelivers(t *testing.T) {
	t.Parallel()

	var got WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookConfig{URL: srv.URL, Enabled: true})
	alert := &SecurityAlert{ID: "a1", Type: EventLoginFailure, Severity: SeverityCritical, SourceIP: "203.0.113.9"}

	if err := n.Send(context.Background(), alert); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.Alert == nil || got.Alert.ID != "a1" {
		t.Errorf("payload alert = %+v, want a1", got.Alert)
	}
	if got.Source != "quill" || got.EventType != "security_alert" {
		t.Errorf("payload envelope = %q/%q", got.Source, got.EventType)
	}
}

func TestWebhookNotifierThrottles(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookConfig{URL: srv.URL, Enabled: true, MinInterval: time.Hour})
	alert := &SecurityAlert{ID: "a1", Severity: SeverityCritical}

	for i := 0; i < 5; i++ {
		if err := n.Send(context.Background(), alert); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}

	if got := hits.Load(); got != 1 {
		t.Errorf("endpoint hit %d times, want 1 (rest throttled)", got)
	}
}

func TestWebhookNotifierNon2xxIsError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookConfig{URL: srv.URL, Enabled: true, MinInterval: time.Nanosecond})

	if err := n.Send(context.Background(), &SecurityAlert{ID: "a1"}); err == nil {
		t.Fatal("502 should surface as an error")
	}
}

func TestWebhookNotifierEnabled(t *testing.T) {
	t.Parallel()

	n := NewWebhookNotifier(WebhookConfig{URL: "", Enabled: true})
	if n.Enabled() {
		t.Error("empty URL should disable the notifier")
	}

	n = NewWebhookNotifier(WebhookConfig{URL: "http://example.invalid", Enabled: true})
	if !n.Enabled() {
		t.Error("configured notifier should be enabled")
	}
	n.SetEnabled(false)
	if n.Enabled() {
		t.Error("SetEnabled(false) should disable")
	}
}

// recordingNotifier captures dispatched alerts for assertions.
type recordingNotifier struct {
	alerts chan *SecurityAlert
}

func (r *recordingNotifier) Name() string  { return "recording" }
func (r *recordingNotifier) Enabled() bool { return true }
func (r *recordingNotifier) Send(ctx context.Context, alert *SecurityAlert) error {
	r.alerts <- alert
	return nil
}

func TestMonitorDispatchesCriticalAlerts(t *testing.T) {
	t.Parallel()

	rec := &recordingNotifier{alerts: make(chan *SecurityAlert, 1)}
	m := New(Config{})
	m.AddNotifier(rec)

	logN(m, 5, SecurityEvent{Type: EventLoginFailure, SourceIP: "203.0.113.9"})

	select {
	case alert := <-rec.alerts:
		if alert.Type != EventLoginFailure {
			t.Errorf("dispatched alert type = %s", alert.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("critical alert was not dispatched")
	}
}

func TestMonitorSkipsSubCriticalDispatch(t *testing.T) {
	t.Parallel()

	rec := &recordingNotifier{alerts: make(chan *SecurityAlert, 1)}
	m := New(Config{}) // default NotifyMinSeverity is critical
	m.AddNotifier(rec)

	// file_upload's default rule is medium severity.
	logN(m, 100, SecurityEvent{Type: EventFileUpload, SourceIP: "203.0.113.9"})

	select {
	case alert := <-rec.alerts:
		t.Fatalf("medium alert %s should not be dispatched", alert.ID)
	case <-time.After(100 * time.Millisecond):
	}

	if got := len(m.Alerts(false)); got != 1 {
		t.Errorf("alert should still open locally, got %d", got)
	}
}
