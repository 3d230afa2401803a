// Quill - Editorial Content Platform
// Copyright 2026 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quillhq/quill

package monitor

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func newTestMonitor(cfg Config) *Monitor {
	return New(cfg)
}

func logN(m *Monitor, n int, event SecurityEvent) {
	ctx := context.Background()
	for i := 0; i < n; i++ {
		m.LogEvent(ctx, event)
	}
}

func TestLogEventAssignsIdentity(t *testing.T) {
	t.Parallel()

	m := newTestMonitor(Config{})

	stored := m.LogEvent(context.Background(), SecurityEvent{
		Type:     EventLoginFailure,
		SourceIP: "203.0.113.9",
	})

	if stored.ID == "" {
		t.Error("event should get an ID")
	}
	if stored.Timestamp.IsZero() {
		t.Error("event should get a timestamp")
	}
	if stored.Severity != SeverityLow {
		t.Errorf("default severity = %s, want low", stored.Severity)
	}
}

func TestCorrelationFiresExactlyOneAlert(t *testing.T) {
	t.Parallel()

	m := newTestMonitor(Config{})
	event := SecurityEvent{Type: EventLoginFailure, SourceIP: "203.0.113.9"}

	logN(m, 4, event)
	if got := len(m.Alerts(false)); got != 0 {
		t.Fatalf("below threshold: %d alerts open, want 0", got)
	}

	logN(m, 1, event)
	alerts := m.Alerts(false)
	if len(alerts) != 1 {
		t.Fatalf("at threshold: %d alerts open, want exactly 1", len(alerts))
	}
	if alerts[0].Type != EventLoginFailure {
		t.Errorf("alert type = %s", alerts[0].Type)
	}
	if alerts[0].Severity != SeverityCritical {
		t.Errorf("alert severity = %s, want critical", alerts[0].Severity)
	}
	if alerts[0].Count != 5 {
		t.Errorf("alert count = %d, want 5", alerts[0].Count)
	}

	// A sixth event is absorbed by the open alert, never a duplicate.
	logN(m, 1, event)
	alerts = m.Alerts(false)
	if len(alerts) != 1 {
		t.Fatalf("after sixth event: %d alerts open, want 1", len(alerts))
	}
	if alerts[0].Count != 6 {
		t.Errorf("alert count after absorb = %d, want 6", alerts[0].Count)
	}
}

// captureBroadcaster records the payload handed to BroadcastJSON.
type captureBroadcaster struct {
	alerts chan *SecurityAlert
}

func (b *captureBroadcaster) BroadcastJSON(messageType string, data interface{}) {
	if alert, ok := data.(*SecurityAlert); ok {
		b.alerts <- alert
	}
}

func TestDispatchedAlertIsASnapshot(t *testing.T) {
	t.Parallel()

	// Sinks marshal the alert asynchronously, so they must receive a
	// copy that later absorbed events cannot mutate.
	notified := &recordingNotifier{alerts: make(chan *SecurityAlert, 1)}
	broadcast := &captureBroadcaster{alerts: make(chan *SecurityAlert, 1)}
	m := newTestMonitor(Config{})
	m.AddNotifier(notified)
	m.SetBroadcaster(broadcast)

	event := SecurityEvent{Type: EventLoginFailure, SourceIP: "203.0.113.9"}
	logN(m, 5, event)

	var dispatched, streamed *SecurityAlert
	select {
	case dispatched = <-notified.alerts:
	case <-time.After(2 * time.Second):
		t.Fatal("alert was not dispatched")
	}
	select {
	case streamed = <-broadcast.alerts:
	case <-time.After(2 * time.Second):
		t.Fatal("alert was not broadcast")
	}

	logN(m, 200, event)

	if dispatched.Count != 5 {
		t.Errorf("notified alert count = %d, want the fired snapshot 5", dispatched.Count)
	}
	if streamed.Count != 5 {
		t.Errorf("broadcast alert count = %d, want the fired snapshot 5", streamed.Count)
	}

	live, ok := m.Alert(dispatched.ID)
	if !ok {
		t.Fatal("alert should still be open")
	}
	if live.Count != 205 {
		t.Errorf("live alert count = %d, want 205 after absorbing", live.Count)
	}
}

func TestCorrelationIsolatesSources(t *testing.T) {
	t.Parallel()

	m := newTestMonitor(Config{})

	logN(m, 3, SecurityEvent{Type: EventLoginFailure, SourceIP: "203.0.113.1"})
	logN(m, 3, SecurityEvent{Type: EventLoginFailure, SourceIP: "203.0.113.2"})

	if got := len(m.Alerts(false)); got != 0 {
		t.Fatalf("three failures each from two sources fired %d alerts, want 0", got)
	}
}

func TestAdminActionsCorrelateByActor(t *testing.T) {
	t.Parallel()

	m := newTestMonitor(Config{Rules: []CorrelationRule{{
		Type:      EventAdminAction,
		Threshold: 3,
		Window:    time.Hour,
		Severity:  SeverityMedium,
		Message:   "admin volume",
	}}})

	// Same actor from rotating addresses still correlates.
	for i := 0; i < 3; i++ {
		m.LogEvent(context.Background(), SecurityEvent{
			Type:     EventAdminAction,
			SourceIP: fmt.Sprintf("203.0.113.%d", i),
			UserID:   "editor-7",
		})
	}

	alerts := m.Alerts(false)
	if len(alerts) != 1 {
		t.Fatalf("%d alerts, want 1", len(alerts))
	}
	if alerts[0].SourceIP != "editor-7" {
		t.Errorf("correlated actor = %s, want editor-7", alerts[0].SourceIP)
	}
}

func TestResolveAlert(t *testing.T) {
	t.Parallel()

	m := newTestMonitor(Config{})
	logN(m, 5, SecurityEvent{Type: EventLoginFailure, SourceIP: "203.0.113.9"})

	alerts := m.Alerts(false)
	if len(alerts) != 1 {
		t.Fatalf("%d alerts, want 1", len(alerts))
	}
	id := alerts[0].ID

	if !m.ResolveAlert(id, "ops@quill") {
		t.Fatal("first resolve should succeed")
	}

	resolved, ok := m.Alert(id)
	if !ok {
		t.Fatal("resolved alert should remain readable")
	}
	if !resolved.Resolved {
		t.Error("alert should be marked resolved")
	}
	if resolved.ResolvedBy != "ops@quill" {
		t.Errorf("resolvedBy = %s", resolved.ResolvedBy)
	}
	if resolved.ResolvedAt == nil {
		t.Error("resolvedAt should be stamped")
	}

	// One-way: a second resolve and an unknown ID both fail.
	if m.ResolveAlert(id, "again") {
		t.Error("second resolve should fail")
	}
	if m.ResolveAlert("no-such-alert", "ops") {
		t.Error("unknown alert resolve should fail")
	}

	if got := len(m.Alerts(false)); got != 0 {
		t.Errorf("open alerts after resolve = %d, want 0", got)
	}
	if got := len(m.Alerts(true)); got != 1 {
		t.Errorf("total alerts = %d, want 1", got)
	}
}

func TestAlertRefiresAfterResolve(t *testing.T) {
	t.Parallel()

	m := newTestMonitor(Config{Rules: []CorrelationRule{{
		Type:      EventLoginFailure,
		Threshold: 2,
		Window:    time.Hour,
		Severity:  SeverityHigh,
		Message:   "logins",
	}}})
	event := SecurityEvent{Type: EventLoginFailure, SourceIP: "203.0.113.9"}

	logN(m, 2, event)
	first := m.Alerts(false)
	if len(first) != 1 {
		t.Fatalf("%d alerts, want 1", len(first))
	}
	m.ResolveAlert(first[0].ID, "ops")

	// With the alert closed and events still in window, the next event
	// crosses the threshold again and opens a new alert.
	logN(m, 1, event)
	second := m.Alerts(false)
	if len(second) != 1 {
		t.Fatalf("after resolve: %d open alerts, want 1", len(second))
	}
	if second[0].ID == first[0].ID {
		t.Error("re-fired alert should have a fresh ID")
	}
}

func TestEventRingEviction(t *testing.T) {
	t.Parallel()

	m := newTestMonitor(Config{MaxEvents: 5})
	for i := 0; i < 8; i++ {
		m.LogEvent(context.Background(), SecurityEvent{
			Type:     EventFileUpload,
			SourceIP: fmt.Sprintf("203.0.113.%d", i),
		})
	}

	events := m.Events(0)
	if len(events) != 5 {
		t.Fatalf("ring holds %d events, want 5", len(events))
	}
	// Newest first, oldest three evicted.
	if events[0].SourceIP != "203.0.113.7" {
		t.Errorf("newest = %s, want 203.0.113.7", events[0].SourceIP)
	}
	if events[4].SourceIP != "203.0.113.3" {
		t.Errorf("oldest survivor = %s, want 203.0.113.3", events[4].SourceIP)
	}
}

func TestMetricsSnapshot(t *testing.T) {
	t.Parallel()

	m := newTestMonitor(Config{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		m.LogEvent(ctx, SecurityEvent{Type: EventThreatMatch, Severity: SeverityHigh, SourceIP: "203.0.113.1"})
	}
	m.LogEvent(ctx, SecurityEvent{Type: EventCSRFFailure, Severity: SeverityMedium, SourceIP: "203.0.113.2"})

	snap := m.Metrics()
	if snap.TotalEvents != 4 {
		t.Errorf("TotalEvents = %d, want 4", snap.TotalEvents)
	}
	if snap.EventsByType[EventThreatMatch] != 3 {
		t.Errorf("threat matches = %d, want 3", snap.EventsByType[EventThreatMatch])
	}
	if snap.EventsBySeverity[SeverityHigh] != 3 {
		t.Errorf("high events = %d, want 3", snap.EventsBySeverity[SeverityHigh])
	}
	if len(snap.TopOffenders) == 0 || snap.TopOffenders[0].Identifier != "203.0.113.1" {
		t.Errorf("top offender = %+v, want 203.0.113.1", snap.TopOffenders)
	}
}

func TestSweepSparesUnresolvedAlerts(t *testing.T) {
	t.Parallel()

	m := newTestMonitor(Config{Retention: 30 * time.Millisecond, Rules: []CorrelationRule{{
		Type:      EventLoginFailure,
		Threshold: 1,
		Window:    time.Hour,
		Severity:  SeverityHigh,
		Message:   "logins",
	}}})

	m.LogEvent(context.Background(), SecurityEvent{Type: EventLoginFailure, SourceIP: "203.0.113.9"})
	time.Sleep(50 * time.Millisecond)

	eventsRemoved, alertsRemoved := m.Sweep(context.Background())
	if eventsRemoved != 1 {
		t.Errorf("eventsRemoved = %d, want 1", eventsRemoved)
	}
	if alertsRemoved != 0 {
		t.Errorf("alertsRemoved = %d, want 0 while unresolved", alertsRemoved)
	}
	if got := len(m.Alerts(false)); got != 1 {
		t.Fatalf("unresolved alert was swept; open = %d", got)
	}

	// Once resolved and past retention, the sweep reclaims it.
	id := m.Alerts(false)[0].ID
	m.ResolveAlert(id, "ops")
	time.Sleep(50 * time.Millisecond)

	_, alertsRemoved = m.Sweep(context.Background())
	if alertsRemoved != 1 {
		t.Errorf("alertsRemoved after resolve = %d, want 1", alertsRemoved)
	}
	if _, ok := m.Alert(id); ok {
		t.Error("swept alert should no longer be readable")
	}
}

func TestSeverityAtLeast(t *testing.T) {
	t.Parallel()

	if !SeverityCritical.AtLeast(SeverityHigh) {
		t.Error("critical should be at least high")
	}
	if SeverityLow.AtLeast(SeverityMedium) {
		t.Error("low should not be at least medium")
	}
	if !SeverityMedium.AtLeast(SeverityMedium) {
		t.Error("equal severities should pass")
	}
}
