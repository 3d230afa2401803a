// Quill - Editorial Content Platform
// Copyright 2026 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quillhq/quill

package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quillhq/quill/internal/logging"
	"github.com/quillhq/quill/internal/metrics"
)

// notifyTimeout bounds a single notifier dispatch. Dispatch happens off the
// hot path; an unreachable sink must never stall request handling.
const notifyTimeout = 10 * time.Second

// Notifier delivers alerts to an external sink.
type Notifier interface {
	// Name identifies the notifier in logs.
	Name() string

	// Enabled reports whether the notifier should receive alerts.
	Enabled() bool

	// Send delivers one alert. Errors are logged, never propagated to
	// the request path.
	Send(ctx context.Context, alert *SecurityAlert) error
}

// Broadcaster pushes alerts to connected admin clients.
type Broadcaster interface {
	BroadcastJSON(messageType string, data interface{})
}

// Monitor is the shared security monitor. Construct one at process start
// and hand it to the pipeline and the admin API.
type Monitor struct {
	cfg Config

	mu       sync.RWMutex
	events   []*SecurityEvent // ring buffer, see head/size
	head     int
	size     int
	open     map[string]*SecurityAlert // keyed by correlation key
	byID     map[string]*SecurityAlert // open and resolved, keyed by ID
	resolved []*SecurityAlert

	notifiers   []Notifier
	broadcaster Broadcaster
}

// New creates a monitor. Zero-valued config fields take defaults.
func New(cfg Config) *Monitor {
	def := DefaultConfig()
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = def.MaxEvents
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	if len(cfg.Rules) == 0 {
		cfg.Rules = def.Rules
	}
	if cfg.NotifyMinSeverity == "" {
		cfg.NotifyMinSeverity = def.NotifyMinSeverity
	}

	return &Monitor{
		cfg:    cfg,
		events: make([]*SecurityEvent, cfg.MaxEvents),
		open:   make(map[string]*SecurityAlert),
		byID:   make(map[string]*SecurityAlert),
	}
}

// AddNotifier registers an external alert sink.
func (m *Monitor) AddNotifier(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifiers = append(m.notifiers, n)
}

// SetBroadcaster registers the live admin broadcast sink.
func (m *Monitor) SetBroadcaster(b Broadcaster) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcaster = b
}

// LogEvent appends an event and evaluates correlation rules against it.
// The stored event gets an ID and timestamp; the caller's struct is copied,
// never retained.
func (m *Monitor) LogEvent(ctx context.Context, event SecurityEvent) *SecurityEvent {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Severity == "" {
		event.Severity = SeverityLow
	}

	stored := event

	m.mu.Lock()
	m.append(&stored)
	alert, fired := m.correlate(&stored)
	if fired {
		// Snapshot under the lock: sinks marshal asynchronously while
		// later absorbed events keep mutating the live alert.
		cp := *alert
		alert = &cp
	}
	m.mu.Unlock()

	metrics.SecurityEvents.WithLabelValues(string(stored.Type), string(stored.Severity)).Inc()

	logging.Ctx(ctx).Debug().
		Str("event_id", stored.ID).
		Str("type", string(stored.Type)).
		Str("severity", string(stored.Severity)).
		Str("source_ip", stored.SourceIP).
		Msg("security event logged")

	if fired {
		m.dispatch(alert)
	}

	return &stored
}

// append writes into the ring buffer, evicting the oldest entry at
// capacity. Caller holds the write lock.
func (m *Monitor) append(event *SecurityEvent) {
	idx := (m.head + m.size) % len(m.events)
	if m.size == len(m.events) {
		// Full: overwrite the oldest and advance the head.
		m.events[m.head] = event
		m.head = (m.head + 1) % len(m.events)
	} else {
		m.events[idx] = event
		m.size++
	}
}

// correlate evaluates the rule table against the incoming event. Returns
// the alert and whether it newly fired. Caller holds the write lock.
func (m *Monitor) correlate(event *SecurityEvent) (*SecurityAlert, bool) {
	var rule *CorrelationRule
	for i := range m.cfg.Rules {
		if m.cfg.Rules[i].Type == event.Type {
			rule = &m.cfg.Rules[i]
			break
		}
	}
	if rule == nil {
		return nil, false
	}

	actor := correlationActor(event)
	key := string(event.Type) + "|" + actor

	// An open alert for this key absorbs the event instead of re-firing.
	if existing, ok := m.open[key]; ok {
		existing.Count++
		existing.LastEventAt = event.Timestamp
		return existing, false
	}

	count := m.countRecent(event.Type, actor, rule.Window)
	if count < rule.Threshold {
		return nil, false
	}

	alert := &SecurityAlert{
		ID:             uuid.New().String(),
		Type:           event.Type,
		Severity:       rule.Severity,
		SourceIP:       actor,
		Message:        rule.Message,
		Count:          count,
		TriggeredAt:    time.Now(),
		LastEventAt:    event.Timestamp,
		correlationKey: key,
	}
	m.open[key] = alert
	m.byID[alert.ID] = alert

	metrics.SecurityAlerts.WithLabelValues(string(alert.Type), string(alert.Severity)).Inc()
	metrics.OpenAlerts.Inc()

	return alert, true
}

// countRecent counts events of the given type and actor within the trailing
// window. Caller holds the lock. Scans newest to oldest and stops at the
// window edge; the ring is time-ordered.
func (m *Monitor) countRecent(eventType EventType, actor string, window time.Duration) int {
	cutoff := time.Now().Add(-window)
	count := 0
	for i := m.size - 1; i >= 0; i-- {
		e := m.events[(m.head+i)%len(m.events)]
		if e.Timestamp.Before(cutoff) {
			break
		}
		if e.Type == eventType && correlationActor(e) == actor {
			count++
		}
	}
	return count
}

// correlationActor picks the identity events are correlated by. Admin
// actions correlate per actor; everything else per source address.
func correlationActor(e *SecurityEvent) string {
	if e.Type == EventAdminAction && e.UserID != "" {
		return e.UserID
	}
	return e.SourceIP
}

// dispatch fans an alert out to sinks off the hot path. The alert must be
// the caller's private copy, never the live correlated struct.
func (m *Monitor) dispatch(alert *SecurityAlert) {
	m.mu.RLock()
	notifiers := make([]Notifier, len(m.notifiers))
	copy(notifiers, m.notifiers)
	broadcaster := m.broadcaster
	m.mu.RUnlock()

	logging.Warn().
		Str("alert_id", alert.ID).
		Str("type", string(alert.Type)).
		Str("severity", string(alert.Severity)).
		Str("source_ip", alert.SourceIP).
		Int("count", alert.Count).
		Msg("security alert triggered")

	if broadcaster != nil {
		broadcaster.BroadcastJSON("security_alert", alert)
	}

	if !alert.Severity.AtLeast(m.cfg.NotifyMinSeverity) {
		return
	}

	for _, n := range notifiers {
		if !n.Enabled() {
			continue
		}
		go func(n Notifier) {
			ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
			defer cancel()
			if err := n.Send(ctx, alert); err != nil {
				logging.Error().Err(err).
					Str("notifier", n.Name()).
					Str("alert_id", alert.ID).
					Msg("alert dispatch failed")
			}
		}(n)
	}
}

// ResolveAlert transitions an alert to resolved. Returns false when the
// alert is unknown or already resolved; the transition is one-way.
func (m *Monitor) ResolveAlert(id, resolvedBy string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	alert, ok := m.byID[id]
	if !ok || alert.Resolved {
		return false
	}

	now := time.Now()
	alert.Resolved = true
	alert.ResolvedBy = resolvedBy
	alert.ResolvedAt = &now

	delete(m.open, alert.correlationKey)
	m.resolved = append(m.resolved, alert)
	metrics.OpenAlerts.Dec()

	logging.Info().
		Str("alert_id", id).
		Str("resolved_by", resolvedBy).
		Msg("security alert resolved")

	return true
}

// Alerts returns open alerts, plus resolved ones when includeResolved is
// set. Copies, newest first.
func (m *Monitor) Alerts(includeResolved bool) []*SecurityAlert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*SecurityAlert, 0, len(m.open)+len(m.resolved))
	for _, a := range m.open {
		cp := *a
		out = append(out, &cp)
	}
	if includeResolved {
		for _, a := range m.resolved {
			cp := *a
			out = append(out, &cp)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].TriggeredAt.After(out[j].TriggeredAt)
	})
	return out
}

// Alert returns a copy of one alert by ID.
func (m *Monitor) Alert(id string) (*SecurityAlert, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	alert, ok := m.byID[id]
	if !ok {
		return nil, false
	}
	cp := *alert
	return &cp, true
}

// Events returns up to limit most recent events, newest first.
func (m *Monitor) Events(limit int) []*SecurityEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > m.size {
		limit = m.size
	}

	out := make([]*SecurityEvent, 0, limit)
	for i := m.size - 1; i >= m.size-limit; i-- {
		cp := *m.events[(m.head+i)%len(m.events)]
		out = append(out, &cp)
	}
	return out
}

// Metrics aggregates the trailing 24 hours. Read-only; never mutates
// monitor state.
func (m *Monitor) Metrics() *MetricsSnapshot {
	cutoff := time.Now().Add(-24 * time.Hour)

	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := &MetricsSnapshot{
		EventsByType:     make(map[EventType]int),
		EventsBySeverity: make(map[Severity]int),
		OpenAlerts:       len(m.open),
		ResolvedAlerts:   len(m.resolved),
		GeneratedAt:      time.Now(),
	}

	bySource := make(map[string]int)
	for i := m.size - 1; i >= 0; i-- {
		e := m.events[(m.head+i)%len(m.events)]
		if e.Timestamp.Before(cutoff) {
			break
		}
		snap.TotalEvents++
		snap.EventsByType[e.Type]++
		snap.EventsBySeverity[e.Severity]++
		bySource[e.SourceIP]++
	}

	snap.TopOffenders = topOffenders(bySource, 10)
	return snap
}

// topOffenders ranks sources by volume, descending, ties by identifier for
// stable output.
func topOffenders(bySource map[string]int, n int) []Offender {
	offenders := make([]Offender, 0, len(bySource))
	for id, count := range bySource {
		offenders = append(offenders, Offender{Identifier: id, Count: count})
	}
	sort.Slice(offenders, func(i, j int) bool {
		if offenders[i].Count != offenders[j].Count {
			return offenders[i].Count > offenders[j].Count
		}
		return offenders[i].Identifier < offenders[j].Identifier
	})
	if len(offenders) > n {
		offenders = offenders[:n]
	}
	return offenders
}

// Sweep drops events past retention and resolved alerts past retention.
// Unresolved alerts are never swept. Returns events and alerts removed.
func (m *Monitor) Sweep(ctx context.Context) (int, int) {
	cutoff := time.Now().Add(-m.cfg.Retention)

	m.mu.Lock()
	defer m.mu.Unlock()

	eventsRemoved := 0
	for m.size > 0 {
		oldest := m.events[m.head]
		if !oldest.Timestamp.Before(cutoff) {
			break
		}
		m.events[m.head] = nil
		m.head = (m.head + 1) % len(m.events)
		m.size--
		eventsRemoved++
	}

	alertsRemoved := 0
	kept := m.resolved[:0]
	for _, a := range m.resolved {
		if a.ResolvedAt != nil && a.ResolvedAt.Before(cutoff) {
			delete(m.byID, a.ID)
			alertsRemoved++
			continue
		}
		kept = append(kept, a)
	}
	m.resolved = kept

	return eventsRemoved, alertsRemoved
}
