// Quill - Editorial Content Platform
// Copyright 2026 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quillhq/quill

package services

import (
	"context"
	"time"
)

// SnapshotFunc produces the aggregate snapshot broadcast to dashboards.
type SnapshotFunc func() interface{}

// Broadcaster matches the hub's JSON fan-out method.
type Broadcaster interface {
	BroadcastJSON(messageType string, data interface{})
	ClientCount() int
}

// MetricsBroadcastService periodically pushes the security metrics
// snapshot to connected WebSocket clients as a metrics_update message.
// Nothing is computed when no clients are connected.
type MetricsBroadcastService struct {
	source   SnapshotFunc
	hub      Broadcaster
	interval time.Duration
	name     string
}

// NewMetricsBroadcastService creates the broadcaster.
func NewMetricsBroadcastService(source SnapshotFunc, hub Broadcaster, interval time.Duration) *MetricsBroadcastService {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &MetricsBroadcastService{
		source:   source,
		hub:      hub,
		interval: interval,
		name:     "metrics-broadcast",
	}
}

// Serve implements suture.Service.
func (m *MetricsBroadcastService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if m.hub.ClientCount() == 0 {
				continue
			}
			m.hub.BroadcastJSON("metrics_update", m.source())
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (m *MetricsBroadcastService) String() string { return m.name }
