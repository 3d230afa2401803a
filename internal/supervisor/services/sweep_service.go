// Quill - Editorial Content Platform
// Copyright 2026 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quillhq/quill

package services

import (
	"context"
	"time"

	"github.com/quillhq/quill/internal/logging"
)

// SweepFunc removes expired entries and reports how many were removed.
type SweepFunc func(ctx context.Context) (int, error)

// SweepService runs a sweep function on a fixed interval. Used for rate
// limit window expiry, event retention, and CSRF session cleanup.
//
// A failing sweep is logged and retried on the next tick rather than
// returned, so transient store errors never trigger a supervisor
// restart loop.
type SweepService struct {
	name     string
	interval time.Duration
	sweep    SweepFunc
}

// NewSweepService creates a sweeper with the given name and interval.
func NewSweepService(name string, interval time.Duration, sweep SweepFunc) *SweepService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SweepService{
		name:     name,
		interval: interval,
		sweep:    sweep,
	}
}

// Serve implements suture.Service.
func (s *SweepService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			removed, err := s.sweep(ctx)
			if err != nil {
				logging.Warn().Err(err).Str("sweeper", s.name).Msg("Sweep failed")
				continue
			}
			if removed > 0 {
				logging.Debug().Str("sweeper", s.name).Int("removed", removed).Msg("Sweep completed")
			}
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (s *SweepService) String() string { return s.name }
