// Quill - Editorial Content Platform
// Copyright 2026 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quillhq/quill

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quillhq/quill/internal/logging"
	"github.com/quillhq/quill/internal/metrics"
)

// Package-level error definitions for rate limiter operations.
var (
	ErrUnknownTier      = errors.New("unknown rate limit tier")
	ErrStoreUnavailable = errors.New("rate limit store unavailable")
)

// TierConfig configures one limiter tier.
type TierConfig struct {
	// Window is the fixed window duration.
	Window time.Duration `json:"window" validate:"required,gt=0"`

	// MaxRequests is the ceiling of requests allowed per window.
	MaxRequests int `json:"max_requests" validate:"required,gt=0"`
}

// Well-known tier names used by the pipeline and admin API.
const (
	TierGlobal = "global"
	TierAuth   = "auth"
	TierWrite  = "write"
)

// DefaultTiers returns the default tier table.
func DefaultTiers() map[string]TierConfig {
	return map[string]TierConfig{
		TierGlobal: {Window: time.Minute, MaxRequests: 300},
		TierAuth:   {Window: 5 * time.Minute, MaxRequests: 10},
		TierWrite:  {Window: time.Minute, MaxRequests: 60},
	}
}

// Result reports the outcome of a limiter check.
type Result struct {
	// Allowed reports whether the request is within the tier's ceiling.
	Allowed bool

	// Limit is the tier's request ceiling.
	Limit int

	// Remaining is the number of requests left in the current window,
	// clamped to zero.
	Remaining int

	// ResetAt is when the current window expires.
	ResetAt time.Time

	// Degraded is set when the store failed and the check failed open.
	Degraded bool
}

// RetryAfter returns how long the caller should wait before retrying.
// Zero when the request was allowed.
func (r *Result) RetryAfter() time.Duration {
	if r.Allowed {
		return 0
	}
	if d := time.Until(r.ResetAt); d > 0 {
		return d
	}
	return 0
}

// Store persists rate windows. Implementations must be safe for concurrent
// use; Increment must be atomic (a single increment-and-read under the
// store's own synchronization, never a separate read followed by a write).
type Store interface {
	// Increment bumps the counter for key, allocating a fresh window with
	// the given duration when none exists or the stored one has expired.
	// Returns the post-increment count and the window's expiry.
	Increment(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)

	// Reset deletes the window for key immediately.
	Reset(ctx context.Context, key string) error

	// Sweep removes expired windows and returns how many were dropped.
	Sweep(ctx context.Context) (int, error)
}

// Limiter checks requests against per-tier fixed windows.
type Limiter struct {
	store Store
	tiers map[string]TierConfig
}

// NewLimiter creates a limiter over the given store and tier table.
func NewLimiter(store Store, tiers map[string]TierConfig) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if len(tiers) == 0 {
		tiers = DefaultTiers()
	}
	for name, tc := range tiers {
		if tc.Window <= 0 || tc.MaxRequests <= 0 {
			return nil, fmt.Errorf("tier %q: window and max_requests must be positive", name)
		}
	}

	return &Limiter{store: store, tiers: tiers}, nil
}

// Tiers returns the configured tier table.
func (l *Limiter) Tiers() map[string]TierConfig {
	out := make(map[string]TierConfig, len(l.tiers))
	for k, v := range l.tiers {
		out[k] = v
	}
	return out
}

// Check counts one request for identifier against the named tier.
//
// A store failure fails open: the returned result is Allowed with Degraded
// set and no error, so a broken backend never rejects traffic. Only an
// unknown tier is a caller error.
func (l *Limiter) Check(ctx context.Context, identifier, tier string) (*Result, error) {
	tc, ok := l.tiers[tier]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTier, tier)
	}

	count, resetAt, err := l.store.Increment(ctx, windowKey(identifier, tier), tc.Window)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("tier", tier).Msg("rate limit store failure, failing open")
		metrics.RecordRateLimitCheck(tier, true)
		return &Result{
			Allowed:   true,
			Limit:     tc.MaxRequests,
			Remaining: tc.MaxRequests,
			ResetAt:   time.Now().Add(tc.Window),
			Degraded:  true,
		}, nil
	}

	allowed := count <= int64(tc.MaxRequests)
	remaining := tc.MaxRequests - int(count)
	if remaining < 0 {
		remaining = 0
	}

	metrics.RecordRateLimitCheck(tier, allowed)

	return &Result{
		Allowed:   allowed,
		Limit:     tc.MaxRequests,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

// Reset clears the windows for an identifier across all tiers. Used by the
// admin surface and by tests.
func (l *Limiter) Reset(ctx context.Context, identifier string) error {
	var firstErr error
	for tier := range l.tiers {
		if err := l.store.Reset(ctx, windowKey(identifier, tier)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Sweep drops expired windows from the store.
func (l *Limiter) Sweep(ctx context.Context) (int, error) {
	return l.store.Sweep(ctx)
}

// windowKey builds the store key for an (identifier, tier) pair.
func windowKey(identifier, tier string) string {
	return tier + ":" + identifier
}
