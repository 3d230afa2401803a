// Quill - Editorial Content Platform
// Copyright 2026 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quillhq/quill

package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/quillhq/quill/internal/metrics"
)

// shardCount spreads contention across independent locks so concurrent
// checks for distinct identifiers rarely serialize. Power of two for cheap
// modulo.
const shardCount = 64

// window is a single fixed window's state.
type window struct {
	count   int64
	resetAt time.Time
}

// shard holds a slice of the key space behind its own lock.
type shard struct {
	mu      sync.Mutex
	windows map[string]*window
}

// MemoryStore implements Store with sharded in-memory windows. Suitable for
// single-instance deployments; counters do not survive restarts.
type MemoryStore struct {
	shards [shardCount]*shard
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	ms := &MemoryStore{}
	for i := range ms.shards {
		ms.shards[i] = &shard{windows: make(map[string]*window)}
	}
	return ms
}

// shardFor hashes key onto its shard.
func (ms *MemoryStore) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return ms.shards[h.Sum32()&(shardCount-1)]
}

// Increment bumps the counter for key under the shard lock. The allocate-or-
// replace plus increment happens as one critical section, so two concurrent
// checks can never both observe the pre-increment count.
func (ms *MemoryStore) Increment(ctx context.Context, key string, windowDur time.Duration) (int64, time.Time, error) {
	s := ms.shardFor(key)
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(windowDur)}
		s.windows[key] = w
		if !ok {
			metrics.RateLimitActiveWindows.Inc()
		}
	}

	w.count++
	return w.count, w.resetAt, nil
}

// Reset deletes the window for key immediately.
func (ms *MemoryStore) Reset(ctx context.Context, key string) error {
	s := ms.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.windows[key]; ok {
		delete(s.windows, key)
		metrics.RateLimitActiveWindows.Dec()
	}
	return nil
}

// Sweep removes expired windows shard by shard. Each shard lock is held only
// for that shard's batch removal, never across shards.
func (ms *MemoryStore) Sweep(ctx context.Context) (int, error) {
	now := time.Now()
	removed := 0

	for _, s := range ms.shards {
		select {
		case <-ctx.Done():
			return removed, ctx.Err()
		default:
		}

		s.mu.Lock()
		for key, w := range s.windows {
			if !now.Before(w.resetAt) {
				delete(s.windows, key)
				removed++
			}
		}
		s.mu.Unlock()
	}

	if removed > 0 {
		metrics.RateLimitActiveWindows.Sub(float64(removed))
	}
	return removed, nil
}

// Len returns the total number of live windows. Intended for tests and
// observability.
func (ms *MemoryStore) Len() int {
	total := 0
	for _, s := range ms.shards {
		s.mu.Lock()
		total += len(s.windows)
		s.mu.Unlock()
	}
	return total
}
