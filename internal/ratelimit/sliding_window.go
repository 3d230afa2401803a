// Quill - Editorial Content Platform
// Copyright 2026 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quillhq/quill

package ratelimit

import (
	"sync"
	"time"
)

// slidingCounter is a bucketized sliding window counter. Time is divided
// into fixed buckets whose sum approximates the count over the trailing
// window, smoothing the boundary burst that fixed windows permit.
//
// Complexity:
//   - Increment: O(1)
//   - Count: O(k) where k = number of buckets
type slidingCounter struct {
	buckets    []int64
	bucketSize time.Duration
	numBuckets int
	current    int
	lastUpdate time.Time
}

func newSlidingCounter(windowSize time.Duration, numBuckets int) *slidingCounter {
	if numBuckets <= 0 {
		numBuckets = 10
	}
	return &slidingCounter{
		buckets:    make([]int64, numBuckets),
		bucketSize: windowSize / time.Duration(numBuckets),
		numBuckets: numBuckets,
		lastUpdate: time.Now(),
	}
}

// advance rotates the circular buffer forward, zeroing buckets that have
// fallen out of the window. Caller holds the owning lock.
func (sc *slidingCounter) advance(now time.Time) {
	bucketsElapsed := int(now.Sub(sc.lastUpdate) / sc.bucketSize)
	if bucketsElapsed <= 0 {
		return
	}

	if bucketsElapsed >= sc.numBuckets {
		for i := range sc.buckets {
			sc.buckets[i] = 0
		}
		sc.current = 0
	} else {
		for i := 0; i < bucketsElapsed; i++ {
			sc.current = (sc.current + 1) % sc.numBuckets
			sc.buckets[sc.current] = 0
		}
	}
	sc.lastUpdate = now
}

func (sc *slidingCounter) increment(now time.Time) int64 {
	sc.advance(now)
	sc.buckets[sc.current]++

	var total int64
	for _, c := range sc.buckets {
		total += c
	}
	return total
}

func (sc *slidingCounter) count(now time.Time) int64 {
	sc.advance(now)

	var total int64
	for _, c := range sc.buckets {
		total += c
	}
	return total
}

// SlidingWindowLimiter is an opt-in alternative to the fixed-window Limiter
// for endpoints where the window boundary burst matters, such as login. It is
// purely in-memory and keeps at most maxKeys counters, evicting arbitrarily
// at capacity.
type SlidingWindowLimiter struct {
	mu         sync.Mutex
	counters   map[string]*slidingCounter
	window     time.Duration
	maxEvents  int64
	numBuckets int
	maxKeys    int
}

// NewSlidingWindowLimiter creates a limiter allowing maxEvents per trailing
// window, approximated over numBuckets buckets.
func NewSlidingWindowLimiter(window time.Duration, maxEvents int64, numBuckets, maxKeys int) *SlidingWindowLimiter {
	if window <= 0 {
		window = time.Minute
	}
	if maxEvents <= 0 {
		maxEvents = 60
	}
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	return &SlidingWindowLimiter{
		counters:   make(map[string]*slidingCounter),
		window:     window,
		maxEvents:  maxEvents,
		numBuckets: numBuckets,
		maxKeys:    maxKeys,
	}
}

// Allow records one event for key and reports whether it stays within the
// trailing window's budget.
func (l *SlidingWindowLimiter) Allow(key string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	sc, ok := l.counters[key]
	if !ok {
		if len(l.counters) >= l.maxKeys {
			for k := range l.counters {
				delete(l.counters, k)
				break
			}
		}
		sc = newSlidingCounter(l.window, l.numBuckets)
		l.counters[key] = sc
	}

	return sc.increment(now) <= l.maxEvents
}

// Count returns the current trailing-window count for key.
func (l *SlidingWindowLimiter) Count(key string) int64 {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	sc, ok := l.counters[key]
	if !ok {
		return 0
	}
	return sc.count(now)
}

// Sweep removes counters that have drained to zero. Returns the number
// removed.
func (l *SlidingWindowLimiter) Sweep() int {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, sc := range l.counters {
		if sc.count(now) == 0 {
			delete(l.counters, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *SlidingWindowLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.counters)
}
