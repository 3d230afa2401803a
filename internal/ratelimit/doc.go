// Quill - Editorial Content Platform
// Copyright 2026 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quillhq/quill

// Package ratelimit implements fixed-window request counting per client
// identifier with pluggable storage backends.
//
// # Fixed-window semantics
//
// Each (identifier, tier) pair owns a window {count, resetAt}. A check
// allocates a fresh window when none exists or the stored one has expired,
// increments the counter, and allows the request iff the post-increment
// count is within the tier's ceiling. Windows are whole-bucket resets: once
// now >= resetAt the next check replaces the window rather than decrementing
// it.
//
// This policy has a known boundary-burst property: a client can issue up to
// 2*MaxRequests requests across a window seam (the tail of one window plus
// the head of the next). That is a deliberate trade for O(1) memory and O(1)
// per-check cost, and it is pinned by TestFixedWindowBoundaryBurst. Callers
// that cannot tolerate the seam can opt into SlidingWindowLimiter, which
// smooths the boundary at the cost of per-bucket bookkeeping; the default
// pipeline uses the fixed window.
//
// # Failure mode
//
// A store failure fails open: the check reports the request as allowed and
// marks the result degraded so the caller can record a degraded-mode event.
// Availability of the protected service takes priority over strict limiting.
package ratelimit
