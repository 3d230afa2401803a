// Quill - Editorial Content Platform
// Copyright 2026 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quillhq/quill

package csrf

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSynchronizerRoundTrip(t *testing.T) {
	t.Parallel()

	sy := NewSynchronizer(nil)
	g := newTestGuard(t, Config{}, sy)

	token, err := sy.Issue(g, "session-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	r := httptest.NewRequest(http.MethodPost, "/api/v1/articles", nil)
	r.AddCookie(&http.Cookie{Name: "quill_session", Value: "session-1"})
	r.Header.Set("X-CSRF-Token", token)

	if err := g.VerifyRequest(r); err != nil {
		t.Fatalf("issued token should verify: %v", err)
	}
}

func TestSynchronizerRejectsForeignSessionToken(t *testing.T) {
	t.Parallel()

	sy := NewSynchronizer(nil)
	g := newTestGuard(t, Config{}, sy)

	if _, err := sy.Issue(g, "session-1"); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	tokenB, err := sy.Issue(g, "session-2")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// session-2's token is individually valid but is not the token on
	// file for session-1.
	r := httptest.NewRequest(http.MethodPost, "/api/v1/articles", nil)
	r.AddCookie(&http.Cookie{Name: "quill_session", Value: "session-1"})
	r.Header.Set("X-CSRF-Token", tokenB)

	if err := g.VerifyRequest(r); !errors.Is(err, ErrTokenMismatch) {
		t.Fatalf("err = %v, want ErrTokenMismatch", err)
	}
}

func TestSynchronizerRejectsUnknownSession(t *testing.T) {
	t.Parallel()

	sy := NewSynchronizer(nil)
	g := newTestGuard(t, Config{}, sy)

	token, err := g.GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	r := httptest.NewRequest(http.MethodPost, "/api/v1/articles", nil)
	r.AddCookie(&http.Cookie{Name: "quill_session", Value: "never-issued"})
	r.Header.Set("X-CSRF-Token", token)

	if err := g.VerifyRequest(r); !errors.Is(err, ErrTokenMismatch) {
		t.Fatalf("err = %v, want ErrTokenMismatch", err)
	}
}

func TestSessionStoreOldestFirstEviction(t *testing.T) {
	t.Parallel()

	store := NewSessionStore(3)

	for i := 1; i <= 4; i++ {
		store.Put(fmt.Sprintf("session-%d", i), fmt.Sprintf("token-%d", i))
	}

	if store.Len() != 3 {
		t.Fatalf("Len = %d, want capacity 3", store.Len())
	}
	if _, ok := store.Get("session-1"); ok {
		t.Error("oldest session should have been evicted")
	}
	for i := 2; i <= 4; i++ {
		if _, ok := store.Get(fmt.Sprintf("session-%d", i)); !ok {
			t.Errorf("session-%d should survive eviction", i)
		}
	}
}

func TestSessionStoreReplaceRefreshesPosition(t *testing.T) {
	t.Parallel()

	store := NewSessionStore(2)

	store.Put("a", "token-a1")
	store.Put("b", "token-b")
	store.Put("a", "token-a2") // refresh moves "a" to the back

	store.Put("c", "token-c") // evicts "b", now the oldest

	if _, ok := store.Get("b"); ok {
		t.Error("session b should have been evicted")
	}
	if token, ok := store.Get("a"); !ok || token != "token-a2" {
		t.Errorf("session a = (%q, %v), want refreshed token", token, ok)
	}
}

func TestSessionStoreSweep(t *testing.T) {
	t.Parallel()

	store := NewSessionStore(10)
	store.Put("old-1", "t1")
	store.Put("old-2", "t2")

	time.Sleep(30 * time.Millisecond)
	store.Put("fresh", "t3")

	removed := store.Sweep(20 * time.Millisecond)
	if removed != 2 {
		t.Errorf("Sweep removed %d, want 2", removed)
	}
	if _, ok := store.Get("fresh"); !ok {
		t.Error("fresh session should survive the sweep")
	}
}
