// Quill - Editorial Content Platform
// Copyright 2026 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quillhq/quill

package csrf

import (
	"container/list"
	"net/http"
	"strings"
	"sync"
	"time"
)

// DefaultSessionCapacity bounds the synchronizer map. Past this, the oldest
// session's token is evicted to make room.
const DefaultSessionCapacity = 10000

// sessionEntry is one session's token on file.
type sessionEntry struct {
	sessionID string
	token     string
	issuedAt  time.Time
}

// SessionStore retains the canonical token per session for the synchronizer
// binding. It is capacity-bounded with oldest-first eviction; a busy process
// never grows it past capacity no matter how many sessions appear.
type SessionStore struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front = oldest
}

// NewSessionStore creates a store holding at most capacity sessions.
func NewSessionStore(capacity int) *SessionStore {
	if capacity <= 0 {
		capacity = DefaultSessionCapacity
	}
	return &SessionStore{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Put records token as the canonical token for sessionID, replacing any
// previous one. Replacement refreshes the session's eviction position.
func (s *SessionStore) Put(sessionID, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.entries[sessionID]; ok {
		s.order.Remove(elem)
	} else if s.order.Len() >= s.capacity {
		oldest := s.order.Front()
		if oldest != nil {
			s.order.Remove(oldest)
			delete(s.entries, oldest.Value.(*sessionEntry).sessionID)
		}
	}

	s.entries[sessionID] = s.order.PushBack(&sessionEntry{
		sessionID: sessionID,
		token:     token,
		issuedAt:  time.Now(),
	})
}

// Get returns the token on file for sessionID, if any.
func (s *SessionStore) Get(sessionID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.entries[sessionID]
	if !ok {
		return "", false
	}
	return elem.Value.(*sessionEntry).token, true
}

// Delete removes sessionID's token.
func (s *SessionStore) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.entries[sessionID]; ok {
		s.order.Remove(elem)
		delete(s.entries, sessionID)
	}
}

// Sweep removes entries whose tokens are older than maxAge. The lock is held
// only for the batch removal; entries are FIFO by issue time, so the scan
// stops at the first live entry.
func (s *SessionStore) Sweep(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for {
		oldest := s.order.Front()
		if oldest == nil {
			break
		}
		entry := oldest.Value.(*sessionEntry)
		if entry.issuedAt.After(cutoff) {
			break
		}
		s.order.Remove(oldest)
		delete(s.entries, entry.sessionID)
		removed++
	}
	return removed
}

// Len returns the number of sessions on file.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

// Synchronizer is the synchronizer token binding: the server keeps the
// canonical token per session and the submitted token must match it exactly.
type Synchronizer struct {
	// Sessions holds the per-session tokens.
	Sessions *SessionStore

	// SessionCookie names the cookie carrying the session identifier.
	SessionCookie string
}

// NewSynchronizer creates a synchronizer binding over the given store.
func NewSynchronizer(sessions *SessionStore) *Synchronizer {
	if sessions == nil {
		sessions = NewSessionStore(DefaultSessionCapacity)
	}
	return &Synchronizer{Sessions: sessions, SessionCookie: "quill_session"}
}

// Name implements Binding.
func (*Synchronizer) Name() string { return "synchronizer" }

// Issue mints a token for sessionID and records it as that session's
// canonical token.
func (sy *Synchronizer) Issue(g *Guard, sessionID string) (string, error) {
	token, err := g.GenerateToken()
	if err != nil {
		return "", err
	}
	sy.Sessions.Put(sessionID, token)
	return token, nil
}

// Verify implements Binding.
func (sy *Synchronizer) Verify(g *Guard, r *http.Request) error {
	sessionID := sy.sessionID(r)
	if sessionID == "" {
		return ErrTokenMissing
	}

	submitted := g.SubmittedToken(r)
	if submitted == "" {
		return ErrTokenMissing
	}

	if err := g.ValidateToken(submitted); err != nil {
		return err
	}

	onFile, ok := sy.Sessions.Get(sessionID)
	if !ok {
		return ErrTokenMismatch
	}
	if !tokensEqual(onFile, submitted) {
		return ErrTokenMismatch
	}
	return nil
}

// sessionID extracts the session identifier from the cookie, falling back to
// a bearer-style Authorization header for cookieless API clients.
func (sy *Synchronizer) sessionID(r *http.Request) string {
	if cookie, err := r.Cookie(sy.SessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
