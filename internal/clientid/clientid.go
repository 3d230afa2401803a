// Quill - Editorial Content Platform
// Copyright 2026 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quillhq/quill

// Package clientid derives a per-request client identity used to bucket
// rate-limit and alert state. The identity is computed from forwarded-IP
// headers in a fixed priority order and, optionally, a truncated user-agent
// fingerprint. Identities are derived per request and never persisted beyond
// process lifetime.
package clientid

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
)

// Forwarded-IP headers in priority order. CF-Connecting-IP is set by the CDN
// edge and cannot be spoofed past it; X-Forwarded-For may carry a chain, only
// the first (client-most) entry counts.
const (
	headerCFConnectingIP = "CF-Connecting-IP"
	headerXRealIP        = "X-Real-IP"
	headerXForwardedFor  = "X-Forwarded-For"
)

// fingerprintUALimit bounds how much of the user-agent participates in the
// fingerprint; anything past this adds no discriminating value.
const fingerprintUALimit = 64

// Identity identifies a client for rate limiting and alert correlation.
type Identity struct {
	// IP is the best-effort real client IP address.
	IP string

	// UserAgent is the raw user-agent header (may be empty).
	UserAgent string

	// Fingerprint combines IP and truncated user-agent into a stable key.
	// Empty unless fingerprinting is enabled.
	Fingerprint string
}

// Key returns the bucketing key for this identity: the fingerprint when
// present, the IP otherwise.
func (id Identity) Key() string {
	if id.Fingerprint != "" {
		return id.Fingerprint
	}
	return id.IP
}

// Extractor derives client identities from requests.
type Extractor struct {
	// UseFingerprint combines the user-agent into the identity key.
	UseFingerprint bool
}

// FromRequest derives the client identity for a request.
func (e *Extractor) FromRequest(r *http.Request) Identity {
	id := Identity{
		IP:        RealIP(r),
		UserAgent: r.UserAgent(),
	}

	if e.UseFingerprint {
		id.Fingerprint = fingerprint(id.IP, id.UserAgent)
	}

	return id
}

// RealIP extracts the client IP from forwarded headers in priority order:
// CF-Connecting-IP, then X-Real-IP, then the first X-Forwarded-For entry,
// then the transport-level peer address.
func RealIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get(headerCFConnectingIP)); ip != "" && isValidIP(ip) {
		return ip
	}

	if ip := strings.TrimSpace(r.Header.Get(headerXRealIP)); ip != "" && isValidIP(ip) {
		return ip
	}

	if xff := r.Header.Get(headerXForwardedFor); xff != "" {
		// First entry is the original client; later entries are proxies.
		first := xff
		if idx := strings.Index(xff, ","); idx >= 0 {
			first = xff[:idx]
		}
		if ip := strings.TrimSpace(first); ip != "" && isValidIP(ip) {
			return ip
		}
	}

	// RemoteAddr is host:port; SplitHostPort fails for bare hosts.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// isValidIP reports whether s parses as an IPv4 or IPv6 address.
func isValidIP(s string) bool {
	return net.ParseIP(s) != nil
}

// fingerprint hashes the IP and a truncated user-agent into a compact
// hex key.
func fingerprint(ip, userAgent string) string {
	ua := userAgent
	if len(ua) > fingerprintUALimit {
		ua = ua[:fingerprintUALimit]
	}

	sum := sha256.Sum256([]byte(ip + "|" + ua))
	return hex.EncodeToString(sum[:16])
}
