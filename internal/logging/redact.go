// Quill - Editorial Content Platform
// Copyright 2026 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quillhq/quill

package logging

import (
	"regexp"
	"strings"
)

// Redaction removes material resembling credentials or personal identifiers
// from message text before it leaves the process. Error messages surfaced to
// callers pass through Redact unconditionally, including developer-authored
// ones; a message that was safe when written can start carrying a secret
// after an innocent-looking refactor.

// redactedPlaceholder replaces any matched sensitive substring.
const redactedPlaceholder = "[REDACTED]"

// sensitivePatterns are compiled once at package load, never per message.
var sensitivePatterns = []*regexp.Regexp{
	// key=value and key: value pairs for credential-ish keys, quoted or bare
	regexp.MustCompile(`(?i)(password|passwd|pwd|secret|token|api[_-]?key|auth|bearer|credential|session)["']?\s*[:=]\s*["']?[^\s"',;&]+`),
	// email addresses
	regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
	// long hex strings (likely keys, hashes, session IDs)
	regexp.MustCompile(`\b[0-9a-fA-F]{32,}\b`),
	// JWT-shaped triples
	regexp.MustCompile(`\beyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\b`),
	// long digit runs (numeric IDs, card-ish numbers)
	regexp.MustCompile(`\b\d{6,}\b`),
}

// Redact replaces sensitive substrings in msg with a placeholder.
// The input is never returned unmodified if any pattern matches.
func Redact(msg string) string {
	if msg == "" {
		return msg
	}
	for _, p := range sensitivePatterns {
		msg = p.ReplaceAllString(msg, redactedPlaceholder)
	}
	return msg
}

// SanitizeToken masks a token, showing only first and last 4 characters.
// Example: "eyJhbGciOiJSUzI1NiIs..." -> "eyJh...I1Is"
func SanitizeToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 12 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// SanitizeUserID masks a user ID for privacy.
// Example: "user-12345678" -> "user...5678"
func SanitizeUserID(userID string) string {
	if userID == "" {
		return ""
	}
	if len(userID) <= 8 {
		return "***"
	}
	return userID[:4] + "..." + userID[len(userID)-4:]
}

// SanitizeEmail masks an email address.
// Example: "jane.doe@example.com" -> "ja***@example.com"
func SanitizeEmail(email string) string {
	if email == "" {
		return ""
	}

	atIndex := strings.Index(email, "@")
	if atIndex <= 0 {
		return "***"
	}

	localPart := email[:atIndex]
	domain := email[atIndex:]

	if len(localPart) <= 2 {
		return "***" + domain
	}
	return localPart[:2] + "***" + domain
}

// TruncateUserAgent bounds a user-agent string for log and event storage.
func TruncateUserAgent(ua string) string {
	const maxLen = 100
	if len(ua) <= maxLen {
		return ua
	}
	return ua[:maxLen] + "..."
}
