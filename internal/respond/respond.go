// Quill - Editorial Content Platform
// Copyright 2026 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quillhq/quill

// Package respond maps internal failures onto the platform's stable
// external error contract. Every failure leaving the process goes through
// this package; nothing else writes error bodies.
package respond

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/quillhq/quill/internal/logging"
)

// Kind classifies a failure for the external contract.
type Kind string

const (
	KindValidation    Kind = "VALIDATION"
	KindAuth          Kind = "AUTH"
	KindAuthorization Kind = "AUTHORIZATION"
	KindRateLimit     Kind = "RATE_LIMIT"
	KindCSRF          Kind = "CSRF"
	KindUpload        Kind = "UPLOAD"
	KindStorage       Kind = "STORAGE"
	KindUnexpected    Kind = "UNEXPECTED"
)

// Status returns the HTTP status for the kind. The switch is exhaustive;
// an unrecognized kind degrades to the UNEXPECTED mapping rather than
// leaking a zero status.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindAuthorization, KindCSRF:
		return http.StatusForbidden
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindUpload:
		return http.StatusUnprocessableEntity
	case KindStorage:
		return http.StatusServiceUnavailable
	case KindUnexpected:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage returns the generic caller-facing message for the kind.
// Internal detail stays in the security event log, never in the body.
func (k Kind) publicMessage() string {
	switch k {
	case KindValidation:
		return "request validation failed"
	case KindAuth:
		return "authentication required"
	case KindAuthorization:
		return "access denied"
	case KindRateLimit:
		return "rate limit exceeded"
	case KindCSRF:
		return "request could not be verified"
	case KindUpload:
		return "upload rejected"
	case KindStorage:
		return "storage temporarily unavailable"
	case KindUnexpected:
		return "an unexpected error occurred"
	default:
		return "an unexpected error occurred"
	}
}

// Envelope is the only error shape ever returned to a caller.
type Envelope struct {
	// Code is the taxonomy kind.
	Code Kind `json:"code"`

	// Message is generic by construction and redacted regardless.
	Message string `json:"message"`

	// Details carries safe, structured hints such as a retry interval.
	Details map[string]string `json:"details,omitempty"`

	// Timestamp is when the envelope was built.
	Timestamp time.Time `json:"timestamp"`

	// RequestID correlates the response with server-side logs.
	RequestID string `json:"request_id,omitempty"`
}

// Error is a classified failure flowing through the pipeline as data.
type Error struct {
	// Kind selects the external mapping.
	Kind Kind

	// Message optionally overrides the kind's generic message. It still
	// passes through redaction before leaving the process.
	Message string

	// Details are safe key-value hints included in the envelope.
	Details map[string]string

	// Cause is the underlying error, logged server-side only.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return string(e.Kind) + ": " + e.Cause.Error()
	}
	if e.Message != "" {
		return string(e.Kind) + ": " + e.Message
	}
	return string(e.Kind)
}

// Unwrap exposes the cause for errors.Is chains.
func (e *Error) Unwrap() error { return e.Cause }

// NewError builds a classified error.
func NewError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Build constructs the envelope for a classified error. The message is
// always redacted, even for developer-authored text; redaction is the last
// line of defense against secrets leaking through error strings.
func Build(e *Error, requestID string) *Envelope {
	message := e.Message
	if message == "" {
		message = e.Kind.publicMessage()
	}

	var details map[string]string
	if len(e.Details) > 0 {
		details = make(map[string]string, len(e.Details))
		for k, v := range e.Details {
			details[k] = logging.Redact(v)
		}
	}

	return &Envelope{
		Code:      e.Kind,
		Message:   logging.Redact(message),
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// Write serializes the envelope for a classified error onto w with the
// kind's status. Header mutations (Retry-After and the rate headers) must
// happen before calling Write.
func Write(w http.ResponseWriter, e *Error, requestID string) {
	envelope := Build(e, requestID)

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(e.Kind.Status())

	if err := json.NewEncoder(w).Encode(envelope); err != nil {
		logging.Error().Err(err).Str("request_id", requestID).Msg("failed to encode error envelope")
	}
}
