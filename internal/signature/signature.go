// Quill - Editorial Content Platform
// Copyright 2026 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quillhq/quill

// Package signature provides the HMAC signing primitive shared by the CSRF
// guard and any other component that needs tamper-evident tokens.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

// MinSecretLength is the minimum accepted secret size. Shorter secrets make
// the HMAC brute-forceable regardless of algorithm strength.
const MinSecretLength = 32

var (
	// ErrSecretTooShort indicates the configured secret is below MinSecretLength.
	ErrSecretTooShort = errors.New("signing secret too short")

	// ErrSignatureMismatch indicates the signature does not match the payload.
	ErrSignatureMismatch = errors.New("signature mismatch")
)

// Codec signs and verifies payloads with HMAC-SHA-256.
type Codec struct {
	secret []byte
}

// NewCodec creates a codec from the given secret.
func NewCodec(secret []byte) (*Codec, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}

	// Copy so a caller mutating its slice cannot change the signing key.
	key := make([]byte, len(secret))
	copy(key, secret)

	return &Codec{secret: key}, nil
}

// Sign returns the base64url-encoded HMAC-SHA-256 signature of payload.
func (c *Codec) Sign(payload string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature for payload and compares it against the
// provided one in constant time. hmac.Equal never short-circuits, so
// verification time is independent of where the signatures first differ.
func (c *Codec) Verify(payload, sig string) error {
	expected, err := base64.RawURLEncoding.DecodeString(c.Sign(payload))
	if err != nil {
		return err
	}

	provided, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return ErrSignatureMismatch
	}

	if !hmac.Equal(expected, provided) {
		return ErrSignatureMismatch
	}
	return nil
}
