// Quill - Editorial Content Platform
// Copyright 2026 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quillhq/quill

package csrf

import "net/http"

// DoubleSubmit is the double-submit cookie binding: the request must carry
// the token twice, once in the cookie and once in the header or form, and
// both copies must validate individually and be equal.
type DoubleSubmit struct{}

// Name implements Binding.
func (DoubleSubmit) Name() string { return "double_submit" }

// Verify implements Binding.
func (DoubleSubmit) Verify(g *Guard, r *http.Request) error {
	cookieToken := g.CookieToken(r)
	if cookieToken == "" {
		return ErrTokenMissing
	}

	submitted := r.Header.Get(g.cfg.HeaderName)
	if submitted == "" {
		submitted = r.PostFormValue(g.cfg.FormFieldName)
	}
	if submitted == "" {
		return ErrTokenMissing
	}

	if err := g.ValidateToken(cookieToken); err != nil {
		return err
	}
	if err := g.ValidateToken(submitted); err != nil {
		return err
	}

	if !tokensEqual(cookieToken, submitted) {
		return ErrTokenMismatch
	}
	return nil
}
