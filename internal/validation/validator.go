// Quill - Editorial Content Platform
// Copyright 2026 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quillhq/quill

// Package validation wraps go-playground/validator behind a singleton
// instance with human-readable error translation. Request structs in
// the API layer declare their constraints with `validate` tags and call
// ValidateStruct before touching any handler logic.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/quillhq/quill/internal/respond"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// slugPattern matches URL-safe identifiers used for articles and tags.
const slugPattern = "abcdefghijklmnopqrstuvwxyz0123456789-"

// FieldError describes a single failed constraint.
type FieldError struct {
	Field   string
	Tag     string
	Param   string
	Message string
}

// Error returns the translated message for the failed constraint.
func (e FieldError) Error() string { return e.Message }

// RequestError aggregates the failed constraints for one request struct.
type RequestError struct {
	fields []FieldError
}

// Fields returns the individual constraint failures.
func (re *RequestError) Fields() []FieldError { return re.fields }

// Error implements the error interface with a combined message.
func (re *RequestError) Error() string {
	if len(re.fields) == 0 {
		return "validation failed"
	}
	messages := make([]string, len(re.fields))
	for i, fe := range re.fields {
		messages[i] = fe.Message
	}
	return strings.Join(messages, "; ")
}

// ToError converts the aggregate into the application error type so the
// API layer can write a VALIDATION envelope with per-field details.
func (re *RequestError) ToError() *respond.Error {
	err := respond.NewError(respond.KindValidation, re.Error(), nil)
	if len(re.fields) > 0 {
		err.Details = make(map[string]string, len(re.fields))
		for _, fe := range re.fields {
			err.Details[fe.Field] = fe.Message
		}
	}
	return err
}

// Get returns the singleton validator. It is initialized once with the
// custom validators registered and is safe for concurrent use.
func Get() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// slug: lowercase letters, digits, and hyphens only.
		_ = validate.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			if s == "" {
				return false
			}
			for _, r := range s {
				if !strings.ContainsRune(slugPattern, r) {
					return false
				}
			}
			return !strings.HasPrefix(s, "-") && !strings.HasSuffix(s, "-")
		})

		// severity: monitoring severity level names.
		_ = validate.RegisterValidation("severity", func(fl validator.FieldLevel) bool {
			switch fl.Field().String() {
			case "low", "medium", "high", "critical":
				return true
			}
			return false
		})
	})

	return validate
}

// ValidateStruct validates s against its `validate` tags. Returns nil
// when everything passes.
func ValidateStruct(s interface{}) *RequestError {
	err := Get().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &RequestError{fields: []FieldError{{
			Field:   "unknown",
			Tag:     "unknown",
			Message: err.Error(),
		}}}
	}

	fields := make([]FieldError, len(verrs))
	for i, fe := range verrs {
		fields[i] = FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: translate(fe),
		}
	}
	return &RequestError{fields: fields}
}

var messageTemplates = map[string]string{
	"required": "%s is required",
	"email":    "%s must be a valid email address",
	"url":      "%s must be a valid URL",
	"uuid":     "%s must be a valid UUID",
	"slug":     "%s must contain only lowercase letters, digits, and hyphens",
	"severity": "%s must be one of: low, medium, high, critical",
	"datetime": "%s must be a valid RFC3339 timestamp",
}

var messageTemplatesWithParam = map[string]string{
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
	"gt":    "%s must be greater than %s",
	"lt":    "%s must be less than %s",
}

// translate converts a validator.FieldError into a readable message.
func translate(fe validator.FieldError) string {
	field := fe.Field()
	tag := fe.Tag()
	param := fe.Param()

	if template, ok := messageTemplates[tag]; ok {
		return fmt.Sprintf(template, field)
	}
	if template, ok := messageTemplatesWithParam[tag]; ok {
		return fmt.Sprintf(template, field, param)
	}

	isString := fe.Kind().String() == "string"
	switch tag {
	case "min":
		if isString {
			return fmt.Sprintf("%s must be at least %s characters", field, param)
		}
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		if isString {
			return fmt.Sprintf("%s must be at most %s characters", field, param)
		}
		return fmt.Sprintf("%s must be at most %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, tag)
	}
}
