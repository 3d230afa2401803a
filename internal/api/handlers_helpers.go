// Quill - Editorial Content Platform
// Copyright 2026 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quillhq/quill

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/quillhq/quill/internal/logging"
	"github.com/quillhq/quill/internal/models"
	"github.com/quillhq/quill/internal/respond"
	"github.com/quillhq/quill/internal/validation"
)

// respondJSON writes a success envelope with the given payload.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	respondJSONCount(w, status, data, 0)
}

// respondJSONCount writes a success envelope including a result count
// in the metadata. A zero count omits the field.
func respondJSONCount(w http.ResponseWriter, status int, data interface{}, count int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := &models.APIResponse{
		Status: "ok",
		Data:   data,
		Metadata: models.Metadata{
			Timestamp: time.Now().UTC(),
			Count:     count,
		},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.Error().Err(err).Msg("Failed to encode API response")
	}
}

// respondAppError writes a taxonomy error envelope. All admin API
// failures flow through here so redaction and status mapping stay in
// one place.
func respondAppError(w http.ResponseWriter, r *http.Request, err *respond.Error) {
	respond.Write(w, err, logging.RequestIDFromContext(r.Context()))
}

// validateRequest validates a request struct and writes a VALIDATION
// envelope on failure. Returns false when the request was rejected.
func validateRequest(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if verr := validation.ValidateStruct(v); verr != nil {
		respondAppError(w, r, verr.ToError())
		return false
	}
	return true
}

// getIntParam extracts an integer query parameter with a default value.
func getIntParam(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

// getBoolParam extracts a boolean query parameter with a default value.
func getBoolParam(r *http.Request, key string, defaultValue bool) bool {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolValue
}
