// Package httpjson writes the uniform JSON envelopes used by the Folio API.
//
// Every response carries a "success" flag. List responses additionally carry
// pagination metadata; mutating responses carry an optional message and the
// affected record.
package httpjson

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/foliocms/folio/internal/apierr"
)

// ListEnvelope is the response body for paginated listings.
type ListEnvelope struct {
	Success    bool             `json:"success"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	TotalPages int              `json:"totalPages"`
	Limit      int              `json:"limit"`
	Data       []map[string]any `json:"data"`
}

// ItemEnvelope is the response body for single-record operations.
type ItemEnvelope struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// ErrorEnvelope is the response body for failed operations.
type ErrorEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Write serializes v as JSON with the given status code.
func Write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writing JSON response", "error", err)
	}
}

// WriteError normalizes err to an error envelope. Known *apierr.Error values
// keep their status and message; anything else is logged and collapsed to a
// generic server error so internal detail never leaks to the caller.
func WriteError(w http.ResponseWriter, err error) {
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) {
		slog.Error("unexpected internal error", "error", err)
		apiErr = apierr.ErrInternal
	}
	Write(w, apiErr.HTTPStatus, ErrorEnvelope{Success: false, Message: apiErr.Message})
}
