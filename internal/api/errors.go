// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/vosync/vosync/internal/apierr"
	"github.com/vosync/vosync/internal/log"
	"github.com/vosync/vosync/internal/telemetry"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err through the apierr vocabulary. Unknown errors
// collapse to a 500 with a generic message so internals never leak, and
// only those are logged at error level.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apierr.StatusOf(err)
	if status == http.StatusInternalServerError {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().
			Err(err).
			Str(log.FieldEvent, "api.internal_error").
			Str(log.FieldPath, r.URL.Path).
			Msg("unhandled error")
		trace.SpanFromContext(r.Context()).SetAttributes(
			telemetry.ErrorAttributes(err, "internal")...)
	}
	writeJSON(w, status, map[string]string{"error": apierr.MessageOf(err)})
}

// decodeJSON strictly decodes the request body into v. Malformed or oversized
// bodies come back as 400s.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return apierr.BadRequest("invalid request body")
	}
	// A second document in the body is a malformed request too.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return apierr.BadRequest("invalid request body")
	}
	return nil
}
