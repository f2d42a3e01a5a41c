// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/vosync/vosync/internal/log"
)

// RequestLogger emits one structured access log line per request. Probe
// endpoints are logged at debug so steady-state output stays readable.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger := log.WithComponentFromContext(r.Context(), "http")
		evt := logger.Info()
		if isProbePath(r.URL.Path) {
			evt = logger.Debug()
		}
		if status := ww.Status(); status >= http.StatusInternalServerError {
			evt = logger.Error()
		}
		evt.
			Str(log.FieldEvent, "http.request").
			Str("method", r.Method).
			Str(log.FieldPath, r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str(log.FieldRemoteAddr, r.RemoteAddr).
			Msg("request completed")
	})
}

func isProbePath(path string) bool {
	return path == "/healthz" || path == "/metrics"
}
