// SPDX-License-Identifier: MIT

// Package middleware carries the cross-cutting HTTP concerns of the daemon:
// panic recovery, request correlation, CORS, metrics, tracing and access
// logging. The stack is assembled in one place so the ordering cannot drift.
package middleware

import (
	"github.com/go-chi/chi/v5"
)

// StackConfig configures the canonical HTTP ingress middleware stack.
type StackConfig struct {
	// EnableCORS turns on the permissive CORS headers local player UIs
	// need. The daemon binds loopback, so there is no origin allowlist.
	EnableCORS bool

	// Observability
	EnableMetrics bool
	EnableLogging bool

	// TracingService names the service in HTTP spans; empty disables
	// tracing entirely.
	TracingService string
}

// NewRouter constructs a chi router with the canonical middleware stack applied.
func NewRouter(cfg StackConfig) *chi.Mux {
	r := chi.NewRouter()
	ApplyStack(r, cfg)
	return r
}

// ApplyStack applies the canonical middleware stack to r.
func ApplyStack(r chi.Router, cfg StackConfig) {
	// 1. Recoverer (outermost safety net)
	r.Use(Recoverer)
	// 2. RequestID (correlation early)
	r.Use(RequestID)
	// 3. CORS (so OPTIONS preflights and browser players behave)
	if cfg.EnableCORS {
		r.Use(CORS())
	}
	// 4. Tracing (spans carry the request the rest of the way)
	if cfg.TracingService != "" {
		r.Use(Tracing(cfg.TracingService))
	}
	// 5. Metrics (track all requests)
	if cfg.EnableMetrics {
		r.Use(Metrics())
	}
	// 6. Logging (wraps handlers, captures full latency)
	if cfg.EnableLogging {
		r.Use(RequestLogger)
	}
}
