// SPDX-License-Identifier: MIT

package daemon

import (
	"net/http"

	"github.com/rs/zerolog"
)

// Deps contains the dependencies the daemon Manager runs with. Keeping them
// in one injected struct makes the lifecycle testable without a real stack.
type Deps struct {
	// Logger is the structured logger for the daemon.
	Logger zerolog.Logger

	// APIHandler is the HTTP handler for the main server.
	APIHandler http.Handler

	// MetricsHandler serves Prometheus metrics when MetricsAddr is set.
	MetricsHandler http.Handler

	// MetricsAddr is the optional separate listen address for metrics.
	// Empty disables the metrics server.
	MetricsAddr string

	// AddrFile is the optional path the bound address is written to, so
	// local player UIs can discover a fallback port.
	AddrFile string
}

// Validate checks that the required dependencies are present.
func (d *Deps) Validate() error {
	if d.Logger.GetLevel() == zerolog.Disabled {
		return ErrMissingLogger
	}
	if d.APIHandler == nil {
		return ErrMissingAPIHandler
	}
	return nil
}
