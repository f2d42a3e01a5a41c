// SPDX-License-Identifier: MIT

// Package api is the HTTP surface of the daemon: the room and media JSON
// endpoints, the websocket session endpoint and the media streaming
// endpoint. All domain decisions live in the rooms registry; handlers only
// translate between HTTP and the registry's vocabulary.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/vosync/vosync/internal/api/middleware"
	"github.com/vosync/vosync/internal/hub"
	"github.com/vosync/vosync/internal/log"
	"github.com/vosync/vosync/internal/rooms"
)

// Options tunes the server beyond its two collaborators.
type Options struct {
	// TracingService enables HTTP span creation when non-empty.
	TracingService string

	// Upstream performs the proxy-mode media fetches. Defaults to a
	// plain client with no overall timeout; media streams are long.
	Upstream *http.Client
}

// Server wires the HTTP handlers to the room registry and the session hub.
type Server struct {
	rooms    *rooms.Registry
	hub      *hub.Hub
	upstream *http.Client
	tracing  string
	logger   zerolog.Logger
}

// New constructs a Server. Both the registry and the hub are required.
func New(reg *rooms.Registry, h *hub.Hub, opts Options) *Server {
	upstream := opts.Upstream
	if upstream == nil {
		upstream = &http.Client{}
	}
	return &Server{
		rooms:    reg,
		hub:      h,
		upstream: upstream,
		tracing:  opts.TracingService,
		logger:   log.WithComponent("api"),
	}
}

// Handler assembles the full route table behind the canonical middleware
// stack.
func (s *Server) Handler() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableCORS:     true,
		EnableMetrics:  true,
		EnableLogging:  true,
		TracingService: s.tracing,
	})

	r.Get("/healthz", s.handleHealthz)

	r.Route("/api", func(r chi.Router) {
		r.Post("/room/join", s.handleJoin)
		r.Post("/media/resolve", s.handleResolve)
		r.Get("/media/root", s.handleGetMediaRoot)
		r.Post("/media/root", s.handleSetMediaRoot)
	})

	r.Get("/media/{token}", s.handleMediaStream)
	r.Get("/ws", s.handleSession)

	return r
}
