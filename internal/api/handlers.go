// SPDX-License-Identifier: MIT

package api

import (
	"math"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/vosync/vosync/internal/log"
	"github.com/vosync/vosync/internal/mediapath"
	"github.com/vosync/vosync/internal/metrics"
	"github.com/vosync/vosync/internal/rooms"
	"github.com/vosync/vosync/internal/telemetry"
)

type joinRequest struct {
	Room     string `json:"room"`
	Password string `json:"password"`
}

type joinResponse struct {
	TempUser string `json:"tempUser"`
	Role     string `json:"role"`
}

type resolveRequest struct {
	Room     string `json:"room"`
	Password string `json:"password"`
	TempUser string `json:"tempUser"`
	Path     string `json:"path"`
}

// resolveResponse mirrors the issued token. Cover stays a pointer so absent
// artwork serializes as an explicit null.
type resolveResponse struct {
	Token      string  `json:"token"`
	URL        string  `json:"url"`
	ExpiresAt  int64   `json:"expiresAt"`
	SourceType string  `json:"sourceType"`
	Cover      *string `json:"cover"`
}

type mediaRootRequest struct {
	Path string `json:"path"`
}

type mediaRootResponse struct {
	MediaRoot *string `json:"mediaRoot"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	tempUser, isHost, err := s.rooms.Join(req.Room, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	role := "member"
	if isHost {
		role = "host"
	}
	metrics.RecordJoin(role)
	trace.SpanFromContext(r.Context()).SetAttributes(telemetry.RoomAttributes(req.Room, role)...)

	writeJSON(w, http.StatusOK, joinResponse{TempUser: tempUser, Role: role})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	resolved, err := s.rooms.ResolveMediaPath(r.Context(), req.Room, req.Password, req.TempUser, req.Path)
	if err != nil {
		metrics.RecordMediaResolve(mediapath.Classify(req.Path).String(), "error")
		writeError(w, r, err)
		return
	}
	metrics.RecordMediaResolve(resolved.SourceType, "success")
	trace.SpanFromContext(r.Context()).SetAttributes(
		telemetry.MediaAttributes(resolved.SourceType, servingMode(resolved.SourceType))...)

	// Resolving is how playback starts: seed the room with a fresh paused
	// state and let every session see the new source immediately. The
	// resolver already authorized the caller, so host authority applies.
	initial := rooms.State{
		URL:          resolved.URL,
		Title:        mediapath.LastSegment(req.Path),
		Paused:       true,
		PlaybackRate: 1,
		SourceType:   resolved.SourceType,
		Cover:        resolved.Cover,
	}
	state, err := s.rooms.UpdateState(req.Room, req.TempUser, initial, true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	metrics.RecordStateUpdate("resolve")
	s.hub.BroadcastState(req.Room, state)

	writeJSON(w, http.StatusOK, resolveResponse{
		Token:      resolved.Token,
		URL:        resolved.URL,
		ExpiresAt:  unixMilliSaturated(resolved.ExpiresAt),
		SourceType: resolved.SourceType,
		Cover:      resolved.Cover,
	})
}

func (s *Server) handleGetMediaRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, mediaRootResponse{MediaRoot: optionalString(s.rooms.MediaRoot())})
}

func (s *Server) handleSetMediaRoot(w http.ResponseWriter, r *http.Request) {
	var req mediaRootRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	root, err := s.rooms.SetMediaRoot(req.Path)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.logger.Info().
		Str(log.FieldEvent, "media_root.updated").
		Str(log.FieldMediaRoot, root).
		Msg("media root updated")

	writeJSON(w, http.StatusOK, mediaRootResponse{MediaRoot: &root})
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// servingMode names how the streaming endpoint will deliver a source type.
func servingMode(sourceType string) string {
	switch sourceType {
	case "bili":
		return "proxy"
	case "remote":
		return "redirect"
	default:
		return "local"
	}
}

// unixMilliSaturated converts t to Unix milliseconds, pinning far-future
// values that would wrap the int64 to the maximum instead.
func unixMilliSaturated(t time.Time) int64 {
	ms := t.UnixMilli()
	if ms < 0 && t.After(time.Unix(0, 0)) {
		return math.MaxInt64
	}
	return ms
}
