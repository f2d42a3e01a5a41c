// SPDX-License-Identifier: MIT

// Package hub fans room state out to connected sessions. Each session
// registers a buffered sink; the hub never blocks on a send, it evicts
// sinks that cannot keep up and lets the session's own read loop discover
// the closed socket.
package hub

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vosync/vosync/internal/apierr"
	"github.com/vosync/vosync/internal/log"
	"github.com/vosync/vosync/internal/metrics"
	"github.com/vosync/vosync/internal/rooms"
)

// SinkBuffer is the sink channel capacity sessions should allocate. A sink
// that stays full across a whole broadcast is considered dead.
const SinkBuffer = 64

// Envelope is the JSON shape of every message sent to a session.
type Envelope struct {
	Type  string       `json:"type"`
	State *rooms.State `json:"state,omitempty"`
	Error string       `json:"error,omitempty"`
}

// ErrorEnvelope wraps a message into an error envelope.
func ErrorEnvelope(msg string) Envelope {
	return Envelope{Type: "error", Error: msg}
}

// Notice is the connect-time greeting sent while a room has no state yet.
type Notice struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Hub tracks the outbound sinks of all connected sessions, bucketed by room.
type Hub struct {
	mu     sync.Mutex
	rooms  map[string]map[string]chan<- []byte
	logger zerolog.Logger
}

// New returns an empty hub.
func New() *Hub {
	return &Hub{
		rooms:  make(map[string]map[string]chan<- []byte),
		logger: log.WithComponent("hub"),
	}
}

// Register attaches a session's sink under the room bucket. A second
// registration for the same clientId replaces the first.
func (h *Hub) Register(room, clientID string, sink chan<- []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	bucket, ok := h.rooms[room]
	if !ok {
		bucket = make(map[string]chan<- []byte)
		h.rooms[room] = bucket
	}
	bucket[clientID] = sink
}

// Unregister detaches a session's sink. Empty buckets are removed.
func (h *Hub) Unregister(room, clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	bucket, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(bucket, clientID)
	if len(bucket) == 0 {
		delete(h.rooms, room)
	}
}

// BroadcastState serializes the state once and enqueues it on every sink in
// the room. Sinks whose buffer is full are dropped; the matching session
// finds out when its socket read fails and completes the teardown.
func (h *Hub) BroadcastState(room string, state rooms.State) {
	payload, err := json.Marshal(Envelope{Type: "room_state", State: &state})
	if err != nil {
		h.logger.Error().Err(err).
			Str(log.FieldEvent, "hub.encode_failed").
			Str(log.FieldRoom, room).
			Msg("state encode failed")
		return
	}

	h.mu.Lock()
	dropped := 0
	if bucket, ok := h.rooms[room]; ok {
		for id, sink := range bucket {
			select {
			case sink <- payload:
			default:
				delete(bucket, id)
				dropped++
			}
		}
	}
	h.mu.Unlock()

	metrics.RecordBroadcast(dropped)
	if dropped > 0 {
		h.logger.Warn().
			Str(log.FieldEvent, "hub.sink_dropped").
			Str(log.FieldRoom, room).
			Int("dropped", dropped).
			Msg("evicted unresponsive sinks during broadcast")
	}
}

// SendTo enqueues an envelope for a single client.
func (h *Hub) SendTo(room, clientID string, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		payload = []byte("{}")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if bucket, ok := h.rooms[room]; ok {
		if sink, ok := bucket[clientID]; ok {
			select {
			case sink <- payload:
				return nil
			default:
				return apierr.BadRequest("send error")
			}
		}
	}
	return apierr.NotFound("client not found")
}

// ClientCount reports how many sinks are registered for the room.
func (h *Hub) ClientCount(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}
