// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/vosync/vosync/internal/apierr"
	"github.com/vosync/vosync/internal/hub"
	"github.com/vosync/vosync/internal/log"
	"github.com/vosync/vosync/internal/metrics"
	"github.com/vosync/vosync/internal/rooms"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The daemon binds loopback and sessions authenticate with the room
	// password, so browser origins are not filtered.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsIncoming is every client frame: a type tag plus an optional state.
type wsIncoming struct {
	Type  string       `json:"type"`
	State *rooms.State `json:"state"`
}

// handleSession authenticates the querystring triplet and upgrades to a
// websocket. Auth failures reply in plain text before the upgrade so the
// client sees the handshake status instead of a dropped socket.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	room := q.Get("room")
	password := q.Get("password")
	tempUser := q.Get("tempUser")
	if room == "" || password == "" || tempUser == "" {
		http.Error(w, "room, password and tempUser are required", http.StatusBadRequest)
		return
	}

	isHost, err := s.rooms.Authorize(room, password, tempUser)
	if err != nil {
		http.Error(w, apierr.MessageOf(err), apierr.StatusOf(err))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote its own handshake error.
		s.logger.Debug().Err(err).
			Str(log.FieldEvent, "session.upgrade_failed").
			Str(log.FieldRoom, room).
			Msg("websocket upgrade failed")
		return
	}

	s.runSession(conn, room, tempUser, isHost)
}

// runSession owns one websocket connection from registration to teardown.
// The read loop runs on the calling goroutine, the write pump on a second
// one; whichever stops first closes the socket and the other follows.
func (s *Server) runSession(conn *websocket.Conn, room, tempUser string, isHost bool) {
	clientID := uuid.NewString()
	out := make(chan []byte, hub.SinkBuffer)

	logger := s.logger.With().
		Str(log.FieldRoom, room).
		Str(log.FieldClientID, clientID).
		Bool("is_host", isHost).
		Logger()

	s.hub.Register(room, clientID, out)
	metrics.IncSessionsActive()
	logger.Info().
		Str(log.FieldEvent, "session.opened").
		Str(log.FieldTempUser, tempUser).
		Msg("session opened")

	s.enqueueGreeting(room, out)

	var closeOnce sync.Once
	closeConn := func() { closeOnce.Do(func() { _ = conn.Close() }) }

	quit := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer closeConn()
		for {
			select {
			case payload := <-out:
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					return
				}
			case <-quit:
				return
			}
		}
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		s.dispatchFrame(logger, room, clientID, tempUser, isHost, data)
	}

	s.hub.Unregister(room, clientID)
	close(quit)
	<-writerDone
	closeConn()
	metrics.DecSessionsActive()
	logger.Info().
		Str(log.FieldEvent, "session.closed").
		Msg("session closed")
}

// enqueueGreeting queues the connect-time message: the current room state
// when one exists, a placeholder notice otherwise. The sink is freshly
// allocated, so the sends cannot block.
func (s *Server) enqueueGreeting(room string, out chan<- []byte) {
	if state, ok := s.rooms.CurrentState(room); ok {
		if payload, err := json.Marshal(hub.Envelope{Type: "room_state", State: &state}); err == nil {
			out <- payload
		}
		return
	}
	payload, err := json.Marshal(hub.Notice{
		Type:    "debug_info",
		Message: "Connected! Waiting for host push...",
	})
	if err == nil {
		out <- payload
	}
}

// dispatchFrame handles one inbound text frame. Failures are answered with
// an error envelope on the same session; the connection stays up.
func (s *Server) dispatchFrame(logger zerolog.Logger, room, clientID, tempUser string, isHost bool, data []byte) {
	var msg wsIncoming
	if err := json.Unmarshal(data, &msg); err != nil {
		metrics.RecordSessionMessage("invalid")
		s.replyError(logger, room, clientID, "invalid message format")
		return
	}

	switch msg.Type {
	case "host_update":
		metrics.RecordSessionMessage("host_update")
		if msg.State == nil {
			s.replyError(logger, room, clientID, "state required")
			return
		}
		state, err := s.rooms.UpdateState(room, tempUser, *msg.State, isHost)
		if err != nil {
			s.replyError(logger, room, clientID, apierr.MessageOf(err))
			return
		}
		origin := "member"
		if isHost {
			origin = "host"
		}
		metrics.RecordStateUpdate(origin)
		s.hub.BroadcastState(room, state)

	case "member_ping":
		metrics.RecordSessionMessage("member_ping")
		s.rooms.TouchMember(room, tempUser)

	default:
		metrics.RecordSessionMessage("unknown")
		s.replyError(logger, room, clientID, "unknown message type")
	}
}

func (s *Server) replyError(logger zerolog.Logger, room, clientID, msg string) {
	if err := s.hub.SendTo(room, clientID, hub.ErrorEnvelope(msg)); err != nil {
		logger.Debug().Err(err).
			Str(log.FieldEvent, "session.reply_failed").
			Msg("error reply not delivered")
	}
}
