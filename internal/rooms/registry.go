// SPDX-License-Identifier: MIT

// Package rooms is the authoritative registry for co-watching rooms: who is
// in them, which state they share, and which media tokens they handed out.
// One registry serves the whole process.
package rooms

import (
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vosync/vosync/internal/apierr"
	"github.com/vosync/vosync/internal/log"
	"github.com/vosync/vosync/internal/mediapath"
	"github.com/vosync/vosync/internal/tokens"
)

type room struct {
	password string
	hostID   string
	state    *State
	members  map[string]time.Time
	// lastUpdate is the zero time until the first state publish.
	lastUpdate time.Time
}

// Options configures a Registry.
type Options struct {
	RoomTTL            time.Duration
	TokenTTL           time.Duration
	SweepInterval      time.Duration
	AllowMemberControl bool
	// MediaRoot optionally seeds the local media boundary. It is cleaned
	// but not validated here; SetMediaRoot is the validating path.
	MediaRoot string
}

// Registry owns the room map, the media token registry and the media root
// cell. All methods are safe for concurrent use; none of them performs
// network or filesystem I/O while a lock is held.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*room

	rootMu    sync.RWMutex
	mediaRoot string

	tokens *tokens.Registry
	bili   BiliResolver

	roomTTL            time.Duration
	sweepInterval      time.Duration
	allowMemberControl atomic.Bool

	now    func() time.Time
	logger zerolog.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

// NewRegistry builds a registry from opts. The resolver may be nil, in
// which case platform references fail resolution.
func NewRegistry(opts Options, resolver BiliResolver) *Registry {
	r := &Registry{
		rooms:         make(map[string]*room),
		tokens:        tokens.NewRegistry(opts.TokenTTL),
		bili:          resolver,
		roomTTL:       opts.RoomTTL,
		sweepInterval: opts.SweepInterval,
		now:           time.Now,
		logger:        log.WithComponent("rooms"),
		stop:          make(chan struct{}),
	}
	r.allowMemberControl.Store(opts.AllowMemberControl)
	if opts.MediaRoot != "" {
		r.mediaRoot = mediapath.Clean(opts.MediaRoot)
	}
	return r
}

// Join adds a caller to the named room, creating it on first contact. The
// first joiner of a fresh room becomes its host and fixes its password.
func (r *Registry) Join(name, password string) (tempUser string, isHost bool, err error) {
	name = strings.TrimSpace(name)
	password = strings.TrimSpace(password)
	if name == "" || password == "" {
		return "", false, apierr.BadRequest("room name and password required")
	}

	tempUser = uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[name]
	if !ok {
		rm = &room{
			password: password,
			members:  make(map[string]time.Time),
		}
		r.rooms[name] = rm
		r.logger.Info().
			Str(log.FieldEvent, "room.created").
			Str(log.FieldRoom, name).
			Msg("room created")
	}
	if rm.password != password {
		return "", false, apierr.BadRequest("room password mismatch")
	}
	if rm.hostID == "" {
		rm.hostID = tempUser
		isHost = true
	}
	rm.members[tempUser] = r.now()

	return tempUser, isHost, nil
}

// Authorize checks the (room, password, tempUser) triplet a session presents
// on open and reports whether the caller is the room's host.
func (r *Registry) Authorize(name, password, tempUser string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[name]
	if !ok {
		return false, apierr.Forbidden("room not found")
	}
	if rm.password != password {
		return false, apierr.Forbidden("room password mismatch")
	}
	if _, ok := rm.members[tempUser]; !ok {
		return false, apierr.Forbidden("user not in room")
	}
	return rm.hostID == tempUser, nil
}

// TouchMember refreshes a member's heartbeat. Unknown rooms are ignored.
func (r *Registry) TouchMember(name, tempUser string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rm, ok := r.rooms[name]; ok {
		rm.members[tempUser] = r.now()
	}
}

// UpdateState commits a state change. Hosts overwrite the room state; members
// only steer playback, and only while member control is enabled. The stored
// updatedAt stamp is always assigned here, under the lock, so concurrent
// commits are totally ordered.
func (r *Registry) UpdateState(name, tempUser string, incoming State, isHost bool) (State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[name]
	if !ok {
		return State{}, apierr.BadRequest("room not found")
	}

	if isHost {
		incoming.UpdatedAt = r.now().UnixMilli()
		rm.state = &incoming
		rm.lastUpdate = r.now()
		return incoming, nil
	}

	if !r.allowMemberControl.Load() {
		return State{}, apierr.Forbidden("operation allowed for host only")
	}
	if rm.state == nil {
		return State{}, apierr.BadRequest("host has not published state")
	}

	merged := rm.state.mergeFrom(incoming)
	merged.UpdatedAt = r.now().UnixMilli()
	rm.state = &merged
	rm.lastUpdate = r.now()

	return merged, nil
}

// CurrentState snapshots the room's state. ok is false when the room does
// not exist or no state has been published yet.
func (r *Registry) CurrentState(name string) (State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[name]
	if !ok || rm.state == nil {
		return State{}, false
	}
	return *rm.state, true
}

// SetMediaRoot validates and stores the directory that bounds local file
// resolution, returning its canonical form.
func (r *Registry) SetMediaRoot(path string) (string, error) {
	candidate := mediapath.Clean(path)
	info, err := os.Stat(candidate)
	if err != nil {
		return "", apierr.BadRequest("media root not found")
	}
	if !info.IsDir() {
		return "", apierr.BadRequest("media root must be directory")
	}

	r.rootMu.Lock()
	r.mediaRoot = candidate
	r.rootMu.Unlock()

	r.logger.Info().
		Str(log.FieldEvent, "mediaroot.set").
		Str(log.FieldMediaRoot, candidate).
		Msg("media root updated")

	return candidate, nil
}

// MediaRoot returns the canonical media root, or "" when none is configured.
func (r *Registry) MediaRoot() string {
	r.rootMu.RLock()
	defer r.rootMu.RUnlock()
	return r.mediaRoot
}

// OpenLocal redeems a media token for its local file path.
func (r *Registry) OpenLocal(token string) (string, error) {
	return r.tokens.OpenLocal(token)
}

// OpenRemote redeems a media token for its remote target.
func (r *Registry) OpenRemote(token string) (tokens.Remote, error) {
	return r.tokens.OpenRemote(token)
}

// SetAllowMemberControl flips the member-control policy at runtime. Config
// reloads call this; in-flight operations observe the new value on their
// next check.
func (r *Registry) SetAllowMemberControl(allow bool) {
	old := r.allowMemberControl.Swap(allow)
	if old != allow {
		r.logger.Info().
			Str(log.FieldEvent, "rooms.member_control").
			Bool("allow", allow).
			Msg("member control policy changed")
	}
}

// AllowMemberControl reports the current member-control policy.
func (r *Registry) AllowMemberControl() bool {
	return r.allowMemberControl.Load()
}

// RoomCount returns the number of live rooms.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// TokenCount returns the number of stored media tokens.
func (r *Registry) TokenCount() int {
	return r.tokens.Len()
}
