// SPDX-License-Identifier: MIT

// Package tokens issues and redeems short-lived media tokens. A token is an
// opaque UUID bound to either a local file path or a remote URL plus a fetch
// strategy, so playback clients never see raw paths or upstream URLs.
package tokens

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vosync/vosync/internal/apierr"
)

// Strategy selects how the streaming endpoint serves a remote target.
type Strategy int

const (
	// Redirect hands the player the target URL with a 307.
	Redirect Strategy = iota
	// ProxyWithHeaders relays the target through this server so the
	// platform Referer and the client's Range header can be attached.
	ProxyWithHeaders
)

func (s Strategy) String() string {
	if s == ProxyWithHeaders {
		return "proxy"
	}
	return "redirect"
}

// Remote is the redeemed form of a remote token.
type Remote struct {
	URL      string
	Strategy Strategy
}

type entry struct {
	localPath string
	remote    *Remote
	expiresAt time.Time
}

// Registry stores issued tokens until they expire or a sweep removes them.
// All methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry

	ttl time.Duration
	now func() time.Time
}

// NewRegistry returns an empty registry whose tokens live for ttl after
// issuance. Expired entries stay in the map until Sweep runs but are never
// redeemable.
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// IssueLocal binds a canonical file path to a fresh token and returns the
// token with its expiry deadline.
func (r *Registry) IssueLocal(path string) (string, time.Time) {
	return r.issue(entry{localPath: path})
}

// IssueRemote binds a remote URL and its serving strategy to a fresh token.
func (r *Registry) IssueRemote(url string, strategy Strategy) (string, time.Time) {
	return r.issue(entry{remote: &Remote{URL: url, Strategy: strategy}})
}

func (r *Registry) issue(e entry) (string, time.Time) {
	token := uuid.NewString()
	e.expiresAt = r.now().Add(r.ttl)

	r.mu.Lock()
	r.entries[token] = e
	r.mu.Unlock()

	return token, e.expiresAt
}

// OpenLocal redeems a token for its file path. Unknown and expired tokens
// are indistinguishable from the caller's perspective: both are not found.
func (r *Registry) OpenLocal(token string) (string, error) {
	e, err := r.lookup(token)
	if err != nil {
		return "", err
	}
	if e.remote != nil {
		return "", apierr.BadRequest("remote requires redirect")
	}
	return e.localPath, nil
}

// OpenRemote redeems a token for its remote target.
func (r *Registry) OpenRemote(token string) (Remote, error) {
	e, err := r.lookup(token)
	if err != nil {
		return Remote{}, err
	}
	if e.remote == nil {
		return Remote{}, apierr.BadRequest("not a remote token")
	}
	return *e.remote, nil
}

func (r *Registry) lookup(token string) (entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[token]
	if !ok {
		return entry{}, apierr.NotFound("token not found")
	}
	if r.now().After(e.expiresAt) {
		return entry{}, apierr.NotFound("token expired")
	}
	return e, nil
}

// Sweep drops every expired token and reports how many were removed.
func (r *Registry) Sweep() int {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for token, e := range r.entries {
		if now.After(e.expiresAt) {
			delete(r.entries, token)
			removed++
		}
	}
	return removed
}

// Len counts stored entries, including expired ones the sweeper has not
// visited yet.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
