// SPDX-License-Identifier: MIT

package rooms

import (
	"context"
	"time"

	"github.com/vosync/vosync/internal/log"
	"github.com/vosync/vosync/internal/metrics"
)

// Sweep removes rooms whose last activity is older than the room TTL and
// every expired media token. A room's last activity is its most recent state
// publish or member heartbeat, whichever is later.
func (r *Registry) Sweep() (removedRooms, removedTokens int) {
	now := r.now()

	r.mu.Lock()
	for name, rm := range r.rooms {
		lastSeen := rm.lastUpdate
		for _, seen := range rm.members {
			if seen.After(lastSeen) {
				lastSeen = seen
			}
		}
		if now.Sub(lastSeen) > r.roomTTL {
			delete(r.rooms, name)
			removedRooms++
		}
	}
	roomCount := len(r.rooms)
	r.mu.Unlock()

	removedTokens = r.tokens.Sweep()

	metrics.SetRoomsActive(roomCount)
	metrics.SetTokensActive(r.tokens.Len())
	metrics.RecordSweep(removedRooms, removedTokens)

	return removedRooms, removedTokens
}

// StartSweeper runs Sweep on the configured interval until ctx is cancelled
// or Stop is called.
func (r *Registry) StartSweeper(ctx context.Context) {
	go r.sweepLoop(ctx)
}

func (r *Registry) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			rooms, toks := r.Sweep()
			if rooms > 0 || toks > 0 {
				r.logger.Info().
					Str(log.FieldEvent, "rooms.sweep").
					Int("rooms_removed", rooms).
					Int("tokens_removed", toks).
					Msg("swept expired entries")
			}
		}
	}
}

// Stop terminates the sweeper loop. Safe to call more than once.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}
