// SPDX-License-Identifier: MIT

// Package metrics exposes the Prometheus instrumentation for the sync
// service. All collectors register on the default registry at init.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

var (
	// Registry metrics
	roomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vosync_rooms_active",
		Help: "Number of live rooms (last sweep)",
	})

	tokensActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vosync_media_tokens_active",
		Help: "Number of stored media tokens (last sweep)",
	})

	roomJoinsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vosync_room_joins_total",
		Help: "Successful room joins by assigned role",
	}, []string{"role"}) // role=host|member

	stateUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vosync_state_updates_total",
		Help: "Committed room state updates by origin",
	}, []string{"origin"}) // origin=host|member|resolve

	mediaResolvesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vosync_media_resolves_total",
		Help: "Media resolution attempts by source type and outcome",
	}, []string{"source_type", "outcome"}) // outcome=success|error

	// Sweeper metrics
	sweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vosync_sweeps_total",
		Help: "Total number of registry sweeps",
	})

	sweptRoomsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vosync_swept_rooms_total",
		Help: "Total number of rooms removed by the sweeper",
	})

	sweptTokensTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vosync_swept_tokens_total",
		Help: "Total number of media tokens removed by the sweeper",
	})
)

func SetRoomsActive(n int)  { roomsActive.Set(float64(n)) }
func SetTokensActive(n int) { tokensActive.Set(float64(n)) }

func RecordJoin(role string) { roomJoinsTotal.WithLabelValues(role).Inc() }

func RecordStateUpdate(origin string) { stateUpdatesTotal.WithLabelValues(origin).Inc() }

func RecordMediaResolve(sourceType, outcome string) {
	mediaResolvesTotal.WithLabelValues(sourceType, outcome).Inc()
}

func RecordSweep(rooms, tokens int) {
	sweepsTotal.Inc()
	sweptRoomsTotal.Add(float64(rooms))
	sweptTokensTotal.Add(float64(tokens))
}

// GetRoomsActive returns the current value of the rooms gauge (for testing).
func GetRoomsActive() float64 {
	var m dto.Metric
	if err := roomsActive.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}

// GetTokensActive returns the current value of the tokens gauge (for testing).
func GetTokensActive() float64 {
	var m dto.Metric
	if err := tokensActive.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}
