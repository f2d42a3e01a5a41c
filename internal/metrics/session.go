// SPDX-License-Identifier: MIT
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

var (
	// Session metrics
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vosync_ws_sessions_active",
		Help: "Number of open sync sessions",
	})

	sessionMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vosync_ws_messages_total",
		Help: "Inbound session frames by message type",
	}, []string{"type"}) // type=host_update|member_ping|invalid|unknown

	broadcastsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vosync_broadcasts_total",
		Help: "State broadcasts fanned out by the hub",
	})

	broadcastDropsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vosync_broadcast_drops_total",
		Help: "Sinks evicted because a broadcast send failed",
	})
)

// IncSessionsActive increments the open session gauge.
func IncSessionsActive() {
	sessionsActive.Inc()
}

// DecSessionsActive decrements the open session gauge.
func DecSessionsActive() {
	sessionsActive.Dec()
}

// GetSessionsActive returns the current value of the gauge (for testing).
func GetSessionsActive() float64 {
	var m dto.Metric
	if err := sessionsActive.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}

func RecordSessionMessage(msgType string) {
	sessionMessagesTotal.WithLabelValues(msgType).Inc()
}

func RecordBroadcast(dropped int) {
	broadcastsTotal.Inc()
	if dropped > 0 {
		broadcastDropsTotal.Add(float64(dropped))
	}
}
