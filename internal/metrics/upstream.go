// SPDX-License-Identifier: MIT
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Streaming endpoint metrics
	mediaRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vosync_media_requests_total",
		Help: "Media streaming requests by serving mode and response status",
	}, []string{"mode", "status"}) // mode=local|redirect|proxy|denied

	mediaBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vosync_media_proxy_bytes_total",
		Help: "Bytes relayed through the media proxy",
	}, []string{"direction"}) // direction=client

	// Platform upstream metrics
	biliRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vosync_bili_upstream_requests_total",
		Help: "Platform API calls by endpoint and outcome",
	}, []string{"endpoint", "outcome"}) // endpoint=nav|view|playurl outcome=success|failure

	biliRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vosync_bili_upstream_duration_seconds",
		Help:    "Platform API call latency by endpoint",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	mixinKeyRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vosync_bili_mixin_refresh_total",
		Help: "Mixin key derivations by source",
	}, []string{"source"}) // source=cache|fetch
)

func RecordMediaRequest(mode string, status int) {
	mediaRequestsTotal.WithLabelValues(mode, strconv.Itoa(status)).Inc()
}

func AddMediaProxyBytes(direction string, n int64) {
	if n > 0 {
		mediaBytesTotal.WithLabelValues(direction).Add(float64(n))
	}
}

func RecordBiliRequest(endpoint, outcome string, seconds float64) {
	biliRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	biliRequestDuration.WithLabelValues(endpoint).Observe(seconds)
}

func RecordMixinKey(source string) {
	mixinKeyRefreshTotal.WithLabelValues(source).Inc()
}
