// Package metrics provides Prometheus instrumentation for the matchmaking
// and relay core: gauges for connection and queue occupancy, counters for
// message throughput, and histograms for match/message latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "randchat_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// MessagesTotal counts the total number of chat messages processed,
	// labeled by type: "sent", "received", or "blocked".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "randchat_messages_total",
		Help: "Total number of messages processed",
	}, []string{"type"}) // type = "sent", "received", "blocked"

	// MessageLatency records message processing latency in seconds.
	MessageLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "randchat_message_latency_seconds",
		Help:    "Message processing latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	// MatchDuration records the time from find-match to match-found.
	MatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "randchat_match_duration_seconds",
		Help:    "Time from find-match to match-found",
		Buckets: []float64{1, 2, 5, 10, 15, 20, 25, 30},
	})

	// ActivePairings tracks the current number of active pairings.
	ActivePairings = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "randchat_active_pairings",
		Help: "Current number of active pairings",
	})

	// MatchQueueSize tracks the current number of sessions in the matchmaking queue.
	MatchQueueSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "randchat_match_queue_size",
		Help: "Current number of sessions in the matchmaking queue",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		MessagesTotal,
		MessageLatency,
		MatchDuration,
		ActivePairings,
		MatchQueueSize,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
