// Package metrics provides Prometheus metrics for fetch, playback and relay.
// Labels stay low-cardinality: no URLs, hosts or session IDs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchAttemptsTotal counts fetch attempts by strategy kind and result (ok, status, error, firewall).
	FetchAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xtplay_fetch_attempts_total",
		Help: "Total number of fetch attempts, by strategy kind and result.",
	}, []string{"strategy", "result"})

	// PlaybackAttemptsTotal counts candidate URL attempts by result (ready, fatal, timeout, load_error).
	PlaybackAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xtplay_playback_attempts_total",
		Help: "Total number of candidate playback attempts, by result.",
	}, []string{"result"})

	// PlaybackOutcomesTotal counts terminal playback session outcomes.
	PlaybackOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xtplay_playback_outcomes_total",
		Help: "Total number of playback sessions, by outcome.",
	}, []string{"outcome"})

	// ProbeDuration observes reachability probe latency.
	ProbeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "xtplay_reachability_probe_seconds",
		Help:    "Latency of server reachability probes, by result.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"result"})

	// RelayRequestsTotal counts relay responses by status class.
	RelayRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xtplay_relay_requests_total",
		Help: "Total number of relay requests, by response status class.",
	}, []string{"class"})

	// RelayUpstreamDuration observes upstream latency seen by the relay.
	RelayUpstreamDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "xtplay_relay_upstream_seconds",
		Help:    "Latency of upstream requests made by the relay.",
		Buckets: prometheus.DefBuckets,
	})
)

// StatusClass maps an HTTP status to "2xx", "4xx", ...
func StatusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "other"
	}
}
