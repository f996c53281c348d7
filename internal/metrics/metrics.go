// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BackendRequestsTotal counts backend API calls by operation and outcome.
	BackendRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opsdash",
		Subsystem: "backend",
		Name:      "requests_total",
		Help:      "Total backend API requests by operation and outcome.",
	}, []string{"op", "outcome"})

	// BackendRequestDuration tracks backend API latency.
	BackendRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "opsdash",
		Subsystem: "backend",
		Name:      "request_duration_seconds",
		Help:      "Backend API request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})

	// AgentVersionsSource counts which fallback source produced an agent version listing.
	AgentVersionsSource = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opsdash",
		Subsystem: "agent_versions",
		Name:      "source_total",
		Help:      "Agent version listings by the source that produced them.",
	}, []string{"source"})

	// ViewRendersTotal counts view renders by view name and outcome.
	ViewRendersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opsdash",
		Subsystem: "view",
		Name:      "renders_total",
		Help:      "View renders by view name and outcome.",
	}, []string{"view", "outcome"})
)

// ObserveBackend records one backend call. outcome is "ok" or an error kind.
func ObserveBackend(op, outcome string, elapsed time.Duration) {
	BackendRequestsTotal.WithLabelValues(op, outcome).Inc()
	BackendRequestDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}
