// Package metrics defines the Prometheus collectors for the orchestration
// core. A single Metrics value is created at startup and threaded into the
// executor and resilience manager.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the core's collectors.
type Metrics struct {
	TurnsTotal         *prometheus.CounterVec
	NodeDuration       *prometheus.HistogramVec
	DegradedTurns      prometheus.Counter
	CheckpointFailures prometheus.Counter
	ProbeRetries       prometheus.Counter
	ProvidersUnhealthy prometheus.Gauge
}

// New creates and registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TurnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agroflow",
			Name:      "turns_total",
			Help:      "Completed conversation turns by classified intent.",
		}, []string{"intent"}),
		NodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agroflow",
			Name:      "node_duration_seconds",
			Help:      "Wall-clock duration of graph node executions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"node"}),
		DegradedTurns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agroflow",
			Name:      "degraded_turns_total",
			Help:      "Turns completed with reduced capability (tools unavailable).",
		}),
		CheckpointFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agroflow",
			Name:      "checkpoint_failures_total",
			Help:      "Checkpoint saves that failed mid-turn (turn still completed).",
		}),
		ProbeRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agroflow",
			Name:      "tool_probe_retries_total",
			Help:      "Health probe retries against tool providers.",
		}),
		ProvidersUnhealthy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agroflow",
			Name:      "tool_providers_unhealthy",
			Help:      "Number of tool providers currently marked unavailable.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.TurnsTotal,
			m.NodeDuration,
			m.DegradedTurns,
			m.CheckpointFailures,
			m.ProbeRetries,
			m.ProvidersUnhealthy,
		)
	}
	return m
}

// NewNop creates unregistered collectors for tests and library use.
func NewNop() *Metrics {
	return New(nil)
}
