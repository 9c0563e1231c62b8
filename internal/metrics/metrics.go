// Package metrics provides Prometheus telemetry for transfer tracking.
// It wraps collectors registered on a private registry so embedding
// applications control exposure.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector records transfer engine metrics.
type Collector struct {
	registry *prometheus.Registry

	transfersAccepted *prometheus.CounterVec
	transfersTerminal *prometheus.CounterVec
	transfersInFlight prometheus.Gauge

	legTransitions *prometheus.CounterVec
	pollAttempts   *prometheus.CounterVec
	pollLatency    *prometheus.HistogramVec

	persistRetries prometheus.Counter
	persistLatency prometheus.Histogram
}

// NewCollector creates a collector on its own registry.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "transfer_engine"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.transfersAccepted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_accepted_total",
			Help:      "Transfers accepted for orchestration, by protocol.",
		},
		[]string{"protocol"},
	)
	c.transfersTerminal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_terminal_total",
			Help:      "Transfers reaching a terminal status, by protocol and status.",
		},
		[]string{"protocol", "status"},
	)
	c.transfersInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transfers_in_flight",
			Help:      "Transfers currently being tracked.",
		},
	)
	c.legTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leg_transitions_total",
			Help:      "Observed leg state transitions, by protocol, role and state.",
		},
		[]string{"protocol", "role", "state"},
	)
	c.pollAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_attempts_total",
			Help:      "Adapter poll attempts, by protocol and result.",
		},
		[]string{"protocol", "result"},
	)
	c.pollLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_latency_seconds",
			Help:      "Adapter poll round-trip latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"protocol"},
	)
	c.persistRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_retries_total",
			Help:      "Persistence writes that needed a retry.",
		},
	)
	c.persistLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "persist_latency_seconds",
			Help:      "Persistence upsert latency.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	c.registry.MustRegister(
		c.transfersAccepted,
		c.transfersTerminal,
		c.transfersInFlight,
		c.legTransitions,
		c.pollAttempts,
		c.pollLatency,
		c.persistRetries,
		c.persistLatency,
	)

	return c
}

// Registry returns the underlying registry for exposure via promhttp.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// RecordAccepted counts an accepted transfer.
func (c *Collector) RecordAccepted(protocol string) {
	c.transfersAccepted.WithLabelValues(protocol).Inc()
	c.transfersInFlight.Inc()
}

// RecordResumed counts a transfer brought back in flight from the store.
// Transfers resumed while still tracked are already counted.
func (c *Collector) RecordResumed() {
	c.transfersInFlight.Inc()
}

// RecordTerminal counts a transfer reaching a terminal status.
func (c *Collector) RecordTerminal(protocol, status string) {
	c.transfersTerminal.WithLabelValues(protocol, status).Inc()
	c.transfersInFlight.Dec()
}

// RecordLegTransition counts a leg state transition.
func (c *Collector) RecordLegTransition(protocol, role, state string) {
	c.legTransitions.WithLabelValues(protocol, role, state).Inc()
}

// RecordPoll counts one poll attempt and its latency.
func (c *Collector) RecordPoll(protocol, result string, d time.Duration) {
	c.pollAttempts.WithLabelValues(protocol, result).Inc()
	c.pollLatency.WithLabelValues(protocol).Observe(d.Seconds())
}

// RecordPersistRetry counts a persistence retry.
func (c *Collector) RecordPersistRetry() {
	c.persistRetries.Inc()
}

// RecordPersist records an upsert latency.
func (c *Collector) RecordPersist(d time.Duration) {
	c.persistLatency.Observe(d.Seconds())
}
