// Package metrics defines echolite's Prometheus surface: a private
// registry created fresh by every New call (grounded on the teacher's own
// metrics.Collector, which does the same), so tests can spin up
// independent collectors without colliding on the global default registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Collector holds every Prometheus metric echolite exposes.
type Collector struct {
	Registry *prometheus.Registry

	connectionsActive prometheus.Gauge
	handshakeDuration prometheus.Histogram
	authFailures      prometheus.Counter
	commandDuration   *prometheus.HistogramVec
	commandErrors     *prometheus.CounterVec
	hashDuration      prometheus.Histogram
	healthy           prometheus.Gauge
}

// New creates and registers echolite's metrics on a fresh registry. Safe
// to call more than once (e.g. in tests) since each call is independent.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "echolite_connections_active",
			Help: "Number of currently open client connections.",
		}),
		handshakeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "echolite_handshake_duration_seconds",
			Help:    "Time from connection accept to entering the command loop.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		authFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "echolite_auth_failures_total",
			Help: "Total handshakes rejected for a bad password.",
		}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "echolite_command_duration_seconds",
			Help:    "Time spent executing a single command, by kind.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		}, []string{"kind"}),
		commandErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "echolite_command_errors_total",
			Help: "Commands that completed with an Err status, by kind.",
		}, []string{"kind"}),
		hashDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "echolite_hash_duration_seconds",
			Help:    "Time spent computing an Argon2id hash.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		healthy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "echolite_healthy",
			Help: "1 if the last self-check succeeded, 0 otherwise.",
		}),
	}

	reg.MustRegister(
		c.connectionsActive,
		c.handshakeDuration,
		c.authFailures,
		c.commandDuration,
		c.commandErrors,
		c.hashDuration,
		c.healthy,
	)
	return c
}

// ConnectionOpened increments the active connection gauge.
func (c *Collector) ConnectionOpened() {
	c.connectionsActive.Inc()
}

// ConnectionClosed decrements the active connection gauge.
func (c *Collector) ConnectionClosed() {
	c.connectionsActive.Dec()
}

// ActiveConnections reads back the current value of the active-connection
// gauge, for callers (like the /status endpoint) that need the number
// rather than just exporting it to Prometheus.
func (c *Collector) ActiveConnections() float64 {
	m := &dto.Metric{}
	c.connectionsActive.Write(m)
	return m.GetGauge().GetValue()
}

// HandshakeCompleted records how long a handshake took, success or not.
func (c *Collector) HandshakeCompleted(d time.Duration) {
	c.handshakeDuration.Observe(d.Seconds())
}

// AuthFailed increments the auth failure counter.
func (c *Collector) AuthFailed() {
	c.authFailures.Inc()
}

// CommandCompleted records a command's duration and, on failure, bumps
// its error counter. kind should be one of wire.CommandKind's labels.
func (c *Collector) CommandCompleted(kind string, d time.Duration, failed bool) {
	c.commandDuration.WithLabelValues(kind).Observe(d.Seconds())
	if failed {
		c.commandErrors.WithLabelValues(kind).Inc()
	}
}

// HashCompleted records an Argon2id derivation's duration.
func (c *Collector) HashCompleted(d time.Duration) {
	c.hashDuration.Observe(d.Seconds())
}

// SetHealthy sets the health gauge.
func (c *Collector) SetHealthy(healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	c.healthy.Set(v)
}
