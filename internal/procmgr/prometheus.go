package procmgr

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsCollector implements MetricsCollector with Prometheus metrics
type PrometheusMetricsCollector struct {
	spawns        *prometheus.CounterVec
	spawnDuration *prometheus.HistogramVec
	reaps         *prometheus.CounterVec
	lifetime      *prometheus.HistogramVec
	active        prometheus.Gauge
	inputBytes    prometheus.Counter
	outputBytes   prometheus.Counter

	registry *prometheus.Registry
}

// NewPrometheusMetricsCollector creates a collector with its own registry.
func NewPrometheusMetricsCollector(namespace string) *PrometheusMetricsCollector {
	if namespace == "" {
		namespace = "gdbc"
	}

	pmc := &PrometheusMetricsCollector{
		registry: prometheus.NewRegistry(),
	}

	pmc.spawns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_spawns_total",
			Help:      "Total number of spawn attempts by result",
		},
		[]string{"result"},
	)

	pmc.spawnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "process_spawn_duration_seconds",
			Help:      "Time from slot claim to a started child",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"result"},
	)

	pmc.reaps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_reaps_total",
			Help:      "Total number of reclaimed slots by reason",
		},
		[]string{"reason"},
	)

	pmc.lifetime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "process_lifetime_seconds",
			Help:      "Time a slot stayed running",
			Buckets:   []float64{0.1, 0.5, 1, 5, 30, 60, 300, 1800},
		},
		[]string{"reason"},
	)

	pmc.active = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process_slots_active",
			Help:      "Number of running process slots",
		},
	)

	pmc.inputBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_input_bytes_total",
			Help:      "Bytes written to child stdin",
		},
	)

	pmc.outputBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_output_bytes_total",
			Help:      "Bytes read from child stdout and stderr",
		},
	)

	pmc.registry.MustRegister(
		pmc.spawns,
		pmc.spawnDuration,
		pmc.reaps,
		pmc.lifetime,
		pmc.active,
		pmc.inputBytes,
		pmc.outputBytes,
	)

	return pmc
}

// SpawnResult records a spawn attempt
func (pmc *PrometheusMetricsCollector) SpawnResult(result string, duration time.Duration) {
	pmc.spawns.WithLabelValues(result).Inc()
	pmc.spawnDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// Reaped records a reclaimed slot
func (pmc *PrometheusMetricsCollector) Reaped(reason string, lifetime time.Duration) {
	pmc.reaps.WithLabelValues(reason).Inc()
	pmc.lifetime.WithLabelValues(reason).Observe(lifetime.Seconds())
}

// ActiveSlots records the number of running slots
func (pmc *PrometheusMetricsCollector) ActiveSlots(n int) {
	pmc.active.Set(float64(n))
}

// InputBytes counts bytes written to children
func (pmc *PrometheusMetricsCollector) InputBytes(n int) {
	pmc.inputBytes.Add(float64(n))
}

// OutputBytes counts bytes read from children
func (pmc *PrometheusMetricsCollector) OutputBytes(n int) {
	pmc.outputBytes.Add(float64(n))
}

// Registry returns the Prometheus registry for HTTP handler setup
func (pmc *PrometheusMetricsCollector) Registry() *prometheus.Registry {
	return pmc.registry
}

// Compile-time interface compliance check
var _ MetricsCollector = (*PrometheusMetricsCollector)(nil)
