package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SafeTimeMetrics encapsulates the service's Prometheus metrics
type SafeTimeMetrics struct {
	// Sync metrics
	SyncAttemptsTotal      *prometheus.CounterVec
	SyncFailuresTotal      *prometheus.CounterVec
	ResponsesRejectedTotal *prometheus.CounterVec
	SyncDurationSeconds    prometheus.Histogram
	ClockOffsetMillis      prometheus.Gauge

	// Cache metrics
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter
}

// NewSafeTimeMetrics creates the metrics with the default "safetime"
// namespace
func NewSafeTimeMetrics() *SafeTimeMetrics {
	return NewSafeTimeMetricsWithConfig("safetime", "")
}

// NewSafeTimeMetricsWithConfig creates the metrics with a custom namespace
// and subsystem
func NewSafeTimeMetricsWithConfig(namespace, subsystem string) *SafeTimeMetrics {
	return &SafeTimeMetrics{
		SyncAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "sync_attempts_total",
				Help:      "Number of NTP exchanges attempted, by host",
			},
			[]string{"host"},
		),
		SyncFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "sync_failures_total",
				Help:      "Number of failed NTP attempts, by host and failure reason",
			},
			[]string{"host", "reason"},
		),
		ResponsesRejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "responses_rejected_total",
				Help:      "Number of responses rejected by the validator, by rule",
			},
			[]string{"field"},
		),
		SyncDurationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "sync_duration_seconds",
				Help:      "Wall time of complete sync tasks, including retries",
				Buckets:   prometheus.DefBuckets,
			},
		),
		ClockOffsetMillis: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "clock_offset_millis",
				Help:      "Last validated offset between local clock and server time in milliseconds",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "cache_hits_total",
				Help:      "Number of time reads answered from the cached sample",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "cache_misses_total",
				Help:      "Number of time reads that found no valid cached sample",
			},
		),
	}
}

// collectors returns every metric for registration
func (m *SafeTimeMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.SyncAttemptsTotal,
		m.SyncFailuresTotal,
		m.ResponsesRejectedTotal,
		m.SyncDurationSeconds,
		m.ClockOffsetMillis,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
	}
}

// Describe implements prometheus.Collector
func (m *SafeTimeMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, metric := range m.collectors() {
		metric.Describe(ch)
	}
}

// Collect implements prometheus.Collector
func (m *SafeTimeMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, metric := range m.collectors() {
		metric.Collect(ch)
	}
}
