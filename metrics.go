package requery

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the query cache's fetch
// lifecycle, retries, deduplication and garbage collection. It is safe for
// concurrent use and all Record methods are nil-receiver safe.
type MetricsCollector struct {
	fetchesTotal    *prometheus.CounterVec
	fetchDuration   *prometheus.HistogramVec
	fetchesInFlight prometheus.Gauge

	retriesTotal *prometheus.CounterVec

	dedupHits prometheus.Counter

	cacheEntries prometheus.Gauge
	subscribers  prometheus.Gauge

	snapshotsTotal prometheus.Counter

	gcEvictionsTotal prometheus.Counter

	errorsTotal *prometheus.CounterVec

	registry prometheus.Registerer
}

// NewMetricsCollector creates a metrics collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied
// registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		fetchesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "requery_fetches_total",
				Help: "Total number of fetch flights by result",
			},
			[]string{"result"},
		),
		fetchDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "requery_fetch_duration_seconds",
				Help:    "Duration of fetch flights in seconds, retries included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		),
		fetchesInFlight: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "requery_fetches_in_flight",
				Help: "Number of fetch flights currently running",
			},
		),
		retriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "requery_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"attempt"},
		),
		dedupHits: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "requery_deduplication_hits_total",
				Help: "Total number of fetch requests that attached to an in-flight fetch",
			},
		),
		cacheEntries: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "requery_cache_entries",
				Help: "Current number of entries in the query cache",
			},
		),
		subscribers: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "requery_subscribers",
				Help: "Current number of active subscribers",
			},
		),
		snapshotsTotal: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "requery_snapshots_total",
				Help: "Total number of snapshots delivered to subscribers",
			},
		),
		gcEvictionsTotal: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "requery_gc_evictions_total",
				Help: "Total number of entries removed by garbage collection",
			},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "requery_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		registry: registry,
	}
}

// RecordFetchStart increments the in-flight gauge.
func (mc *MetricsCollector) RecordFetchStart() {
	if mc == nil {
		return
	}
	mc.fetchesInFlight.Inc()
}

// RecordFetch records a finished flight and decrements the in-flight gauge.
func (mc *MetricsCollector) RecordFetch(result string, duration time.Duration) {
	if mc == nil {
		return
	}
	mc.fetchesInFlight.Dec()
	mc.fetchesTotal.WithLabelValues(result).Inc()
	mc.fetchDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// RecordRetry increments the retry counter for an attempt.
func (mc *MetricsCollector) RecordRetry(attempt int) {
	if mc == nil {
		return
	}
	mc.retriesTotal.WithLabelValues(strconv.Itoa(attempt)).Inc()
}

// RecordDedupHit increments the deduplication hit counter.
func (mc *MetricsCollector) RecordDedupHit() {
	if mc == nil {
		return
	}
	mc.dedupHits.Inc()
}

// RecordCacheSize sets the entry count gauge.
func (mc *MetricsCollector) RecordCacheSize(size int) {
	if mc == nil {
		return
	}
	mc.cacheEntries.Set(float64(size))
}

// RecordSubscribers adjusts the subscriber gauge by delta.
func (mc *MetricsCollector) RecordSubscribers(delta int) {
	if mc == nil {
		return
	}
	mc.subscribers.Add(float64(delta))
}

// RecordSnapshot increments the delivered-snapshot counter.
func (mc *MetricsCollector) RecordSnapshot() {
	if mc == nil {
		return
	}
	mc.snapshotsTotal.Inc()
}

// RecordGCEviction increments the garbage-collection eviction counter.
func (mc *MetricsCollector) RecordGCEviction() {
	if mc == nil {
		return
	}
	mc.gcEvictionsTotal.Inc()
}

// RecordError increments the error counter by type.
func (mc *MetricsCollector) RecordError(errorType string) {
	if mc == nil {
		return
	}
	mc.errorsTotal.WithLabelValues(errorType).Inc()
}

// Registry exposes the registerer the collector was built on.
func (mc *MetricsCollector) Registry() prometheus.Registerer {
	return mc.registry
}
