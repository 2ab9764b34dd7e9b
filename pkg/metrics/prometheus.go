// Package metrics provides Prometheus metrics for the eventhub service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the eventhub service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Source fetches, one series per source key
	sourceFetches       *prometheus.CounterVec
	sourceFetchDuration *prometheus.HistogramVec

	// Aggregation cycles and the committed collection
	aggregationCycles *prometheus.CounterVec
	collectionSize    *prometheus.GaugeVec
	eventsCreated     *prometheus.CounterVec

	// External feed
	cacheLookups  *prometheus.CounterVec
	cacheErrors   *prometheus.CounterVec
	externalPaths *prometheus.CounterVec

	// Live reconciliation
	changesApplied       *prometheus.CounterVec
	changeQueueSize      prometheus.Gauge
	changeQueueCapacity  prometheus.Gauge
	changeQueueDropped   prometheus.Counter
	changeProcessLatency prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "eventhub",
		subsystem:        "aggregator",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 15000},
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.sourceFetches = m.counterVec("source_fetches_total",
		"Total number of source fetches by source and result", "source", "result")
	m.sourceFetchDuration = m.histogramVec("source_fetch_duration_milliseconds",
		"Source fetch duration in milliseconds", "source")

	m.aggregationCycles = m.counterVec("aggregation_cycles_total",
		"Total number of aggregation cycles by result", "result")
	m.collectionSize = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "collection_events",
		Help:        "Number of events in the canonical collection by view",
		ConstLabels: m.constLabels,
	}, []string{"view"})
	m.eventsCreated = m.counterVec("events_created_total",
		"Total number of event creations by result", "result")

	m.cacheLookups = m.counterVec("cache_lookups_total",
		"Total number of external cache lookups by result", "result")
	m.cacheErrors = m.counterVec("cache_errors_total",
		"Total number of cache backend errors by operation", "op")
	m.externalPaths = m.counterVec("external_fetch_paths_total",
		"Total number of external feed requests by path and result", "path", "result")

	m.changesApplied = m.counterVec("changes_total",
		"Total number of live change notifications by type and outcome", "type", "outcome")
	m.changeQueueSize = m.gauge("change_queue_size", "Current number of queued change notifications")
	m.changeQueueCapacity = m.gauge("change_queue_capacity", "Maximum number of queued change notifications")
	m.changeQueueDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "change_queue_dropped_total",
		Help:        "Total number of change notifications rejected by the queue",
		ConstLabels: m.constLabels,
	})
	m.changeProcessLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "change_processing_latency_milliseconds",
		Help:        "Change notification processing latency in milliseconds",
		Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100},
		ConstLabels: m.constLabels,
	})

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_total",
		"Total number of errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
}

// RecordSourceFetch records one fetch of a source with its result and latency.
func RecordSourceFetch(source, result string, latencyMs float64) {
	globalManager.sourceFetches.WithLabelValues(source, result).Inc()
	globalManager.sourceFetchDuration.WithLabelValues(source).Observe(latencyMs)
}

// RecordAggregationCycle counts an aggregation cycle by result
// (committed, fresh, failed).
func RecordAggregationCycle(result string) {
	globalManager.aggregationCycles.WithLabelValues(result).Inc()
}

// UpdateCollectionSize sets the size of the full and filtered collection.
func UpdateCollectionSize(all, filtered int) {
	globalManager.collectionSize.WithLabelValues("all").Set(float64(all))
	globalManager.collectionSize.WithLabelValues("filtered").Set(float64(filtered))
}

// RecordEventCreated counts an event creation attempt.
func RecordEventCreated(result string) {
	globalManager.eventsCreated.WithLabelValues(result).Inc()
}

// RecordCacheHit increments the cache hit counter.
func RecordCacheHit() {
	globalManager.cacheLookups.WithLabelValues("hit").Inc()
}

// RecordCacheMiss increments the cache miss counter.
func RecordCacheMiss() {
	globalManager.cacheLookups.WithLabelValues("miss").Inc()
}

// RecordCacheError counts a cache backend failure for op (get, set, del).
func RecordCacheError(op string) {
	globalManager.cacheErrors.WithLabelValues(op).Inc()
}

// RecordExternalPath counts an external feed request over path (proxy, direct).
func RecordExternalPath(path, result string) {
	globalManager.externalPaths.WithLabelValues(path, result).Inc()
}

// RecordChange counts a live change notification by type and outcome
// (applied, ignored, buried).
func RecordChange(changeType, outcome string) {
	globalManager.changesApplied.WithLabelValues(changeType, outcome).Inc()
}

// UpdateChangeQueue sets the current size and capacity of the change queue.
func UpdateChangeQueue(size, capacity int) {
	globalManager.changeQueueSize.Set(float64(size))
	globalManager.changeQueueCapacity.Set(float64(capacity))
}

// RecordChangeDropped increments the dropped change counter.
func RecordChangeDropped() {
	globalManager.changeQueueDropped.Inc()
}

// RecordChangeProcessingLatency records change processing latency.
func RecordChangeProcessingLatency(latencyMs float64) {
	globalManager.changeProcessLatency.Observe(latencyMs)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
