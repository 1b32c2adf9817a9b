// Package metrics provides Prometheus metrics for the podium forecasting service.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Forecasting
	forecastsTotal   *prometheus.CounterVec
	forecastErrors   *prometheus.CounterVec
	forecastLatency  *prometheus.HistogramVec
	rankedResultSize prometheus.Histogram

	// Import
	importRows *prometheus.CounterVec

	// Datastore
	storeQueryLatency *prometheus.HistogramVec
	storeErrors       *prometheus.CounterVec
	cacheLookups      *prometheus.CounterVec
	breakerState      *prometheus.GaugeVec
	breakerTransition *prometheus.CounterVec
	breakerRejections *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByType     *prometheus.CounterVec
	errorRateByEndpoint *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithRegisterer(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "podium",
		subsystem:        "forecast",
		histogramBuckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.forecastsTotal = auto.NewCounterVec(
		m.counterOpts("forecasts_total", "Forecasts computed by entity kind and model"),
		[]string{"kind", "model"},
	)
	m.forecastErrors = auto.NewCounterVec(
		m.counterOpts("forecast_errors_total", "Failed forecast requests by error kind"),
		[]string{"error_kind"},
	)
	m.forecastLatency = auto.NewHistogramVec(
		m.histogramOpts("forecast_latency_milliseconds", "Forecast latency in milliseconds, store access included", m.histogramBuckets),
		[]string{"operation"},
	)
	m.rankedResultSize = auto.NewHistogram(
		m.histogramOpts("ranked_result_size", "Number of entries returned by ranked forecasts", []float64{0, 1, 5, 10, 25, 50, 100, 250}),
	)

	m.importRows = auto.NewCounterVec(
		m.counterOpts("import_rows_total", "Medal CSV rows seen by the importer by outcome"),
		[]string{"outcome"},
	)

	m.storeQueryLatency = auto.NewHistogramVec(
		m.histogramOpts("store_query_latency_milliseconds", "Datastore query latency in milliseconds", m.histogramBuckets),
		[]string{"operation"},
	)
	m.storeErrors = auto.NewCounterVec(
		m.counterOpts("store_errors_total", "Datastore failures by operation"),
		[]string{"operation"},
	)
	m.cacheLookups = auto.NewCounterVec(
		m.counterOpts("cache_lookups_total", "Cache lookups by operation and result (hit, miss, error)"),
		[]string{"operation", "result"},
	)
	m.breakerState = auto.NewGaugeVec(
		m.gaugeOpts("breaker_state", "Circuit breaker state (0 closed, 1 half-open, 2 open)"),
		[]string{"name"},
	)
	m.breakerTransition = auto.NewCounterVec(
		m.counterOpts("breaker_transitions_total", "Circuit breaker state transitions"),
		[]string{"name", "from", "to"},
	)
	m.breakerRejections = auto.NewCounterVec(
		m.counterOpts("breaker_rejections_total", "Calls rejected by an open circuit breaker"),
		[]string{"name"},
	)

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.histogramBuckets),
		[]string{"endpoint", "method", "status_code"},
	)
	m.errorRateByType = auto.NewCounterVec(
		m.counterOpts("errors_by_type_total", "Errors by type and severity"),
		[]string{"error_type", "severity"},
	)
	m.errorRateByEndpoint = auto.NewCounterVec(
		m.counterOpts("errors_by_endpoint_total", "Errors by endpoint"),
		[]string{"endpoint", "method", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "System memory usage in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(
		m.histogramOpts("system_gc_pause_time_milliseconds", "GC pause time in milliseconds", []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}),
	)
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// RecordForecast counts one computed forecast.
func RecordForecast(kind, model string) {
	globalManager.forecastsTotal.WithLabelValues(kind, model).Inc()
}

// RecordForecastError counts a failed forecast request by error kind.
func RecordForecastError(errorKind string) {
	globalManager.forecastErrors.WithLabelValues(errorKind).Inc()
}

// RecordForecastLatency observes the latency of a single or ranked forecast.
func RecordForecastLatency(operation string, d time.Duration) {
	globalManager.forecastLatency.WithLabelValues(operation).Observe(millis(d))
}

// RecordRankedResultSize observes the length of a ranked list.
func RecordRankedResultSize(n int) {
	globalManager.rankedResultSize.Observe(float64(n))
}

// RecordImportRow counts an importer row by outcome.
func RecordImportRow(outcome string) {
	globalManager.importRows.WithLabelValues(outcome).Inc()
}

// RecordStoreQuery observes a datastore query and counts it as failed when err is true.
func RecordStoreQuery(operation string, d time.Duration, failed bool) {
	globalManager.storeQueryLatency.WithLabelValues(operation).Observe(millis(d))
	if failed {
		globalManager.storeErrors.WithLabelValues(operation).Inc()
	}
}

// RecordCacheLookup counts a cache lookup; result is hit, miss or error.
func RecordCacheLookup(operation, result string) {
	globalManager.cacheLookups.WithLabelValues(operation, result).Inc()
}

// UpdateBreakerState sets the gauge of a circuit breaker.
func UpdateBreakerState(name string, state float64) {
	globalManager.breakerState.WithLabelValues(name).Set(state)
}

// RecordBreakerTransition counts a circuit breaker state change.
func RecordBreakerTransition(name, from, to string) {
	globalManager.breakerTransition.WithLabelValues(name, from, to).Inc()
}

// RecordBreakerRejection counts a call refused by an open breaker.
func RecordBreakerRejection(name string) {
	globalManager.breakerRejections.WithLabelValues(name).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method string, statusCode int) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, strconv.Itoa(statusCode)).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method string, statusCode int, d time.Duration) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, strconv.Itoa(statusCode)).Observe(millis(d))
}

// RecordErrorByType records an error by type and severity.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error by endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the registry the global collectors live in.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
