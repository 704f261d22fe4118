// Package metrics provides Prometheus metrics for the drivescore service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Ingestion
	samplesIngested  *prometheus.CounterVec
	samplesBuffered  prometheus.Gauge
	flushesTotal     prometheus.Counter
	flushFailures    prometheus.Counter
	flushLatency     prometheus.Histogram
	flushBatchSize   prometheus.Histogram
	samplesDiscarded prometheus.Counter

	// Sessions
	sessionsStarted  *prometheus.CounterVec
	sessionsEnded    *prometheus.CounterVec
	sessionTakeovers prometheus.Counter
	activeSessions   prometheus.Gauge

	// Evaluation
	evaluationsTotal   prometheus.Counter
	evaluationErrors   prometheus.Counter
	evaluationLatency  prometheus.Histogram
	scoreDistribution  prometheus.Histogram
	gradesTotal        *prometheus.CounterVec
	violationsDetected *prometheus.CounterVec
	liveChecks         *prometheus.CounterVec

	// Storage
	storeLatency *prometheus.HistogramVec
	storeErrors  *prometheus.CounterVec
	breakerState *prometheus.GaugeVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Workers
	workerActiveCount       prometheus.Gauge
	workerQueueLength       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
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
		namespace:        "drivescore",
		subsystem:        "core",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) name(n string) string {
	return m.metricPrefix + n
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels, Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels, Buckets: buckets,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place to declare every series
	b := m.histogramBuckets

	m.samplesIngested = m.counterVec("telemetry_samples_ingested_total", "Telemetry samples accepted, by ingest path", "path")
	m.samplesBuffered = m.gauge("telemetry_samples_buffered", "Telemetry samples currently held in session buffers")
	m.flushesTotal = m.counter("telemetry_flushes_total", "Successful buffer flushes")
	m.flushFailures = m.counter("telemetry_flush_failures_total", "Buffer flushes that failed and retained their samples")
	m.flushLatency = m.histogram("telemetry_flush_latency_milliseconds", "Buffer flush latency in milliseconds", b)
	m.flushBatchSize = m.histogram("telemetry_batch_size", "Rows written per telemetry batch",
		[]float64{1, 5, 10, 25, 50, 100, 250, 500, 1000})
	m.samplesDiscarded = m.counter("telemetry_samples_discarded_total", "Buffered samples dropped because their session was released")

	m.sessionsStarted = m.counterVec("sessions_started_total", "Sessions created, by environment", "environment")
	m.sessionsEnded = m.counterVec("sessions_ended_total", "Sessions ended, by final status", "status")
	m.sessionTakeovers = m.counter("session_takeovers_total", "Active sessions aborted by a new session for the same user")
	m.activeSessions = m.gauge("sessions_active", "Sessions currently active")

	m.evaluationsTotal = m.counter("evaluations_total", "Evaluations persisted")
	m.evaluationErrors = m.counter("evaluation_errors_total", "Evaluations that failed")
	m.evaluationLatency = m.histogram("evaluation_latency_milliseconds", "Analyze, score and persist latency in milliseconds", b)
	m.scoreDistribution = m.histogram("evaluation_score", "Distribution of evaluation scores",
		[]float64{10, 20, 30, 40, 50, 60, 65, 70, 75, 80, 85, 90, 95, 100})
	m.gradesTotal = m.counterVec("evaluation_grades_total", "Evaluations by grade", "grade")
	m.violationsDetected = m.counterVec("violations_detected_total", "Violations found by the behavior analyzer", "kind")
	m.liveChecks = m.counterVec("live_checks_total", "Single-sample live checks, by outcome", "outcome")

	m.storeLatency = m.histogramVec("store_latency_milliseconds", "Persistence operation latency in milliseconds", b, "operation")
	m.storeErrors = m.counterVec("store_errors_total", "Persistence operation failures", "operation")
	m.breakerState = m.gaugeVec("store_breaker_state", "Circuit breaker state (0 closed, 1 half-open, 2 open)", "name")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", b,
		"endpoint", "method", "status_code")

	m.workerActiveCount = m.gauge("worker_active_count", "Re-evaluation workers running")
	m.workerQueueLength = m.gauge("worker_queue_length", "Re-evaluation jobs waiting")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Re-evaluation job latency in milliseconds", b)
	m.workerErrorRate = m.counter("worker_errors_total", "Re-evaluation jobs that failed")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Errors by type", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Ingestion.

// RecordSamplesIngested adds n samples accepted through path ("single" or "batch").
func RecordSamplesIngested(path string, n int) {
	globalManager.samplesIngested.WithLabelValues(path).Add(float64(n))
}

// AddSamplesBuffered moves the buffered-samples gauge by delta.
func AddSamplesBuffered(delta int) {
	globalManager.samplesBuffered.Add(float64(delta))
}

// RecordFlush records a successful flush of size rows.
func RecordFlush(size int, latencyMs float64) {
	globalManager.flushesTotal.Inc()
	globalManager.flushBatchSize.Observe(float64(size))
	globalManager.flushLatency.Observe(latencyMs)
}

// RecordFlushFailure records a failed flush.
func RecordFlushFailure() {
	globalManager.flushFailures.Inc()
}

// RecordSamplesDiscarded counts buffered samples dropped on release.
func RecordSamplesDiscarded(n int) {
	globalManager.samplesDiscarded.Add(float64(n))
}

// Sessions.

// RecordSessionStarted counts a new session.
func RecordSessionStarted(environment string) {
	globalManager.sessionsStarted.WithLabelValues(environment).Inc()
	globalManager.activeSessions.Inc()
}

// RecordSessionEnded counts a terminal transition.
func RecordSessionEnded(status string) {
	globalManager.sessionsEnded.WithLabelValues(status).Inc()
	globalManager.activeSessions.Dec()
}

// RecordSessionTakeover counts an implicit abort caused by a new session.
func RecordSessionTakeover() {
	globalManager.sessionTakeovers.Inc()
}

// Evaluation.

// RecordEvaluation records a persisted evaluation.
func RecordEvaluation(score int, grade string, latencyMs float64) {
	globalManager.evaluationsTotal.Inc()
	globalManager.scoreDistribution.Observe(float64(score))
	globalManager.gradesTotal.WithLabelValues(grade).Inc()
	globalManager.evaluationLatency.Observe(latencyMs)
}

// RecordEvaluationError counts a failed evaluation.
func RecordEvaluationError() {
	globalManager.evaluationErrors.Inc()
}

// RecordViolations adds n violations of kind.
func RecordViolations(kind string, n int) {
	if n <= 0 {
		return
	}
	globalManager.violationsDetected.WithLabelValues(kind).Add(float64(n))
}

// RecordLiveCheck counts a live check by outcome ("clean" or "violation").
func RecordLiveCheck(outcome string) {
	globalManager.liveChecks.WithLabelValues(outcome).Inc()
}

// Storage.

// RecordStoreLatency observes a persistence call.
func RecordStoreLatency(operation string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordStoreError counts a persistence failure.
func RecordStoreError(operation string) {
	globalManager.storeErrors.WithLabelValues(operation).Inc()
}

// UpdateBreakerState publishes the breaker state for name.
func UpdateBreakerState(name string, state int) {
	globalManager.breakerState.WithLabelValues(name).Set(float64(state))
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Workers.

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateWorkerQueueLength sets the number of waiting jobs.
func UpdateWorkerQueueLength(n int) {
	globalManager.workerQueueLength.Set(float64(n))
}

// RecordWorkerProcessingLatency records job latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// Errors.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
