// Package metrics provides Prometheus metrics for the dosewatch engine.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values for slot verdicts.
const (
	VerdictNotYetDue = "not_yet_due"
	VerdictAlertable = "alertable"
	VerdictExpired   = "expired"
	VerdictMalformed = "malformed"
)

// Label values for suppressed alerts.
const (
	SuppressedIntake           = "intake"
	SuppressedDuplicate        = "duplicate"
	SuppressedCaregiverMissing = "caregiver_missing"
	SuppressedRecheck          = "recheck"
)

// Label values for outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Manager manages all Prometheus metrics for the dosewatch engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Poller
	cycles           *prometheus.CounterVec
	cycleDuration    prometheus.Histogram
	medicationsTotal prometheus.Gauge
	slotVerdicts     *prometheus.CounterVec
	alertsSuppressed *prometheus.CounterVec
	storageErrors    *prometheus.CounterVec

	// Ledger
	ledgerSize      prometheus.Gauge
	ledgerEvictions prometheus.Counter
	ledgerErrors    prometheus.Counter

	// Queue
	queueSize      prometheus.Gauge
	queueCapacity  prometheus.Gauge
	alertsEnqueued prometheus.Counter
	alertsDropped  prometheus.Counter

	// Workers and delivery
	workerCount         prometheus.Gauge
	notifications       *prometheus.CounterVec
	notificationLatency *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpErrors          *prometheus.CounterVec

	// Process
	memoryUsage    prometheus.Gauge
	goroutineCount prometheus.Gauge
	gcPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "dosewatch",
		subsystem:        "engine",
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

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
		Buckets:     m.histogramBuckets,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.cycles = auto.NewCounterVec(
		m.counterOpts("cycles_total", "Total number of poll cycles by outcome"),
		[]string{"outcome"},
	)
	m.cycleDuration = auto.NewHistogram(
		m.histogramOpts("cycle_duration_milliseconds", "Poll cycle duration in milliseconds"),
	)
	m.medicationsTotal = auto.NewGauge(
		m.gaugeOpts("medications_active", "Active medications seen by the last cycle"),
	)
	m.slotVerdicts = auto.NewCounterVec(
		m.counterOpts("slot_verdicts_total", "Dose slots evaluated by verdict"),
		[]string{"verdict"},
	)
	m.alertsSuppressed = auto.NewCounterVec(
		m.counterOpts("alerts_suppressed_total", "Alertable doses that produced no alert, by reason"),
		[]string{"reason"},
	)
	m.storageErrors = auto.NewCounterVec(
		m.counterOpts("storage_errors_total", "Storage read failures by operation"),
		[]string{"operation"},
	)

	m.ledgerSize = auto.NewGauge(
		m.gaugeOpts("ledger_size", "Dose instances currently held in the dedup ledger"),
	)
	m.ledgerEvictions = auto.NewCounter(
		m.counterOpts("ledger_evictions_total", "Dose instances evicted from the dedup ledger"),
	)
	m.ledgerErrors = auto.NewCounter(
		m.counterOpts("ledger_errors_total", "Dedup ledger backend failures"),
	)

	m.queueSize = auto.NewGauge(
		m.gaugeOpts("queue_size", "Alerts waiting for delivery"),
	)
	m.queueCapacity = auto.NewGauge(
		m.gaugeOpts("queue_capacity", "Maximum alert queue capacity"),
	)
	m.alertsEnqueued = auto.NewCounter(
		m.counterOpts("alerts_enqueued_total", "Alerts handed to the delivery queue"),
	)
	m.alertsDropped = auto.NewCounter(
		m.counterOpts("alerts_dropped_total", "Alerts dropped because the delivery queue was full or closed"),
	)

	m.workerCount = auto.NewGauge(
		m.gaugeOpts("worker_count", "Current number of delivery workers"),
	)
	m.notifications = auto.NewCounterVec(
		m.counterOpts("notifications_total", "Notification attempts by transport and outcome"),
		[]string{"transport", "outcome"},
	)
	m.notificationLatency = auto.NewHistogramVec(
		m.histogramOpts("notification_latency_milliseconds", "Notification send latency in milliseconds"),
		[]string{"transport"},
	)

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpErrors = auto.NewCounterVec(
		m.counterOpts("http_errors_total", "HTTP error responses by endpoint, type and severity"),
		[]string{"endpoint", "method", "error_type", "severity"},
	)

	m.memoryUsage = auto.NewGauge(
		m.gaugeOpts("memory_usage_bytes", "Heap bytes allocated by the process"),
	)
	m.goroutineCount = auto.NewGauge(
		m.gaugeOpts("goroutines", "Current number of goroutines"),
	)
	m.gcPauseTime = auto.NewHistogram(
		m.histogramOpts("gc_pause_milliseconds", "Average GC pause in milliseconds"),
	)
}

// RecordCycle counts a finished poll cycle and its duration.
func RecordCycle(outcome string, durationMs float64) {
	globalManager.cycles.WithLabelValues(outcome).Inc()
	globalManager.cycleDuration.Observe(durationMs)
}

// UpdateActiveMedications sets the number of medications seen by the last cycle.
func UpdateActiveMedications(count int) {
	globalManager.medicationsTotal.Set(float64(count))
}

// RecordSlotVerdict counts one evaluated slot.
func RecordSlotVerdict(verdict string) error {
	switch verdict {
	case VerdictNotYetDue, VerdictAlertable, VerdictExpired, VerdictMalformed:
	default:
		return fmt.Errorf("%w: verdict %q", ErrUnknownLabel, verdict)
	}
	globalManager.slotVerdicts.WithLabelValues(verdict).Inc()
	return nil
}

// RecordAlertSuppressed counts an alertable dose that produced no alert.
func RecordAlertSuppressed(reason string) error {
	switch reason {
	case SuppressedIntake, SuppressedDuplicate, SuppressedCaregiverMissing, SuppressedRecheck:
	default:
		return fmt.Errorf("%w: reason %q", ErrUnknownLabel, reason)
	}
	globalManager.alertsSuppressed.WithLabelValues(reason).Inc()
	return nil
}

// RecordStorageError counts a failed store read.
func RecordStorageError(operation string) {
	globalManager.storageErrors.WithLabelValues(operation).Inc()
}

// UpdateLedgerSize sets the current ledger size.
func UpdateLedgerSize(size int) {
	globalManager.ledgerSize.Set(float64(size))
}

// RecordLedgerEvictions adds n evicted ledger entries.
func RecordLedgerEvictions(n int) {
	if n > 0 {
		globalManager.ledgerEvictions.Add(float64(n))
	}
}

// RecordLedgerError counts a ledger backend failure.
func RecordLedgerError() {
	globalManager.ledgerErrors.Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordAlertEnqueued increments the enqueued alerts counter.
func RecordAlertEnqueued() {
	globalManager.alertsEnqueued.Inc()
}

// RecordAlertDropped increments the dropped alerts counter.
func RecordAlertDropped() {
	globalManager.alertsDropped.Inc()
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordNotification counts a delivery attempt and its latency.
func RecordNotification(transport, outcome string, latencyMs float64) {
	globalManager.notifications.WithLabelValues(transport, outcome).Inc()
	globalManager.notificationLatency.WithLabelValues(transport).Observe(latencyMs)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordHTTPError records an HTTP error response.
func RecordHTTPError(endpoint, method, errorType, severity string) {
	globalManager.httpErrors.WithLabelValues(endpoint, method, errorType, severity).Inc()
}

// UpdateSystemMemoryUsage sets the allocated heap size.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.memoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.goroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime observes an average GC pause.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.gcPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
