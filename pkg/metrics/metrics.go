package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the scanner service collectors. All Record/Set methods are
// safe on a nil receiver so components can run without metrics in tests.
type Metrics struct {
	serviceName string
	registry    *prometheus.Registry

	// HTTP
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Scanner workflow
	TransitionsTotal     *prometheus.CounterVec
	OverridesTotal       *prometheus.CounterVec
	DuplicateScansTotal  *prometheus.CounterVec
	StaleResponsesTotal  *prometheus.CounterVec
	FeedbackSignalsTotal *prometheus.CounterVec
	FeedbackDroppedTotal prometheus.Counter
	OperationsCompleted  *prometheus.CounterVec
	SessionsActive       prometheus.Gauge
	GatewayCallsTotal    *prometheus.CounterVec
	GatewayCallDuration  *prometheus.HistogramVec
	CircuitBreakerState  *prometheus.GaugeVec

	// Infrastructure
	KafkaEventsPublished     *prometheus.CounterVec
	KafkaPublishDuration     *prometheus.HistogramVec
	MongoDBOperations        *prometheus.CounterVec
	MongoDBOperationDuration *prometheus.HistogramVec
	WorkflowsStarted         *prometheus.CounterVec
}

// Config holds metrics configuration
type Config struct {
	ServiceName string
	Namespace   string
}

// DefaultConfig returns default metrics configuration
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Namespace:   "wms",
	}
}

// New creates and registers all collectors on a private registry.
func New(config *Config) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ns := config.Namespace
	constLabels := prometheus.Labels{"service": config.ServiceName}

	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		c := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: name, Help: help, ConstLabels: constLabels,
		}, labels)
		registry.MustRegister(c)
		return c
	}
	histogram := func(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
		h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Name: name, Help: help, Buckets: buckets, ConstLabels: constLabels,
		}, labels)
		registry.MustRegister(h)
		return h
	}

	m := &Metrics{serviceName: config.ServiceName, registry: registry}

	m.HTTPRequestsTotal = counter("http_requests_total", "Total number of HTTP requests", "method", "path", "status")
	m.HTTPRequestDuration = histogram("http_request_duration_seconds", "HTTP request duration in seconds",
		[]float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}, "method", "path")
	m.HTTPRequestsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns, Name: "http_requests_in_flight", Help: "HTTP requests currently being processed", ConstLabels: constLabels,
	})
	registry.MustRegister(m.HTTPRequestsInFlight)

	m.TransitionsTotal = counter("scanner_transitions_total", "Workflow events applied to scanner sessions", "operation", "event", "outcome")
	m.OverridesTotal = counter("scanner_destination_overrides_total", "Destinations confirmed against the suggestion", "operation")
	m.DuplicateScansTotal = counter("scanner_duplicate_scans_total", "Repeated scans suppressed by the debounce window", "operation", "channel")
	m.StaleResponsesTotal = counter("scanner_stale_responses_total", "Remote results discarded because a newer request superseded them", "operation", "call")
	m.FeedbackSignalsTotal = counter("scanner_feedback_signals_total", "Feedback cues emitted", "signal")
	m.FeedbackDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns, Name: "scanner_feedback_dropped_total", Help: "Feedback cues dropped because the queue was full", ConstLabels: constLabels,
	})
	registry.MustRegister(m.FeedbackDroppedTotal)
	m.OperationsCompleted = counter("scanner_operations_completed_total", "Operations submitted successfully", "operation")
	m.SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns, Name: "scanner_sessions_active", Help: "Scanner sessions currently held in memory", ConstLabels: constLabels,
	})
	registry.MustRegister(m.SessionsActive)
	m.GatewayCallsTotal = counter("gateway_calls_total", "Remote gateway calls", "call", "outcome")
	m.GatewayCallDuration = histogram("gateway_call_duration_seconds", "Remote gateway call duration in seconds",
		[]float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}, "call")
	m.CircuitBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: ns, Name: "circuit_breaker_state", Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)", ConstLabels: constLabels,
	}, []string{"name"})
	registry.MustRegister(m.CircuitBreakerState)

	m.KafkaEventsPublished = counter("kafka_events_published_total", "Total number of Kafka events published", "topic", "event_type", "status")
	m.KafkaPublishDuration = histogram("kafka_publish_duration_seconds", "Kafka publish duration in seconds",
		[]float64{.001, .005, .01, .025, .05, .1, .25, .5, 1}, "topic")
	m.MongoDBOperations = counter("mongodb_operations_total", "Total number of MongoDB operations", "collection", "operation", "status")
	m.MongoDBOperationDuration = histogram("mongodb_operation_duration_seconds", "MongoDB operation duration in seconds",
		[]float64{.001, .005, .01, .025, .05, .1, .25, .5, 1}, "collection", "operation")
	m.WorkflowsStarted = counter("temporal_workflows_started_total", "Temporal workflows started", "workflow_type", "status")

	return m
}

// Handler returns the Prometheus scrape handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func (m *Metrics) RecordHTTPRequest(method, path string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (m *Metrics) IncrementHTTPRequestsInFlight() {
	if m != nil {
		m.HTTPRequestsInFlight.Inc()
	}
}

func (m *Metrics) DecrementHTTPRequestsInFlight() {
	if m != nil {
		m.HTTPRequestsInFlight.Dec()
	}
}

// RecordTransition counts an event applied to a session. outcome is
// "accepted" or "rejected".
func (m *Metrics) RecordTransition(operation, event, outcome string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(operation, event, outcome).Inc()
}

func (m *Metrics) RecordOverride(operation string) {
	if m == nil {
		return
	}
	m.OverridesTotal.WithLabelValues(operation).Inc()
}

func (m *Metrics) RecordDuplicateScan(operation, channel string) {
	if m == nil {
		return
	}
	m.DuplicateScansTotal.WithLabelValues(operation, channel).Inc()
}

func (m *Metrics) RecordStaleResponse(operation, call string) {
	if m == nil {
		return
	}
	m.StaleResponsesTotal.WithLabelValues(operation, call).Inc()
}

func (m *Metrics) RecordFeedbackSignal(signal string) {
	if m == nil {
		return
	}
	m.FeedbackSignalsTotal.WithLabelValues(signal).Inc()
}

func (m *Metrics) RecordFeedbackDropped() {
	if m == nil {
		return
	}
	m.FeedbackDroppedTotal.Inc()
}

func (m *Metrics) RecordOperationCompleted(operation string) {
	if m == nil {
		return
	}
	m.OperationsCompleted.WithLabelValues(operation).Inc()
}

func (m *Metrics) SetSessionsActive(n int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(n))
}

func (m *Metrics) RecordGatewayCall(call string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.GatewayCallsTotal.WithLabelValues(call, status(success)).Inc()
	m.GatewayCallDuration.WithLabelValues(call).Observe(duration.Seconds())
}

// SetCircuitBreakerState records 0=closed, 1=half-open, 2=open.
func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

func (m *Metrics) RecordKafkaPublish(topic, eventType string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.KafkaEventsPublished.WithLabelValues(topic, eventType, status(success)).Inc()
	m.KafkaPublishDuration.WithLabelValues(topic).Observe(duration.Seconds())
}

func (m *Metrics) RecordMongoDBOperation(collection, operation string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.MongoDBOperations.WithLabelValues(collection, operation, status(success)).Inc()
	m.MongoDBOperationDuration.WithLabelValues(collection, operation).Observe(duration.Seconds())
}

func (m *Metrics) RecordWorkflowStarted(workflowType string, success bool) {
	if m == nil {
		return
	}
	m.WorkflowsStarted.WithLabelValues(workflowType, status(success)).Inc()
}
