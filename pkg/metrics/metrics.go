package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors
type Metrics struct {
	serviceName string
	registry    *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Upstream marketplace API
	UpstreamRequestsTotal   *prometheus.CounterVec
	UpstreamRequestDuration *prometheus.HistogramVec

	// Finance page
	LaneDuration    *prometheus.HistogramVec
	LaneOutcomes    *prometheus.CounterVec
	RowsDerived     prometheus.Counter
	ExportsTotal    *prometheus.CounterVec
	ExportRows      prometheus.Histogram
	ActiveSessions  prometheus.Gauge
	SessionsEvicted prometheus.Counter

	// Kafka
	KafkaEventsPublished *prometheus.CounterVec
	KafkaPublishDuration *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec
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
		Namespace:   "market",
	}
}

// New creates and registers every collector on a private registry
func New(config *Config) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ns := config.Namespace
	service := prometheus.Labels{"service": config.ServiceName}

	m := &Metrics{
		serviceName: config.ServiceName,
		registry:    registry,
	}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"service", "method", "path", "status"})

	m.HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Name: "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"service", "method", "path"})

	m.HTTPRequestsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns, Name: "http_requests_in_flight",
		Help:        "Number of HTTP requests currently being processed",
		ConstLabels: service,
	})

	m.UpstreamRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "upstream_requests_total",
		Help:        "Calls to the marketplace API by operation and outcome",
		ConstLabels: service,
	}, []string{"upstream", "operation", "status"})

	m.UpstreamRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Name: "upstream_request_duration_seconds",
		Help:        "Marketplace API call duration in seconds",
		ConstLabels: service,
		Buckets:     []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"upstream", "operation"})

	m.LaneDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Subsystem: "finance", Name: "lane_duration_seconds",
		Help:        "Duration of a finance page fetch lane",
		ConstLabels: service,
		Buckets:     []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"lane"})

	m.LaneOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "finance", Name: "lane_outcomes_total",
		Help:        "Finance page lane completions by outcome",
		ConstLabels: service,
	}, []string{"lane", "outcome"})

	m.RowsDerived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "finance", Name: "rows_derived_total",
		Help:        "Transaction rows derived from payment feeds",
		ConstLabels: service,
	})

	m.ExportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "finance", Name: "exports_total",
		Help:        "CSV exports by outcome",
		ConstLabels: service,
	}, []string{"outcome"})

	m.ExportRows = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: ns, Subsystem: "finance", Name: "export_rows",
		Help:        "Rows per successful export",
		ConstLabels: service,
		Buckets:     prometheus.ExponentialBuckets(1, 4, 8),
	})

	m.ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns, Subsystem: "finance", Name: "active_sessions",
		Help:        "Finance pages currently cached",
		ConstLabels: service,
	})

	m.SessionsEvicted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "finance", Name: "sessions_evicted_total",
		Help:        "Finance pages torn down by expiry or explicit close",
		ConstLabels: service,
	})

	m.KafkaEventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "kafka_events_published_total",
		Help: "Total number of Kafka events published",
	}, []string{"service", "topic", "event_type", "status"})

	m.KafkaPublishDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Name: "kafka_publish_duration_seconds",
		Help:    "Kafka publish duration in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"service", "topic"})

	m.CircuitBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: ns, Name: "circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"service", "name"})

	m.CircuitBreakerTrips = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "circuit_breaker_trips_total",
		Help: "Total number of circuit breaker trips",
	}, []string{"service", "name"})

	registry.MustRegister(
		m.HTTPRequestsTotal, m.HTTPRequestDuration, m.HTTPRequestsInFlight,
		m.UpstreamRequestsTotal, m.UpstreamRequestDuration,
		m.LaneDuration, m.LaneOutcomes, m.RowsDerived, m.ExportsTotal, m.ExportRows,
		m.ActiveSessions, m.SessionsEvicted,
		m.KafkaEventsPublished, m.KafkaPublishDuration,
		m.CircuitBreakerState, m.CircuitBreakerTrips,
	)

	return m
}

// Handler returns the HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records an inbound HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(m.serviceName, method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(m.serviceName, method, path).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments the in-flight gauge
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements the in-flight gauge
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Dec()
}

// RecordRequest records an upstream call. Status is "success" or "error".
func (m *Metrics) RecordRequest(upstream, operation, status string, duration time.Duration) {
	m.UpstreamRequestsTotal.WithLabelValues(upstream, operation, status).Inc()
	m.UpstreamRequestDuration.WithLabelValues(upstream, operation).Observe(duration.Seconds())
}

// RecordLane records a finished finance lane
func (m *Metrics) RecordLane(lane, outcome string, duration time.Duration) {
	m.LaneOutcomes.WithLabelValues(lane, outcome).Inc()
	m.LaneDuration.WithLabelValues(lane).Observe(duration.Seconds())
}

// RecordRowsDerived counts derived transaction rows
func (m *Metrics) RecordRowsDerived(n int) {
	m.RowsDerived.Add(float64(n))
}

// RecordExport records a CSV export attempt
func (m *Metrics) RecordExport(success bool, rows int) {
	if !success {
		m.ExportsTotal.WithLabelValues("error").Inc()
		return
	}
	m.ExportsTotal.WithLabelValues("success").Inc()
	m.ExportRows.Observe(float64(rows))
}

// SetActiveSessions sets the cached session gauge
func (m *Metrics) SetActiveSessions(n int) {
	m.ActiveSessions.Set(float64(n))
}

// RecordSessionEvicted counts a torn-down session
func (m *Metrics) RecordSessionEvicted() {
	m.SessionsEvicted.Inc()
}

// RecordKafkaPublish records a Kafka publish
func (m *Metrics) RecordKafkaPublish(topic, eventType string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	m.KafkaEventsPublished.WithLabelValues(m.serviceName, topic, eventType, status).Inc()
	m.KafkaPublishDuration.WithLabelValues(m.serviceName, topic).Observe(duration.Seconds())
}

// SetCircuitBreakerState sets the circuit breaker state
func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	m.CircuitBreakerState.WithLabelValues(m.serviceName, name).Set(float64(state))
}

// RecordCircuitBreakerTrip records a circuit breaker trip
func (m *Metrics) RecordCircuitBreakerTrip(name string) {
	m.CircuitBreakerTrips.WithLabelValues(m.serviceName, name).Inc()
}
