package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	operationLabel = "operation"
	resultLabel    = "result"
	outcomeLabel   = "outcome"
	methodLabel    = "method"
	statusLabel    = "status"
)

// Metrics holds the Prometheus collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	cacheResults     *prometheus.CounterVec
	upstreamRequests *prometheus.CounterVec
	upstreamTimer    *prometheus.HistogramVec
	httpRequests     *prometheus.CounterVec
	alertsTriggered  prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{Registry: prometheus.NewRegistry()}

	m.cacheResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cheeseball_proxy_cache_results_total",
		Help: "Response cache lookups by operation and result (hit or miss).",
	}, []string{operationLabel, resultLabel})

	m.upstreamRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cheeseball_upstream_requests_total",
		Help: "Upstream market-data requests by operation and outcome.",
	}, []string{operationLabel, outcomeLabel})

	m.upstreamTimer = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cheeseball_upstream_request_duration_seconds",
		Help:    "Upstream market-data request latency.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{operationLabel})

	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cheeseball_http_requests_total",
		Help: "HTTP requests served by method and status code.",
	}, []string{methodLabel, statusLabel})

	m.alertsTriggered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cheeseball_alerts_triggered_total",
		Help: "Price alerts that crossed their target.",
	})

	m.Registry.MustRegister(
		m.cacheResults,
		m.upstreamRequests,
		m.upstreamTimer,
		m.httpRequests,
		m.alertsTriggered,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) RecordCacheResult(operation string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheResults.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) RecordUpstream(operation string, duration time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.upstreamRequests.WithLabelValues(operation, outcome).Inc()
	m.upstreamTimer.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *Metrics) RecordHTTPRequest(method string, status int) {
	m.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

func (m *Metrics) RecordAlertTriggered() {
	m.alertsTriggered.Inc()
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
