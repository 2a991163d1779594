// Package metrics exposes Prometheus collectors for the HTTP surface, upstream
// model calls, usage recording and billing webhooks.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	ProviderCallsTotal   *prometheus.CounterVec
	ProviderCallDuration *prometheus.HistogramVec

	GenerationsTotal  *prometheus.CounterVec
	UsageRecordsTotal *prometheus.CounterVec
	RateLimitedTotal  prometheus.Counter

	WebhookEventsTotal *prometheus.CounterVec
}

// New creates the collectors and registers them on registry. A nil registry
// gets a fresh one with the Go and process collectors.
func New(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promptcraft_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "promptcraft_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		ProviderCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promptcraft_provider_calls_total",
				Help: "Total number of upstream model provider calls",
			},
			[]string{"provider", "outcome"},
		),
		ProviderCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "promptcraft_provider_call_duration_seconds",
				Help:    "Upstream model provider call duration in seconds",
				Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"provider"},
		),
		GenerationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promptcraft_generations_total",
				Help: "Total number of generation requests by credential source and result",
			},
			[]string{"credential", "result"},
		),
		UsageRecordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promptcraft_usage_records_total",
				Help: "Usage recorder outcomes",
			},
			[]string{"outcome"},
		),
		RateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "promptcraft_rate_limited_total",
				Help: "Generation requests rejected by the rate limiter",
			},
		),
		WebhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promptcraft_webhook_events_total",
				Help: "Billing webhook events by type and outcome",
			},
			[]string{"event_type", "outcome"},
		),
	}
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ProviderCallsTotal,
		m.ProviderCallDuration,
		m.GenerationsTotal,
		m.UsageRecordsTotal,
		m.RateLimitedTotal,
		m.WebhookEventsTotal,
	)
	return m
}

// ObserveProviderCall records one upstream call.
func (m *Metrics) ObserveProviderCall(provider, outcome string, elapsed time.Duration) {
	m.ProviderCallsTotal.WithLabelValues(provider, outcome).Inc()
	m.ProviderCallDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// ObserveUsage records a usage recorder outcome.
func (m *Metrics) ObserveUsage(outcome string) {
	m.UsageRecordsTotal.WithLabelValues(outcome).Inc()
}

// ObserveWebhook records a reconciled billing event.
func (m *Metrics) ObserveWebhook(eventType, outcome string) {
	m.WebhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

// ObserveGeneration records a generation request result.
func (m *Metrics) ObserveGeneration(shared bool, result string) {
	credential := "user"
	if shared {
		credential = "shared"
	}
	m.GenerationsTotal.WithLabelValues(credential, result).Inc()
}

// ObserveRateLimited records a rejected generation request.
func (m *Metrics) ObserveRateLimited() {
	m.RateLimitedTotal.Inc()
}

// Middleware records request counts and latency by route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
