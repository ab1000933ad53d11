// Package metrics exposes prometheus collectors for analytics runs and the
// HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry so tests can create as many as they like.
type Collector struct {
	namespace string
	registry  *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Analytics metrics
	RunsTotal    *prometheus.CounterVec
	RunDuration  *prometheus.HistogramVec
	StepDuration *prometheus.HistogramVec
	RunsInFlight prometheus.Gauge

	// Cache metrics
	CacheOperations *prometheus.CounterVec

	// Message metrics
	MessagesSent *prometheus.CounterVec
}

// NewCollector creates a new metrics collector
func NewCollector(namespace string) *Collector {
	c := &Collector{
		namespace: namespace,
		registry:  prometheus.NewRegistry(),
	}
	c.initializeMetrics()
	c.registerMetrics()
	return c
}

func (c *Collector) initializeMetrics() {
	c.RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	c.RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: c.namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	c.RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      "analytics_runs_total",
			Help:      "Finished analytics runs by status",
		},
		[]string{"status"},
	)

	c.RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: c.namespace,
			Name:      "analytics_run_duration_seconds",
			Help:      "Wall time of a full analytics run",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"status"},
	)

	c.StepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: c.namespace,
			Name:      "analytics_step_duration_seconds",
			Help:      "Wall time of one analytics step",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"step"},
	)

	c.RunsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: c.namespace,
			Name:      "analytics_runs_in_flight",
			Help:      "Analytics runs currently executing",
		},
	)

	c.CacheOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      "cache_operations_total",
			Help:      "Cache lookups by result",
		},
		[]string{"operation", "result"},
	)

	c.MessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      "messages_sent_total",
			Help:      "Messages published by topic and status",
		},
		[]string{"topic", "status"},
	)
}

func (c *Collector) registerMetrics() {
	c.registry.MustRegister(
		c.RequestsTotal,
		c.RequestDuration,
		c.RunsTotal,
		c.RunDuration,
		c.StepDuration,
		c.RunsInFlight,
		c.CacheOperations,
		c.MessagesSent,
	)
}

// RunStarted marks a run as in flight.
func (c *Collector) RunStarted() {
	c.RunsInFlight.Inc()
}

// ObserveStep records one finished step.
func (c *Collector) ObserveStep(step string, duration time.Duration) {
	c.StepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// ObserveRun records a finished run and takes it out of flight.
func (c *Collector) ObserveRun(status string, duration time.Duration) {
	c.RunsInFlight.Dec()
	c.RunsTotal.WithLabelValues(status).Inc()
	c.RunDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordCacheOperation counts a cache hit or miss.
func (c *Collector) RecordCacheOperation(operation, result string) {
	c.CacheOperations.WithLabelValues(operation, result).Inc()
}

// RecordMessageSent counts a published message.
func (c *Collector) RecordMessageSent(topic, status string) {
	c.MessagesSent.WithLabelValues(topic, status).Inc()
}

// RecordHTTPRequest records one served request.
func (c *Collector) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	c.RequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	c.RequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// GetRegistry returns the collector's registry
func (c *Collector) GetRegistry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// GinMiddleware records request count and latency by route template.
func (c *Collector) GinMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		endpoint := ctx.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		c.RecordHTTPRequest(ctx.Request.Method, endpoint, ctx.Writer.Status(), time.Since(start))
	}
}
