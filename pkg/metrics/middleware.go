package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenagent_http_requests_total",
			Help: "Total number of HTTP requests served by the agent's sink surface.",
		},
		[]string{"route", "method", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tokenagent_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		},
		[]string{"route", "method"},
	)

	activeRequests = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tokenagent_http_active_requests",
			Help: "Number of currently in-flight HTTP requests.",
		},
		[]string{"route"},
	)

	httpMiddlewareRegistered = false
)

func registerHTTPMiddlewareMetrics() {
	if httpMiddlewareRegistered {
		return
	}
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, activeRequests)
	httpMiddlewareRegistered = true
}

// GinMiddleware returns a gin middleware that records request count,
// duration, and in-flight gauge for every route it is attached to. The
// route label is gin's matched path, not the raw URL, so dynamic sink
// routes don't create unbounded label cardinality.
func GinMiddleware() gin.HandlerFunc {
	registerHTTPMiddlewareMetrics()

	return func(c *gin.Context) {
		start := time.Now()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		activeRequests.WithLabelValues(route).Inc()
		defer activeRequests.WithLabelValues(route).Dec()

		c.Next()

		duration := time.Since(start)
		status := strconv.Itoa(c.Writer.Status())

		httpRequestsTotal.WithLabelValues(route, c.Request.Method, status).Inc()
		httpRequestDuration.WithLabelValues(route, c.Request.Method).Observe(duration.Seconds())
	}
}
