package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	fetchAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenagent_fetch_attempts_total",
			Help: "Total number of source fetch attempts.",
		},
		[]string{"source", "status"},
	)

	fetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tokenagent_fetch_duration_seconds",
			Help:    "Source fetch duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"source"},
	)

	parseFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenagent_parse_failures_total",
			Help: "Total number of per-token parse failures.",
		},
		[]string{"source", "token", "reason"},
	)

	cachedTokens = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tokenagent_cached_tokens",
			Help: "Number of tokens currently cached for a source.",
		},
		[]string{"source"},
	)

	tokenExpiryUnix = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tokenagent_token_expiry_unix",
			Help: "Absolute expiry (unix seconds) of a cached token.",
		},
		[]string{"source", "token"},
	)

	sinkPropagations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenagent_sink_propagations_total",
			Help: "Total number of sink writes/serves.",
		},
		[]string{"sink", "kind", "status"},
	)

	sinkDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tokenagent_sink_duration_seconds",
			Help:    "Sink propagation duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 10),
		},
		[]string{"sink"},
	)

	busDrops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenagent_sink_bus_drops_total",
			Help: "Total number of notification-bus messages dropped for a slow subscriber.",
		},
		[]string{"subscriber"},
	)

	configValidationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenagent_config_validation_errors_total",
			Help: "Total number of configuration validation errors found at startup.",
		},
		[]string{"field"},
	)

	registered = false
)

// Register registers every collector with the default Prometheus registry.
// Idempotent and safe to call multiple times.
func Register() {
	if registered {
		return
	}
	prometheus.MustRegister(
		fetchAttempts,
		fetchDuration,
		parseFailures,
		cachedTokens,
		tokenExpiryUnix,
		sinkPropagations,
		sinkDuration,
		busDrops,
		configValidationErrors,
	)
	registered = true
}

// Collector records the agent's metrics. It holds no state of its own; it
// is a thin, injectable wrapper around the package-level collector
// variables so engine components can depend on an interface rather than
// reaching for prometheus globals directly.
type Collector struct{}

// NewCollector creates a Collector. Register must be called once at
// startup before any metrics are recorded.
func NewCollector() *Collector { return &Collector{} }

// RecordFetch records the outcome of one source fetch attempt.
func (c *Collector) RecordFetch(source, status string, duration time.Duration) {
	fetchAttempts.WithLabelValues(source, status).Inc()
	fetchDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordParseFailure records a per-token parse failure.
func (c *Collector) RecordParseFailure(source, token, reason string) {
	parseFailures.WithLabelValues(source, token, reason).Inc()
}

// SetCachedTokens sets the cached-token gauge for a source.
func (c *Collector) SetCachedTokens(source string, count float64) {
	cachedTokens.WithLabelValues(source).Set(count)
}

// SetTokenExpiry sets the expiry gauge for one cached token.
func (c *Collector) SetTokenExpiry(source, token string, expiryUnix float64) {
	tokenExpiryUnix.WithLabelValues(source, token).Set(expiryUnix)
}

// DeleteTokenExpiry removes the expiry gauge for an evicted token.
func (c *Collector) DeleteTokenExpiry(source, token string) {
	tokenExpiryUnix.DeleteLabelValues(source, token)
}

// RecordSinkPropagation records the outcome of one sink write/serve.
func (c *Collector) RecordSinkPropagation(sink, kind, status string, duration time.Duration) {
	sinkPropagations.WithLabelValues(sink, kind, status).Inc()
	sinkDuration.WithLabelValues(sink).Observe(duration.Seconds())
}

// RecordBusDrop records a notification dropped for a slow subscriber.
func (c *Collector) RecordBusDrop(subscriber string) {
	busDrops.WithLabelValues(subscriber).Inc()
}

// RecordConfigValidationError records one validation failure found at
// startup.
func (c *Collector) RecordConfigValidationError(field string) {
	configValidationErrors.WithLabelValues(field).Inc()
}

// Timer measures elapsed duration for a fetch or sink propagation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() Timer { return Timer{start: time.Now()} }

// Elapsed returns the duration since the timer started.
func (t Timer) Elapsed() time.Duration { return time.Since(t.start) }
