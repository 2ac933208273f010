// Package metrics provides Prometheus metrics export for the chat pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hrygo/omnichat/ai/core/llm"
)

const (
	namespace = "omnichat"
	subsystem = "ai"
)

// PrometheusExporter exports chat and provider metrics in Prometheus format.
type PrometheusExporter struct {
	registry *prometheus.Registry

	// Chat metrics
	chatLatency  *prometheus.HistogramVec
	chatRequests *prometheus.CounterVec
	chatActive   prometheus.Gauge

	// Provider metrics
	providerAttempts *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	llmTokensUsed    *prometheus.CounterVec

	partialPersistence prometheus.Counter
}

// Config configures the Prometheus exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64

	// RuntimeCollectors adds the Go runtime and process collectors.
	RuntimeCollectors bool
}

// DefaultConfig returns default Prometheus configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets:    []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		RuntimeCollectors: true,
	}
}

// NewPrometheusExporter creates a new Prometheus metrics exporter.
func NewPrometheusExporter(cfg Config) *PrometheusExporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &PrometheusExporter{registry: registry}

	e.chatLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "chat_latency_seconds",
			Help:      "Chat turn latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"status"},
	)

	e.chatRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "chat_requests_total",
			Help:      "Total number of chat turns by outcome",
		},
		[]string{"status"},
	)

	e.chatActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "chat_active",
			Help:      "Number of chat turns in flight",
		},
	)

	e.providerAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "provider_attempts_total",
			Help:      "Provider candidate attempts by outcome",
		},
		[]string{"provider", "model", "outcome"},
	)

	e.providerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "provider_latency_seconds",
			Help:      "Provider call latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"provider", "model"},
	)

	e.llmTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "llm_tokens_total",
			Help:      "Total LLM tokens consumed",
		},
		[]string{"model", "token_type"},
	)

	e.partialPersistence = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "partial_persistence_total",
			Help:      "Completed chat turns whose messages were not fully stored",
		},
	)

	registry.MustRegister(
		e.chatLatency,
		e.chatRequests,
		e.chatActive,
		e.providerAttempts,
		e.providerLatency,
		e.llmTokensUsed,
		e.partialPersistence,
	)
	if cfg.RuntimeCollectors {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	return e
}

// RecordChatRequest records the outcome of one chat turn.
func (e *PrometheusExporter) RecordChatRequest(status string, latency time.Duration) {
	e.chatRequests.WithLabelValues(status).Inc()
	e.chatLatency.WithLabelValues(status).Observe(latency.Seconds())
}

// RecordPartialPersistence counts a completion that was returned but not fully stored.
func (e *PrometheusExporter) RecordPartialPersistence() {
	e.partialPersistence.Inc()
}

// ChatStarted and ChatFinished track in-flight chat turns.
func (e *PrometheusExporter) ChatStarted()  { e.chatActive.Inc() }
func (e *PrometheusExporter) ChatFinished() { e.chatActive.Dec() }

// ObserveAttempt records one provider candidate attempt.
func (e *PrometheusExporter) ObserveAttempt(provider, model, outcome string, latency time.Duration, stats *llm.CallStats) {
	e.providerAttempts.WithLabelValues(provider, model, outcome).Inc()
	e.providerLatency.WithLabelValues(provider, model).Observe(latency.Seconds())
	if stats != nil {
		e.RecordLLMTokens(model, "prompt", stats.PromptTokens)
		e.RecordLLMTokens(model, "completion", stats.CompletionTokens)
	}
}

// RecordLLMTokens records LLM token usage.
func (e *PrometheusExporter) RecordLLMTokens(model, tokenType string, count int) {
	if count <= 0 {
		return
	}
	e.llmTokensUsed.WithLabelValues(model, tokenType).Add(float64(count))
}

// Handler returns an HTTP handler for the metrics endpoint.
func (e *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// ServeHTTP implements http.Handler for the metrics endpoint.
func (e *PrometheusExporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.Handler().ServeHTTP(w, r)
}
