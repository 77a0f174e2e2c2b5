// Package metrics provides Prometheus metrics collection for the SIFRA risk service.
// It defines the scoring, narrative, storage and HTTP metrics exposed on the
// /metrics endpoint for monitoring and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Assessment metrics
	AnalysesTotal    prometheus.Counter     // Completed assessments
	InputRejections  prometheus.Counter     // Requests rejected as invalid input
	ScoringFailures  prometheus.Counter     // Classifier or attribution failures
	OverridesTotal   *prometheus.CounterVec // Clinical override applications by lab band
	RiskScores       prometheus.Histogram   // Distribution of final risk scores
	ScoringLatency   prometheus.Histogram   // Consensus + attribution latency
	AnalysisDuration prometheus.Histogram   // End-to-end assessment latency including narrative

	// Narrative and LLM metrics
	NarrativeFailures *prometheus.CounterVec // Narrative agent failures by agent
	LLMLatency        prometheus.Histogram   // Completion request latency
	LLMFailures       prometheus.Counter     // Failed completion requests
	LLMBreakerState   prometheus.Gauge       // 0 closed, 1 half-open, 2 open

	// Storage metrics
	StoreFailures prometheus.Counter // Failed history writes

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec   // Requests by method, route and status
	HTTPDuration *prometheus.HistogramVec // Request latency by route

	// Model metrics
	ModelInfo *prometheus.GaugeVec // Constant 1, labelled with the loaded bank version
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		AnalysesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "sifra_analyses_total",
			Help: "Total number of completed risk assessments",
		}),
		InputRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "sifra_input_rejections_total",
			Help: "Total number of assessments rejected for invalid input",
		}),
		ScoringFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "sifra_scoring_failures_total",
			Help: "Total number of classifier or attribution failures",
		}),
		OverridesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sifra_overrides_total",
			Help: "Total number of clinical overrides that raised the score, by lab band",
		}, []string{"band"}),
		RiskScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sifra_risk_scores",
			Help:    "Distribution of final risk scores",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		ScoringLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sifra_scoring_latency_seconds",
			Help:    "Consensus scoring and attribution latency in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),
		AnalysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sifra_analysis_duration_seconds",
			Help:    "End-to-end assessment latency in seconds, narrative included",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		NarrativeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sifra_narrative_failures_total",
			Help: "Total number of narrative agent failures, by agent",
		}, []string{"agent"}),
		LLMLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sifra_llm_latency_seconds",
			Help:    "Chat completion request latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		LLMFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "sifra_llm_failures_total",
			Help: "Total number of failed chat completion requests",
		}),
		LLMBreakerState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sifra_llm_breaker_state",
			Help: "LLM circuit breaker state (0 closed, 1 half-open, 2 open)",
		}),
		StoreFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "sifra_store_failures_total",
			Help: "Total number of failed assessment history writes",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sifra_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sifra_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		ModelInfo: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sifra_model_info",
			Help: "Loaded model bank, value is always 1",
		}, []string{"version"}),
	}
}

// SetModelVersion publishes the loaded bank version.
func (m *Metrics) SetModelVersion(version string) {
	m.ModelInfo.Reset()
	m.ModelInfo.WithLabelValues(version).Set(1)
}
