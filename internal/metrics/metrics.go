// Package metrics provides Prometheus metrics for the scoring service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fraudscore"

// Metrics holds all Prometheus metrics for the service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Scoring metrics
	ScoresTotal      *prometheus.CounterVec
	ScoreErrors      *prometheus.CounterVec
	ScoreDuration    prometheus.Histogram
	FraudProbability prometheus.Histogram
	BatchSize        prometheus.Histogram
	CacheLookups     *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Pipeline metrics
	AsyncProcessed *prometheus.CounterVec
	ModelLoaded    prometheus.Gauge
}

// New creates metrics registered on a fresh registry that also carries the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ScoresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "scores_total",
			Help:      "Total number of scored transactions by risk level and decision",
		}, []string{"risk_level", "is_fraud"}),
		ScoreErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "errors_total",
			Help:      "Total number of scoring failures by kind",
		}, []string{"kind"}),
		ScoreDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "duration_seconds",
			Help:      "Time to score one transaction in seconds",
			Buckets:   []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01, .05},
		}),
		FraudProbability: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "fraud_probability",
			Help:      "Distribution of predicted fraud probabilities",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 9),
		}),
		BatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "batch_size",
			Help:      "Number of transactions per batch request",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 6),
		}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Probability cache lookups by result",
		}, []string{"result"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		AsyncProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "processed_total",
			Help:      "Asynchronous score requests processed by outcome",
		}, []string{"outcome"}),
		ModelLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "loaded",
			Help:      "1 when a trained model is loaded, 0 otherwise",
		}),
	}
}

// Handler returns an HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveScore records a successful score.
func (m *Metrics) ObserveScore(riskLevel string, isFraud bool, probability float64, d time.Duration) {
	if m == nil {
		return
	}
	m.ScoresTotal.WithLabelValues(riskLevel, strconv.FormatBool(isFraud)).Inc()
	m.FraudProbability.Observe(probability)
	m.ScoreDuration.Observe(d.Seconds())
}

// ObserveError records a scoring failure.
func (m *Metrics) ObserveError(kind string) {
	if m == nil {
		return
	}
	m.ScoreErrors.WithLabelValues(kind).Inc()
}

// ObserveBatch records the size of a batch.
func (m *Metrics) ObserveBatch(n int) {
	if m == nil {
		return
	}
	m.BatchSize.Observe(float64(n))
}

// ObserveCache records a probability cache lookup.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// ObserveHTTP records an HTTP request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveAsync records the outcome of an asynchronous score request.
func (m *Metrics) ObserveAsync(outcome string) {
	if m == nil {
		return
	}
	m.AsyncProcessed.WithLabelValues(outcome).Inc()
}

// SetModelLoaded reports model availability.
func (m *Metrics) SetModelLoaded(loaded bool) {
	if m == nil {
		return
	}
	if loaded {
		m.ModelLoaded.Set(1)
	} else {
		m.ModelLoaded.Set(0)
	}
}
