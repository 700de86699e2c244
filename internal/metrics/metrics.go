// Package metrics exposes Prometheus collectors for the pipeline services.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stage message outcomes.
const (
	OutcomeAcked   = "acked"
	OutcomeDropped = "dropped"
	OutcomeFailed  = "failed"
)

var (
	jobsDispatchedTotal        *prometheus.CounterVec
	stageMessagesTotal         *prometheus.CounterVec
	stageDurationSeconds       *prometheus.HistogramVec
	deletionStepsTotal         *prometheus.CounterVec
	deletionObjectsTotal       prometheus.Counter
	deletionRowsTotal          *prometheus.CounterVec
	providerFallbacksTotal     *prometheus.CounterVec
	rateLimitDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		jobsDispatchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_jobs_dispatched_total",
				Help: "Total number of dispatch attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		stageMessagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_stage_messages_total",
				Help: "Total number of stage messages handled, labeled by stage and outcome.",
			},
			[]string{"stage", "outcome"},
		)

		stageDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_stage_duration_seconds",
				Help:    "Histogram of per-message handling time, labeled by stage.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"stage"},
		)

		deletionStepsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_deletion_steps_total",
				Help: "Total number of deletion steps executed, labeled by step and outcome.",
			},
			[]string{"step", "outcome"},
		)

		deletionObjectsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pipeline_deletion_objects_total",
				Help: "Total number of object keys submitted for deletion.",
			},
		)

		deletionRowsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_deletion_rows_total",
				Help: "Total number of relational rows removed, labeled by table.",
			},
			[]string{"table"},
		)

		providerFallbacksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_provider_fallbacks_total",
				Help: "Total number of placeholder results produced, labeled by capability.",
			},
			[]string{"capability"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_rate_limit_delay_seconds",
				Help:    "Histogram of per-host download rate limit waits.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDispatch counts one dispatch attempt.
func ObserveDispatch(outcome string) {
	Init()
	jobsDispatchedTotal.WithLabelValues(outcome).Inc()
}

// ObserveStageMessage counts one handled message and its duration.
func ObserveStageMessage(stage, outcome string, duration time.Duration) {
	Init()
	stageMessagesTotal.WithLabelValues(stage, outcome).Inc()
	stageDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveDeletionStep counts one orchestrator step result.
func ObserveDeletionStep(step, outcome string) {
	Init()
	deletionStepsTotal.WithLabelValues(step, outcome).Inc()
}

// AddDeletedObjects records object keys submitted for deletion.
func AddDeletedObjects(n int) {
	Init()
	if n > 0 {
		deletionObjectsTotal.Add(float64(n))
	}
}

// AddDeletedRows records relational rows removed from table.
func AddDeletedRows(table string, n int64) {
	Init()
	if n > 0 {
		deletionRowsTotal.WithLabelValues(table).Add(float64(n))
	}
}

// ObserveProviderFallback counts a placeholder caption or summary.
func ObserveProviderFallback(capability string) {
	Init()
	providerFallbacksTotal.WithLabelValues(capability).Inc()
}

// ObserveRateLimitDelay records how long a download waited for its host's token.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
