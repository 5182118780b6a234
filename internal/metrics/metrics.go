// Package metrics provides Prometheus metrics for the analysis service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TasksSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "veritas_tasks_submitted_total",
			Help: "Total number of tasks submitted to the orchestrator",
		},
	)
	TasksFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veritas_tasks_finished_total",
			Help: "Total number of tasks finished, by terminal status",
		},
		[]string{"status"},
	)
	TaskTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "veritas_task_timeouts_total",
			Help: "Total number of tasks that failed on timeout",
		},
	)
	TasksInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "veritas_tasks_in_flight",
			Help: "Current number of running tasks",
		},
	)
	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "veritas_task_duration_seconds",
			Help:    "Task execution duration in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"status"},
	)
	ProviderAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veritas_provider_attempts_total",
			Help: "Total number of provider invocations, by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)
	FallbacksUsed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "veritas_fallbacks_used_total",
			Help: "Total number of analyses served by a fallback provider",
		},
	)
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "veritas_breaker_state",
			Help: "Circuit breaker state per provider (0=closed, 1=half-open, 2=open)",
		},
		[]string{"provider"},
	)
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "veritas_cache_hits_total",
			Help: "Total number of analysis cache hits",
		},
	)
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "veritas_cache_misses_total",
			Help: "Total number of analysis cache misses",
		},
	)
)

func RecordTaskSubmitted() {
	TasksSubmitted.Inc()
	TasksInFlight.Inc()
}

func RecordTaskFinished(status string, timedOut bool, duration time.Duration) {
	TasksFinished.WithLabelValues(status).Inc()
	TaskDuration.WithLabelValues(status).Observe(duration.Seconds())
	TasksInFlight.Dec()
	if timedOut {
		TaskTimeouts.Inc()
	}
}

func RecordProviderAttempt(provider, outcome string) {
	ProviderAttempts.WithLabelValues(provider, outcome).Inc()
}

func RecordFallbackUsed() {
	FallbacksUsed.Inc()
}

func SetBreakerState(provider string, state int) {
	BreakerState.WithLabelValues(provider).Set(float64(state))
}

func RecordCacheHit() {
	CacheHits.Inc()
}

func RecordCacheMiss() {
	CacheMisses.Inc()
}
