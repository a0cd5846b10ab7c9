package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Instance metrics
	InstancesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleetsched_instances_total",
			Help: "Total number of instances by state",
		},
		[]string{"state"},
	)

	// Scheduler loop metrics
	DispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetsched_dispatch_total",
			Help: "Total number of dispatch attempts by outcome",
		},
		[]string{"outcome"}, // ok, no_match, error
	)

	SchedulingLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetsched_scheduling_latency_seconds",
			Help:    "Time taken by one scheduler loop cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Updater loop metrics
	RestartsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetsched_restarts_total",
			Help: "Total number of restarts issued due to configuration drift",
		},
	)

	MigrationsRepairedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetsched_migrations_repaired_total",
			Help: "Total number of MIGRATING instances transitioned to RUNNING by the updater",
		},
	)

	UpdateLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetsched_update_latency_seconds",
			Help:    "Time taken by one updater loop cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Terminator loop metrics
	TerminationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetsched_terminations_total",
			Help: "Total number of terminate calls issued",
		},
	)

	// Rate limiter metrics
	RateLimitExhaustedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetsched_rate_limit_exhausted_total",
			Help: "Total number of control-loop cycles that ended early due to an empty token bucket",
		},
		[]string{"loop"}, // scheduler, updater, terminator
	)

	// Leader lock metrics
	LeaderLockHeld = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetsched_leader_lock_held",
			Help: "Whether this process currently holds the leader lock (1 = held, 0 = not held)",
		},
	)

	LeaderLockAcquisitionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetsched_leader_lock_acquisitions_total",
			Help: "Total number of successful leader lock acquisitions",
		},
	)

	LeaderLockLostTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetsched_leader_lock_lost_total",
			Help: "Total number of times the leader lock was lost mid-section",
		},
	)

	// Bootstrap metrics
	BootstrapDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetsched_bootstrap_duration_seconds",
			Help:    "Time taken for the one-shot bootstrap procedure to complete",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	BootstrapDeployDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleetsched_bootstrap_deploy_duration_seconds",
			Help:    "Time taken for a single bootstrap instance to reach running",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
)

func init() {
	prometheus.MustRegister(
		InstancesTotal,
		DispatchTotal,
		SchedulingLatency,
		RestartsTotal,
		MigrationsRepairedTotal,
		UpdateLatency,
		TerminationsTotal,
		RateLimitExhaustedTotal,
		LeaderLockHeld,
		LeaderLockAcquisitionsTotal,
		LeaderLockLostTotal,
		BootstrapDuration,
		BootstrapDeployDuration,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the time elapsed since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}
