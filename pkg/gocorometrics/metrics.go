// Package gocorometrics exposes Prometheus collectors for job lifecycle,
// dispatcher saturation, and flow throughput, grounded on internal/metrics's
// Collector: the same counter/gauge/histogram split, generalized from a job
// queue's RED/USE categories to a structured-concurrency runtime's.
package gocorometrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects Prometheus metrics for a gocoro runtime.
type Collector struct {
	jobsLaunched  prometheus.Counter
	jobsCompleted prometheus.Counter
	jobsCancelled prometheus.Counter
	jobsFaulted   prometheus.Counter

	jobLifetime prometheus.Histogram

	jobsActive        prometheus.Gauge
	dispatcherQueued  *prometheus.GaugeVec
	dispatcherWorkers *prometheus.GaugeVec

	flowEmissions *prometheus.CounterVec
	flowErrors    *prometheus.CounterVec
}

// NewCollector builds and registers a Collector against reg. Pass
// prometheus.NewRegistry() for an isolated registry (recommended in tests);
// pass prometheus.DefaultRegisterer to expose via promhttp.Handler().
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		jobsLaunched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gocoro_jobs_launched_total",
			Help: "Total number of jobs launched across all scopes.",
		}),
		jobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gocoro_jobs_completed_total",
			Help: "Total number of jobs that completed successfully.",
		}),
		jobsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gocoro_jobs_cancelled_total",
			Help: "Total number of jobs that reached the Cancelled state.",
		}),
		jobsFaulted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gocoro_jobs_faulted_total",
			Help: "Total number of jobs that reached the Faulted state.",
		}),
		jobLifetime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gocoro_job_lifetime_seconds",
			Help:    "Wall-clock seconds from job launch to terminal state.",
			Buckets: prometheus.DefBuckets,
		}),
		jobsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gocoro_jobs_active",
			Help: "Current number of jobs not yet in a terminal state.",
		}),
		dispatcherQueued: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gocoro_dispatcher_queued",
			Help: "Tasks currently queued on a dispatcher, by dispatcher name.",
		}, []string{"dispatcher"}),
		dispatcherWorkers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gocoro_dispatcher_workers_busy",
			Help: "Worker goroutines currently running a task, by dispatcher name.",
		}, []string{"dispatcher"}),
		flowEmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gocoro_flow_emissions_total",
			Help: "Total values emitted by a named flow.",
		}, []string{"flow"}),
		flowErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gocoro_flow_errors_total",
			Help: "Total terminal errors surfaced by a named flow's collection.",
		}, []string{"flow"}),
	}

	reg.MustRegister(
		c.jobsLaunched, c.jobsCompleted, c.jobsCancelled, c.jobsFaulted,
		c.jobLifetime, c.jobsActive, c.dispatcherQueued, c.dispatcherWorkers,
		c.flowEmissions, c.flowErrors,
	)
	return c
}

// RecordLaunch records a job entering the Active state.
func (c *Collector) RecordLaunch() {
	c.jobsLaunched.Inc()
	c.jobsActive.Inc()
}

// RecordTerminal records a job's terminal transition and its lifetime.
func (c *Collector) RecordTerminal(state string, lifetimeSeconds float64) {
	c.jobsActive.Dec()
	c.jobLifetime.Observe(lifetimeSeconds)
	switch state {
	case "completed":
		c.jobsCompleted.Inc()
	case "cancelled":
		c.jobsCancelled.Inc()
	case "faulted":
		c.jobsFaulted.Inc()
	}
}

// SetDispatcherStats reports a dispatcher's current queue depth and busy
// worker count, labeled by dispatcher name (e.g. "io", "pooled-default").
func (c *Collector) SetDispatcherStats(name string, queued, busyWorkers int) {
	c.dispatcherQueued.WithLabelValues(name).Set(float64(queued))
	c.dispatcherWorkers.WithLabelValues(name).Set(float64(busyWorkers))
}

// RecordFlowEmission increments the emission counter for a named flow.
func (c *Collector) RecordFlowEmission(flow string) {
	c.flowEmissions.WithLabelValues(flow).Inc()
}

// RecordFlowError increments the terminal-error counter for a named flow.
func (c *Collector) RecordFlowError(flow string) {
	c.flowErrors.WithLabelValues(flow).Inc()
}

// Handler returns an http.Handler serving these metrics in Prometheus text
// format, suitable for mounting at /metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
