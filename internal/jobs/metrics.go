package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	intents     *prometheus.CounterVec
	glImbalance prometheus.Gauge
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddIntents counts journal intents handled by a sweep, by outcome.
func (m *Metrics) AddIntents(outcome string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.intents.WithLabelValues(outcome).Add(float64(count))
}

// SetImbalance records the debit minus credit total found by the last
// integrity check.
func (m *Metrics) SetImbalance(diff float64) {
	if m == nil {
		return
	}
	m.glImbalance.Set(diff)
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "factorybooks_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "factorybooks_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "factorybooks_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	intents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "factorybooks_journal_intents_total",
		Help: "Journal intents handled by the outbox sweeper, by outcome.",
	}, []string{"outcome"})
	imbalance := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "factorybooks_gl_imbalance",
		Help: "Debits minus credits across posted journals at the last integrity check.",
	})
	registerer.MustRegister(runs, failures, duration, intents, imbalance)
	return &Metrics{runs: runs, failures: failures, duration: duration, intents: intents, glImbalance: imbalance}
}
