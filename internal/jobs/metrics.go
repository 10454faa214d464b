package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Location outcomes recorded by ObserveLocation.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Metrics exposes Prometheus collectors for background jobs and catalog syncs.
type Metrics struct {
	runs      *prometheus.CounterVec
	failures  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	locations *prometheus.CounterVec
	items     *prometheus.CounterVec
	pages     *prometheus.CounterVec
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

// ObserveLocation counts one location visited by a sync pass.
func (m *Metrics) ObserveLocation(vendor, outcome string) {
	if m == nil {
		return
	}
	m.locations.WithLabelValues(vendor, outcome).Inc()
}

// AddItems counts catalog records applied for a vendor.
func (m *Metrics) AddItems(vendor string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.items.WithLabelValues(vendor).Add(float64(count))
}

// ObservePage counts one remote page fetched.
func (m *Metrics) ObservePage(vendor string) {
	if m == nil {
		return
	}
	m.pages.WithLabelValues(vendor).Inc()
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "possync_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "possync_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "possync_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 1800, 3600, 7200},
	}, []string{"job"})
	locations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "possync_catalog_locations_total",
		Help: "Locations visited by catalog sync passes grouped by vendor and outcome.",
	}, []string{"vendor", "outcome"})
	items := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "possync_catalog_items_total",
		Help: "Remote catalog records applied to the local catalog.",
	}, []string{"vendor"})
	pages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "possync_catalog_pages_total",
		Help: "Remote inventory pages fetched.",
	}, []string{"vendor"})
	registerer.MustRegister(runs, failures, duration, locations, items, pages)
	return &Metrics{runs: runs, failures: failures, duration: duration, locations: locations, items: items, pages: pages}
}
