package bisque

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// buildMetrics holds the collectors LocalRepo reports to. Collectors exist
// even when no registerer is configured, so recording never needs a nil
// check.
type buildMetrics struct {
	jobsRun     *prometheus.CounterVec
	cacheHits   *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
}

func newBuildMetrics(reg prometheus.Registerer) (*buildMetrics, error) {
	m := &buildMetrics{
		jobsRun: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bisque",
				Name:      "jobs_run_total",
				Help:      "Total number of jobs run, by kind and outcome",
			},
			[]string{"kind", "status"},
		),
		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bisque",
				Name:      "cache_hits_total",
				Help:      "Total number of jobs skipped because their output already existed",
			},
			[]string{"kind"},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "bisque",
				Name:      "job_duration_seconds",
				Help:      "Duration of job execution in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
			},
			[]string{"kind"},
		),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.jobsRun, m.cacheHits, m.jobDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *buildMetrics) recordRun(kind string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.jobsRun.WithLabelValues(kind, status).Inc()
	m.jobDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *buildMetrics) recordCacheHit(kind string) {
	m.cacheHits.WithLabelValues(kind).Inc()
}
