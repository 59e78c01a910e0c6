// Package metrics records run metrics in Prometheus format.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AlexRogalskiy/turborepo/internal/cache"
	"github.com/AlexRogalskiy/turborepo/internal/runner"
)

// Metrics holds the metrics of one run.
type Metrics struct {
	TaskRuns          *prometheus.CounterVec
	TaskDuration      *prometheus.HistogramVec
	CacheLookups      *prometheus.CounterVec
	RemoteErrors      prometheus.Counter
	IntegrityFailures prometheus.Counter
}

// NewMetrics creates metrics registered with registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		TaskRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turbo_task_runs_total",
				Help: "Tasks by final status",
			},
			[]string{"status"},
		),
		TaskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "turbo_task_duration_seconds",
				Help:    "Task duration by final status",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"status"},
		),
		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turbo_cache_lookups_total",
				Help: "Cache lookups by store and result",
			},
			[]string{"source", "result"},
		),
		RemoteErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "turbo_remote_cache_errors_total",
			Help: "Failed remote cache requests",
		}),
		IntegrityFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "turbo_cache_integrity_failures_total",
			Help: "Remote artifacts rejected by signature verification",
		}),
	}
}

// NewRegistry creates a registry with metrics registered.
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	return reg, m
}

// CacheLookup implements cache.Observer.
func (m *Metrics) CacheLookup(source cache.Source, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(string(source), result).Inc()
}

// RemoteError implements cache.Observer.
func (m *Metrics) RemoteError() {
	m.RemoteErrors.Inc()
}

// IntegrityFailure implements cache.Observer.
func (m *Metrics) IntegrityFailure() {
	m.IntegrityFailures.Inc()
}

// RecordRun adds every task of a finished run. Durations are observed only
// for tasks that were dispatched.
func (m *Metrics) RecordRun(result *runner.RunResult) {
	for _, tr := range result.Tasks {
		status := tr.Status.String()
		m.TaskRuns.WithLabelValues(status).Inc()
		if !tr.Start.IsZero() {
			m.TaskDuration.WithLabelValues(status).Observe(tr.Duration.Seconds())
		}
	}
}

// WriteFile writes the metrics of gatherer to path in the text exposition format.
func WriteFile(path string, gatherer prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, gatherer)
}
