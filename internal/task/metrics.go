package task

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records leaf task outcomes.
type Metrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the task collectors on reg. Passing a fresh
// prometheus.NewRegistry() keeps tests isolated from the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sitepipe_task_runs_total",
			Help: "Leaf task runs by task name and outcome.",
		}, []string{"task", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sitepipe_task_duration_seconds",
			Help:    "Leaf task wall time.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"task"}),
	}
}

func (m *Metrics) observe(name string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.runs.WithLabelValues(name, status).Inc()
	m.duration.WithLabelValues(name).Observe(elapsed.Seconds())
}
