package poller

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/FindoraNetwork/findora-exporter/target"
)

const metricsNamespace = "findora_exporter"

// Metrics are the scheduler's own counters. A nil *Metrics records nothing.
type Metrics struct {
	executions *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	skips      *prometheus.CounterVec
	depth      prometheus.Gauge
}

// NewMetrics creates the scheduler metrics and registers them on reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "task_executions_total",
			Help:      "Task executions by kind and outcome.",
		}, []string{"kind", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "task_duration_seconds",
			Help:      "Time spent executing a task, including the remote call.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		skips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "task_skipped_total",
			Help:      "Ticks on which a task was not enqueued because it was still pending.",
		}, []string{"kind"}),
		depth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "queue_depth",
			Help:      "Tasks waiting in the work queue.",
		}),
	}

	if reg == nil {
		return m, nil
	}
	var errs []error
	for _, c := range []prometheus.Collector{m.executions, m.duration, m.skips, m.depth} {
		if err := reg.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) observe(o Outcome) {
	if m == nil {
		return
	}
	outcome := "success"
	if o.Err != nil {
		outcome = "error"
	}
	m.executions.WithLabelValues(string(o.Kind), outcome).Inc()
	m.duration.WithLabelValues(string(o.Kind)).Observe(o.Duration.Seconds())
}

func (m *Metrics) skipped(kind target.Kind) {
	if m == nil {
		return
	}
	m.skips.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) queueDepth(n int) {
	if m == nil {
		return
	}
	m.depth.Set(float64(n))
}
