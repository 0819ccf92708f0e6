package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SimulationMetrics contains Prometheus metrics for the telemetry simulation
// schedulers. Both scheduler instances share one collector, distinguished by
// the scheduler label.
type SimulationMetrics struct {
	TicksTotal        *prometheus.CounterVec
	TicksSkipped      *prometheus.CounterVec
	TickDuration      *prometheus.HistogramVec
	SamplesGenerated  *prometheus.CounterVec
	EntityFailures    *prometheus.CounterVec
	RunningSchedulers prometheus.Gauge
}

// NewSimulationMetrics creates and registers simulation scheduler metrics.
func NewSimulationMetrics(namespace string) *SimulationMetrics {
	m := &SimulationMetrics{
		TicksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "simulation",
				Name:      "ticks_total",
				Help:      "Total number of simulation ticks executed",
			},
			[]string{"scheduler"},
		),
		TicksSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "simulation",
				Name:      "ticks_skipped_total",
				Help:      "Total number of ticks skipped because the previous tick was still running",
			},
			[]string{"scheduler"},
		),
		TickDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "simulation",
				Name:      "tick_duration_seconds",
				Help:      "Duration of simulation ticks",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"scheduler"},
		),
		SamplesGenerated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "simulation",
				Name:      "samples_generated_total",
				Help:      "Total number of telemetry samples generated",
			},
			[]string{"scheduler"},
		),
		EntityFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "simulation",
				Name:      "entity_failures_total",
				Help:      "Total number of per-user or per-device failures skipped during ticks",
			},
			[]string{"scheduler", "reason"},
		),
		RunningSchedulers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "simulation",
				Name:      "running_schedulers",
				Help:      "Number of scheduler instances currently running",
			},
		),
	}

	MustRegister(
		m.TicksTotal,
		m.TicksSkipped,
		m.TickDuration,
		m.SamplesGenerated,
		m.EntityFailures,
		m.RunningSchedulers,
	)

	return m
}
