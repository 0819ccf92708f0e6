package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MonitorMetrics contains Prometheus metrics for the inactivity monitor.
type MonitorMetrics struct {
	ChecksTotal     prometheus.Counter
	CheckDuration   prometheus.Histogram
	AlertsSent      prometheus.Counter
	AlertFailures   *prometheus.CounterVec
	InactiveDevices prometheus.Gauge
}

// NewMonitorMetrics creates and registers inactivity monitor metrics.
func NewMonitorMetrics(namespace string) *MonitorMetrics {
	m := &MonitorMetrics{
		ChecksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "monitor",
				Name:      "checks_total",
				Help:      "Total number of inactivity checks executed",
			},
		),
		CheckDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "monitor",
				Name:      "check_duration_seconds",
				Help:      "Duration of inactivity checks",
				Buckets:   prometheus.DefBuckets,
			},
		),
		AlertsSent: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "monitor",
				Name:      "alerts_sent_total",
				Help:      "Total number of inactivity alerts delivered",
			},
		),
		AlertFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "monitor",
				Name:      "alert_failures_total",
				Help:      "Total number of failed alert deliveries",
			},
			[]string{"reason"},
		),
		InactiveDevices: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "monitor",
				Name:      "inactive_devices",
				Help:      "Number of devices past the inactivity threshold at the last check",
			},
		),
	}

	MustRegister(
		m.ChecksTotal,
		m.CheckDuration,
		m.AlertsSent,
		m.AlertFailures,
		m.InactiveDevices,
	)

	return m
}
