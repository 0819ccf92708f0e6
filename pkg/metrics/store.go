package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// StoreMetrics contains Prometheus metrics for the sample store and the
// retention janitor.
type StoreMetrics struct {
	InsertsTotal      *prometheus.CounterVec
	InsertDuration    prometheus.Histogram
	QueryDuration     *prometheus.HistogramVec
	SamplesEvicted    prometheus.Counter
	EvictionsTotal    *prometheus.CounterVec
	ConnectionsActive prometheus.Gauge
}

// NewStoreMetrics creates and registers sample store metrics.
func NewStoreMetrics(namespace string) *StoreMetrics {
	m := &StoreMetrics{
		InsertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "inserts_total",
				Help:      "Total number of sample batch inserts",
			},
			[]string{"status"}, // status: success, error
		),
		InsertDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "insert_duration_seconds",
				Help:      "Duration of sample batch inserts",
				Buckets:   prometheus.DefBuckets,
			},
		),
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "query_duration_seconds",
				Help:      "Duration of sample store read queries",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"query"},
		),
		SamplesEvicted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "samples_evicted_total",
				Help:      "Total number of samples removed by retention eviction",
			},
		),
		EvictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "evictions_total",
				Help:      "Total number of retention eviction sweeps",
			},
			[]string{"status"},
		),
		ConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "connections_active",
				Help:      "Number of active database connections",
			},
		),
	}

	MustRegister(
		m.InsertsTotal,
		m.InsertDuration,
		m.QueryDuration,
		m.SamplesEvicted,
		m.EvictionsTotal,
		m.ConnectionsActive,
	)

	return m
}
