package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"gridwatt.dev/gridwatt/pkg/metrics"
)

// ErrInvalidRetention reports a non-positive retention window passed to
// EvictOlderThan.
var ErrInvalidRetention = errors.New("store: retention window must be positive")

// DailyAggregate is one day's rollup of a user's samples.
type DailyAggregate struct {
	Day           time.Time `gorm:"column:day"`
	TotalUsageKWh float64   `gorm:"column:total_usage_kwh"`
	TotalCost     float64   `gorm:"column:total_cost"`
	SampleCount   int64     `gorm:"column:sample_count"`
}

// UsageTotals sums a user's samples over a time window.
type UsageTotals struct {
	TotalUsageKWh float64 `gorm:"column:total_usage_kwh"`
	TotalCost     float64 `gorm:"column:total_cost"`
	SampleCount   int64   `gorm:"column:sample_count"`
}

// SampleStore is the persistence contract for time-stamped telemetry records.
// Writes are append-only; eviction is delete-by-predicate and never blocks
// concurrent inserts or reads.
type SampleStore interface {
	// InsertBatch appends a batch of samples.
	InsertBatch(ctx context.Context, samples []TelemetrySample) error
	// LatestPerDevice returns one sample per device for a user, most recent
	// timestamp winning. Timestamp ties resolve to whichever record was
	// inserted last, so reads are reproducible.
	LatestPerDevice(ctx context.Context, userID uint) ([]TelemetrySample, error)
	// RangeByDevice returns a device's samples since a point in time, ordered
	// ascending by timestamp (insertion order within ties).
	RangeByDevice(ctx context.Context, userID uint, deviceID string, since time.Time) ([]TelemetrySample, error)
	// AggregateDaily rolls a user's samples since a point in time into
	// per-day usage/cost buckets, ordered ascending by day.
	AggregateDaily(ctx context.Context, userID uint, since time.Time) ([]DailyAggregate, error)
	// UsageSince sums a user's samples from since until now.
	UsageSince(ctx context.Context, userID uint, since time.Time) (UsageTotals, error)
	// EvictOlderThan removes samples older than the retention window and
	// returns the number removed.
	EvictOlderThan(ctx context.Context, retention time.Duration) (int64, error)
}

// DBSampleStore is the PostgreSQL-backed SampleStore.
type DBSampleStore struct {
	db      *gorm.DB
	logger  *slog.Logger
	metrics *metrics.StoreMetrics // Optional metrics
	nowFunc func() time.Time
}

// NewDBSampleStore creates a SampleStore backed by the given database handle.
func NewDBSampleStore(db *gorm.DB, logger *slog.Logger) (*DBSampleStore, error) {
	if db == nil {
		return nil, errors.New("database cannot be nil")
	}

	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &DBSampleStore{
		db:      db,
		logger:  logger,
		nowFunc: time.Now,
	}, nil
}

// SetMetrics sets the metrics collector for this store.
func (s *DBSampleStore) SetMetrics(m *metrics.StoreMetrics) {
	s.metrics = m
}

// InsertBatch implements SampleStore.
func (s *DBSampleStore) InsertBatch(ctx context.Context, samples []TelemetrySample) error {
	if len(samples) == 0 {
		return nil
	}

	var timer *prometheus.Timer
	if s.metrics != nil {
		timer = prometheus.NewTimer(s.metrics.InsertDuration)
		defer timer.ObserveDuration()
	}

	if err := s.db.WithContext(ctx).Create(&samples).Error; err != nil {
		if s.metrics != nil {
			s.metrics.InsertsTotal.WithLabelValues("error").Inc()
		}
		return fmt.Errorf("failed to insert sample batch: %w", err)
	}

	if s.metrics != nil {
		s.metrics.InsertsTotal.WithLabelValues("success").Inc()
	}
	return nil
}

// LatestPerDevice implements SampleStore. Ties on timestamp resolve by the
// highest primary key, i.e. the record inserted last.
func (s *DBSampleStore) LatestPerDevice(ctx context.Context, userID uint) ([]TelemetrySample, error) {
	var timer *prometheus.Timer
	if s.metrics != nil {
		timer = prometheus.NewTimer(s.metrics.QueryDuration.WithLabelValues("latest_per_device"))
		defer timer.ObserveDuration()
	}

	var samples []TelemetrySample
	err := s.db.WithContext(ctx).Raw(
		`SELECT DISTINCT ON (device_id) *
		 FROM telemetry_samples
		 WHERE user_id = ?
		 ORDER BY device_id, timestamp DESC, id DESC`, userID,
	).Scan(&samples).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query latest samples: %w", err)
	}

	return samples, nil
}

// RangeByDevice implements SampleStore.
func (s *DBSampleStore) RangeByDevice(ctx context.Context, userID uint, deviceID string, since time.Time) ([]TelemetrySample, error) {
	var timer *prometheus.Timer
	if s.metrics != nil {
		timer = prometheus.NewTimer(s.metrics.QueryDuration.WithLabelValues("range_by_device"))
		defer timer.ObserveDuration()
	}

	var samples []TelemetrySample
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND device_id = ? AND timestamp >= ?", userID, deviceID, since).
		Order("timestamp, id").
		Find(&samples).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query sample range: %w", err)
	}

	return samples, nil
}

// AggregateDaily implements SampleStore.
func (s *DBSampleStore) AggregateDaily(ctx context.Context, userID uint, since time.Time) ([]DailyAggregate, error) {
	var timer *prometheus.Timer
	if s.metrics != nil {
		timer = prometheus.NewTimer(s.metrics.QueryDuration.WithLabelValues("aggregate_daily"))
		defer timer.ObserveDuration()
	}

	var rows []DailyAggregate
	err := s.db.WithContext(ctx).
		Model(&TelemetrySample{}).
		Select(`date_trunc('day', timestamp) AS day,
			COALESCE(SUM(power_watts / 1000.0 / 3600.0), 0) AS total_usage_kwh,
			COALESCE(SUM(cost_per_second), 0) AS total_cost,
			COUNT(*) AS sample_count`).
		Where("user_id = ? AND timestamp >= ?", userID, since).
		Group("date_trunc('day', timestamp)").
		Order("day").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate daily samples: %w", err)
	}

	return rows, nil
}

// UsageSince implements SampleStore.
func (s *DBSampleStore) UsageSince(ctx context.Context, userID uint, since time.Time) (UsageTotals, error) {
	var timer *prometheus.Timer
	if s.metrics != nil {
		timer = prometheus.NewTimer(s.metrics.QueryDuration.WithLabelValues("usage_since"))
		defer timer.ObserveDuration()
	}

	var totals UsageTotals
	err := s.db.WithContext(ctx).
		Model(&TelemetrySample{}).
		Select(`COALESCE(SUM(power_watts / 1000.0 / 3600.0), 0) AS total_usage_kwh,
			COALESCE(SUM(cost_per_second), 0) AS total_cost,
			COUNT(*) AS sample_count`).
		Where("user_id = ? AND timestamp >= ?", userID, since).
		Scan(&totals).Error
	if err != nil {
		return UsageTotals{}, fmt.Errorf("failed to sum usage: %w", err)
	}

	return totals, nil
}

// EvictOlderThan implements SampleStore.
func (s *DBSampleStore) EvictOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, ErrInvalidRetention
	}

	cutoff := s.nowFunc().Add(-retention)
	res := s.db.WithContext(ctx).
		Where("timestamp < ?", cutoff).
		Delete(&TelemetrySample{})
	if res.Error != nil {
		if s.metrics != nil {
			s.metrics.EvictionsTotal.WithLabelValues("error").Inc()
		}
		return 0, fmt.Errorf("failed to evict samples: %w", res.Error)
	}

	if s.metrics != nil {
		s.metrics.EvictionsTotal.WithLabelValues("success").Inc()
		s.metrics.SamplesEvicted.Add(float64(res.RowsAffected))
	}

	s.logger.Debug("evicted samples past retention",
		"cutoff", cutoff,
		"removed", res.RowsAffected,
	)
	return res.RowsAffected, nil
}

// Ensure DBSampleStore implements SampleStore.
var _ SampleStore = (*DBSampleStore)(nil)
