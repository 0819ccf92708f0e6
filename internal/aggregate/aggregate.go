// Package aggregate rolls stored telemetry into the figures the dashboard
// shows: latest-per-device snapshots with fleet totals, fixed-period usage
// and cost rollups, and per-day chart series.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gridwatt.dev/gridwatt/internal/store"
)

// Period identifies a rollup window anchored at the current moment.
type Period string

// Supported rollup periods.
const (
	PeriodHour  Period = "hour"
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// ErrInvalidPeriod reports an unrecognized period name.
var ErrInvalidPeriod = errors.New("aggregate: invalid period")

// PeriodStats is one window's usage and cost rollup.
type PeriodStats struct {
	Period        Period    `json:"period"`
	From          time.Time `json:"from"`
	To            time.Time `json:"to"`
	TotalUsageKWh float64   `json:"total_usage_kwh"`
	TotalCost     float64   `json:"total_cost"`
	SampleCount   int64     `json:"sample_count"`
}

// DeviceReading is the latest known sample for one device, or a zero reading
// when the device has not reported yet.
type DeviceReading struct {
	DeviceID      string    `json:"device_id"`
	Name          string    `json:"name"`
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	PowerWatts    float64   `json:"power_watts"`
	Voltage       float64   `json:"voltage"`
	Current       float64   `json:"current"`
	CostPerHour   float64   `json:"cost_per_hour"`
	CostPerDay    float64   `json:"cost_per_day"`
	HasSample     bool      `json:"has_sample"`
}

// Snapshot is the current state of a user's fleet: one reading per device
// plus the totals across them.
type Snapshot struct {
	Devices        []DeviceReading `json:"devices"`
	TotalPower     float64         `json:"total_power_watts"`
	TotalPerSecond float64         `json:"total_cost_per_second"`
	TotalPerHour   float64         `json:"total_cost_per_hour"`
	TotalPerDay    float64         `json:"total_cost_per_day"`
	CurrencyCode   string          `json:"currency_code"`
	CurrencySymbol string          `json:"currency_symbol"`
}

// ControllerSnapshot is the same rollup over one controller's attached
// devices.
type ControllerSnapshot struct {
	ControllerID    string          `json:"controller_id"`
	Name            string          `json:"name"`
	Status          string          `json:"status"`
	TotalRatedPower float64         `json:"total_rated_power"`
	Devices         []DeviceReading `json:"devices"`
	TotalPower      float64         `json:"total_power_watts"`
	TotalPerHour    float64         `json:"total_cost_per_hour"`
}

// ChartPoint is one day on the usage chart.
type ChartPoint struct {
	Date         time.Time `json:"date"`
	AvgUsageKWh  float64   `json:"avg_usage_kwh"`
	CostPerHour  float64   `json:"cost_per_hour"`
	SampleCount  int64     `json:"sample_count"`
}

// DeviceDirectory is the registry view the aggregator needs.
type DeviceDirectory interface {
	DevicesFor(ctx context.Context, userID uint) ([]store.Device, error)
	ControllerByID(ctx context.Context, controllerID string) (store.Controller, error)
	CurrencyPreferenceFor(ctx context.Context, userID uint) (store.CurrencyPreference, error)
}

// SampleReader is the sample store view the aggregator needs.
type SampleReader interface {
	LatestPerDevice(ctx context.Context, userID uint) ([]store.TelemetrySample, error)
	AggregateDaily(ctx context.Context, userID uint, since time.Time) ([]store.DailyAggregate, error)
	UsageSince(ctx context.Context, userID uint, since time.Time) (store.UsageTotals, error)
}

// Aggregator computes dashboard figures from stored samples. It holds no
// state of its own; every call reads the store fresh.
type Aggregator struct {
	fleet   DeviceDirectory
	samples SampleReader
	logger  *slog.Logger
	nowFunc func() time.Time
}

// New creates an aggregator over the given fleet and sample store.
func New(fleet DeviceDirectory, samples SampleReader, logger *slog.Logger) (*Aggregator, error) {
	if fleet == nil {
		return nil, errors.New("fleet is required")
	}

	if samples == nil {
		return nil, errors.New("sample reader is required")
	}

	if logger == nil {
		return nil, errors.New("logger is required")
	}

	return &Aggregator{
		fleet:   fleet,
		samples: samples,
		logger:  logger,
		nowFunc: time.Now,
	}, nil
}

// SetNowFunc overrides the aggregator's clock. Used by tests to pin period
// boundaries.
func (a *Aggregator) SetNowFunc(now func() time.Time) {
	a.nowFunc = now
}

// periodStart returns the inclusive lower bound of a period ending now.
// Day and month are calendar-anchored in now's location; hour and week are
// rolling windows.
func (a *Aggregator) periodStart(period Period, now time.Time) (time.Time, error) {
	switch period {
	case PeriodHour:
		return now.Add(-time.Hour), nil
	case PeriodDay:
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()), nil
	case PeriodWeek:
		return now.AddDate(0, 0, -7), nil
	case PeriodMonth:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}
}

// PeriodStats sums a user's usage and cost over one period ending now.
func (a *Aggregator) PeriodStats(ctx context.Context, userID uint, period Period) (PeriodStats, error) {
	now := a.nowFunc()
	from, err := a.periodStart(period, now)
	if err != nil {
		return PeriodStats{}, err
	}

	totals, err := a.samples.UsageSince(ctx, userID, from)
	if err != nil {
		return PeriodStats{}, fmt.Errorf("failed to sum usage for period %s: %w", period, err)
	}

	return PeriodStats{
		Period:        period,
		From:          from,
		To:            now,
		TotalUsageKWh: totals.TotalUsageKWh,
		TotalCost:     totals.TotalCost,
		SampleCount:   totals.SampleCount,
	}, nil
}

// LatestSnapshot returns the latest reading per device and the user's fleet
// totals. Devices that have never reported appear with zero readings and do
// not affect the totals.
func (a *Aggregator) LatestSnapshot(ctx context.Context, userID uint) (Snapshot, error) {
	devices, err := a.fleet.DevicesFor(ctx, userID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to list devices: %w", err)
	}

	latest, err := a.samples.LatestPerDevice(ctx, userID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to load latest samples: %w", err)
	}

	byDevice := make(map[string]store.TelemetrySample, len(latest))
	for _, sample := range latest {
		byDevice[sample.DeviceID] = sample
	}

	snapshot := Snapshot{Devices: make([]DeviceReading, 0, len(devices))}
	for _, device := range devices {
		reading := DeviceReading{
			DeviceID: device.DeviceID,
			Name:     device.Name,
			Status:   device.Status,
		}

		if sample, ok := byDevice[device.DeviceID]; ok {
			reading.HasSample = true
			reading.Timestamp = sample.Timestamp
			reading.PowerWatts = sample.PowerWatts
			reading.Voltage = sample.Voltage
			reading.Current = sample.Current
			reading.CostPerHour = sample.CostPerHour
			reading.CostPerDay = sample.CostPerDay

			snapshot.TotalPower += sample.PowerWatts
			snapshot.TotalPerSecond += sample.CostPerSecond
			snapshot.TotalPerHour += sample.CostPerHour
			snapshot.TotalPerDay += sample.CostPerDay
		}

		snapshot.Devices = append(snapshot.Devices, reading)
	}

	// Currency tags along for display; a missing preference only blanks the
	// label, it never fails the snapshot.
	if pref, err := a.fleet.CurrencyPreferenceFor(ctx, userID); err == nil {
		snapshot.CurrencyCode = pref.Code
		snapshot.CurrencySymbol = pref.Symbol
	} else if !errors.Is(err, store.ErrNotFound) {
		a.logger.Error("failed to load currency preference for snapshot",
			"user_id", userID,
			"error", err,
		)
	}

	return snapshot, nil
}

// ControllerSnapshot rolls up the latest readings of one controller's
// attached devices.
func (a *Aggregator) ControllerSnapshot(ctx context.Context, controllerID string) (ControllerSnapshot, error) {
	controller, err := a.fleet.ControllerByID(ctx, controllerID)
	if err != nil {
		return ControllerSnapshot{}, fmt.Errorf("failed to load controller: %w", err)
	}

	latest, err := a.samples.LatestPerDevice(ctx, controller.UserID)
	if err != nil {
		return ControllerSnapshot{}, fmt.Errorf("failed to load latest samples: %w", err)
	}

	byDevice := make(map[string]store.TelemetrySample, len(latest))
	for _, sample := range latest {
		byDevice[sample.DeviceID] = sample
	}

	snapshot := ControllerSnapshot{
		ControllerID:    controller.ControllerID,
		Name:            controller.Name,
		Status:          controller.Status,
		TotalRatedPower: controller.TotalRatedPower,
		Devices:         make([]DeviceReading, 0, len(controller.Devices)),
	}

	for _, device := range controller.Devices {
		if !device.Connected {
			continue
		}

		reading := DeviceReading{
			DeviceID: device.DeviceID,
			Name:     device.Name,
			Status:   device.Status,
		}

		if sample, ok := byDevice[device.DeviceID]; ok {
			reading.HasSample = true
			reading.Timestamp = sample.Timestamp
			reading.PowerWatts = sample.PowerWatts
			reading.Voltage = sample.Voltage
			reading.Current = sample.Current
			reading.CostPerHour = sample.CostPerHour
			reading.CostPerDay = sample.CostPerDay

			snapshot.TotalPower += sample.PowerWatts
			snapshot.TotalPerHour += sample.CostPerHour
		}

		snapshot.Devices = append(snapshot.Devices, reading)
	}

	return snapshot, nil
}

// ChartSeries returns per-day points for the last n days, ascending by date.
// Each point carries the day's average usage in kWh per sample and the
// equivalent hourly cost.
func (a *Aggregator) ChartSeries(ctx context.Context, userID uint, days int) ([]ChartPoint, error) {
	if days <= 0 {
		return nil, fmt.Errorf("aggregate: days must be positive, got %d", days)
	}

	since := a.nowFunc().AddDate(0, 0, -days)
	rows, err := a.samples.AggregateDaily(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load daily aggregates: %w", err)
	}

	points := make([]ChartPoint, 0, len(rows))
	for _, row := range rows {
		point := ChartPoint{
			Date:        row.Day,
			SampleCount: row.SampleCount,
		}
		if row.SampleCount > 0 {
			point.AvgUsageKWh = row.TotalUsageKWh / float64(row.SampleCount)
			point.CostPerHour = row.TotalCost / float64(row.SampleCount) * 3600
		}
		points = append(points, point)
	}

	return points, nil
}
