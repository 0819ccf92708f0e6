// Package monitor watches the fleet for devices that have gone quiet and
// notifies their owners. Detection and alert bookkeeping live in the device
// registry; this package drives the periodic check and delivery.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gridwatt.dev/gridwatt/internal/notify"
	"gridwatt.dev/gridwatt/internal/store"
	"gridwatt.dev/gridwatt/pkg/metrics"
)

// AlertSource is the registry view the monitor needs. store.Registry and
// store.MemoryFleet both satisfy it.
type AlertSource interface {
	// MarkStale flips online devices quiet past the cutoff to offline.
	MarkStale(ctx context.Context, cutoff time.Time) (int64, error)
	// InactiveDevices returns offline devices past the cutoff not yet
	// alerted for the current inactivity period.
	InactiveDevices(ctx context.Context, cutoff time.Time) ([]store.InactiveDevice, error)
	// MarkAlerted records a delivered alert, suppressing repeats until the
	// device reports again.
	MarkAlerted(ctx context.Context, deviceID string, at time.Time) error
}

var (
	// ErrInvalidInterval is returned when the check interval is not positive.
	ErrInvalidInterval = errors.New("check interval must be greater than 0")
	// ErrInvalidThreshold is returned when the inactivity threshold is not
	// positive.
	ErrInvalidThreshold = errors.New("inactivity threshold must be greater than 0")

	errSourceRequired   = errors.New("alert source is required")
	errNotifierRequired = errors.New("notifier is required")
	errLoggerRequired   = errors.New("logger is required")
)

// DefaultThreshold is how long a device may stay quiet before it is
// considered inactive.
const DefaultThreshold = 24 * time.Hour

// MonitorConfig holds the configuration for the inactivity monitor.
type MonitorConfig struct {
	// Logger is the structured logger
	Logger *slog.Logger
	// Source provides inactive devices and alert bookkeeping
	Source AlertSource
	// Notifier delivers alerts to device owners
	Notifier notify.Notifier
	// CheckInterval is the time between inactivity checks
	CheckInterval time.Duration
	// Threshold is how long a device may stay quiet before alerting.
	// Defaults to DefaultThreshold when zero.
	Threshold time.Duration
	// Metrics is the optional Prometheus metrics collector
	Metrics *metrics.MonitorMetrics
}

// Monitor periodically flags quiet devices and alerts their owners. One
// alert is sent per inactivity period: delivery marks the device on its
// registry row, and the mark re-arms when the device reports again, so a
// failed delivery is retried on the next check.
type Monitor struct {
	logger    *slog.Logger
	source    AlertSource
	notifier  notify.Notifier
	interval  time.Duration
	threshold time.Duration
	metrics   *metrics.MonitorMetrics
	nowFunc   func() time.Time

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewMonitor creates an inactivity monitor with the given configuration.
func NewMonitor(cfg *MonitorConfig) (*Monitor, error) {
	if cfg.CheckInterval <= 0 {
		return nil, ErrInvalidInterval
	}

	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if threshold < 0 {
		return nil, ErrInvalidThreshold
	}

	if cfg.Source == nil {
		return nil, errSourceRequired
	}

	if cfg.Notifier == nil {
		return nil, errNotifierRequired
	}

	if cfg.Logger == nil {
		return nil, errLoggerRequired
	}

	return &Monitor{
		logger:    cfg.Logger,
		source:    cfg.Source,
		notifier:  cfg.Notifier,
		interval:  cfg.CheckInterval,
		threshold: threshold,
		metrics:   cfg.Metrics,
		nowFunc:   time.Now,
	}, nil
}

// SetNowFunc overrides the monitor's clock. Used by tests to move devices
// through inactivity periods.
func (m *Monitor) SetNowFunc(now func() time.Time) {
	m.nowFunc = now
}

// Start runs one immediate check and then checks on the configured interval.
// Calling Start on a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		m.logger.Warn("monitor already running")
		return
	}

	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	stop := m.stop
	done := m.done
	m.mu.Unlock()

	m.logger.Info("inactivity monitor started",
		"interval", m.interval,
		"threshold", m.threshold,
	)

	if err := m.Check(ctx); err != nil {
		m.logger.Error("initial inactivity check failed", "error", err)
	}

	go m.run(ctx, stop, done)
}

// Stop halts the periodic loop. Stopping a stopped monitor is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}

	m.running = false
	close(m.stop)
	done := m.done
	m.mu.Unlock()

	<-done
	m.logger.Info("inactivity monitor stopped")
}

func (m *Monitor) run(ctx context.Context, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return

		case <-ctx.Done():
			m.logger.Info("context canceled, monitor loop exiting")
			return

		case <-ticker.C:
			if err := m.Check(ctx); err != nil {
				m.logger.Error("inactivity check failed", "error", err)
			}
		}
	}
}

// Check runs one inactivity pass: quiet devices are flipped offline, and
// offline devices not yet alerted for the current period are notified.
// Delivery failures are logged and left unmarked so the next pass retries.
func (m *Monitor) Check(ctx context.Context) error {
	start := time.Now()
	if m.metrics != nil {
		m.metrics.ChecksTotal.Inc()
		defer func() {
			m.metrics.CheckDuration.Observe(time.Since(start).Seconds())
		}()
	}

	now := m.nowFunc()
	cutoff := now.Add(-m.threshold)

	flipped, err := m.source.MarkStale(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to mark stale devices: %w", err)
	}
	if flipped > 0 {
		m.logger.Info("devices flipped offline", "count", flipped)
	}

	inactive, err := m.source.InactiveDevices(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to list inactive devices: %w", err)
	}

	if m.metrics != nil {
		m.metrics.InactiveDevices.Set(float64(len(inactive)))
	}

	for _, device := range inactive {
		if err := m.alert(ctx, device, now); err != nil {
			m.logger.Error("failed to alert device owner",
				"device_id", device.DeviceID,
				"owner", device.OwnerEmail,
				"error", err,
			)
			if m.metrics != nil {
				m.metrics.AlertFailures.WithLabelValues("delivery").Inc()
			}
			continue
		}
	}

	m.logger.Debug("inactivity check complete",
		"inactive", len(inactive),
		"duration", time.Since(start),
	)

	return nil
}

// alert delivers one notification and records delivery. The mark happens
// only after a successful send so failures naturally retry.
func (m *Monitor) alert(ctx context.Context, device store.InactiveDevice, now time.Time) error {
	elapsed := now.Sub(device.LastSeen).Round(time.Minute)
	subject := fmt.Sprintf("Device %q has stopped reporting", device.Name)
	body := fmt.Sprintf(
		"Your device %q (%s) has not reported any telemetry for %s.\n"+
			"Last seen: %s.\n\n"+
			"Check the device's power and network connection.",
		device.Name, device.DeviceID, elapsed, device.LastSeen.Format(time.RFC1123),
	)

	if err := m.notifier.Send(ctx, device.OwnerEmail, subject, body); err != nil {
		return fmt.Errorf("failed to send alert: %w", err)
	}

	if err := m.source.MarkAlerted(ctx, device.DeviceID, now); err != nil {
		// Delivered but not recorded: the next pass may re-send. Better a
		// duplicate alert than a silently lost one.
		return fmt.Errorf("failed to record alert delivery: %w", err)
	}

	if m.metrics != nil {
		m.metrics.AlertsSent.Inc()
	}

	m.logger.Info("inactivity alert sent",
		"device_id", device.DeviceID,
		"owner", device.OwnerEmail,
		"last_seen", device.LastSeen,
	)

	return nil
}
