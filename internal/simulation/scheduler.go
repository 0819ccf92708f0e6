// Package simulation runs the periodic telemetry synthesis. A Scheduler walks
// every active user, simulates a power draw for each of their online devices,
// prices it with the user's current currency preference and writes the
// resulting samples in one batch. Two scheduler instances cover the fleet:
// one for standalone devices and one for devices attached to controllers.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gridwatt.dev/gridwatt/internal/store"
	"gridwatt.dev/gridwatt/pkg/energy"
	"gridwatt.dev/gridwatt/pkg/metrics"
)

// Fleet is the registry view the schedulers need. store.Registry and
// store.MemoryFleet both satisfy it.
type Fleet interface {
	ActiveUsers(ctx context.Context) ([]store.User, error)
	CurrencyPreferenceFor(ctx context.Context, userID uint) (store.CurrencyPreference, error)
	OnlineOwnedDevices(ctx context.Context, userID uint) ([]store.Device, error)
	OnlineControllerDevices(ctx context.Context, userID uint) ([]store.Device, error)
	MarkSeen(ctx context.Context, deviceID string, at time.Time) error
}

// SampleWriter persists one tick's worth of samples.
type SampleWriter interface {
	InsertBatch(ctx context.Context, samples []store.TelemetrySample) error
}

var (
	// ErrInvalidInterval is returned when the tick interval is not positive.
	ErrInvalidInterval = errors.New("interval must be greater than 0")

	errFleetRequired  = errors.New("fleet is required")
	errWriterRequired = errors.New("sample writer is required")
	errLoggerRequired = errors.New("logger is required")
)

// SchedulerConfig holds the configuration for a telemetry scheduler.
type SchedulerConfig struct {
	// Logger is the structured logger
	Logger *slog.Logger
	// Fleet provides users, devices and currency preferences
	Fleet Fleet
	// Writer persists generated samples
	Writer SampleWriter
	// Interval is the time between ticks
	Interval time.Duration
	// Metrics is the optional Prometheus metrics collector
	Metrics *metrics.SimulationMetrics
}

// Scheduler periodically synthesizes telemetry for one slice of the fleet.
// Start runs one tick synchronously and then ticks on the configured
// interval until Stop. A tick that is still running when the next interval
// fires causes that interval to be skipped rather than piled up.
type Scheduler struct {
	name        string
	interval    time.Duration
	fleet       Fleet
	writer      SampleWriter
	logger      *slog.Logger
	metrics     *metrics.SimulationMetrics
	listDevices func(ctx context.Context, userID uint) ([]store.Device, error)
	nowFunc     func() time.Time

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
	busy    atomic.Bool
}

// NewDeviceScheduler creates a scheduler over online standalone devices.
func NewDeviceScheduler(cfg *SchedulerConfig) (*Scheduler, error) {
	s, err := newScheduler("device", cfg)
	if err != nil {
		return nil, err
	}

	s.listDevices = cfg.Fleet.OnlineOwnedDevices
	return s, nil
}

// NewControllerScheduler creates a scheduler over connected devices attached
// to online controllers.
func NewControllerScheduler(cfg *SchedulerConfig) (*Scheduler, error) {
	s, err := newScheduler("controller", cfg)
	if err != nil {
		return nil, err
	}

	s.listDevices = cfg.Fleet.OnlineControllerDevices
	return s, nil
}

func newScheduler(name string, cfg *SchedulerConfig) (*Scheduler, error) {
	if cfg.Interval <= 0 {
		return nil, ErrInvalidInterval
	}

	if cfg.Fleet == nil {
		return nil, errFleetRequired
	}

	if cfg.Writer == nil {
		return nil, errWriterRequired
	}

	if cfg.Logger == nil {
		return nil, errLoggerRequired
	}

	return &Scheduler{
		name:     name,
		interval: cfg.Interval,
		fleet:    cfg.Fleet,
		writer:   cfg.Writer,
		logger:   cfg.Logger.With(slog.String("scheduler", name)),
		metrics:  cfg.Metrics,
		nowFunc:  time.Now,
	}, nil
}

// Name returns the scheduler's metric label.
func (s *Scheduler) Name() string {
	return s.name
}

// Start runs one immediate tick and then begins the periodic loop. Calling
// Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("scheduler already running")
		return
	}

	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	stop := s.stop
	done := s.done
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RunningSchedulers.Inc()
	}

	s.logger.Info("scheduler started", "interval", s.interval)

	// First tick happens before Start returns so callers observe data
	// immediately instead of one interval later.
	if err := s.Tick(ctx); err != nil {
		s.logger.Error("initial tick failed", "error", err)
	}

	go s.run(ctx, stop, done)
}

// Stop halts the periodic loop and waits for an in-flight tick to finish.
// Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}

	s.running = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()

	<-done

	if s.metrics != nil {
		s.metrics.RunningSchedulers.Dec()
	}

	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return

		case <-ctx.Done():
			s.logger.Info("context canceled, scheduler loop exiting")
			return

		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				s.logger.Error("tick failed", "error", err)
			}
		}
	}
}

// Tick runs one synthesis pass over the fleet. If a previous tick is still
// in flight the call returns immediately without doing work. Per-user and
// per-device failures are logged and skipped; only a failure to list users
// is returned.
func (s *Scheduler) Tick(ctx context.Context) error {
	if !s.busy.CompareAndSwap(false, true) {
		if s.metrics != nil {
			s.metrics.TicksSkipped.WithLabelValues(s.name).Inc()
		}
		s.logger.Warn("previous tick still running, skipping")
		return nil
	}
	defer s.busy.Store(false)

	start := time.Now()
	if s.metrics != nil {
		s.metrics.TicksTotal.WithLabelValues(s.name).Inc()
		defer func() {
			s.metrics.TickDuration.WithLabelValues(s.name).Observe(time.Since(start).Seconds())
		}()
	}

	users, err := s.fleet.ActiveUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active users: %w", err)
	}

	total := 0
	for _, user := range users {
		n, err := s.tickUser(ctx, user)
		if err != nil {
			s.logger.Error("skipping user",
				"user_id", user.ID,
				"error", err,
			)
			continue
		}
		total += n
	}

	s.logger.Debug("tick complete",
		"users", len(users),
		"samples", total,
		"duration", time.Since(start),
	)

	return nil
}

// tickUser synthesizes and persists samples for one user's devices.
func (s *Scheduler) tickUser(ctx context.Context, user store.User) (int, error) {
	// The preference is read fresh every tick so rate changes apply to the
	// next sample without a restart.
	pref, err := s.fleet.CurrencyPreferenceFor(ctx, user.ID)
	if err != nil {
		s.countFailure("preference")
		return 0, fmt.Errorf("failed to load currency preference: %w", err)
	}

	devices, err := s.listDevices(ctx, user.ID)
	if err != nil {
		s.countFailure("devices")
		return 0, fmt.Errorf("failed to list devices: %w", err)
	}

	if len(devices) == 0 {
		return 0, nil
	}

	now := s.nowFunc().UTC()
	hour := now.Hour()

	batch := make([]store.TelemetrySample, 0, len(devices))
	for _, device := range devices {
		sample, err := s.synthesize(device, pref, now, hour)
		if err != nil {
			s.countFailure("synthesize")
			s.logger.Error("skipping device",
				"user_id", user.ID,
				"device_id", device.DeviceID,
				"error", err,
			)
			continue
		}

		batch = append(batch, sample)
	}

	if len(batch) == 0 {
		return 0, nil
	}

	if err := s.writer.InsertBatch(ctx, batch); err != nil {
		s.countFailure("insert")
		return 0, fmt.Errorf("failed to insert samples: %w", err)
	}

	for _, sample := range batch {
		if err := s.fleet.MarkSeen(ctx, sample.DeviceID, now); err != nil {
			s.logger.Error("failed to mark device seen",
				"device_id", sample.DeviceID,
				"error", err,
			)
		}
	}

	if s.metrics != nil {
		s.metrics.SamplesGenerated.WithLabelValues(s.name).Add(float64(len(batch)))
	}

	return len(batch), nil
}

func (s *Scheduler) synthesize(device store.Device, pref store.CurrencyPreference, now time.Time, hour int) (store.TelemetrySample, error) {
	watts, err := energy.Simulate(device.RatedWatts, hour)
	if err != nil {
		return store.TelemetrySample{}, fmt.Errorf("failed to simulate power: %w", err)
	}

	costs, err := energy.DeriveCosts(watts, pref.Rate, pref.ConversionFactor)
	if err != nil {
		return store.TelemetrySample{}, fmt.Errorf("failed to derive costs: %w", err)
	}

	elec := energy.SimulateElectrical(watts)

	return store.TelemetrySample{
		UserID:         device.UserID,
		DeviceID:       device.DeviceID,
		ControllerID:   device.ControllerID,
		Timestamp:      now,
		PowerWatts:     watts,
		Voltage:        elec.Voltage,
		Current:        elec.Current,
		Frequency:      elec.Frequency,
		Rate:           pref.Rate,
		CurrencyCode:   pref.Code,
		CurrencySymbol: pref.Symbol,
		CostPerSecond:  costs.PerSecond,
		CostPerHour:    costs.PerHour,
		CostPerDay:     costs.PerDay,
		CostPerMonth:   costs.PerMonth,
		CostPerYear:    costs.PerYear,
	}, nil
}

func (s *Scheduler) countFailure(reason string) {
	if s.metrics != nil {
		s.metrics.EntityFailures.WithLabelValues(s.name, reason).Inc()
	}
}
