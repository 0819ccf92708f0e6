// Package pipeline wires the whole energy-monitoring service together:
// database-backed stores, the two telemetry schedulers, the inactivity
// monitor, the retention janitor, alert delivery and the dashboard HTTP API.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/gorm"

	"gridwatt.dev/gridwatt/internal/aggregate"
	"gridwatt.dev/gridwatt/internal/dashboard"
	"gridwatt.dev/gridwatt/internal/monitor"
	"gridwatt.dev/gridwatt/internal/notify"
	"gridwatt.dev/gridwatt/internal/simulation"
	"gridwatt.dev/gridwatt/internal/store"
	"gridwatt.dev/gridwatt/pkg/metrics"
	"gridwatt.dev/gridwatt/pkg/mq"
)

// ServerConfig holds the configuration for the pipeline server.
type ServerConfig struct {
	Logger *slog.Logger

	// Database configuration
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	DBPort     int

	// RabbitMQ configuration; empty RabbitMQURL disables the AMQP alert
	// channel
	RabbitMQURL    string
	AlertQueueName string

	// SMTP configuration; empty SMTPHost disables the email alert channel
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	// Simulation configuration
	SimulationInterval time.Duration

	// Inactivity monitoring configuration
	CheckInterval       time.Duration
	InactivityThreshold time.Duration

	// Retention configuration
	Retention     time.Duration
	SweepInterval time.Duration

	// Dashboard HTTP configuration
	HTTPPort int

	// EnableMetrics turns on Prometheus collectors
	EnableMetrics bool
}

// Server composes the pipeline services over one database connection.
type Server struct {
	logger *slog.Logger
	config *ServerConfig

	db       *gorm.DB
	registry *store.Registry
	samples  *store.DBSampleStore
	janitor  *store.Janitor

	deviceScheduler     *simulation.Scheduler
	controllerScheduler *simulation.Scheduler
	monitor             *monitor.Monitor
	dashboard           *dashboard.Server
	aggregator          *aggregate.Aggregator

	mqClient *mq.Client
}

// NewServer validates the configuration and creates a pipeline Server.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.DBHost == "" {
		return nil, errors.New("database host cannot be empty")
	}

	if cfg.DBPort <= 0 {
		return nil, errors.New("database port must be positive")
	}

	if cfg.DBUser == "" {
		return nil, errors.New("database user cannot be empty")
	}

	if cfg.DBName == "" {
		return nil, errors.New("database name cannot be empty")
	}

	if cfg.SimulationInterval <= 0 {
		return nil, simulation.ErrInvalidInterval
	}

	if cfg.CheckInterval <= 0 {
		return nil, monitor.ErrInvalidInterval
	}

	if cfg.Retention <= 0 {
		return nil, store.ErrInvalidRetention
	}

	if cfg.SweepInterval <= 0 {
		return nil, store.ErrInvalidInterval
	}

	if cfg.HTTPPort <= 0 {
		return nil, errors.New("HTTP port must be positive")
	}

	if cfg.RabbitMQURL == "" && cfg.SMTPHost == "" {
		return nil, errors.New("at least one alert channel (smtp or rabbitmq) must be configured")
	}

	if cfg.RabbitMQURL != "" && cfg.AlertQueueName == "" {
		return nil, errors.New("alert queue name cannot be empty")
	}

	return &Server{
		logger: cfg.Logger,
		config: cfg,
	}, nil
}

// Run starts every pipeline service and blocks until a shutdown signal or
// context cancellation.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting pipeline server")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	if err := s.setup(); err != nil {
		return err
	}

	s.StartSimulation(ctx)
	s.StartInactivityMonitor(ctx)

	if err := s.janitor.Start(s.config.SweepInterval); err != nil {
		return fmt.Errorf("failed to start janitor: %w", err)
	}

	// The dashboard owns the foreground; its Run blocks until shutdown.
	httpErr := make(chan error, 1)
	go func() {
		httpErr <- s.dashboard.Run(ctx)
	}()

	s.logger.Info("pipeline server started successfully")

	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case <-ctx.Done():
		s.logger.Info("context canceled")
	case err := <-httpErr:
		if err != nil {
			s.logger.Error("dashboard server error", "error", err)
			cancel()
			return errors.Join(err, s.Shutdown())
		}
	}

	return s.Shutdown()
}

// setup builds every component over one database connection.
func (s *Server) setup() error {
	var (
		simMetrics     *metrics.SimulationMetrics
		monitorMetrics *metrics.MonitorMetrics
		storeMetrics   *metrics.StoreMetrics
		mqMetrics      *metrics.MQMetrics
	)
	if s.config.EnableMetrics {
		simMetrics = metrics.NewSimulationMetrics("gridwatt")
		monitorMetrics = metrics.NewMonitorMetrics("gridwatt")
		storeMetrics = metrics.NewStoreMetrics("gridwatt")
		mqMetrics = metrics.NewMQMetrics("gridwatt")
	}

	db, err := store.NewDB(&store.DBConfig{
		Host:     s.config.DBHost,
		Port:     s.config.DBPort,
		User:     s.config.DBUser,
		Password: s.config.DBPassword,
		DBName:   s.config.DBName,
		SSLMode:  s.config.DBSSLMode,
		Logger:   s.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	s.db = db

	s.registry, err = store.NewRegistry(db, s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize registry: %w", err)
	}

	s.samples, err = store.NewDBSampleStore(db, s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize sample store: %w", err)
	}
	if storeMetrics != nil {
		s.samples.SetMetrics(storeMetrics)
	}

	s.janitor, err = store.NewJanitor(s.samples, s.config.Retention, s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize janitor: %w", err)
	}

	notifier, err := s.setupNotifier(mqMetrics)
	if err != nil {
		return err
	}

	s.deviceScheduler, err = simulation.NewDeviceScheduler(&simulation.SchedulerConfig{
		Logger:   s.logger,
		Fleet:    s.registry,
		Writer:   s.samples,
		Interval: s.config.SimulationInterval,
		Metrics:  simMetrics,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize device scheduler: %w", err)
	}

	s.controllerScheduler, err = simulation.NewControllerScheduler(&simulation.SchedulerConfig{
		Logger:   s.logger,
		Fleet:    s.registry,
		Writer:   s.samples,
		Interval: s.config.SimulationInterval,
		Metrics:  simMetrics,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize controller scheduler: %w", err)
	}

	s.monitor, err = monitor.NewMonitor(&monitor.MonitorConfig{
		Logger:        s.logger,
		Source:        s.registry,
		Notifier:      notifier,
		CheckInterval: s.config.CheckInterval,
		Threshold:     s.config.InactivityThreshold,
		Metrics:       monitorMetrics,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize inactivity monitor: %w", err)
	}

	s.aggregator, err = aggregate.New(s.registry, s.samples, s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize aggregator: %w", err)
	}

	s.dashboard, err = dashboard.NewServer(&dashboard.ServerConfig{
		Logger:   s.logger,
		HTTPPort: s.config.HTTPPort,
		Stats:    s.aggregator,
		Readings: s.samples,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize dashboard server: %w", err)
	}

	return nil
}

// setupNotifier assembles the configured alert channels.
func (s *Server) setupNotifier(mqMetrics *metrics.MQMetrics) (notify.Notifier, error) {
	var channels []notify.Notifier

	if s.config.SMTPHost != "" {
		smtpNotifier, err := notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     s.config.SMTPHost,
			Port:     s.config.SMTPPort,
			Username: s.config.SMTPUsername,
			Password: s.config.SMTPPassword,
			From:     s.config.SMTPFrom,
		}, s.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize smtp notifier: %w", err)
		}
		channels = append(channels, smtpNotifier)
	}

	if s.config.RabbitMQURL != "" {
		s.mqClient = mq.New(s.config.AlertQueueName, s.config.RabbitMQURL, s.logger.With(
			slog.String("component", "mq-client"),
		))
		if mqMetrics != nil {
			s.mqClient.SetMetrics(mqMetrics)
		}

		amqpNotifier, err := notify.NewAMQPNotifier(s.mqClient, s.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize amqp notifier: %w", err)
		}
		channels = append(channels, amqpNotifier)
	}

	if len(channels) == 1 {
		return channels[0], nil
	}
	return notify.NewMulti(s.logger, channels...)
}

// StartSimulation starts both telemetry schedulers. Already-running
// schedulers are left alone.
func (s *Server) StartSimulation(ctx context.Context) {
	s.deviceScheduler.Start(ctx)
	s.controllerScheduler.Start(ctx)
}

// StopSimulation stops both telemetry schedulers.
func (s *Server) StopSimulation() {
	s.deviceScheduler.Stop()
	s.controllerScheduler.Stop()
}

// StartInactivityMonitor starts the inactivity monitor.
func (s *Server) StartInactivityMonitor(ctx context.Context) {
	s.monitor.Start(ctx)
}

// StopInactivityMonitor stops the inactivity monitor.
func (s *Server) StopInactivityMonitor() {
	s.monitor.Stop()
}

// LatestSnapshot proxies to the aggregator.
func (s *Server) LatestSnapshot(ctx context.Context, userID uint) (aggregate.Snapshot, error) {
	return s.aggregator.LatestSnapshot(ctx, userID)
}

// PeriodStats proxies to the aggregator.
func (s *Server) PeriodStats(ctx context.Context, userID uint, period aggregate.Period) (aggregate.PeriodStats, error) {
	return s.aggregator.PeriodStats(ctx, userID, period)
}

// ChartSeries proxies to the aggregator.
func (s *Server) ChartSeries(ctx context.Context, userID uint, days int) ([]aggregate.ChartPoint, error) {
	return s.aggregator.ChartSeries(ctx, userID, days)
}

// Shutdown stops every service in reverse start order.
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down pipeline server")

	var shutdownErr error

	if s.dashboard != nil {
		if err := s.dashboard.Shutdown(); err != nil {
			s.logger.Error("failed to shutdown dashboard", "error", err)
			shutdownErr = err
		}
	}

	if s.janitor != nil {
		s.janitor.Stop()
	}

	if s.monitor != nil {
		s.StopInactivityMonitor()
	}

	if s.deviceScheduler != nil {
		s.StopSimulation()
	}

	if s.mqClient != nil {
		if err := s.mqClient.Close(); err != nil {
			s.logger.Error("failed to close MQ client", "error", err)
			shutdownErr = errors.Join(shutdownErr, err)
		}
	}

	if s.db != nil {
		if err := store.CloseDB(s.db, s.logger); err != nil {
			s.logger.Error("failed to close database", "error", err)
			shutdownErr = errors.Join(shutdownErr, err)
		}
	}

	if shutdownErr != nil {
		s.logger.Error("pipeline server shutdown completed with errors", "error", shutdownErr)
		return shutdownErr
	}

	s.logger.Info("pipeline server shutdown completed successfully")
	return nil
}
