// Package dashboard serves the monitoring JSON API: fleet snapshots, usage
// rollups and chart series computed by the aggregator, plus the Prometheus
// metrics endpoint.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gridwatt.dev/gridwatt/internal/aggregate"
	"gridwatt.dev/gridwatt/internal/store"
	"gridwatt.dev/gridwatt/pkg/metrics"
)

// Stats computes the figures the API serves. *aggregate.Aggregator satisfies
// it.
type Stats interface {
	LatestSnapshot(ctx context.Context, userID uint) (aggregate.Snapshot, error)
	ControllerSnapshot(ctx context.Context, controllerID string) (aggregate.ControllerSnapshot, error)
	PeriodStats(ctx context.Context, userID uint, period aggregate.Period) (aggregate.PeriodStats, error)
	ChartSeries(ctx context.Context, userID uint, days int) ([]aggregate.ChartPoint, error)
}

// ReadingSource serves raw per-device sample ranges.
type ReadingSource interface {
	RangeByDevice(ctx context.Context, userID uint, deviceID string, since time.Time) ([]store.TelemetrySample, error)
}

// ServerConfig holds the configuration for the dashboard server.
type ServerConfig struct {
	Logger *slog.Logger

	// HTTPPort is the port the JSON API listens on
	HTTPPort int

	// Stats computes snapshots and rollups
	Stats Stats

	// Readings serves raw sample ranges
	Readings ReadingSource
}

// Server is the dashboard HTTP server.
type Server struct {
	logger     *slog.Logger
	config     *ServerConfig
	httpServer *http.Server
	stats      Stats
	readings   ReadingSource
}

// NewServer creates a new dashboard Server instance.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.HTTPPort <= 0 {
		return nil, errors.New("HTTP port must be positive")
	}

	if cfg.Stats == nil {
		return nil, errors.New("stats cannot be nil")
	}

	if cfg.Readings == nil {
		return nil, errors.New("readings cannot be nil")
	}

	return &Server{
		logger:   cfg.Logger,
		config:   cfg,
		stats:    cfg.Stats,
		readings: cfg.Readings,
	}, nil
}

// Run starts the dashboard server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting dashboard server")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	mux := s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("starting HTTP server", "address", s.httpServer.Addr)

	httpErr := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- fmt.Errorf("HTTP server error: %w", err)
		}
		close(httpErr)
	}()

	s.logger.Info("dashboard server started successfully")

	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case <-ctx.Done():
		s.logger.Info("context canceled")
	case err := <-httpErr:
		if err != nil {
			s.logger.Error("HTTP server error", "error", err)
			cancel()
			return err
		}
	}

	return s.Shutdown()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down dashboard server")

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("failed to shutdown HTTP server", "error", err)
			return fmt.Errorf("HTTP server shutdown error: %w", err)
		}
	}

	s.logger.Info("dashboard server shutdown completed successfully")
	return nil
}

// setupRoutes configures the HTTP routes.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Health check and Prometheus metrics
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	// Fleet snapshots and rollups
	mux.HandleFunc("GET /api/users/{id}/snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /api/users/{id}/stats/{period}", s.handlePeriodStats)
	mux.HandleFunc("GET /api/users/{id}/chart", s.handleChart)
	mux.HandleFunc("GET /api/users/{id}/devices/{deviceID}/readings", s.handleReadings)
	mux.HandleFunc("GET /api/controllers/{id}/snapshot", s.handleControllerSnapshot)

	return mux
}
