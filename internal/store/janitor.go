package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrInvalidInterval reports a non-positive sweep interval passed to
// Janitor.Start.
var ErrInvalidInterval = errors.New("store: sweep interval must be positive")

// Janitor periodically evicts samples past the retention window. It replaces
// a database-internal TTL sweep with an explicit, testable tick so retention
// timing is under the application's control.
type Janitor struct {
	logger    *slog.Logger
	store     SampleStore
	retention time.Duration

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewJanitor creates a retention janitor over the given store.
func NewJanitor(store SampleStore, retention time.Duration, logger *slog.Logger) (*Janitor, error) {
	if store == nil {
		return nil, errors.New("sample store cannot be nil")
	}

	if retention <= 0 {
		return nil, ErrInvalidRetention
	}

	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &Janitor{
		logger:    logger,
		store:     store,
		retention: retention,
	}, nil
}

// Start sweeps once immediately, then re-sweeps every interval until Stop.
// Starting a running janitor is a no-op.
func (j *Janitor) Start(interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}

	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		j.logger.Info("janitor already running")
		return nil
	}
	j.running = true
	j.stop = make(chan struct{})
	j.done = make(chan struct{})
	stop, done := j.stop, j.done
	j.mu.Unlock()

	j.Sweep(context.Background())

	go func() {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				j.Sweep(context.Background())
			}
		}
	}()

	j.logger.Info("janitor started",
		"interval", interval,
		"retention", j.retention,
	)
	return nil
}

// Stop cancels the sweep timer. Idempotent; an in-flight sweep completes.
func (j *Janitor) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	j.running = false
	stop, done := j.stop, j.done
	j.mu.Unlock()

	close(stop)
	<-done
	j.logger.Info("janitor stopped")
}

// Sweep runs one eviction pass. Failures are logged, never raised: the next
// sweep naturally retries.
func (j *Janitor) Sweep(ctx context.Context) {
	removed, err := j.store.EvictOlderThan(ctx, j.retention)
	if err != nil {
		j.logger.Error("retention sweep failed", "error", err)
		return
	}

	if removed > 0 {
		j.logger.Info("retention sweep complete", "removed", removed)
	}
}
