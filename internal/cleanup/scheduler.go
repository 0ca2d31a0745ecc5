// Package cleanup runs the periodic eviction sweep that reclaims storage from
// objects with no recent access.
package cleanup

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"blobvault/internal/metrics"
	"blobvault/internal/storage"
)

// Sweeper is the slice of the storage contract the scheduler drives.
type Sweeper interface {
	CleanupInactive(ctx context.Context, inactivityPeriod string) (*storage.CleanupResult, error)
}

// Scheduler triggers sweeps at a fixed interval, with at most one sweep in
// flight at any time. A tick that lands while a sweep is still running is
// skipped, never queued.
type Scheduler struct {
	store    Sweeper
	period   string
	interval time.Duration

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler wires a scheduler to the store it sweeps, the inactivity
// period passed to each sweep, and the tick interval.
func NewScheduler(store Sweeper, inactivityPeriod string, interval time.Duration) *Scheduler {
	return &Scheduler{
		store:    store,
		period:   inactivityPeriod,
		interval: interval,
	}
}

// Start runs one sweep synchronously, then arms the recurring timer. Calling
// Start again cancels the previous timer before arming a new one.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	slog.Info("cleanup scheduler started", "period", s.period, "interval", s.interval)
	s.sweep(ctx)

	go s.loop(loopCtx, done)
}

// Stop cancels future ticks. A sweep already in progress is not interrupted.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
	slog.Info("cleanup scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Fire and let the running guard decide: a tick landing while a
			// sweep is in flight is skipped, not queued behind it.
			go s.sweep(ctx)
		}
	}
}

// sweep runs one pass over all stored objects. The running flag guarantees
// non-overlap and is released on every exit path.
func (s *Scheduler) sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if !s.running.CompareAndSwap(false, true) {
		slog.Warn("previous cleanup sweep still running, skipping this tick")
		return
	}
	defer s.running.Store(false)

	start := time.Now()
	result, err := s.store.CleanupInactive(ctx, s.period)
	if err != nil {
		slog.Error("cleanup sweep failed", "duration", time.Since(start), "error", err)
		return
	}

	metrics.SweepsTotal.Inc()
	metrics.SweepDeletedTotal.Add(float64(result.Deleted))
	metrics.SweepErrorsTotal.Add(float64(len(result.Errors)))

	slog.Info("cleanup sweep finished",
		"deleted", result.Deleted,
		"errors", len(result.Errors),
		"duration", time.Since(start),
	)
	for _, sweepErr := range result.Errors {
		slog.Debug("cleanup sweep object error", "key", sweepErr.PublicKey, "error", sweepErr.Message)
	}
}
