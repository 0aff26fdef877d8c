package sweep

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/poiesic/leveler/core"
)

// ResultHandler receives the outcome of each scheduled sweep.
type ResultHandler func(*Result, error)

// Scheduler runs sweeps on its own goroutine, one at a time.
//
// It holds at most one pending centroid set. Triggers that arrive while a
// sweep is running replace the pending set, so a burst of triggers costs one
// follow-up sweep over the newest centroids.
type Scheduler struct {
	sweeper  *Sweeper
	logger   *slog.Logger
	onResult ResultHandler

	mu      sync.Mutex
	pending core.CentroidSet
	wake    chan struct{}

	runs      atomic.Int64
	coalesced atomic.Int64
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerLogger sets a custom logger.
// Default is slog.Default().
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
	}
}

// WithResultHandler registers fn to be called after every sweep.
func WithResultHandler(fn ResultHandler) SchedulerOption {
	return func(s *Scheduler) {
		s.onResult = fn
	}
}

// NewScheduler creates a scheduler for sweeper. Call Run to start it.
func NewScheduler(sweeper *Sweeper, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		sweeper: sweeper,
		logger:  slog.Default(),
		wake:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "sweep-scheduler")
	return s
}

// Trigger requests a sweep over centroids. It never blocks.
// If a sweep is already pending its centroids are replaced.
func (s *Scheduler) Trigger(centroids core.CentroidSet) {
	s.mu.Lock()
	if s.pending != nil {
		s.coalesced.Add(1)
	}
	s.pending = centroids.Clone()
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Pending reports whether a sweep is waiting to run.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// Runs returns the number of sweeps started.
func (s *Scheduler) Runs() int64 {
	return s.runs.Load()
}

// Coalesced returns the number of triggers replaced before they ran.
func (s *Scheduler) Coalesced() int64 {
	return s.coalesced.Load()
}

// Run executes pending sweeps until ctx is cancelled.
// A sweep in progress at cancellation stops after its current page.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.wake:
		}

		s.mu.Lock()
		centroids := s.pending
		s.pending = nil
		s.mu.Unlock()
		if centroids == nil {
			continue
		}

		s.runs.Add(1)
		result, err := s.sweeper.Sweep(ctx, centroids)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled):
			s.logger.Info("sweep interrupted by shutdown")
		default:
			s.logger.Error("sweep failed", "err", err)
		}
		if s.onResult != nil {
			s.onResult(result, err)
		}
	}
}
