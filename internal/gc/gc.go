// Package gc schedules artifact garbage collection on a cron spec.
package gc

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ErrAlreadyRunning is returned by Start on a running scheduler.
var ErrAlreadyRunning = errors.New("gc scheduler already running")

// Sweeper removes expired artifacts. *docrender.ArtifactStore implements it.
type Sweeper interface {
	GarbageCollect(maxAge time.Duration) (int, error)
}

// SweepObserver is notified after each sweep.
type SweepObserver interface {
	ObserveSweep(removed int, err error)
}

// Scheduler runs sweeps in its own goroutine on a cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	sweeper  Sweeper
	schedule string
	maxAge   time.Duration
	observer SweepObserver
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithObserver registers a sweep observer.
func WithObserver(o SweepObserver) Option {
	return func(s *Scheduler) {
		s.observer = o
	}
}

// New creates a stopped scheduler sweeping artifacts older than maxAge.
// schedule accepts standard cron specs and descriptors such as "@every 1h".
func New(sweeper Sweeper, schedule string, maxAge time.Duration, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		sweeper:  sweeper,
		schedule: schedule,
		maxAge:   maxAge,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	cl := cronLogger{s.logger.Sugar()}
	s.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := s.cron.AddFunc(schedule, func() { _, _ = s.RunOnce() }); err != nil {
		return nil, fmt.Errorf("gc schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins scheduled sweeps.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	s.running = true
	s.cron.Start()

	s.logger.Info("gc scheduler started",
		zap.String("schedule", s.schedule),
		zap.Duration("max_age", s.maxAge))
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("gc scheduler stopped")
}

// RunOnce performs one sweep immediately.
func (s *Scheduler) RunOnce() (int, error) {
	removed, err := s.sweeper.GarbageCollect(s.maxAge)
	if err != nil {
		s.logger.Warn("artifact sweep incomplete", zap.Int("removed", removed), zap.Error(err))
	}
	if s.observer != nil {
		s.observer.ObserveSweep(removed, err)
	}
	return removed, err
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
