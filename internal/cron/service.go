package cron

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/mmararief/dante-propolis/pkg/errors"
	"github.com/mmararief/dante-propolis/pkg/logger"
	"github.com/mmararief/dante-propolis/pkg/metrics"
)

const defaultInterval = time.Minute

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Locks    LockFactory
	Metrics  *metrics.JobMetrics
	Interval time.Duration
}

// Service ticks on a fixed cadence and runs every job that is due, each
// under its own distributed lock.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	locks    LockFactory
	metrics  *metrics.JobMetrics
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	lastRun map[string]time.Time
}

// NewService builds a cron service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Locks == nil {
		return nil, fmt.Errorf("lock factory required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		locks:    params.Locks,
		metrics:  params.Metrics,
		interval: interval,
		now:      time.Now,
		lastRun:  map[string]time.Time{},
	}, nil
}

// Run starts the cron loop until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.runCycle(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service context canceled")
			return ctx.Err()
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// Trigger runs the named job immediately, still honouring its lock.
func (s *Service) Trigger(ctx context.Context, name string) error {
	job, ok := s.registry.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown cron job %q (registered: %s)", name, strings.Join(s.registry.Names(), ", "))
	}
	_, err := s.runLocked(ctx, job)
	return err
}

func (s *Service) runCycle(ctx context.Context) {
	for _, job := range s.registry.Jobs() {
		if !s.due(job) {
			continue
		}
		ran, err := s.runLocked(ctx, job)
		jobCtx := s.logg.WithField(ctx, "job", job.Name())
		switch {
		case pkgerrors.IsRetryable(err):
			// leave the job due so the next tick picks it up again
			s.logg.Warn(s.logg.WithField(jobCtx, "error", err.Error()), "scheduled run contended")
			continue
		case err != nil:
			s.logg.Error(jobCtx, "scheduled run failed", err)
		}
		if ran {
			s.markRun(job.Name())
		}
	}
}

func (s *Service) due(job Job) bool {
	every := everyOf(job)
	if every <= 0 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastRun[job.Name()]
	return !ok || s.now().Sub(last) >= every
}

func (s *Service) markRun(name string) {
	s.mu.Lock()
	s.lastRun[name] = s.now()
	s.mu.Unlock()
}

// runLocked reports whether this instance held the lock and ran the job.
func (s *Service) runLocked(ctx context.Context, job Job) (bool, error) {
	lock, err := s.locks(job.Name())
	if err != nil {
		return false, fmt.Errorf("build lock: %w", err)
	}
	locked, err := lock.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Debug(s.logg.WithField(ctx, "job", job.Name()), "another cron instance holds the lock; skipping")
		return false, nil
	}
	defer func() {
		relErr := lock.Release(ctx)
		switch {
		case errors.Is(relErr, ErrLockLost):
			s.logg.Warn(s.logg.WithField(ctx, "job", job.Name()), "cron lock expired while the job ran")
		case relErr != nil:
			s.logg.Error(ctx, "failed to release cron lock", relErr)
		}
	}()
	return true, s.runJob(ctx, job)
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": job.Name(), "event": "cron.job"})
	s.logg.Debug(jobCtx, "job start")
	start := time.Now()
	err := job.Run(jobCtx)
	duration := time.Since(start)
	s.metrics.ObserveRun(job.Name(), duration, err)
	if err != nil {
		return err
	}
	s.logg.Info(s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds()), "job completed")
	return nil
}
