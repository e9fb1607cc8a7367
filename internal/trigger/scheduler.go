// Package trigger starts delivery runs from a ticker, an HTTP call or a queued
// request, never more than one full cycle at a time per process.
package trigger

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"dailyverse/internal/delivery"
	"dailyverse/internal/model"
)

var ErrRunInProgress = errors.New("delivery run already in progress")

type Runner interface {
	RunCycle(ctx context.Context, now time.Time) (*model.RunSummary, error)
	RunTest(ctx context.Context, userID string) (*delivery.TestResult, error)
}

type Scheduler struct {
	runner   Runner
	interval time.Duration
	logger   *zap.Logger

	running sync.Mutex
	now     func() time.Time
}

func NewScheduler(runner Runner, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Trigger runs one cycle now. It returns ErrRunInProgress instead of queuing
// behind a cycle that is still going.
func (s *Scheduler) Trigger(ctx context.Context) (*model.RunSummary, error) {
	if !s.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer s.running.Unlock()
	return s.runner.RunCycle(ctx, s.now())
}

func (s *Scheduler) TriggerTest(ctx context.Context, userID string) (*delivery.TestResult, error) {
	return s.runner.RunTest(ctx, userID)
}

// Start runs a cycle immediately and then on every tick until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting delivery scheduler", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Delivery scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	_, err := s.Trigger(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrRunInProgress):
		s.logger.Warn("Skipping tick, previous run still in progress")
	case errors.Is(err, context.Canceled):
		s.logger.Info("Delivery run interrupted by shutdown")
	default:
		s.logger.Error("Delivery run failed", zap.Error(err))
	}
}
