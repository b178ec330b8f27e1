// Package scheduler drives the periodic content release sweep.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/curriculum-gate-api/internal/dto"
)

// Sweeper runs one release reconciliation pass.
type Sweeper interface {
	Sweep(ctx context.Context) (*dto.SweepReport, error)
}

// Config tunes the release scheduler.
type Config struct {
	Spec         string
	SweepTimeout time.Duration
	Location     *time.Location
}

// ReleaseScheduler triggers Sweep on a cron schedule. Overlapping ticks are skipped
// while a sweep is still running.
type ReleaseScheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

// New validates the schedule and registers the sweep job.
func New(sweeper Sweeper, cfg Config, logger *zap.Logger) (*ReleaseScheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Spec == "" {
		cfg.Spec = "@every 1m"
	}
	if cfg.SweepTimeout <= 0 {
		cfg.SweepTimeout = 30 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	s := &ReleaseScheduler{
		sweeper: sweeper,
		timeout: cfg.SweepTimeout,
		logger:  logger,
		ctx:     context.Background(),
	}
	s.cron = cron.New(
		cron.WithLocation(cfg.Location),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := s.cron.AddFunc(cfg.Spec, s.tick); err != nil {
		return nil, fmt.Errorf("invalid scheduler spec %q: %w", cfg.Spec, err)
	}
	return s, nil
}

// Start begins scheduling. Sweeps inherit cancellation from ctx.
func (s *ReleaseScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.running = true
	s.logger.Info("release scheduler started", zap.Int("entries", len(s.cron.Entries())))
}

// Stop halts scheduling and waits for an in-flight sweep to finish.
func (s *ReleaseScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	cancel()
	s.logger.Info("release scheduler stopped")
}

// RunOnce performs a single sweep bounded by the configured timeout.
func (s *ReleaseScheduler) RunOnce(ctx context.Context) (*dto.SweepReport, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	report, err := s.sweeper.Sweep(ctx)
	if err != nil {
		s.logger.Error("release sweep failed", zap.Error(err))
		return report, err
	}
	total := 0
	for _, k := range report.Kinds {
		total += k.Released + k.Unreleased
	}
	if total > 0 {
		s.logger.Info("release sweep applied changes", zap.Int("changes", total), zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)))
	} else {
		s.logger.Debug("release sweep found nothing due")
	}
	return report, nil
}

func (s *ReleaseScheduler) tick() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	_, _ = s.RunOnce(ctx)
}
