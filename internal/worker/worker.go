// Package worker runs scheduled crawls on a fixed interval.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/carmarket/crawler/internal/scraper"
)

// Runner is the engine surface the scheduler depends on.
type Runner interface {
	Batch(ctx context.Context, req scraper.Request) (scraper.Result, error)
}

// Config controls Scheduler behavior.
type Config struct {
	// Interval is the time between scheduled crawls.
	Interval time.Duration
	// RunOnStart triggers a crawl immediately instead of waiting a full
	// interval first.
	RunOnStart bool
	// Request is the crawl submitted on each tick.
	Request scraper.Request
}

// Scheduler triggers batch crawls on a ticker. A tick that lands while a
// crawl is still active is skipped, not queued.
type Scheduler struct {
	runner Runner
	cfg    Config
	logger *zap.Logger
}

// NewScheduler constructs a Scheduler.
func NewScheduler(runner Runner, cfg Config, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	return &Scheduler{
		runner: runner,
		cfg:    cfg,
		logger: logger.Named("worker"),
	}
}

// Run blocks, firing crawls until the context finishes.
func (s *Scheduler) Run(ctx context.Context) {
	if s.cfg.RunOnStart {
		s.crawl(ctx)
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.crawl(ctx)
		}
	}
}

func (s *Scheduler) crawl(ctx context.Context) {
	start := time.Now()
	result, err := s.runner.Batch(ctx, s.cfg.Request)
	if err != nil {
		if errors.Is(err, scraper.ErrAlreadyRunning) {
			s.logger.Warn("scheduled crawl skipped, another run is active")
			return
		}
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("scheduled crawl failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduled crawl finished",
		zap.String("status", result.Status),
		zap.Int("pages", result.PagesScraped),
		zap.Int("cars", result.TotalCars),
		zap.Duration("duration", time.Since(start)),
	)
}
