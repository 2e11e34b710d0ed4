// Package scheduler runs the periodic background refresh of the rate cache.
package scheduler

import (
	"context"
	"time"

	"github.com/valutatrade/valutahub/internal/services/rates"
	"go.uber.org/zap"
)

// Updater triggers one rate update cycle; the rates engine implements it.
type Updater interface {
	Update(ctx context.Context, only ...string) (rates.UpdateResult, error)
}

// Scheduler triggers an update cycle on a fixed interval. It exists for
// staleness avoidance only; correctness never depends on it running.
type Scheduler struct {
	updater  Updater
	interval time.Duration
	logger   *zap.Logger
}

// New creates a scheduler. Intervals below one second are raised to it.
func New(updater Updater, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval < time.Second {
		interval = time.Second
	}
	return &Scheduler{updater: updater, interval: interval, logger: logger}
}

// Run fires one cycle immediately, then on every tick until ctx is
// cancelled. A cycle in flight at cancellation completes; failed cycles
// are logged and the loop carries on.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("starting rates scheduler", zap.Duration("interval", s.interval))

	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("rates scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	result, err := s.updater.Update(ctx)
	if err != nil {
		s.logger.Error("scheduled rates update failed", zap.Error(err))
		return
	}
	if result.Status != rates.StatusSuccess {
		s.logger.Warn("scheduled rates update incomplete",
			zap.String("status", string(result.Status)),
			zap.Int("ok_sources", result.OkSources),
			zap.Int("errors", len(result.Errors)))
	}
}
