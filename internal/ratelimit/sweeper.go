package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweepable is a limiter whose stale windows can be purged.
type Sweepable interface {
	Sweep() int
	Len() int
}

// Sweeper purges stale windows on a fixed period through a cron scheduler.
// A panicking sweep is logged and the next tick still runs.
type Sweeper struct {
	limiter  Sweepable
	interval time.Duration
	cron     *cron.Cron
	onSweep  func(removed, remaining int)
}

func NewSweeper(limiter Sweepable, interval time.Duration, onSweep func(removed, remaining int)) *Sweeper {
	logger := cronLogger{}
	return &Sweeper{
		limiter:  limiter,
		interval: interval,
		onSweep:  onSweep,
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
	}
}

func (s *Sweeper) Start() error {
	if s.interval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", s.interval)
	}
	s.cron.Schedule(cron.Every(s.interval), cron.FuncJob(s.RunOnce))
	s.cron.Start()
	slog.Info("Rate limit sweeper started", "interval", s.interval)
	return nil
}

// Stop waits for a running sweep to finish or ctx to expire.
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		slog.Info("Rate limit sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sweeper) RunOnce() {
	removed := s.limiter.Sweep()
	remaining := s.limiter.Len()
	if removed > 0 {
		slog.Info("Rate limit windows swept", "removed", removed, "remaining", remaining)
	} else {
		slog.Debug("Rate limit sweep found nothing to remove", "remaining", remaining)
	}
	if s.onSweep != nil {
		s.onSweep(removed, remaining)
	}
}

type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
