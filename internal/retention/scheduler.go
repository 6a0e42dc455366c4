package retention

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler runs retention on a fixed interval.
type Scheduler struct {
	managers []*Manager
	interval time.Duration
	maxAge   time.Duration
	sweepDir string
	patterns []string
	now      func() time.Time
	logger   *slog.Logger
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSweep also sweeps dir for expired files matching patterns.
// Nil patterns use DefaultSweepPatterns.
func WithSweep(dir string, patterns []string) SchedulerOption {
	return func(s *Scheduler) {
		s.sweepDir = dir
		if patterns != nil {
			s.patterns = patterns
		}
	}
}

// WithSchedulerClock sets the time source.
func WithSchedulerClock(fn func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		s.now = fn
	}
}

// WithSchedulerLogger sets the logger.
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// NewScheduler returns a scheduler purging managers every interval.
func NewScheduler(managers []*Manager, interval, maxAge time.Duration, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		managers: managers,
		interval: interval,
		maxAge:   maxAge,
		patterns: DefaultSweepPatterns,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run purges once immediately and then on every tick until ctx is done.
// It returns nil when ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce purges every target and sweeps the artifact directory once.
// Errors are logged; one failing target does not stop the others.
func (s *Scheduler) RunOnce(ctx context.Context) {
	now := s.now()
	for _, m := range s.managers {
		if ctx.Err() != nil {
			return
		}
		res, err := m.Purge(ctx, now, s.maxAge)
		if err != nil {
			s.logger.Error("retention purge failed", "target", m.Target(), "error", err)
			continue
		}
		for _, rerr := range res.Errors {
			s.logger.Warn("retention error", "target", m.Target(), "error", rerr)
		}
	}
	if s.sweepDir != "" {
		if n, errs := SweepArtifacts(s.sweepDir, s.patterns, now, s.maxAge, s.logger); n > 0 || len(errs) > 0 {
			s.logger.Info("artifact sweep", "deleted", n, "errors", len(errs))
		}
	}
}
