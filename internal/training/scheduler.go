package training

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/tradeyard/riskcore/internal/metrics"
	"github.com/tradeyard/riskcore/internal/outcomes"
)

// Scheduler drives periodic retraining: a weekly light refresh, a monthly
// full refresh over a wider outcome window, and an unscheduled run
// whenever live prediction accuracy drops below the alert threshold.
type Scheduler struct {
	trainer  *Trainer
	outcomes outcomes.Store
	cfg      Config
	logger   *slog.Logger
	stop     chan struct{}

	mu        sync.Mutex
	lastLight time.Time
	lastFull  time.Time
}

// NewScheduler creates a retraining scheduler.
func NewScheduler(trainer *Trainer, store outcomes.Store, cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		trainer:  trainer,
		outcomes: store,
		cfg:      cfg,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Start begins the scheduling loop. Call in a goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Stop signals the scheduler to stop.
func (s *Scheduler) Stop() {
	select {
	case s.stop <- struct{}{}:
	default:
	}
}

// RetrainNow triggers an immediate retraining run. full widens the
// collection window to the full-refresh horizon. Administrative use.
func (s *Scheduler) RetrainNow(ctx context.Context, full bool) error {
	window := s.cfg.LightWindow
	if full {
		window = s.cfg.FullWindow
	}
	_, err := s.trainer.Retrain(ctx, window)
	if err == nil {
		s.markRun(full)
	}
	return err
}

func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now()

	// Live accuracy first: a drop below the alert threshold forces an
	// unscheduled refresh regardless of cadence.
	acc, n, err := s.liveAccuracy(ctx)
	if err != nil {
		s.logger.Warn("live accuracy check failed", "error", err)
	} else if n > 0 {
		metrics.LiveAccuracy.Set(acc)
		if acc < s.cfg.AccuracyAlert {
			s.logger.Warn("live prediction accuracy below threshold, retraining",
				"accuracy", acc, "threshold", s.cfg.AccuracyAlert, "samples", n)
			s.run(ctx, false)
			return
		}
	}

	s.mu.Lock()
	dueFull := now.Sub(s.lastFull) >= s.cfg.FullInterval
	dueLight := now.Sub(s.lastLight) >= s.cfg.LightInterval
	s.mu.Unlock()

	switch {
	case dueFull:
		s.run(ctx, true)
	case dueLight:
		s.run(ctx, false)
	}
}

func (s *Scheduler) run(ctx context.Context, full bool) {
	err := s.RetrainNow(ctx, full)
	switch {
	case err == nil:
	case errors.Is(err, ErrInsufficientData), errors.Is(err, ErrAccuracyRegression):
		// Already logged by the trainer; previous snapshot stays active.
		// Mark the cadence anyway so a sparse window does not retry on
		// every tick.
		s.markRun(full)
	default:
		s.logger.Error("retraining run failed", "error", err, "full", full)
	}
}

func (s *Scheduler) markRun(full bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.lastLight = now
	if full {
		s.lastFull = now
	}
}

// liveAccuracy measures how often recorded predictions agreed with the
// settlement outcomes in the trailing accuracy window.
func (s *Scheduler) liveAccuracy(ctx context.Context) (float64, int, error) {
	now := time.Now()
	records, err := s.outcomes.ListWindow(ctx, now.Add(-s.cfg.AccuracyWindow), now)
	if err != nil {
		return 0, 0, err
	}
	return outcomes.Accuracy(records), len(records), nil
}
