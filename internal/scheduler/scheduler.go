// Package scheduler wraps gocron to fire one Backup per registered cadence.
// Grounded on arkeep's server/internal/scheduler:
// one gocron job per entity, tagged by name, running in singleton mode so a
// slow tick never overlaps itself — the same shape, retargeted from
// policy-dispatch-to-a-remote-agent onto a direct, in-process pipeline.Run
// call, since this daemon has no agent fleet to dispatch to.
package scheduler

import (
	"context"
	"fmt"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/galeone/bacup/internal/cadence"
	"github.com/galeone/bacup/internal/pipeline"
)

// Scheduler owns the gocron singleton and the pipeline that runs each
// backup's tick.
type Scheduler struct {
	cron     gocron.Scheduler
	pipeline *pipeline.Pipeline
	logger   *zap.Logger
}

// New creates a Scheduler. Call Start once every backup has been registered.
func New(p *pipeline.Pipeline, logger *zap.Logger) (*Scheduler, error) {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("scheduler: creating gocron scheduler: %w", err)
	}
	return &Scheduler{cron: cron, pipeline: p, logger: logger.Named("scheduler")}, nil
}

// Register parses when into a cron expression and adds b as a singleton-mode
// gocron job tagged by its name. A misfire while the previous tick for this
// backup is still running is dropped, not queued, per spec.md §4.6/§5 — that
// is exactly gocron's LimitModeReschedule singleton behavior.
func (s *Scheduler) Register(b pipeline.Backup, when string) error {
	expr, err := cadence.Parse(when)
	if err != nil {
		return fmt.Errorf("scheduler: backup %q: invalid cadence %q: %w", b.Name, when, err)
	}

	_, err = s.cron.NewJob(
		gocron.CronJob(expr.CronSix(), true),
		gocron.NewTask(func(backup pipeline.Backup) {
			s.pipeline.Run(context.Background(), backup)
		}, b),
		gocron.WithName(b.Name),
		gocron.WithTags(b.Name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("scheduler: backup %q: gocron.NewJob failed (cron %q): %w", b.Name, expr.CronSix(), err)
	}

	s.logger.Info("backup registered",
		zap.String("backup", b.Name),
		zap.String("cadence", when),
		zap.String("cron", expr.CronSix()),
	)
	return nil
}

// Start begins firing registered jobs. Non-blocking: gocron runs its own
// ticking goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop shuts the scheduler down, waiting for in-flight job functions to
// return before returning itself.
func (s *Scheduler) Stop() error {
	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("scheduler: shutdown: %w", err)
	}
	s.logger.Info("scheduler stopped")
	return nil
}
