// Package jobs runs periodic background work on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fastprodman/creditsettle/internal/infra/logging"
	"github.com/robfig/cron/v3"
)

type Job func(ctx context.Context) error

type entry struct {
	name string
	spec string
	job  Job
}

// Scheduler wraps cron with context-aware jobs. Overlapping runs of the same
// job are skipped and panics are recovered.
type Scheduler struct {
	cron    *cron.Cron
	entries []entry
	log     *slog.Logger
}

func NewScheduler() *Scheduler {
	log := logging.Component("jobs")
	cl := cronLogger{log: log}

	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log: log,
	}
}

// Add validates spec and registers job to run once Start is called.
func (s *Scheduler) Add(name, spec string, job Job) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("job %s: invalid schedule %q: %w", name, spec, err)
	}
	s.entries = append(s.entries, entry{name: name, spec: spec, job: job})
	return nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	for _, e := range s.entries {
		e := e
		_, err := s.cron.AddFunc(e.spec, func() {
			started := time.Now()
			if err := e.job(ctx); err != nil {
				s.log.Error("job failed", "job", e.name, "error", err, "duration", time.Since(started))
				return
			}
			s.log.Debug("job done", "job", e.name, "duration", time.Since(started))
		})
		if err != nil {
			return fmt.Errorf("schedule job %s: %w", e.name, err)
		}
	}

	s.cron.Start()
	s.log.Info("scheduler started", "jobs", len(s.entries))

	return nil
}

// Stop stops scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()

	select {
	case <-stopped.Done():
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for running jobs: %w", ctx.Err())
	}
}

type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}
