package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler runs jobs on cron expressions in a fixed timezone.
type Scheduler struct {
	cron    *cron.Cron
	logger  logrus.FieldLogger
	baseCtx context.Context
}

// NewScheduler creates a scheduler. Jobs receive baseCtx, so cancelling it
// aborts in-flight work.
func NewScheduler(baseCtx context.Context, loc *time.Location, logger logrus.FieldLogger) *Scheduler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// Add registers job under a standard five-field cron spec.
func (s *Scheduler) Add(name, spec string, job func(context.Context)) error {
	_, err := s.cron.AddFunc(spec, func() {
		started := time.Now()
		s.logger.WithField("job", name).Debug("Job starting")
		job(s.baseCtx)
		s.logger.WithFields(logrus.Fields{"job": name, "elapsed": time.Since(started).String()}).Debug("Job finished")
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	return nil
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int { return len(s.cron.Entries()) }

// Next returns the next activation time of every job, in registration order.
func (s *Scheduler) Next() []time.Time {
	entries := s.cron.Entries()
	out := make([]time.Time, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Next)
	}
	return out
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.logger.WithField("jobs", s.Len()).Info("Scheduler started")
	s.cron.Start()
}

// Stop halts the scheduler and waits for running jobs to return.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}

// ScheduleRunner registers the scan cycle and the standalone delivery job.
func ScheduleRunner(s *Scheduler, r *Runner, scanSpec, deliverSpec string) error {
	if err := s.Add("scan", scanSpec, r.RunCycle); err != nil {
		return err
	}
	return s.Add("deliver", deliverSpec, func(ctx context.Context) {
		if _, err := r.RunDelivery(ctx); err != nil {
			r.logger.WithError(err).Warn("Scheduled delivery failed")
		}
	})
}
