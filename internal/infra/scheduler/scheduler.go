package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// TriggerFunc runs one reconciliation. It is invoked from the cron goroutine.
type TriggerFunc func(ctx context.Context)

// RunScheduler fires the reconciliation run on a cron schedule.
type RunScheduler struct {
	cronEngine *cron.Cron
	spec       string
	timeout    time.Duration
	trigger    TriggerFunc
	logger     *logrus.Entry
}

func NewRunScheduler(spec string, loc *time.Location, timeout time.Duration, trigger TriggerFunc, logger *logrus.Entry) *RunScheduler {
	if loc == nil {
		loc = time.Local
	}
	return &RunScheduler{
		// Overlapping fires are skipped rather than queued.
		cronEngine: cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		spec:       spec,
		timeout:    timeout,
		trigger:    trigger,
		logger:     logger.WithField("component", "scheduler"),
	}
}

func (s *RunScheduler) Start() error {
	s.logger.Infof("Starting run scheduler with spec %q", s.spec)

	_, err := s.cronEngine.AddFunc(s.spec, func() {
		s.logger.Info("Cron job triggered for reconciliation run.")
		ctx := context.Background()
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
		s.trigger(ctx)
	})
	if err != nil {
		return fmt.Errorf("could not add reconciliation cron job: %w", err)
	}

	s.cronEngine.Start()
	s.logger.Info("Run scheduler started.")
	return nil
}

// Next returns the next scheduled fire time, or zero if not started.
func (s *RunScheduler) Next() time.Time {
	entries := s.cronEngine.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *RunScheduler) Stop() {
	s.logger.Info("Stopping run scheduler...")
	ctx := s.cronEngine.Stop() // waits for running jobs
	<-ctx.Done()
	s.logger.Info("Run scheduler gracefully stopped.")
}
