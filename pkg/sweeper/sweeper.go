// Package sweeper periodically retries approver resolution for instances that
// blocked mid-flight on an empty approver set.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/approvio/approvio/pkg/engine"
	"github.com/approvio/approvio/pkg/persistence"
	"github.com/robfig/cron/v3"
)

// DefaultSchedule re-checks blocked instances every minute.
const DefaultSchedule = "* * * * *"

// Sweeper walks blocked instances on a cron schedule and asks the runtime to
// resume each one. Instances stay blocked until a membership change makes the
// approver set non-empty; resuming is idempotent.
type Sweeper struct {
	runtime     *engine.Runtime
	persistence persistence.Persistence
	logger      *slog.Logger
	cron        *cron.Cron
}

// NewSweeper creates a sweeper bound to the runtime and store.
func NewSweeper(runtime *engine.Runtime, p persistence.Persistence, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		runtime:     runtime,
		persistence: p,
		logger:      logger,
		cron:        cron.New(),
	}
}

// Start schedules the sweep and begins running it in the background.
func (s *Sweeper) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	_, err := s.cron.AddFunc(schedule, func() {
		s.Sweep(context.Background())
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	s.cron.Start()
	s.logger.Info("blocked-instance sweeper started", "schedule", schedule)

	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("blocked-instance sweeper stopped")
}

// Sweep retries resolution for every blocked instance once.
func (s *Sweeper) Sweep(ctx context.Context) {
	blocked, err := s.persistence.InstanceRepository().ListBlocked(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list blocked instances", "error", err)

		return
	}

	if len(blocked) == 0 {
		return
	}

	s.logger.InfoContext(ctx, "sweeping blocked instances", "count", len(blocked))

	for _, instance := range blocked {
		resumed, err := s.runtime.ResumeBlocked(ctx, instance.ID)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to resume blocked instance",
				"instance_id", instance.ID, "error", err)

			continue
		}

		if !resumed.IsBlocked() {
			s.logger.InfoContext(ctx, "instance unblocked",
				"instance_id", instance.ID, "current_step", resumed.CurrentStep)
		}
	}
}
