package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/kohakuhq/kohaku/internal/server/scheduler"
	"github.com/kohakuhq/kohaku/internal/server/store"
)

const (
	// DefaultStaleAfter is how long a notification code may go unused
	// before housekeeping prunes it and its subscriptions.
	DefaultStaleAfter = 60 * 24 * time.Hour

	// defaultHousekeepingCron fires daily at 03:00.
	defaultHousekeepingCron = "0 0 3 * * *"
)

// HousekeepingService prunes notification codes that have gone unused,
// keeping the code table from accumulating abandoned integrations.
type HousekeepingService struct {
	Store      store.Store
	Logger     *slog.Logger
	StaleAfter time.Duration
	Expression string

	handle scheduler.JobHandle
}

// Start registers the pruning job with the scheduler. Defaults apply
// when StaleAfter or Expression are unset.
func (s *HousekeepingService) Start(sched *scheduler.Scheduler) error {
	if s.StaleAfter <= 0 {
		s.StaleAfter = DefaultStaleAfter
	}
	if s.Expression == "" {
		s.Expression = defaultHousekeepingCron
	}

	handle, err := sched.Schedule(s.Expression, false, s.Prune)
	if err != nil {
		return err
	}
	s.handle = handle

	s.Logger.Info("housekeeping scheduled",
		"expression", s.Expression,
		"stale_after", s.StaleAfter,
	)
	return nil
}

// Stop cancels the scheduled job.
func (s *HousekeepingService) Stop() {
	s.handle.Cancel()
}

// Prune deletes codes unused past the staleness cutoff. Subscriptions
// cascade with their code.
func (s *HousekeepingService) Prune() {
	ctx := context.Background()
	cutoff := time.Now().UTC().Add(-s.StaleAfter)

	n, err := s.Store.NotificationCodes().DeleteStaleCodes(ctx, cutoff)
	if err != nil {
		s.Logger.Error("failed to prune stale notification codes", "error", err)
		return
	}
	if n > 0 {
		s.Logger.Info("pruned stale notification codes", "count", n)
	}
}
