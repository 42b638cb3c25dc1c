package services

import (
	"context"
	"fmt"
	"time"

	"finsight/internal/core"
	"finsight/internal/log"
)

// GoalSweeper marks in-progress goals whose deadline has passed as missed.
// It only acts under the automatic status policy.
type GoalSweeper struct {
	finance *Finance
	logger  *log.Logger
}

func NewGoalSweeper(finance *Finance, logger *log.Logger) *GoalSweeper {
	if logger == nil {
		logger = log.Discard()
	}
	return &GoalSweeper{finance: finance, logger: logger.WithComponent(log.ComponentGoals)}
}

// Sweep processes all goals due before now's date and returns how many it
// changed.
func (s *GoalSweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	if s.finance == nil {
		return 0, fmt.Errorf("sweeper not properly initialized")
	}
	if s.finance.policy != core.PolicyAutomatic {
		return 0, nil
	}

	due, err := s.finance.store.ListOpenGoalsDue(ctx, core.DateOf(now))
	if err != nil {
		return 0, fmt.Errorf("failed to list due goals: %w", err)
	}

	s.logger.InfoContext(ctx, "Sweeping goals",
		log.FieldOperation, log.OpSweep,
		log.FieldCount, len(due),
		"sweep_date", now.Format(core.DateLayout))

	changed := 0
	for _, g := range due {
		resolve := func(cur core.Goal) core.GoalStatus {
			return core.ResolveStatus(core.PolicyAutomatic, cur, now)
		}
		updated, err := s.finance.store.UpdateGoalWith(ctx, g.UserID, g.ID, core.GoalPatch{}, resolve)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to resolve goal status",
				log.FieldRecordID, g.ID.String(),
				log.FieldUserID, g.UserID.String(),
				log.FieldError, err.Error())
			continue
		}
		if updated.Status == g.Status {
			continue
		}
		changed++
		s.finance.publish(ctx, core.TableGoals, core.ChangeUpdate, g.ID, g.UserID)
		s.logger.InfoContext(ctx, "Goal status changed",
			log.FieldRecordID, g.ID.String(),
			log.FieldUserID, g.UserID.String(),
			"status", string(updated.Status))
	}

	s.logger.InfoContext(ctx, "Goal sweep complete",
		"changed", changed,
		"total_checked", len(due))
	return changed, nil
}

// Run sweeps once immediately and then every interval until ctx is done.
func (s *GoalSweeper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	sweep := func() {
		if _, err := s.Sweep(ctx, time.Now()); err != nil && ctx.Err() == nil {
			s.logger.ErrorContext(ctx, "Goal sweep failed", log.FieldError, err.Error())
		}
	}
	sweep()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}
