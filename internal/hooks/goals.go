package hooks

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"finsight/internal/core"
	"finsight/internal/log"
)

type Goals struct {
	*Resource[[]core.Goal]
	store GoalStore
}

func NewGoals(store GoalStore, opts Options) *Goals {
	h := &Goals{store: store}
	h.Resource = NewResource("goals", store.ListGoals, opts, core.TableGoals)
	return h
}

// Create inserts a goal. The store always starts it in_progress.
func (h *Goals) Create(ctx context.Context, in core.GoalInput) error {
	ctx, done, user, gen, err := h.begin(ctx)
	if err != nil {
		return err
	}
	defer done()
	if err := in.Validate(); err != nil {
		return err
	}
	if _, err := h.store.CreateGoal(ctx, user.ID, in); err != nil {
		return err
	}
	_ = h.fetchGen(ctx, gen)
	return nil
}

func (h *Goals) Update(ctx context.Context, id uuid.UUID, patch core.GoalPatch) error {
	ctx, done, user, gen, err := h.begin(ctx)
	if err != nil {
		return err
	}
	defer done()
	if err := patch.Validate(); err != nil {
		return err
	}
	if _, err := h.store.UpdateGoal(ctx, user.ID, id, patch); err != nil {
		return err
	}
	_ = h.fetchGen(ctx, gen)
	return nil
}

func (h *Goals) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, done, user, gen, err := h.begin(ctx)
	if err != nil {
		return err
	}
	defer done()
	if err := h.store.DeleteGoal(ctx, user.ID, id); err != nil {
		h.logger.WarnContext(ctx, "Delete failed", log.NewFields().WithOperation(log.OpDelete).WithError(err).ToSlice()...)
		h.opts.Notifier.Notify(LevelError, errorMessage(err))
		return err
	}
	_ = h.fetchGen(ctx, gen)
	return nil
}

// AddFunds sets current_amount to the locally held amount plus delta. The
// goal is looked up in the held list only; if it is not there the call fails
// with core.ErrNotFound without contacting the store. A zero delta still
// writes the held amount back. A delta that would leave the goal negative
// fails with core.ErrInvalidAmount.
func (h *Goals) AddFunds(ctx context.Context, id uuid.UUID, delta core.Money) error {
	if _, ok := h.User(); !ok {
		return core.ErrNotAuthenticated
	}
	var goal *core.Goal
	for _, g := range h.State().Items {
		if g.ID == id {
			g := g
			goal = &g
			break
		}
	}
	if goal == nil {
		return fmt.Errorf("goal %s: %w", id, core.ErrNotFound)
	}
	next := goal.CurrentAmount.Add(delta)
	if next.Cents < 0 {
		return core.ErrInvalidAmount
	}
	return h.Update(ctx, id, core.GoalPatch{CurrentAmount: &next})
}

func (h *Goals) Totals() core.GoalTotals {
	return core.ComputeGoalTotals(h.State().Items)
}
