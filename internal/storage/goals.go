package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"finsight/internal/core"
)

const selectGoal = `
SELECT id, user_id, name, target_amount_cents, current_amount_cents, deadline, status, icon, color, created_at
FROM goals`

func scanGoal(r rowScanner) (core.Goal, error) {
	var (
		g        core.Goal
		status   string
		deadline scanDate
		created  scanTime
	)
	if err := r.Scan(&g.ID, &g.UserID, &g.Name, &g.TargetAmount.Cents, &g.CurrentAmount.Cents,
		&deadline, &status, &g.Icon, &g.Color, &created); err != nil {
		return core.Goal{}, err
	}
	g.Deadline = deadline.ptr()
	g.Status = core.GoalStatus(status)
	g.CreatedAt = created.t
	return g, nil
}

func (s *Store) collectGoals(rows *sql.Rows) ([]core.Goal, error) {
	defer rows.Close()
	var out []core.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// ListGoals returns the user's goals newest first.
func (s *Store) ListGoals(ctx context.Context, userID uuid.UUID) ([]core.Goal, error) {
	rows, err := s.query(ctx, s.db, selectGoal+` WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	return s.collectGoals(rows)
}

// ListOpenGoalsDue returns in-progress goals of every user whose deadline is
// before the given date. Used by the goal sweeper.
func (s *Store) ListOpenGoalsDue(ctx context.Context, before core.Date) ([]core.Goal, error) {
	rows, err := s.query(ctx, s.db, selectGoal+`
WHERE status = 'in_progress' AND deadline IS NOT NULL AND deadline < ?
ORDER BY deadline`, before.String())
	if err != nil {
		return nil, fmt.Errorf("list due goals: %w", err)
	}
	return s.collectGoals(rows)
}

func (s *Store) GetGoal(ctx context.Context, userID, id uuid.UUID) (core.Goal, error) {
	g, err := scanGoal(s.queryRow(ctx, s.db, selectGoal+` WHERE user_id = ? AND id = ?`, userID, id))
	if err != nil {
		return core.Goal{}, notFound(err)
	}
	return g, nil
}

// CreateGoal always stores the goal as in_progress.
func (s *Store) CreateGoal(ctx context.Context, userID uuid.UUID, in core.GoalInput) (core.Goal, error) {
	if err := in.Validate(); err != nil {
		return core.Goal{}, err
	}
	id := uuid.New()
	_, now := s.timestamp()
	_, err := s.exec(ctx, s.db, `
INSERT INTO goals (id, user_id, name, target_amount_cents, current_amount_cents, deadline, status, icon, color, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, userID, in.Name, in.TargetAmount.Cents, in.CurrentAmount.Cents, nullableDate(in.Deadline),
		string(core.GoalInProgress), in.Icon, in.Color, now)
	if err != nil {
		return core.Goal{}, fmt.Errorf("insert goal: %w", err)
	}
	return s.GetGoal(ctx, userID, id)
}

// UpdateGoal applies a partial update to the user's goal. The resolve
// callback, when set, may rewrite the status of the patched goal before it
// is written.
func (s *Store) UpdateGoal(ctx context.Context, userID, id uuid.UUID, patch core.GoalPatch) (core.Goal, error) {
	return s.UpdateGoalWith(ctx, userID, id, patch, nil)
}

func (s *Store) UpdateGoalWith(ctx context.Context, userID, id uuid.UUID, patch core.GoalPatch, resolve func(core.Goal) core.GoalStatus) (core.Goal, error) {
	if err := patch.Validate(); err != nil {
		return core.Goal{}, err
	}
	var updated core.Goal
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		cur, err := scanGoal(s.queryRow(ctx, tx, selectGoal+` WHERE user_id = ? AND id = ?`, userID, id))
		if err != nil {
			return notFound(err)
		}
		next := patch.Apply(cur)
		if resolve != nil {
			next.Status = resolve(next)
		}
		res, err := s.exec(ctx, tx, `
UPDATE goals
SET name = ?, target_amount_cents = ?, current_amount_cents = ?, deadline = ?, status = ?, icon = ?, color = ?
WHERE id = ? AND user_id = ?`,
			next.Name, next.TargetAmount.Cents, next.CurrentAmount.Cents, nullableDate(next.Deadline),
			string(next.Status), next.Icon, next.Color, id, userID)
		if err != nil {
			return fmt.Errorf("update goal: %w", err)
		}
		if err := mustAffect(res); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return core.Goal{}, err
	}
	return updated, nil
}

func (s *Store) DeleteGoal(ctx context.Context, userID, id uuid.UUID) error {
	res, err := s.exec(ctx, s.db, `DELETE FROM goals WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	return mustAffect(res)
}
