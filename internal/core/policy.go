package core

import (
	"fmt"
	"time"
)

// GoalStatusPolicy decides whether goal status follows the amounts or is
// only ever set by the caller.
type GoalStatusPolicy string

const (
	PolicyManual    GoalStatusPolicy = "manual"
	PolicyAutomatic GoalStatusPolicy = "automatic"
)

func ParseGoalStatusPolicy(s string) (GoalStatusPolicy, error) {
	switch p := GoalStatusPolicy(s); p {
	case PolicyManual, PolicyAutomatic:
		return p, nil
	case "":
		return PolicyManual, nil
	default:
		return "", fmt.Errorf("invalid goal status policy %q", s)
	}
}

// ResolveStatus returns the status to persist for g.
//
// Under PolicyManual the status is returned unchanged. Under PolicyAutomatic
// an in-progress goal becomes reached once current >= target, and missed when
// its deadline is before now's date. A reached goal whose amount drops below
// target goes back to in_progress; missed is terminal.
func ResolveStatus(policy GoalStatusPolicy, g Goal, now time.Time) GoalStatus {
	if policy != PolicyAutomatic {
		return g.Status
	}
	if g.Status == GoalMissed {
		return GoalMissed
	}
	if g.CurrentAmount.Cents >= g.TargetAmount.Cents {
		return GoalReached
	}
	if g.Deadline != nil && g.Deadline.BeforeDay(now) {
		return GoalMissed
	}
	return GoalInProgress
}
