package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"finsight/internal/core"
	"finsight/internal/log"
)

// Store is the scoped table store the API writes through.
type Store interface {
	ListTransactions(ctx context.Context, userID uuid.UUID) ([]core.Transaction, error)
	GetTransaction(ctx context.Context, userID, id uuid.UUID) (core.Transaction, error)
	CreateTransaction(ctx context.Context, userID uuid.UUID, in core.TransactionInput) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, userID, id uuid.UUID) error
	ListCategories(ctx context.Context, userID uuid.UUID) ([]core.Category, error)

	ListGoals(ctx context.Context, userID uuid.UUID) ([]core.Goal, error)
	ListOpenGoalsDue(ctx context.Context, before core.Date) ([]core.Goal, error)
	GetGoal(ctx context.Context, userID, id uuid.UUID) (core.Goal, error)
	CreateGoal(ctx context.Context, userID uuid.UUID, in core.GoalInput) (core.Goal, error)
	UpdateGoalWith(ctx context.Context, userID, id uuid.UUID, patch core.GoalPatch, resolve func(core.Goal) core.GoalStatus) (core.Goal, error)
	DeleteGoal(ctx context.Context, userID, id uuid.UUID) error

	GetProfile(ctx context.Context, userID uuid.UUID) (core.Profile, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, patch core.ProfilePatch) (core.Profile, error)
}

// Publisher fans a change event out to realtime subscribers.
type Publisher interface {
	Publish(ctx context.Context, ev core.ChangeEvent) error
}

// Summary is the server-side dashboard aggregate.
type Summary struct {
	Totals     core.Totals           `json:"totals"`
	Categories []core.CategoryAmount `json:"categories"`
	Goals      core.GoalTotals       `json:"goals"`
	Monthly    []core.MonthTotals    `json:"monthly"`
}

// Finance orchestrates writes across the store and the change feed. The
// store write is authoritative and publishing is best effort.
type Finance struct {
	store     Store
	publisher Publisher
	policy    core.GoalStatusPolicy
	now       func() time.Time
	logger    *log.Logger
}

func NewFinance(store Store, publisher Publisher, policy core.GoalStatusPolicy, logger *log.Logger) *Finance {
	if logger == nil {
		logger = log.Discard()
	}
	if policy == "" {
		policy = core.PolicyManual
	}
	return &Finance{
		store:     store,
		publisher: publisher,
		policy:    policy,
		now:       time.Now,
		logger:    logger.WithComponent(log.ComponentApp),
	}
}

func (f *Finance) Policy() core.GoalStatusPolicy { return f.policy }

func (f *Finance) ListTransactions(ctx context.Context, userID uuid.UUID) ([]core.Transaction, error) {
	return f.store.ListTransactions(ctx, userID)
}

func (f *Finance) ListCategories(ctx context.Context, userID uuid.UUID) ([]core.Category, error) {
	return f.store.ListCategories(ctx, userID)
}

func (f *Finance) CreateTransaction(ctx context.Context, userID uuid.UUID, in core.TransactionInput) (core.Transaction, error) {
	tx, err := f.store.CreateTransaction(ctx, userID, in)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}
	f.publish(ctx, core.TableTransactions, core.ChangeInsert, tx.ID, userID)
	return tx, nil
}

func (f *Finance) DeleteTransaction(ctx context.Context, userID, id uuid.UUID) error {
	if err := f.store.DeleteTransaction(ctx, userID, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	f.publish(ctx, core.TableTransactions, core.ChangeDelete, id, userID)
	return nil
}

func (f *Finance) ListGoals(ctx context.Context, userID uuid.UUID) ([]core.Goal, error) {
	return f.store.ListGoals(ctx, userID)
}

// CreateGoal stores the goal as in_progress. Under the automatic policy a
// goal created already funded is immediately marked reached.
func (f *Finance) CreateGoal(ctx context.Context, userID uuid.UUID, in core.GoalInput) (core.Goal, error) {
	g, err := f.store.CreateGoal(ctx, userID, in)
	if err != nil {
		return core.Goal{}, fmt.Errorf("save goal: %w", err)
	}
	if status := core.ResolveStatus(f.policy, g, f.now()); status != g.Status {
		g, err = f.store.UpdateGoalWith(ctx, userID, g.ID, core.GoalPatch{Status: &status}, nil)
		if err != nil {
			return core.Goal{}, fmt.Errorf("resolve goal status: %w", err)
		}
	}
	f.publish(ctx, core.TableGoals, core.ChangeInsert, g.ID, userID)
	return g, nil
}

func (f *Finance) UpdateGoal(ctx context.Context, userID, id uuid.UUID, patch core.GoalPatch) (core.Goal, error) {
	g, err := f.store.UpdateGoalWith(ctx, userID, id, patch, f.resolver(patch))
	if err != nil {
		return core.Goal{}, fmt.Errorf("update goal: %w", err)
	}
	f.publish(ctx, core.TableGoals, core.ChangeUpdate, id, userID)
	return g, nil
}

// AddFunds adds delta to the goal's current amount.
func (f *Finance) AddFunds(ctx context.Context, userID, id uuid.UUID, delta core.Money) (core.Goal, error) {
	if err := delta.Validate(); err != nil {
		return core.Goal{}, err
	}
	cur, err := f.store.GetGoal(ctx, userID, id)
	if err != nil {
		return core.Goal{}, err
	}
	amount := cur.CurrentAmount.Add(delta)
	return f.UpdateGoal(ctx, userID, id, core.GoalPatch{CurrentAmount: &amount})
}

func (f *Finance) DeleteGoal(ctx context.Context, userID, id uuid.UUID) error {
	if err := f.store.DeleteGoal(ctx, userID, id); err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	f.publish(ctx, core.TableGoals, core.ChangeDelete, id, userID)
	return nil
}

func (f *Finance) GetProfile(ctx context.Context, userID uuid.UUID) (core.Profile, error) {
	return f.store.GetProfile(ctx, userID)
}

func (f *Finance) UpdateProfile(ctx context.Context, userID uuid.UUID, patch core.ProfilePatch) (core.Profile, error) {
	p, err := f.store.UpdateProfile(ctx, userID, patch)
	if err != nil {
		return core.Profile{}, fmt.Errorf("update profile: %w", err)
	}
	f.publish(ctx, core.TableProfiles, core.ChangeUpdate, userID, userID)
	return p, nil
}

func (f *Finance) Summary(ctx context.Context, userID uuid.UUID) (Summary, error) {
	txs, err := f.store.ListTransactions(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	goals, err := f.store.ListGoals(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	cats := core.CategoryBreakdown(txs)
	if cats == nil {
		cats = []core.CategoryAmount{}
	}
	monthly := core.MonthlySeries(txs)
	if monthly == nil {
		monthly = []core.MonthTotals{}
	}
	return Summary{
		Totals:     core.ComputeTotals(txs),
		Categories: cats,
		Goals:      core.ComputeGoalTotals(goals),
		Monthly:    monthly,
	}, nil
}

// resolver returns the status callback for a patch. An explicit status in
// the patch always wins; otherwise the policy decides.
func (f *Finance) resolver(patch core.GoalPatch) func(core.Goal) core.GoalStatus {
	if patch.Status != nil || f.policy != core.PolicyAutomatic {
		return nil
	}
	now := f.now()
	return func(g core.Goal) core.GoalStatus {
		return core.ResolveStatus(f.policy, g, now)
	}
}

func (f *Finance) publish(ctx context.Context, table string, typ core.ChangeType, recordID, userID uuid.UUID) {
	if f.publisher == nil {
		return
	}
	ev := core.ChangeEvent{Table: table, Type: typ, RecordID: recordID, UserID: userID, At: f.now().UTC()}
	if err := f.publisher.Publish(ctx, ev); err != nil {
		// Subscribers catch up on their next refetch.
		f.logger.ErrorContext(ctx, "Failed to publish change",
			log.NewFields().WithChange(table, string(typ), recordID.String()).WithUser(userID).WithError(err).ToSlice()...)
		return
	}
	log.NewStructuredLogger(f.logger).LogChange(ctx, table, string(typ), recordID.String(), log.NewFields().WithUser(userID))
}
