package hooks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finsight/internal/core"
)

func TestGoals_Totals(t *testing.T) {
	store := newFakeGoalStore()
	store.goals[alice.ID] = []core.Goal{
		{ID: uuid.New(), Name: "Car", TargetAmount: core.Money{Cents: 100000}, CurrentAmount: core.Money{Cents: 25000}, Status: core.GoalInProgress},
		{ID: uuid.New(), Name: "Phone", TargetAmount: core.Money{Cents: 50000}, CurrentAmount: core.Money{Cents: 50000}, Status: core.GoalReached},
	}
	h := NewGoals(store, Options{})
	require.NoError(t, h.Start(context.Background(), alice))
	defer h.Stop()

	got := h.Totals()
	assert.Equal(t, int64(75000), got.TotalSaved.Cents)
	assert.Equal(t, int64(150000), got.TotalTarget.Cents)
}

func TestGoals_AddFunds(t *testing.T) {
	id := uuid.New()
	store := newFakeGoalStore()
	store.goals[alice.ID] = []core.Goal{
		{ID: id, Name: "Trip", TargetAmount: core.Money{Cents: 100000}, CurrentAmount: core.Money{Cents: 25000}, Status: core.GoalInProgress},
	}
	h := NewGoals(store, Options{})
	ctx := context.Background()
	require.NoError(t, h.Start(ctx, alice))
	defer h.Stop()

	require.NoError(t, h.AddFunds(ctx, id, core.Money{Cents: 5000}))

	calls := store.updateCalls()
	require.Len(t, calls, 1)
	require.NotNil(t, calls[0].patch.CurrentAmount)
	assert.Equal(t, int64(30000), calls[0].patch.CurrentAmount.Cents)
	assert.Equal(t, int64(30000), h.State().Items[0].CurrentAmount.Cents)
}

func TestGoals_AddFundsZeroAndOverdraw(t *testing.T) {
	id := uuid.New()
	store := newFakeGoalStore()
	store.goals[alice.ID] = []core.Goal{
		{ID: id, Name: "Trip", TargetAmount: core.Money{Cents: 100000}, CurrentAmount: core.Money{Cents: 25000}, Status: core.GoalInProgress},
	}
	h := NewGoals(store, Options{})
	ctx := context.Background()
	require.NoError(t, h.Start(ctx, alice))
	defer h.Stop()

	require.NoError(t, h.AddFunds(ctx, id, core.Money{}))
	calls := store.updateCalls()
	require.Len(t, calls, 1)
	require.NotNil(t, calls[0].patch.CurrentAmount)
	assert.Equal(t, int64(25000), calls[0].patch.CurrentAmount.Cents)

	err := h.AddFunds(ctx, id, core.Money{Cents: -25001})
	assert.ErrorIs(t, err, core.ErrInvalidAmount)
	assert.Len(t, store.updateCalls(), 1)
}

func TestGoals_AddFundsMissingGoal(t *testing.T) {
	store := newFakeGoalStore()
	store.goals[alice.ID] = []core.Goal{{ID: uuid.New(), Name: "Trip", TargetAmount: core.Money{Cents: 100}}}
	h := NewGoals(store, Options{})
	ctx := context.Background()
	require.NoError(t, h.Start(ctx, alice))
	defer h.Stop()
	lists := store.lists.Load()

	err := h.AddFunds(ctx, uuid.New(), core.Money{Cents: 5000})
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Empty(t, store.updateCalls())
	assert.Equal(t, lists, store.lists.Load(), "missing goal must not consult the store")
}

func TestGoals_AddFundsUnauthenticated(t *testing.T) {
	store := newFakeGoalStore()
	h := NewGoals(store, Options{})
	err := h.AddFunds(context.Background(), uuid.New(), core.Money{Cents: 1})
	assert.ErrorIs(t, err, core.ErrNotAuthenticated)
	assert.Empty(t, store.updateCalls())
}

func TestGoals_CreateStartsInProgress(t *testing.T) {
	store := newFakeGoalStore()
	h := NewGoals(store, Options{})
	ctx := context.Background()
	require.NoError(t, h.Start(ctx, alice))
	defer h.Stop()

	require.NoError(t, h.Create(ctx, core.GoalInput{Name: "Bike", TargetAmount: core.Money{Cents: 40000}}))
	items := h.State().Items
	require.Len(t, items, 1)
	assert.Equal(t, core.GoalInProgress, items[0].Status)
	assert.Equal(t, int64(0), items[0].CurrentAmount.Cents)

	assert.ErrorIs(t, h.Create(ctx, core.GoalInput{Name: " ", TargetAmount: core.Money{Cents: 1}}), core.ErrEmptyName)
}

func TestGoals_DeleteFailureNotifies(t *testing.T) {
	store := newFakeGoalStore()
	store.deleteErr = errors.New("row locked")
	notes := &recordingNotifier{}
	h := NewGoals(store, Options{Notifier: notes})
	ctx := context.Background()
	require.NoError(t, h.Start(ctx, alice))
	defer h.Stop()

	require.Error(t, h.Delete(ctx, uuid.New()))
	assert.Equal(t, []string{"row locked"}, notes.all())
}

// A fetch started for one identity must not land after switching to another.
func TestGoals_IdentityChangeDropsStaleFetch(t *testing.T) {
	store := newFakeGoalStore()
	store.goals[alice.ID] = []core.Goal{{ID: uuid.New(), Name: "alice goal", TargetAmount: core.Money{Cents: 1}}}
	store.goals[bob.ID] = []core.Goal{{ID: uuid.New(), Name: "bob goal", TargetAmount: core.Money{Cents: 1}}}
	release := make(chan struct{})
	store.block[alice.ID] = release
	store.started = make(chan uuid.UUID, 4)

	h := NewGoals(store, Options{})
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.Start(ctx, alice)
	}()
	require.Equal(t, alice.ID, <-store.started)

	require.NoError(t, h.Start(ctx, bob))
	require.Equal(t, bob.ID, <-store.started)

	close(release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("alice fetch did not return")
	}

	u, _ := h.User()
	assert.Equal(t, bob.ID, u.ID)
	items := h.State().Items
	require.Len(t, items, 1)
	assert.Equal(t, "bob goal", items[0].Name)
	h.Stop()
}
