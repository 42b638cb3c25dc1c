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

func scenarioTransactions() []core.Transaction {
	food := core.Category{ID: uuid.New(), Name: "Food", Type: core.Expense}
	return []core.Transaction{
		{ID: uuid.New(), Amount: core.Money{Cents: 4000}, Type: core.Expense, Date: core.NewDate(2024, 3, 2), CategoryID: &food.ID, Category: &food},
		{ID: uuid.New(), Amount: core.Money{Cents: 10000}, Type: core.Income, Date: core.NewDate(2024, 3, 1)},
	}
}

func TestTransactions_NoUser(t *testing.T) {
	store := &fakeTxStore{txs: scenarioTransactions()}
	h := NewTransactions(store, Options{})
	ctx := context.Background()

	require.NoError(t, h.Fetch(ctx))
	assert.Equal(t, int32(0), store.lists.Load(), "fetch without user must not reach the store")
	assert.Empty(t, h.State().Items.Transactions)

	err := h.Create(ctx, core.TransactionInput{Amount: core.Money{Cents: 100}, Type: core.Income, Date: core.NewDate(2024, 1, 1)})
	assert.ErrorIs(t, err, core.ErrNotAuthenticated)
	assert.Equal(t, int32(0), store.creates.Load())

	assert.ErrorIs(t, h.Delete(ctx, uuid.New()), core.ErrNotAuthenticated)
	assert.Equal(t, int32(0), store.deletes.Load())
}

func TestTransactions_StartAndTotals(t *testing.T) {
	store := &fakeTxStore{
		txs:  scenarioTransactions(),
		cats: []core.Category{{ID: uuid.New(), Name: "Food", Type: core.Expense}},
	}
	h := NewTransactions(store, Options{})
	require.NoError(t, h.Start(context.Background(), alice))
	defer h.Stop()

	st := h.State()
	assert.False(t, st.Loading)
	assert.Len(t, st.Items.Transactions, 2)
	assert.Len(t, st.Items.Categories, 1)

	assert.Equal(t, core.Totals{
		Income:   core.Money{Cents: 10000},
		Expenses: core.Money{Cents: 4000},
		Savings:  core.Money{Cents: 6000},
	}, h.Totals())

	bd := h.CategoryBreakdown()
	require.Len(t, bd, 1)
	assert.Equal(t, "Food", bd[0].Name)
	assert.Equal(t, int64(4000), bd[0].Amount.Cents)
}

func TestTransactions_FetchIsIdempotent(t *testing.T) {
	store := &fakeTxStore{txs: scenarioTransactions()}
	h := NewTransactions(store, Options{})
	ctx := context.Background()
	require.NoError(t, h.Start(ctx, alice))
	defer h.Stop()

	require.NoError(t, h.Fetch(ctx))
	first := h.State()
	require.NoError(t, h.Fetch(ctx))
	assert.Equal(t, first, h.State())
}

func TestTransactions_FetchErrorKeepsState(t *testing.T) {
	store := &fakeTxStore{txs: scenarioTransactions()}
	notes := &recordingNotifier{}
	h := NewTransactions(store, Options{Notifier: notes})
	ctx := context.Background()
	require.NoError(t, h.Start(ctx, alice))
	defer h.Stop()
	before := h.State()

	store.mu.Lock()
	store.listErr = &core.APIError{Status: 500, Message: "database unavailable"}
	store.mu.Unlock()

	err := h.Fetch(ctx)
	require.Error(t, err)
	assert.Equal(t, before, h.State())
	assert.False(t, h.State().Loading)
	assert.Equal(t, []string{"database unavailable"}, notes.all())
}

func TestTransactions_CreateRefetches(t *testing.T) {
	store := &fakeTxStore{}
	h := NewTransactions(store, Options{})
	ctx := context.Background()
	require.NoError(t, h.Start(ctx, alice))
	defer h.Stop()

	in := core.TransactionInput{Amount: core.Money{Cents: 2500}, Type: core.Expense, Date: core.NewDate(2024, 4, 1)}
	require.NoError(t, h.Create(ctx, in))
	assert.Equal(t, int32(2), store.lists.Load())
	require.Len(t, h.State().Items.Transactions, 1)
	assert.Equal(t, int64(2500), h.Totals().Expenses.Cents)
}

func TestTransactions_CreateFailureLeavesState(t *testing.T) {
	store := &fakeTxStore{txs: scenarioTransactions(), createErr: errors.New("insert rejected")}
	notes := &recordingNotifier{}
	h := NewTransactions(store, Options{Notifier: notes})
	ctx := context.Background()
	require.NoError(t, h.Start(ctx, alice))
	defer h.Stop()
	before := h.State()

	err := h.Create(ctx, core.TransactionInput{Amount: core.Money{Cents: 1}, Type: core.Income, Date: core.NewDate(2024, 1, 1)})
	assert.EqualError(t, err, "insert rejected")
	assert.Equal(t, before, h.State())
	assert.Equal(t, int32(1), store.lists.Load(), "no resync after a failed create")
	assert.Empty(t, notes.all(), "create failures are returned, not notified")
}

func TestTransactions_DeleteFailureNotifies(t *testing.T) {
	store := &fakeTxStore{txs: scenarioTransactions(), deleteErr: errors.New("permission denied")}
	notes := &recordingNotifier{}
	h := NewTransactions(store, Options{Notifier: notes})
	ctx := context.Background()
	require.NoError(t, h.Start(ctx, alice))
	defer h.Stop()

	err := h.Delete(ctx, store.txs[0].ID)
	require.Error(t, err)
	assert.Equal(t, []string{"permission denied"}, notes.all())
	assert.Equal(t, int32(1), store.lists.Load())
}

func TestTransactions_ChangeEventsAreDebounced(t *testing.T) {
	store := &fakeTxStore{txs: scenarioTransactions()}
	feed := &fakeFeed{}
	h := NewTransactions(store, Options{Feed: feed, Debounce: 30 * time.Millisecond})
	require.NoError(t, h.Start(context.Background(), alice))
	defer h.Stop()
	require.Equal(t, int32(1), store.lists.Load())

	sub := feed.last()
	require.NotNil(t, sub)
	for i := 0; i < 5; i++ {
		sub.ch <- core.ChangeEvent{Table: core.TableTransactions, Type: core.ChangeInsert, UserID: alice.ID}
	}

	assert.Eventually(t, func() bool { return store.lists.Load() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(2), store.lists.Load(), "a burst must produce a single refetch")
}

func TestTransactions_StopClosesSubscription(t *testing.T) {
	store := &fakeTxStore{}
	feed := &fakeFeed{}
	h := NewTransactions(store, Options{Feed: feed, Debounce: 10 * time.Millisecond})
	require.NoError(t, h.Start(context.Background(), alice))

	sub := feed.last()
	h.Stop()
	assert.True(t, sub.closed.Load())

	_, ok := h.User()
	assert.False(t, ok)

	select {
	case sub.ch <- core.ChangeEvent{Table: core.TableTransactions, Type: core.ChangeDelete, UserID: alice.ID}:
	default:
	}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), store.lists.Load(), "events after Stop must not refetch")
}

func TestTransactions_ResubscribesWhenFeedCloses(t *testing.T) {
	store := &fakeTxStore{txs: scenarioTransactions()}
	feed := &fakeFeed{}
	notes := &recordingNotifier{}
	h := NewTransactions(store, Options{Feed: feed, Notifier: notes, Debounce: 5 * time.Millisecond, ReconnectDelay: 5 * time.Millisecond})
	require.NoError(t, h.Start(context.Background(), alice))
	defer h.Stop()
	require.Equal(t, int32(1), store.lists.Load())

	first := feed.last()
	close(first.ch)

	require.Eventually(t, func() bool { return feed.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, first.closed.Load())
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"Live updates interrupted, reconnecting", "Live updates restored"}, notes.all())
	}, time.Second, 5*time.Millisecond)
	// the restored feed refetches once to pick up missed changes
	require.Eventually(t, func() bool { return store.lists.Load() == 2 }, time.Second, 5*time.Millisecond)

	feed.last().ch <- core.ChangeEvent{Table: core.TableTransactions, Type: core.ChangeInsert, UserID: alice.ID}
	assert.Eventually(t, func() bool { return store.lists.Load() == 3 }, time.Second, 5*time.Millisecond)
}

func TestTransactions_StopEndsReconnect(t *testing.T) {
	store := &fakeTxStore{}
	feed := &fakeFeed{}
	notes := &recordingNotifier{}
	h := NewTransactions(store, Options{Feed: feed, Notifier: notes, Debounce: 5 * time.Millisecond, ReconnectDelay: 5 * time.Millisecond})
	require.NoError(t, h.Start(context.Background(), alice))

	feed.fail(errors.New("connection refused"))
	close(feed.last().ch)
	require.Eventually(t, func() bool { return len(notes.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "Live updates interrupted, reconnecting", notes.all()[0])

	h.Stop()
	feed.fail(nil)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, feed.count(), "a stopped hook must not resubscribe")
}

func TestTransactions_SubscribeFailureStillFetches(t *testing.T) {
	store := &fakeTxStore{txs: scenarioTransactions()}
	notes := &recordingNotifier{}
	h := NewTransactions(store, Options{Feed: &fakeFeed{err: errors.New("socket closed")}, Notifier: notes})

	err := h.Start(context.Background(), alice)
	require.Error(t, err)
	defer h.Stop()
	assert.Len(t, h.State().Items.Transactions, 2)
	assert.Len(t, notes.all(), 1)
}
