package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finsight/internal/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), Config{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "test.db")}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRebind(t *testing.T) {
	s := &Store{dialect: Postgres}
	assert.Equal(t, "SELECT 1 FROM t WHERE a = $1 AND b = $2", s.rebind("SELECT 1 FROM t WHERE a = ? AND b = ?"))
	s.dialect = SQLite
	assert.Equal(t, "a = ?", s.rebind("a = ?"))
}

func TestCreateUser_SeedsProfileAndCategories(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, " Ada@Example.com ", "Ada", "hash")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", u.Email)

	_, err = s.CreateUser(ctx, "ada@example.com", "Other", "hash")
	assert.ErrorIs(t, err, core.ErrConflict)

	got, hash, err := s.UserByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "hash", hash)

	p, err := s.GetProfile(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", p.FullName)
	assert.Equal(t, core.ThemeSystem, p.Theme)

	cats, err := s.ListCategories(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, cats, len(defaultCategories))

	_, err = s.UserByID(ctx, uuid.New())
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestTransactions_ScopedAndOrdered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice, err := s.CreateUser(ctx, "alice@example.com", "Alice", "x")
	require.NoError(t, err)
	bob, err := s.CreateUser(ctx, "bob@example.com", "Bob", "x")
	require.NoError(t, err)

	cats, err := s.ListCategories(ctx, alice.ID)
	require.NoError(t, err)
	var food core.Category
	for _, c := range cats {
		if c.Name == "Food" {
			food = c
		}
	}
	require.NotEqual(t, uuid.Nil, food.ID)

	older, err := s.CreateTransaction(ctx, alice.ID, core.TransactionInput{
		Amount: core.Money{Cents: 10000}, Type: core.Income, Date: core.NewDate(2024, 3, 1),
	})
	require.NoError(t, err)
	newer, err := s.CreateTransaction(ctx, alice.ID, core.TransactionInput{
		Amount: core.Money{Cents: 4000}, Type: core.Expense, Date: core.NewDate(2024, 3, 2),
		Description: "groceries", CategoryID: &food.ID,
	})
	require.NoError(t, err)
	require.NotNil(t, newer.Category)
	assert.Equal(t, "Food", newer.Category.Name)

	// bob cannot use alice's category
	_, err = s.CreateTransaction(ctx, bob.ID, core.TransactionInput{
		Amount: core.Money{Cents: 1}, Type: core.Expense, Date: core.NewDate(2024, 3, 2), CategoryID: &food.ID,
	})
	assert.ErrorIs(t, err, core.ErrNotFound)

	list, err := s.ListTransactions(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, older.ID, list[1].ID)
	assert.Equal(t, "2024-03-02", list[0].Date.String())
	assert.Nil(t, list[1].Category)

	totals := core.ComputeTotals(list)
	assert.Equal(t, int64(6000), totals.Savings.Cents)

	bobs, err := s.ListTransactions(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, bobs)

	assert.ErrorIs(t, s.DeleteTransaction(ctx, bob.ID, newer.ID), core.ErrNotFound)
	require.NoError(t, s.DeleteTransaction(ctx, alice.ID, newer.ID))
	_, err = s.GetTransaction(ctx, alice.ID, newer.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestGoals_Lifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u, err := s.CreateUser(ctx, "g@example.com", "G", "x")
	require.NoError(t, err)

	deadline := core.NewDate(2024, 5, 1)
	g, err := s.CreateGoal(ctx, u.ID, core.GoalInput{Name: "Trip", TargetAmount: core.Money{Cents: 100000}, Deadline: &deadline})
	require.NoError(t, err)
	assert.Equal(t, core.GoalInProgress, g.Status)
	assert.Equal(t, int64(0), g.CurrentAmount.Cents)
	require.NotNil(t, g.Deadline)
	assert.Equal(t, "2024-05-01", g.Deadline.String())

	amount := core.Money{Cents: 25000}
	updated, err := s.UpdateGoal(ctx, u.ID, g.ID, core.GoalPatch{CurrentAmount: &amount})
	require.NoError(t, err)
	assert.Equal(t, int64(25000), updated.CurrentAmount.Cents)
	assert.Equal(t, core.GoalInProgress, updated.Status)

	full := core.Money{Cents: 100000}
	resolved, err := s.UpdateGoalWith(ctx, u.ID, g.ID, core.GoalPatch{CurrentAmount: &full}, func(g core.Goal) core.GoalStatus {
		return core.ResolveStatus(core.PolicyAutomatic, g, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))
	})
	require.NoError(t, err)
	assert.Equal(t, core.GoalReached, resolved.Status)

	other := uuid.New()
	_, err = s.UpdateGoal(ctx, other, g.ID, core.GoalPatch{CurrentAmount: &amount})
	assert.ErrorIs(t, err, core.ErrNotFound)

	g2, err := s.CreateGoal(ctx, u.ID, core.GoalInput{Name: "Late", TargetAmount: core.Money{Cents: 500}, Deadline: &deadline})
	require.NoError(t, err)
	due, err := s.ListOpenGoalsDue(ctx, core.NewDate(2024, 5, 2))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, g2.ID, due[0].ID)

	cleared, err := s.UpdateGoal(ctx, u.ID, g2.ID, core.GoalPatch{ClearDeadline: true})
	require.NoError(t, err)
	assert.Nil(t, cleared.Deadline)

	goals, err := s.ListGoals(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, goals, 2)

	require.NoError(t, s.DeleteGoal(ctx, u.ID, g.ID))
	assert.ErrorIs(t, s.DeleteGoal(ctx, u.ID, g.ID), core.ErrNotFound)
}

func TestProfiles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u, err := s.CreateUser(ctx, "p@example.com", "P", "x")
	require.NoError(t, err)

	cur, theme, url := "EUR", core.ThemeDark, "http://localhost/objects/a.png"
	p, err := s.UpdateProfile(ctx, u.ID, core.ProfilePatch{Currency: &cur, Theme: &theme, AvatarURL: &url})
	require.NoError(t, err)
	assert.Equal(t, "EUR", p.Currency)

	got, err := s.GetProfile(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, core.ThemeDark, got.Theme)
	assert.Equal(t, url, got.AvatarURL)
	assert.Equal(t, "P", got.FullName)

	bad := core.Theme("neon")
	_, err = s.UpdateProfile(ctx, u.ID, core.ProfilePatch{Theme: &bad})
	assert.ErrorIs(t, err, core.ErrInvalidTheme)

	_, err = s.GetProfile(ctx, uuid.New())
	assert.ErrorIs(t, err, core.ErrNotFound)
}
