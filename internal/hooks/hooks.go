// Package hooks presents remote-backed collections as local state.
//
// A hook fetches a user's rows, holds them, exposes mutations that write to
// the remote store and then refetch, and (for transactions and goals) keeps
// in sync by refetching whenever the change feed reports anything for the
// user. All reads and writes are scoped to the identity passed to Start.
package hooks

import (
	"context"
	"io"

	"github.com/google/uuid"

	"finsight/internal/core"
)

type TransactionStore interface {
	// ListTransactions returns the user's transactions newest first, with
	// the category relation joined.
	ListTransactions(ctx context.Context, userID uuid.UUID) ([]core.Transaction, error)
	ListCategories(ctx context.Context, userID uuid.UUID) ([]core.Category, error)
	CreateTransaction(ctx context.Context, userID uuid.UUID, in core.TransactionInput) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, userID, id uuid.UUID) error
}

type GoalStore interface {
	ListGoals(ctx context.Context, userID uuid.UUID) ([]core.Goal, error)
	CreateGoal(ctx context.Context, userID uuid.UUID, in core.GoalInput) (core.Goal, error)
	UpdateGoal(ctx context.Context, userID, id uuid.UUID, patch core.GoalPatch) (core.Goal, error)
	DeleteGoal(ctx context.Context, userID, id uuid.UUID) error
}

type ProfileStore interface {
	// GetProfile returns core.ErrNotFound when the user has no profile row.
	GetProfile(ctx context.Context, userID uuid.UUID) (core.Profile, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, patch core.ProfilePatch) (core.Profile, error)
}

// AvatarStore uploads objects by path and returns their public URL.
type AvatarStore interface {
	UploadAvatar(ctx context.Context, path, contentType string, body io.Reader) (string, error)
	DeleteAvatar(ctx context.Context, publicURL string) error
}

// Subscription delivers change events until closed.
type Subscription interface {
	Events() <-chan core.ChangeEvent
	Close() error
}

type ChangeFeed interface {
	Subscribe(ctx context.Context, table string, userID uuid.UUID) (Subscription, error)
}

type InsightsEndpoint interface {
	GenerateInsights(ctx context.Context, snap core.Snapshot) (core.InsightBundle, error)
}

type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelError
)

// Notifier shows a transient message to the user.
type Notifier interface {
	Notify(level Level, message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(level Level, message string)

func (f NotifierFunc) Notify(level Level, message string) { f(level, message) }

type nopNotifier struct{}

func (nopNotifier) Notify(Level, string) {}
