package hooks

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"finsight/internal/core"
	"finsight/internal/log"
)

type TransactionsData struct {
	Transactions []core.Transaction
	Categories   []core.Category
}

// Transactions holds the user's transactions and categories.
type Transactions struct {
	*Resource[TransactionsData]
	store TransactionStore
}

func NewTransactions(store TransactionStore, opts Options) *Transactions {
	h := &Transactions{store: store}
	h.Resource = NewResource("transactions", h.load, opts, core.TableTransactions)
	return h
}

func (h *Transactions) load(ctx context.Context, userID uuid.UUID) (TransactionsData, error) {
	var data TransactionsData
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		txs, err := h.store.ListTransactions(ctx, userID)
		if err != nil {
			return fmt.Errorf("list transactions: %w", err)
		}
		data.Transactions = txs
		return nil
	})
	g.Go(func() error {
		cats, err := h.store.ListCategories(ctx, userID)
		if err != nil {
			return fmt.Errorf("list categories: %w", err)
		}
		data.Categories = cats
		return nil
	})
	if err := g.Wait(); err != nil {
		return TransactionsData{}, err
	}
	return data, nil
}

// Create inserts a transaction for the current user and refetches on
// success. Local state is never touched on failure.
func (h *Transactions) Create(ctx context.Context, in core.TransactionInput) error {
	ctx, done, user, gen, err := h.begin(ctx)
	if err != nil {
		return err
	}
	defer done()
	if err := in.Validate(); err != nil {
		return err
	}
	tx, err := h.store.CreateTransaction(ctx, user.ID, in)
	if err != nil {
		return err
	}
	h.logger.InfoContext(ctx, "Transaction created",
		log.NewFields().WithOperation(log.OpCreate).WithTransaction(string(tx.Type), tx.Amount.Cents).ToSlice()...)
	_ = h.fetchGen(ctx, gen)
	return nil
}

// Delete removes a transaction. Failures are shown to the user and also
// returned.
func (h *Transactions) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, done, user, gen, err := h.begin(ctx)
	if err != nil {
		return err
	}
	defer done()
	if err := h.store.DeleteTransaction(ctx, user.ID, id); err != nil {
		h.logger.WarnContext(ctx, "Delete failed", log.NewFields().WithOperation(log.OpDelete).WithError(err).ToSlice()...)
		h.opts.Notifier.Notify(LevelError, errorMessage(err))
		return err
	}
	_ = h.fetchGen(ctx, gen)
	return nil
}

// Totals is recomputed from the held list on every call.
func (h *Transactions) Totals() core.Totals {
	return core.ComputeTotals(h.State().Items.Transactions)
}

func (h *Transactions) CategoryBreakdown() []core.CategoryAmount {
	return core.CategoryBreakdown(h.State().Items.Transactions)
}

func (h *Transactions) MonthlySeries() []core.MonthTotals {
	return core.MonthlySeries(h.State().Items.Transactions)
}
