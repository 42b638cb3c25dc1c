package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"finsight/internal/amqp"
	"finsight/internal/core"
	"finsight/internal/sheets/memory"
)

type fakeStore struct {
	txs     map[uuid.UUID]core.Transaction
	users   map[uuid.UUID]core.User
	loadErr error
}

func (f *fakeStore) GetTransaction(_ context.Context, userID, id uuid.UUID) (core.Transaction, error) {
	if f.loadErr != nil {
		return core.Transaction{}, f.loadErr
	}
	tx, ok := f.txs[id]
	if !ok || tx.UserID != userID {
		return core.Transaction{}, core.ErrNotFound
	}
	return tx, nil
}

func (f *fakeStore) UserByID(_ context.Context, id uuid.UUID) (core.User, error) {
	u, ok := f.users[id]
	if !ok {
		return core.User{}, core.ErrNotFound
	}
	return u, nil
}

func fixture() (*fakeStore, core.Transaction) {
	user := core.User{ID: uuid.New(), Email: "owner@example.com"}
	tx := core.Transaction{
		ID: uuid.New(), UserID: user.ID, Amount: core.Money{Cents: 990},
		Type: core.Expense, Date: core.NewDate(2026, 4, 2),
	}
	return &fakeStore{
		txs:   map[uuid.UUID]core.Transaction{tx.ID: tx},
		users: map[uuid.UUID]core.User{user.ID: user},
	}, tx
}

func message(table string, typ core.ChangeType, tx core.Transaction) *amqp.ChangeMessage {
	return amqp.NewChangeMessage(core.ChangeEvent{Table: table, Type: typ, RecordID: tx.ID, UserID: tx.UserID}, "test")
}

func TestSheetsMirror_AppendsInserts(t *testing.T) {
	store, tx := fixture()
	sheet := memory.New()
	w := NewSheetsMirror(store, sheet, nil)

	if err := w.HandleChange(context.Background(), message(core.TableTransactions, core.ChangeInsert, tx)); err != nil {
		t.Fatalf("HandleChange() error = %v", err)
	}
	// redelivery is idempotent
	if err := w.HandleChange(context.Background(), message(core.TableTransactions, core.ChangeInsert, tx)); err != nil {
		t.Fatalf("HandleChange() redelivery error = %v", err)
	}

	rows := sheet.Rows()
	if len(rows) != 1 {
		t.Fatalf("expected 1 mirrored row, got %d", len(rows))
	}
	if rows[0][0] != tx.ID.String() || rows[0][1] != "owner@example.com" {
		t.Errorf("unexpected row: %v", rows[0])
	}
}

func TestSheetsMirror_IgnoresOtherChanges(t *testing.T) {
	store, tx := fixture()
	sheet := memory.New()
	w := NewSheetsMirror(store, sheet, nil)

	for _, msg := range []*amqp.ChangeMessage{
		message(core.TableTransactions, core.ChangeDelete, tx),
		message(core.TableGoals, core.ChangeInsert, tx),
	} {
		if err := w.HandleChange(context.Background(), msg); err != nil {
			t.Fatalf("HandleChange() error = %v", err)
		}
	}
	if len(sheet.Rows()) != 0 {
		t.Error("only transaction inserts should be mirrored")
	}
}

func TestSheetsMirror_Errors(t *testing.T) {
	t.Run("deleted transaction is skipped", func(t *testing.T) {
		store, tx := fixture()
		delete(store.txs, tx.ID)
		w := NewSheetsMirror(store, memory.New(), nil)
		if err := w.HandleChange(context.Background(), message(core.TableTransactions, core.ChangeInsert, tx)); err != nil {
			t.Fatalf("expected nil, got %v", err)
		}
	})

	t.Run("storage failure is retried", func(t *testing.T) {
		store, tx := fixture()
		store.loadErr = errors.New("database is locked")
		w := NewSheetsMirror(store, memory.New(), nil)
		if err := w.HandleChange(context.Background(), message(core.TableTransactions, core.ChangeInsert, tx)); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("missing owner", func(t *testing.T) {
		store, tx := fixture()
		store.users = map[uuid.UUID]core.User{}
		w := NewSheetsMirror(store, memory.New(), nil)
		err := w.HandleChange(context.Background(), message(core.TableTransactions, core.ChangeInsert, tx))
		if !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

type fakeConsumer struct {
	msgs []*amqp.ChangeMessage
	errs []error
}

func (c *fakeConsumer) Consume(ctx context.Context, handler amqp.Handler) error {
	for _, m := range c.msgs {
		c.errs = append(c.errs, handler(ctx, m))
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestSheetsMirror_Run(t *testing.T) {
	store, tx := fixture()
	sheet := memory.New()
	w := NewSheetsMirror(store, sheet, nil)
	consumer := &fakeConsumer{msgs: []*amqp.ChangeMessage{message(core.TableTransactions, core.ChangeInsert, tx)}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, consumer) }()

	for len(sheet.Rows()) == 0 {
		select {
		case err := <-done:
			t.Fatalf("Run returned early: %v", err)
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() after cancel = %v, want nil", err)
	}
}

func TestBindings(t *testing.T) {
	if len(Bindings) != 1 || Bindings[0] != "transactions.insert" {
		t.Errorf("Bindings = %v", Bindings)
	}
}
