// Package worker mirrors newly created transactions to the spreadsheet.
package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"finsight/internal/amqp"
	"finsight/internal/core"
	"finsight/internal/log"
	"finsight/internal/sheets"
)

// Bindings are the routing keys the mirror queue needs.
var Bindings = []string{amqp.RoutingKey(core.TableTransactions, core.ChangeInsert)}

type Store interface {
	GetTransaction(ctx context.Context, userID, id uuid.UUID) (core.Transaction, error)
	UserByID(ctx context.Context, id uuid.UUID) (core.User, error)
}

// Consumer delivers change messages to a handler until ctx is done.
type Consumer interface {
	Consume(ctx context.Context, handler amqp.Handler) error
}

// SheetsMirror appends every inserted transaction to the mirror sheet.
type SheetsMirror struct {
	store    Store
	appender sheets.TransactionAppender
	logger   *log.Logger
}

func NewSheetsMirror(store Store, appender sheets.TransactionAppender, logger *log.Logger) *SheetsMirror {
	if logger == nil {
		logger = log.Discard()
	}
	return &SheetsMirror{store: store, appender: appender, logger: logger.WithComponent(log.ComponentWorker)}
}

// HandleChange processes one change message. Returning an error makes the
// consumer reject the delivery for redelivery.
func (w *SheetsMirror) HandleChange(ctx context.Context, msg *amqp.ChangeMessage) error {
	ev := msg.Event
	if ev.Table != core.TableTransactions || ev.Type != core.ChangeInsert {
		w.logger.DebugContext(ctx, "Ignoring change", log.FieldTable, ev.Table, log.FieldChangeType, string(ev.Type))
		return nil
	}

	w.logger.InfoContext(ctx, "Processing transaction insert",
		log.FieldRecordID, ev.RecordID.String(),
		log.FieldUserID, ev.UserID.String())

	tx, err := w.store.GetTransaction(ctx, ev.UserID, ev.RecordID)
	if errors.Is(err, core.ErrNotFound) {
		// Deleted before the mirror caught up; nothing to append.
		w.logger.WarnContext(ctx, "Transaction no longer exists, skipping",
			log.FieldRecordID, ev.RecordID.String())
		return nil
	}
	if err != nil {
		return fmt.Errorf("get transaction from storage: %w", err)
	}

	owner, err := w.store.UserByID(ctx, ev.UserID)
	if err != nil {
		return fmt.Errorf("get transaction owner: %w", err)
	}

	ref, err := w.appender.Append(ctx, owner.Email, tx)
	if err != nil {
		return fmt.Errorf("append transaction to sheets: %w", err)
	}

	w.logger.InfoContext(ctx, "Transaction mirrored",
		log.FieldRecordID, tx.ID.String(),
		log.FieldSheetsRef, ref,
		log.FieldOperation, log.OpAppend)
	return nil
}

// Run consumes until ctx is cancelled.
func (w *SheetsMirror) Run(ctx context.Context, consumer Consumer) error {
	err := consumer.Consume(ctx, w.HandleChange)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
