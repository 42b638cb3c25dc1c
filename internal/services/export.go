package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"finsight/internal/core"
	"finsight/internal/log"
	"finsight/internal/sheets"
)

// ErrExportDisabled is returned when no spreadsheet is configured.
var ErrExportDisabled = errors.New("sheets export not configured")

type UserLookup interface {
	UserByID(ctx context.Context, id uuid.UUID) (core.User, error)
}

// Exporter writes a user's full transaction list to the spreadsheet.
type Exporter struct {
	store    Store
	users    UserLookup
	exporter sheets.TransactionExporter
	logger   *log.Logger
}

func NewExporter(store Store, users UserLookup, exporter sheets.TransactionExporter, logger *log.Logger) *Exporter {
	if logger == nil {
		logger = log.Discard()
	}
	return &Exporter{store: store, users: users, exporter: exporter, logger: logger.WithComponent(log.ComponentSheets)}
}

// ExportResult is returned by POST /api/export/sheets.
type ExportResult struct {
	Range string `json:"range"`
	Rows  int    `json:"rows"`
}

func (e *Exporter) Export(ctx context.Context, userID uuid.UUID) (ExportResult, error) {
	if e == nil || e.exporter == nil {
		return ExportResult{}, ErrExportDisabled
	}
	u, err := e.users.UserByID(ctx, userID)
	if err != nil {
		return ExportResult{}, err
	}
	txs, err := e.store.ListTransactions(ctx, userID)
	if err != nil {
		return ExportResult{}, err
	}
	ref, err := e.exporter.Export(ctx, u.Email, txs)
	if err != nil {
		e.logger.ErrorContext(ctx, "Sheets export failed",
			log.FieldUserID, userID.String(), log.FieldError, err.Error())
		return ExportResult{}, fmt.Errorf("export transactions: %w", err)
	}
	e.logger.InfoContext(ctx, "Transactions exported",
		log.FieldUserID, userID.String(), log.FieldSheetsRef, ref, log.FieldCount, len(txs))
	return ExportResult{Range: ref, Rows: len(txs)}, nil
}
