// Package sheets mirrors transactions into a spreadsheet.
package sheets

import (
	"context"
	"time"

	"finsight/internal/core"
)

// Ports for outbound adapters.
type (
	// TransactionAppender mirrors one transaction as it is created. Appending
	// the same transaction twice leaves a single row.
	TransactionAppender interface {
		Append(ctx context.Context, owner string, tx core.Transaction) (rowRef string, err error)
	}

	// TransactionExporter replaces the owner's export sheet with txs.
	TransactionExporter interface {
		Export(ctx context.Context, owner string, txs []core.Transaction) (rangeRef string, err error)
	}
)

// Header is the column layout of mirrored rows; the id column comes first so
// appends can be deduplicated.
var Header = []string{"ID", "Owner", "Date", "Type", "Category", "Description", "Amount", "Created"}

// Row formats tx in Header order.
func Row(owner string, tx core.Transaction) []string {
	created := ""
	if !tx.CreatedAt.IsZero() {
		created = tx.CreatedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		tx.ID.String(),
		owner,
		tx.Date.String(),
		string(tx.Type),
		tx.CategoryName(),
		tx.Description,
		tx.Amount.String(),
		created,
	}
}
