package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"finsight/internal/core"
)

const selectTransaction = `
SELECT t.id, t.user_id, t.amount_cents, t.type, t.description, t.date, t.category_id, t.created_at,
       c.id, c.name, c.icon, c.color, c.type
FROM transactions t
LEFT JOIN categories c ON c.id = t.category_id AND c.user_id = t.user_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(r rowScanner) (core.Transaction, error) {
	var (
		tx                         core.Transaction
		typ                        string
		date                       scanDate
		created                    scanTime
		catID, joinedID            uuid.NullUUID
		catName, catIcon, catColor sql.NullString
		catType                    sql.NullString
	)
	if err := r.Scan(&tx.ID, &tx.UserID, &tx.Amount.Cents, &typ, &tx.Description, &date, &catID, &created,
		&joinedID, &catName, &catIcon, &catColor, &catType); err != nil {
		return core.Transaction{}, err
	}
	tx.Type = core.TransactionType(typ)
	tx.Date = date.d
	tx.CreatedAt = created.t
	if catID.Valid {
		id := catID.UUID
		tx.CategoryID = &id
	}
	if joinedID.Valid {
		tx.Category = &core.Category{
			ID:     joinedID.UUID,
			UserID: tx.UserID,
			Name:   catName.String,
			Icon:   catIcon.String,
			Color:  catColor.String,
			Type:   core.TransactionType(catType.String),
		}
	}
	return tx, nil
}

// ListTransactions returns the user's transactions newest first.
func (s *Store) ListTransactions(ctx context.Context, userID uuid.UUID) ([]core.Transaction, error) {
	rows, err := s.query(ctx, s.db, selectTransaction+`
WHERE t.user_id = ?
ORDER BY t.date DESC, t.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (s *Store) GetTransaction(ctx context.Context, userID, id uuid.UUID) (core.Transaction, error) {
	tx, err := scanTransaction(s.queryRow(ctx, s.db, selectTransaction+`
WHERE t.user_id = ? AND t.id = ?`, userID, id))
	if err != nil {
		return core.Transaction{}, notFound(err)
	}
	return tx, nil
}

// CreateTransaction inserts a transaction. A category id must belong to the
// same user, otherwise core.ErrNotFound is returned.
func (s *Store) CreateTransaction(ctx context.Context, userID uuid.UUID, in core.TransactionInput) (core.Transaction, error) {
	if err := in.Validate(); err != nil {
		return core.Transaction{}, err
	}
	id := uuid.New()
	_, now := s.timestamp()

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var catID any
		if in.CategoryID != nil {
			var one int
			err := s.queryRow(ctx, tx, `SELECT 1 FROM categories WHERE id = ? AND user_id = ?`, *in.CategoryID, userID).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("category %s: %w", in.CategoryID, core.ErrNotFound)
			}
			if err != nil {
				return fmt.Errorf("check category: %w", err)
			}
			catID = *in.CategoryID
		}
		_, err := s.exec(ctx, tx, `
INSERT INTO transactions (id, user_id, amount_cents, type, description, date, category_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, userID, in.Amount.Cents, string(in.Type), in.Description, in.Date.String(), catID, now)
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.Transaction{}, err
	}
	return s.GetTransaction(ctx, userID, id)
}

func (s *Store) DeleteTransaction(ctx context.Context, userID, id uuid.UUID) error {
	res, err := s.exec(ctx, s.db, `DELETE FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return mustAffect(res)
}
