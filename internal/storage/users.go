package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"finsight/internal/core"
)

// defaultCategories are seeded for every new user.
var defaultCategories = []core.Category{
	{Name: "Food", Icon: "utensils", Color: "#ef4444", Type: core.Expense},
	{Name: "Transport", Icon: "car", Color: "#f97316", Type: core.Expense},
	{Name: "Housing", Icon: "home", Color: "#eab308", Type: core.Expense},
	{Name: "Utilities", Icon: "zap", Color: "#84cc16", Type: core.Expense},
	{Name: "Entertainment", Icon: "film", Color: "#06b6d4", Type: core.Expense},
	{Name: "Health", Icon: "heart", Color: "#ec4899", Type: core.Expense},
	{Name: "Shopping", Icon: "shopping-bag", Color: "#8b5cf6", Type: core.Expense},
	{Name: "Salary", Icon: "briefcase", Color: "#22c55e", Type: core.Income},
	{Name: "Freelance", Icon: "laptop", Color: "#10b981", Type: core.Income},
	{Name: "Investments", Icon: "trending-up", Color: "#14b8a6", Type: core.Income},
}

// CreateUser inserts the user, an empty profile and the default categories
// in one transaction. A duplicate email returns core.ErrConflict.
func (s *Store) CreateUser(ctx context.Context, email, fullName, passwordHash string) (core.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u := core.User{ID: uuid.New(), Email: email, FullName: fullName}
	created, now := s.timestamp()

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := s.queryRow(ctx, tx, `SELECT 1 FROM users WHERE email = ?`, email).Scan(&exists)
		if err == nil {
			return fmt.Errorf("email %s: %w", email, core.ErrConflict)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check email: %w", err)
		}

		if _, err := s.exec(ctx, tx,
			`INSERT INTO users (id, email, full_name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
			u.ID, email, fullName, passwordHash, now); err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		if _, err := s.exec(ctx, tx,
			`INSERT INTO profiles (user_id, full_name, currency, theme, avatar_url, updated_at) VALUES (?, ?, 'USD', 'system', '', ?)`,
			u.ID, fullName, now); err != nil {
			return fmt.Errorf("insert profile: %w", err)
		}
		for _, c := range defaultCategories {
			if _, err := s.exec(ctx, tx,
				`INSERT INTO categories (id, user_id, name, icon, color, type) VALUES (?, ?, ?, ?, ?, ?)`,
				uuid.New(), u.ID, c.Name, c.Icon, c.Color, string(c.Type)); err != nil {
				return fmt.Errorf("seed category %s: %w", c.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return core.User{}, err
	}
	u.CreatedAt = created
	return u, nil
}

// UserByEmail returns the user and its password hash.
func (s *Store) UserByEmail(ctx context.Context, email string) (core.User, string, error) {
	var u core.User
	var hash string
	var created scanTime
	err := s.queryRow(ctx, s.db,
		`SELECT id, email, full_name, password_hash, created_at FROM users WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email))).Scan(&u.ID, &u.Email, &u.FullName, &hash, &created)
	if err != nil {
		return core.User{}, "", notFound(err)
	}
	u.CreatedAt = created.t
	return u, hash, nil
}

func (s *Store) UserByID(ctx context.Context, id uuid.UUID) (core.User, error) {
	var u core.User
	var created scanTime
	err := s.queryRow(ctx, s.db,
		`SELECT id, email, full_name, created_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Email, &u.FullName, &created)
	if err != nil {
		return core.User{}, notFound(err)
	}
	u.CreatedAt = created.t
	return u, nil
}

func (s *Store) ListCategories(ctx context.Context, userID uuid.UUID) ([]core.Category, error) {
	rows, err := s.query(ctx, s.db,
		`SELECT id, user_id, name, icon, color, type FROM categories WHERE user_id = ? ORDER BY type, name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var c core.Category
		var typ string
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Icon, &c.Color, &typ); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Type = core.TransactionType(typ)
		out = append(out, c)
	}
	return out, rows.Err()
}
