package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Row is a loosely typed record as returned by the remote store.
type Row map[string]any

// DecodeRows decodes every row, skipping malformed ones. The returned errors
// describe each skipped row so callers can log them.
func DecodeRows[T any](rows []Row, decode func(Row) (T, error)) ([]T, []error) {
	out := make([]T, 0, len(rows))
	var errs []error
	for i, r := range rows {
		v, err := decode(r)
		if err != nil {
			errs = append(errs, fmt.Errorf("row %d: %w", i, err))
			continue
		}
		out = append(out, v)
	}
	return out, errs
}

func DecodeCategory(r Row) (Category, error) {
	var c Category
	var err error
	if c.ID, err = r.uuid("id"); err != nil {
		return Category{}, err
	}
	if c.UserID, err = r.optUUID("user_id"); err != nil {
		return Category{}, err
	}
	if c.Name, err = r.str("name"); err != nil {
		return Category{}, err
	}
	if strings.TrimSpace(c.Name) == "" {
		return Category{}, malformed("name", ErrEmptyName)
	}
	if c.Icon, err = r.optStr("icon"); err != nil {
		return Category{}, err
	}
	if c.Color, err = r.optStr("color"); err != nil {
		return Category{}, err
	}
	t, err := r.str("type")
	if err != nil {
		return Category{}, err
	}
	c.Type = TransactionType(t)
	if err := c.Type.Validate(); err != nil {
		return Category{}, malformed("type", err)
	}
	return c, nil
}

func DecodeTransaction(r Row) (Transaction, error) {
	var tx Transaction
	var err error
	if tx.ID, err = r.uuid("id"); err != nil {
		return Transaction{}, err
	}
	if tx.UserID, err = r.optUUID("user_id"); err != nil {
		return Transaction{}, err
	}
	if tx.Amount, err = r.money("amount"); err != nil {
		return Transaction{}, err
	}
	if err := tx.Amount.Validate(); err != nil {
		return Transaction{}, malformed("amount", err)
	}
	t, err := r.str("type")
	if err != nil {
		return Transaction{}, err
	}
	tx.Type = TransactionType(t)
	if err := tx.Type.Validate(); err != nil {
		return Transaction{}, malformed("type", err)
	}
	if tx.Description, err = r.optStr("description"); err != nil {
		return Transaction{}, err
	}
	if tx.Date, err = r.date("date"); err != nil {
		return Transaction{}, err
	}
	if tx.Date.IsZero() {
		return Transaction{}, malformed("date", fmt.Errorf("missing"))
	}
	if cid, err := r.optUUID("category_id"); err != nil {
		return Transaction{}, err
	} else if cid != uuid.Nil {
		tx.CategoryID = &cid
	}
	if raw, ok := r["category"]; ok && raw != nil {
		m, ok := raw.(map[string]any)
		if !ok {
			return Transaction{}, malformed("category", fmt.Errorf("expected object, got %T", raw))
		}
		c, err := DecodeCategory(Row(m))
		if err != nil {
			return Transaction{}, fmt.Errorf("category: %w", err)
		}
		tx.Category = &c
	}
	if tx.CreatedAt, err = r.timestamp("created_at"); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// DecodeGoal defaults a missing current_amount to zero and a missing status
// to in_progress.
func DecodeGoal(r Row) (Goal, error) {
	var g Goal
	var err error
	if g.ID, err = r.uuid("id"); err != nil {
		return Goal{}, err
	}
	if g.UserID, err = r.optUUID("user_id"); err != nil {
		return Goal{}, err
	}
	if g.Name, err = r.str("name"); err != nil {
		return Goal{}, err
	}
	if g.TargetAmount, err = r.money("target_amount"); err != nil {
		return Goal{}, err
	}
	if err := g.TargetAmount.Validate(); err != nil {
		return Goal{}, malformed("target_amount", err)
	}
	if _, ok := r["current_amount"]; ok && r["current_amount"] != nil {
		if g.CurrentAmount, err = r.money("current_amount"); err != nil {
			return Goal{}, err
		}
	}
	d, err := r.date("deadline")
	if err != nil {
		return Goal{}, err
	}
	if !d.IsZero() {
		g.Deadline = &d
	}
	status, err := r.optStr("status")
	if err != nil {
		return Goal{}, err
	}
	g.Status = GoalStatus(status)
	if g.Status == "" {
		g.Status = GoalInProgress
	}
	if err := g.Status.Validate(); err != nil {
		return Goal{}, malformed("status", err)
	}
	if g.Icon, err = r.optStr("icon"); err != nil {
		return Goal{}, err
	}
	if g.Color, err = r.optStr("color"); err != nil {
		return Goal{}, err
	}
	if g.CreatedAt, err = r.timestamp("created_at"); err != nil {
		return Goal{}, err
	}
	return g, nil
}

func DecodeProfile(r Row) (Profile, error) {
	var p Profile
	var err error
	if p.UserID, err = r.uuid("user_id"); err != nil {
		return Profile{}, err
	}
	if p.FullName, err = r.optStr("full_name"); err != nil {
		return Profile{}, err
	}
	if p.Currency, err = r.optStr("currency"); err != nil {
		return Profile{}, err
	}
	theme, err := r.optStr("theme")
	if err != nil {
		return Profile{}, err
	}
	p.Theme = Theme(theme)
	if p.Theme == "" {
		p.Theme = ThemeSystem
	}
	if err := p.Theme.Validate(); err != nil {
		return Profile{}, malformed("theme", err)
	}
	if p.AvatarURL, err = r.optStr("avatar_url"); err != nil {
		return Profile{}, err
	}
	if p.UpdatedAt, err = r.timestamp("updated_at"); err != nil {
		return Profile{}, err
	}
	return p, nil
}

func malformed(field string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrMalformedRecord, field, err)
}

func (r Row) str(field string) (string, error) {
	v, ok := r[field]
	if !ok || v == nil {
		return "", malformed(field, fmt.Errorf("missing"))
	}
	s, ok := v.(string)
	if !ok {
		return "", malformed(field, fmt.Errorf("expected string, got %T", v))
	}
	return s, nil
}

func (r Row) optStr(field string) (string, error) {
	v, ok := r[field]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", malformed(field, fmt.Errorf("expected string, got %T", v))
	}
	return s, nil
}

func (r Row) uuid(field string) (uuid.UUID, error) {
	s, err := r.str(field)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, malformed(field, err)
	}
	return id, nil
}

func (r Row) optUUID(field string) (uuid.UUID, error) {
	s, err := r.optStr(field)
	if err != nil || s == "" {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, malformed(field, err)
	}
	return id, nil
}

func (r Row) money(field string) (Money, error) {
	v, ok := r[field]
	if !ok || v == nil {
		return Money{}, malformed(field, fmt.Errorf("missing"))
	}
	var d decimal.Decimal
	var err error
	switch n := v.(type) {
	case json.Number:
		d, err = decimal.NewFromString(n.String())
	case string:
		d, err = decimal.NewFromString(n)
	case float64:
		d = decimal.NewFromFloat(n)
	case int64:
		d = decimal.NewFromInt(n)
	case int:
		d = decimal.NewFromInt(int64(n))
	default:
		return Money{}, malformed(field, fmt.Errorf("expected number, got %T", v))
	}
	if err != nil {
		return Money{}, malformed(field, err)
	}
	m, err := MoneyFromDecimal(d)
	if err != nil {
		return Money{}, malformed(field, err)
	}
	return m, nil
}

func (r Row) date(field string) (Date, error) {
	s, err := r.optStr(field)
	if err != nil || s == "" {
		return Date{}, err
	}
	d, err := ParseDate(s)
	if err != nil {
		return Date{}, malformed(field, err)
	}
	return d, nil
}

func (r Row) timestamp(field string) (time.Time, error) {
	s, err := r.optStr(field)
	if err != nil || s == "" {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, malformed(field, err)
	}
	return t, nil
}
