package core

import (
	"encoding/json"
	"sort"

	"github.com/shopspring/decimal"
)

// Totals is derived from a transaction list, never stored.
type Totals struct {
	Income   Money `json:"income"`
	Expenses Money `json:"expenses"`
	Savings  Money `json:"savings"`
}

// UnmarshalJSON accepts a negative savings figure; income and expenses
// follow the Money rules.
func (t *Totals) UnmarshalJSON(data []byte) error {
	var raw struct {
		Income   Money           `json:"income"`
		Expenses Money           `json:"expenses"`
		Savings  decimal.Decimal `json:"savings"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.Income = raw.Income
	t.Expenses = raw.Expenses
	t.Savings = Money{Cents: raw.Savings.Mul(hundred).Round(0).IntPart()}
	return nil
}

// GoalTotals sums goal progress across all goals.
type GoalTotals struct {
	TotalSaved  Money `json:"totalSaved"`
	TotalTarget Money `json:"totalTarget"`
}

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string `json:"name"`
	Color  string `json:"color,omitempty"`
	Amount Money  `json:"amount"`
}

// MonthTotals is income and expense for one calendar month.
type MonthTotals struct {
	Year     int   `json:"year"`
	Month    int   `json:"month"` // 1-12
	Income   Money `json:"income"`
	Expenses Money `json:"expenses"`
}

// ComputeTotals sums amounts by type. Savings = income - expenses, and may be negative.
func ComputeTotals(txs []Transaction) Totals {
	var t Totals
	for _, tx := range txs {
		switch tx.Type {
		case Income:
			t.Income = t.Income.Add(tx.Amount)
		case Expense:
			t.Expenses = t.Expenses.Add(tx.Amount)
		}
	}
	t.Savings = t.Income.Sub(t.Expenses)
	return t
}

// CategoryBreakdown groups expense transactions by category name. Uncategorized
// expenses are attributed to OtherCategory. The result is ordered by amount
// descending, then by name.
func CategoryBreakdown(txs []Transaction) []CategoryAmount {
	idx := make(map[string]int)
	var out []CategoryAmount
	for _, tx := range txs {
		if tx.Type != Expense {
			continue
		}
		name := tx.CategoryName()
		i, ok := idx[name]
		if !ok {
			i = len(out)
			idx[name] = i
			ca := CategoryAmount{Name: name}
			if tx.Category != nil {
				ca.Color = tx.Category.Color
			}
			out = append(out, ca)
		}
		out[i].Amount = out[i].Amount.Add(tx.Amount)
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Amount.Cents != out[b].Amount.Cents {
			return out[a].Amount.Cents > out[b].Amount.Cents
		}
		return out[a].Name < out[b].Name
	})
	return out
}

// ComputeGoalTotals sums current and target amounts across goals.
func ComputeGoalTotals(goals []Goal) GoalTotals {
	var t GoalTotals
	for _, g := range goals {
		t.TotalSaved = t.TotalSaved.Add(g.CurrentAmount)
		t.TotalTarget = t.TotalTarget.Add(g.TargetAmount)
	}
	return t
}

// MonthlySeries returns per-month totals in chronological order.
func MonthlySeries(txs []Transaction) []MonthTotals {
	type key struct{ y, m int }
	idx := make(map[key]int)
	var out []MonthTotals
	for _, tx := range txs {
		if tx.Date.IsZero() {
			continue
		}
		k := key{tx.Date.Year(), int(tx.Date.Month())}
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, MonthTotals{Year: k.y, Month: k.m})
		}
		switch tx.Type {
		case Income:
			out[i].Income = out[i].Income.Add(tx.Amount)
		case Expense:
			out[i].Expenses = out[i].Expenses.Add(tx.Amount)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Year != out[b].Year {
			return out[a].Year < out[b].Year
		}
		return out[a].Month < out[b].Month
	})
	return out
}
