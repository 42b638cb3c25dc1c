package core

import (
	"errors"
	"strings"
)

const (
	InsightTip     InsightType = "tip"
	InsightWarning InsightType = "warning"
	InsightSuccess InsightType = "success"
	InsightInfo    InsightType = "info"
)

type InsightType string

// Insight is one item of an AI-generated insight bundle.
type Insight struct {
	ID          string      `json:"id"`
	Type        InsightType `json:"type"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Category    string      `json:"category"`
	ActionLabel string      `json:"actionLabel,omitempty"`
	ActionURL   string      `json:"actionUrl,omitempty"`
}

// InsightBundle is ephemeral and never persisted server-side.
type InsightBundle struct {
	Summary  string    `json:"summary"`
	Insights []Insight `json:"insights"`
}

// Snapshot is the financial state sent to the insight endpoint.
type Snapshot struct {
	Transactions []TransactionView `json:"transactions"`
	Goals        []GoalView        `json:"goals"`
	Totals       Totals            `json:"totals"`
}

// TransactionView is the wire shape of a transaction.
type TransactionView struct {
	ID          string          `json:"id"`
	Amount      Money           `json:"amount"`
	Type        TransactionType `json:"type"`
	Description string          `json:"description,omitempty"`
	Date        Date            `json:"date"`
	CategoryID  string          `json:"category_id,omitempty"`
	Category    *CategoryView   `json:"category,omitempty"`
	CreatedAt   string          `json:"created_at,omitempty"`
}

type CategoryView struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Icon  string          `json:"icon,omitempty"`
	Color string          `json:"color,omitempty"`
	Type  TransactionType `json:"type"`
}

// GoalView is the wire shape of a goal.
type GoalView struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	TargetAmount  Money      `json:"target_amount"`
	CurrentAmount Money      `json:"current_amount"`
	Deadline      *Date      `json:"deadline,omitempty"`
	Status        GoalStatus `json:"status"`
	Icon          string     `json:"icon,omitempty"`
	Color         string     `json:"color,omitempty"`
	CreatedAt     string     `json:"created_at,omitempty"`
}

func (t InsightType) Validate() error {
	switch t {
	case InsightTip, InsightWarning, InsightSuccess, InsightInfo:
		return nil
	default:
		return errors.New("invalid insight type: " + string(t))
	}
}

// Validate checks a bundle received from a generator or the network.
func (b InsightBundle) Validate() error {
	if strings.TrimSpace(b.Summary) == "" {
		return errors.New("insight bundle has empty summary")
	}
	for _, in := range b.Insights {
		if err := in.Type.Validate(); err != nil {
			return err
		}
		if strings.TrimSpace(in.Title) == "" {
			return errors.New("insight " + in.ID + " has empty title")
		}
	}
	return nil
}

// NewSnapshot builds the insight request payload from held collections.
func NewSnapshot(txs []Transaction, goals []Goal) Snapshot {
	s := Snapshot{
		Transactions: make([]TransactionView, 0, len(txs)),
		Goals:        make([]GoalView, 0, len(goals)),
		Totals:       ComputeTotals(txs),
	}
	for _, tx := range txs {
		s.Transactions = append(s.Transactions, ViewOfTransaction(tx))
	}
	for _, g := range goals {
		s.Goals = append(s.Goals, ViewOfGoal(g))
	}
	return s
}
