package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Tables that emit change events.
const (
	TableTransactions = "transactions"
	TableCategories   = "categories"
	TableGoals        = "goals"
	TableProfiles     = "profiles"
)

type ChangeType string

const (
	ChangeInsert ChangeType = "insert"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// ChangeEvent notifies that a row owned by UserID changed. Consumers only
// use it as a refetch trigger; the payload is informational.
type ChangeEvent struct {
	Table    string     `json:"table"`
	Type     ChangeType `json:"type"`
	RecordID uuid.UUID  `json:"record_id"`
	UserID   uuid.UUID  `json:"user_id"`
	At       time.Time  `json:"at"`
}

func ValidTable(table string) bool {
	switch table {
	case TableTransactions, TableCategories, TableGoals, TableProfiles:
		return true
	}
	return false
}

func (e ChangeEvent) Validate() error {
	if !ValidTable(e.Table) {
		return fmt.Errorf("unknown table %q", e.Table)
	}
	switch e.Type {
	case ChangeInsert, ChangeUpdate, ChangeDelete:
	default:
		return fmt.Errorf("unknown change type %q", e.Type)
	}
	if e.UserID == uuid.Nil {
		return fmt.Errorf("change event without user")
	}
	return nil
}
