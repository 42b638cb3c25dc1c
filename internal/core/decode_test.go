package core

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	txID  = "0b8b3c7e-6a3f-4a57-9d0c-1e3f4b5a6c7d"
	catID = "5f1d2e3c-4b5a-4978-8a6b-7c8d9e0f1a2b"
	usrID = "9a8b7c6d-5e4f-4321-8765-43210fedcba9"
)

func decodeJSON(t *testing.T, s string) Row {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var r Row
	require.NoError(t, dec.Decode(&r))
	return r
}

func TestDecodeTransaction(t *testing.T) {
	r := decodeJSON(t, `{
		"id": "`+txID+`",
		"user_id": "`+usrID+`",
		"amount": 40.5,
		"type": "expense",
		"description": "groceries",
		"date": "2024-03-02",
		"category_id": "`+catID+`",
		"category": {"id": "`+catID+`", "name": "Food", "icon": "utensils", "color": "#f00", "type": "expense"},
		"created_at": "2024-03-02T10:11:12Z"
	}`)

	got, err := DecodeTransaction(r)
	require.NoError(t, err)
	assert.Equal(t, int64(4050), got.Amount.Cents)
	assert.Equal(t, Expense, got.Type)
	assert.Equal(t, "2024-03-02", got.Date.String())
	require.NotNil(t, got.CategoryID)
	assert.Equal(t, catID, got.CategoryID.String())
	require.NotNil(t, got.Category)
	assert.Equal(t, "Food", got.Category.Name)
	assert.Equal(t, "Food", got.CategoryName())
	assert.False(t, got.CreatedAt.IsZero())
}

func TestDecodeTransaction_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		row   Row
		field string
	}{
		{"missing id", Row{"amount": "1", "type": "income", "date": "2024-01-01"}, "id"},
		{"bad id", Row{"id": "nope", "amount": "1", "type": "income", "date": "2024-01-01"}, "id"},
		{"negative amount", Row{"id": txID, "amount": -3.0, "type": "income", "date": "2024-01-01"}, "amount"},
		{"zero amount", Row{"id": txID, "amount": 0.0, "type": "income", "date": "2024-01-01"}, "amount"},
		{"amount wrong type", Row{"id": txID, "amount": true, "type": "income", "date": "2024-01-01"}, "amount"},
		{"bad type", Row{"id": txID, "amount": "1", "type": "transfer", "date": "2024-01-01"}, "type"},
		{"missing date", Row{"id": txID, "amount": "1", "type": "income"}, "date"},
		{"bad date", Row{"id": txID, "amount": "1", "type": "income", "date": "03/02/2024"}, "date"},
		{"category not object", Row{"id": txID, "amount": "1", "type": "income", "date": "2024-01-01", "category": "Food"}, "category"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeTransaction(tt.row)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedRecord), "got %v", err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestDecodeGoal_Defaults(t *testing.T) {
	g, err := DecodeGoal(Row{"id": txID, "name": "Trip", "target_amount": "1000", "current_amount": nil})
	require.NoError(t, err)
	assert.Equal(t, int64(0), g.CurrentAmount.Cents)
	assert.Equal(t, GoalInProgress, g.Status)
	assert.Nil(t, g.Deadline)

	g, err = DecodeGoal(Row{"id": txID, "name": "Trip", "target_amount": 1000.0, "current_amount": 250.0, "deadline": "2025-06-30", "status": "reached"})
	require.NoError(t, err)
	assert.Equal(t, int64(25000), g.CurrentAmount.Cents)
	assert.Equal(t, GoalReached, g.Status)
	require.NotNil(t, g.Deadline)
	assert.Equal(t, "2025-06-30", g.Deadline.String())

	_, err = DecodeGoal(Row{"id": txID, "name": "Trip", "target_amount": "1000", "status": "abandoned"})
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestDecodeProfile(t *testing.T) {
	p, err := DecodeProfile(Row{"user_id": usrID, "full_name": "Ada", "currency": "EUR"})
	require.NoError(t, err)
	assert.Equal(t, ThemeSystem, p.Theme)
	assert.Equal(t, "EUR", p.Currency)

	_, err = DecodeProfile(Row{"user_id": usrID, "theme": "neon"})
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestDecodeRows_SkipsMalformed(t *testing.T) {
	rows := []Row{
		{"id": catID, "name": "Food", "type": "expense"},
		{"id": catID, "name": "", "type": "expense"},
		{"id": catID, "name": "Salary", "type": "income"},
		{"id": catID, "name": 12, "type": "income"},
	}
	got, errs := DecodeRows(rows, DecodeCategory)
	require.Len(t, got, 2)
	assert.Equal(t, "Food", got[0].Name)
	assert.Equal(t, "Salary", got[1].Name)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0].Error(), "row 1")
	assert.Contains(t, errs[1].Error(), "row 3")
}
