package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	GoalInProgress GoalStatus = "in_progress"
	GoalReached    GoalStatus = "reached"
	GoalMissed     GoalStatus = "missed"
)

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// OtherCategory is the label used for transactions without a category.
const OtherCategory = "Other"

type (
	TransactionType string
	GoalStatus      string
	Theme           string

	// User is the authenticated identity every read and write is scoped to.
	User struct {
		ID        uuid.UUID
		Email     string
		FullName  string
		CreatedAt time.Time
	}

	Category struct {
		ID     uuid.UUID
		UserID uuid.UUID
		Name   string
		Icon   string
		Color  string
		Type   TransactionType
	}

	Transaction struct {
		ID          uuid.UUID
		UserID      uuid.UUID
		Amount      Money
		Type        TransactionType
		Description string
		Date        Date
		CategoryID  *uuid.UUID
		Category    *Category // joined relation, nil when uncategorized
		CreatedAt   time.Time
	}

	// TransactionInput is what a user submits to create a transaction.
	TransactionInput struct {
		Amount      Money
		Type        TransactionType
		Description string
		Date        Date
		CategoryID  *uuid.UUID
	}

	Goal struct {
		ID            uuid.UUID
		UserID        uuid.UUID
		Name          string
		TargetAmount  Money
		CurrentAmount Money
		Deadline      *Date
		Status        GoalStatus
		Icon          string
		Color         string
		CreatedAt     time.Time
	}

	GoalInput struct {
		Name          string
		TargetAmount  Money
		CurrentAmount Money
		Deadline      *Date
		Icon          string
		Color         string
	}

	// GoalPatch is a partial update; nil fields are left untouched.
	GoalPatch struct {
		Name          *string
		TargetAmount  *Money
		CurrentAmount *Money
		Deadline      *Date
		ClearDeadline bool
		Status        *GoalStatus
		Icon          *string
		Color         *string
	}

	Profile struct {
		UserID    uuid.UUID
		FullName  string
		Currency  string
		Theme     Theme
		AvatarURL string
		UpdatedAt time.Time
	}

	ProfilePatch struct {
		FullName  *string
		Currency  *string
		Theme     *Theme
		AvatarURL *string
	}
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNotFound         = errors.New("not found")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidType      = errors.New("invalid transaction type")
	ErrInvalidStatus    = errors.New("invalid goal status")
	ErrInvalidTheme     = errors.New("invalid theme")
	ErrInvalidCurrency  = errors.New("invalid currency code")
	ErrEmptyName        = errors.New("empty name")
	ErrMalformedRecord  = errors.New("malformed record")
	ErrConflict         = errors.New("already exists")
	ErrInvalidInput     = errors.New("invalid input")
)

// IsValidation reports whether err is caused by invalid user input.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrInvalidInput, ErrInvalidAmount, ErrInvalidType, ErrInvalidStatus,
		ErrInvalidTheme, ErrInvalidCurrency, ErrEmptyName,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (t TransactionType) Validate() error {
	switch t {
	case Income, Expense:
		return nil
	default:
		return ErrInvalidType
	}
}

func (s GoalStatus) Validate() error {
	switch s {
	case GoalInProgress, GoalReached, GoalMissed:
		return nil
	default:
		return ErrInvalidStatus
	}
}

func (t Theme) Validate() error {
	switch t {
	case ThemeLight, ThemeDark, ThemeSystem:
		return nil
	default:
		return ErrInvalidTheme
	}
}

// CategoryName returns the joined category name or OtherCategory.
func (t Transaction) CategoryName() string {
	if t.Category == nil || strings.TrimSpace(t.Category.Name) == "" {
		return OtherCategory
	}
	return t.Category.Name
}

func (in TransactionInput) Validate() error {
	if err := in.Amount.Validate(); err != nil {
		return err
	}
	if err := in.Type.Validate(); err != nil {
		return err
	}
	if err := in.Date.Validate(); err != nil {
		return err
	}
	if len(in.Description) > 200 {
		return fmt.Errorf("%w: description too long (max 200 characters)", ErrInvalidInput)
	}
	return nil
}

func (in GoalInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return ErrEmptyName
	}
	if err := in.TargetAmount.Validate(); err != nil {
		return err
	}
	if in.CurrentAmount.Cents < 0 {
		return ErrInvalidAmount
	}
	if in.Deadline != nil {
		if err := in.Deadline.Validate(); err != nil {
			return fmt.Errorf("invalid deadline: %w", err)
		}
	}
	return nil
}

func (p GoalPatch) Validate() error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return ErrEmptyName
	}
	if p.TargetAmount != nil {
		if err := p.TargetAmount.Validate(); err != nil {
			return err
		}
	}
	if p.CurrentAmount != nil && p.CurrentAmount.Cents < 0 {
		return ErrInvalidAmount
	}
	if p.Status != nil {
		if err := p.Status.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Apply returns a copy of g with the patch applied.
func (p GoalPatch) Apply(g Goal) Goal {
	if p.Name != nil {
		g.Name = *p.Name
	}
	if p.TargetAmount != nil {
		g.TargetAmount = *p.TargetAmount
	}
	if p.CurrentAmount != nil {
		g.CurrentAmount = *p.CurrentAmount
	}
	if p.ClearDeadline {
		g.Deadline = nil
	} else if p.Deadline != nil {
		d := *p.Deadline
		g.Deadline = &d
	}
	if p.Status != nil {
		g.Status = *p.Status
	}
	if p.Icon != nil {
		g.Icon = *p.Icon
	}
	if p.Color != nil {
		g.Color = *p.Color
	}
	return g
}

// IsEmpty reports whether the patch changes nothing.
func (p GoalPatch) IsEmpty() bool {
	return p.Name == nil && p.TargetAmount == nil && p.CurrentAmount == nil &&
		p.Deadline == nil && !p.ClearDeadline && p.Status == nil && p.Icon == nil && p.Color == nil
}

func (p ProfilePatch) Validate() error {
	if p.Theme != nil {
		if err := p.Theme.Validate(); err != nil {
			return err
		}
	}
	if p.Currency != nil {
		c := *p.Currency
		if len(c) != 3 || strings.ToUpper(c) != c {
			return ErrInvalidCurrency
		}
	}
	return nil
}

func (p ProfilePatch) Apply(pr Profile) Profile {
	if p.FullName != nil {
		pr.FullName = *p.FullName
	}
	if p.Currency != nil {
		pr.Currency = *p.Currency
	}
	if p.Theme != nil {
		pr.Theme = *p.Theme
	}
	if p.AvatarURL != nil {
		pr.AvatarURL = *p.AvatarURL
	}
	return pr
}
