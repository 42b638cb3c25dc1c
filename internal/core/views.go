package core

import (
	"time"
)

// ProfileView is the wire shape of a profile.
type ProfileView struct {
	UserID    string `json:"user_id"`
	FullName  string `json:"full_name"`
	Currency  string `json:"currency"`
	Theme     Theme  `json:"theme"`
	AvatarURL string `json:"avatar_url,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func ViewOfCategory(c Category) CategoryView {
	return CategoryView{ID: c.ID.String(), Name: c.Name, Icon: c.Icon, Color: c.Color, Type: c.Type}
}

func ViewOfTransaction(tx Transaction) TransactionView {
	v := TransactionView{
		ID:          tx.ID.String(),
		Amount:      tx.Amount,
		Type:        tx.Type,
		Description: tx.Description,
		Date:        tx.Date,
	}
	if tx.CategoryID != nil {
		v.CategoryID = tx.CategoryID.String()
	}
	if tx.Category != nil {
		cv := ViewOfCategory(*tx.Category)
		v.Category = &cv
	}
	if !tx.CreatedAt.IsZero() {
		v.CreatedAt = tx.CreatedAt.UTC().Format(time.RFC3339)
	}
	return v
}

func ViewOfGoal(g Goal) GoalView {
	v := GoalView{
		ID:            g.ID.String(),
		Name:          g.Name,
		TargetAmount:  g.TargetAmount,
		CurrentAmount: g.CurrentAmount,
		Deadline:      g.Deadline,
		Status:        g.Status,
		Icon:          g.Icon,
		Color:         g.Color,
	}
	if !g.CreatedAt.IsZero() {
		v.CreatedAt = g.CreatedAt.UTC().Format(time.RFC3339)
	}
	return v
}

func ViewOfProfile(p Profile) ProfileView {
	v := ProfileView{
		UserID:    p.UserID.String(),
		FullName:  p.FullName,
		Currency:  p.Currency,
		Theme:     p.Theme,
		AvatarURL: p.AvatarURL,
	}
	if !p.UpdatedAt.IsZero() {
		v.UpdatedAt = p.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return v
}
