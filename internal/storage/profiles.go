package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"finsight/internal/core"
)

const selectProfile = `SELECT user_id, full_name, currency, theme, avatar_url, updated_at FROM profiles`

func scanProfile(r rowScanner) (core.Profile, error) {
	var (
		p       core.Profile
		theme   string
		updated scanTime
	)
	if err := r.Scan(&p.UserID, &p.FullName, &p.Currency, &theme, &p.AvatarURL, &updated); err != nil {
		return core.Profile{}, err
	}
	p.Theme = core.Theme(theme)
	p.UpdatedAt = updated.t
	return p, nil
}

// GetProfile returns core.ErrNotFound when the user has no profile row.
func (s *Store) GetProfile(ctx context.Context, userID uuid.UUID) (core.Profile, error) {
	p, err := scanProfile(s.queryRow(ctx, s.db, selectProfile+` WHERE user_id = ?`, userID))
	if err != nil {
		return core.Profile{}, notFound(err)
	}
	return p, nil
}

// UpdateProfile patches the profile owned by userID, creating it with
// defaults first if it does not exist.
func (s *Store) UpdateProfile(ctx context.Context, userID uuid.UUID, patch core.ProfilePatch) (core.Profile, error) {
	if err := patch.Validate(); err != nil {
		return core.Profile{}, err
	}
	var updated core.Profile
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		cur, err := scanProfile(s.queryRow(ctx, tx, selectProfile+` WHERE user_id = ?`, userID))
		missing := errors.Is(err, sql.ErrNoRows)
		if err != nil && !missing {
			return fmt.Errorf("read profile: %w", err)
		}
		if missing {
			cur = core.Profile{UserID: userID, Currency: "USD", Theme: core.ThemeSystem}
		}
		next := patch.Apply(cur)
		ts, now := s.timestamp()
		next.UpdatedAt = ts

		if missing {
			_, err = s.exec(ctx, tx, `
INSERT INTO profiles (user_id, full_name, currency, theme, avatar_url, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
				userID, next.FullName, next.Currency, string(next.Theme), next.AvatarURL, now)
		} else {
			_, err = s.exec(ctx, tx, `
UPDATE profiles SET full_name = ?, currency = ?, theme = ?, avatar_url = ?, updated_at = ? WHERE user_id = ?`,
				next.FullName, next.Currency, string(next.Theme), next.AvatarURL, now, userID)
		}
		if err != nil {
			return fmt.Errorf("write profile: %w", err)
		}
		updated = next
		return nil
	})
	if err != nil {
		return core.Profile{}, err
	}
	return updated, nil
}
