package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"finsight/internal/auth"
	"finsight/internal/core"
	"finsight/internal/kv"
)

// SessionKey is the kv key holding the signed-in session.
const SessionKey = "session"

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name,omitempty"`
}

// SignUp registers an account and adopts the returned session token.
func (c *Client) SignUp(ctx context.Context, email, password, fullName string) (auth.Session, error) {
	var sess auth.Session
	err := c.do(ctx, http.MethodPost, "/api/auth/signup", credentials{
		Email:    strings.TrimSpace(email),
		Password: password,
		FullName: strings.TrimSpace(fullName),
	}, &sess)
	if err != nil {
		return auth.Session{}, err
	}
	c.SetToken(sess.AccessToken)
	return sess, nil
}

// SignIn exchanges credentials for a session and adopts its token.
func (c *Client) SignIn(ctx context.Context, email, password string) (auth.Session, error) {
	var sess auth.Session
	err := c.do(ctx, http.MethodPost, "/api/auth/signin", credentials{
		Email:    strings.TrimSpace(email),
		Password: password,
	}, &sess)
	if err != nil {
		return auth.Session{}, err
	}
	c.SetToken(sess.AccessToken)
	return sess, nil
}

// Me returns the user behind the current token.
func (c *Client) Me(ctx context.Context) (core.User, error) {
	var v auth.UserView
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &v); err != nil {
		return core.User{}, err
	}
	return UserOf(v)
}

// UserOf converts the wire form of a user.
func UserOf(v auth.UserView) (core.User, error) {
	id, err := uuid.Parse(v.ID)
	if err != nil {
		return core.User{}, fmt.Errorf("%w: user id: %v", core.ErrMalformedRecord, err)
	}
	return core.User{ID: id, Email: v.Email, FullName: v.FullName}, nil
}

// Sessions persists the signed-in session in a kv store so the terminal
// client survives restarts.
type Sessions struct {
	store kv.Store
	now   func() time.Time
}

func NewSessions(store kv.Store) *Sessions {
	return &Sessions{store: store, now: time.Now}
}

func (s *Sessions) Save(ctx context.Context, sess auth.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, SessionKey, raw)
}

// Load returns the stored session. A missing, unreadable or expired session
// is reported as core.ErrNotAuthenticated.
func (s *Sessions) Load(ctx context.Context) (auth.Session, error) {
	raw, err := s.store.Get(ctx, SessionKey)
	if errors.Is(err, kv.ErrNotFound) {
		return auth.Session{}, fmt.Errorf("%w: not signed in", core.ErrNotAuthenticated)
	}
	if err != nil {
		return auth.Session{}, err
	}
	var sess auth.Session
	if err := json.Unmarshal(raw, &sess); err != nil || sess.AccessToken == "" {
		return auth.Session{}, fmt.Errorf("%w: stored session is unreadable", core.ErrNotAuthenticated)
	}
	if !sess.ExpiresAt.IsZero() && !s.now().Before(sess.ExpiresAt) {
		return auth.Session{}, fmt.Errorf("%w: session expired", core.ErrNotAuthenticated)
	}
	return sess, nil
}

func (s *Sessions) Clear(ctx context.Context) error {
	err := s.store.Delete(ctx, SessionKey)
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	return err
}
