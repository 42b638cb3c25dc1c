package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"finsight/internal/core"
	"finsight/internal/log"
)

// UserStore is the slice of the table store the identity provider needs.
type UserStore interface {
	CreateUser(ctx context.Context, email, fullName, passwordHash string) (core.User, error)
	UserByEmail(ctx context.Context, email string) (core.User, string, error)
	UserByID(ctx context.Context, id uuid.UUID) (core.User, error)
}

// Session is what signup and signin hand back to the client.
type Session struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        UserView  `json:"user"`
}

type UserView struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
}

func ViewOfUser(u core.User) UserView {
	return UserView{ID: u.ID.String(), Email: u.Email, FullName: u.FullName}
}

type Service struct {
	users  UserStore
	issuer *Issuer
	logger *log.Logger
}

func NewService(users UserStore, issuer *Issuer, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Discard()
	}
	return &Service{users: users, issuer: issuer, logger: logger.WithComponent(log.ComponentAuth)}
}

func (s *Service) Issuer() *Issuer { return s.issuer }

// SignUp creates the account and returns a session for it.
func (s *Service) SignUp(ctx context.Context, email, password, fullName string) (Session, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return Session{}, fmt.Errorf("%w: invalid email address", core.ErrInvalidInput)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return Session{}, err
	}
	user, err := s.users.CreateUser(ctx, addr.Address, strings.TrimSpace(fullName), hash)
	if err != nil {
		return Session{}, err
	}
	s.logger.InfoContext(ctx, "User signed up", log.FieldUserID, user.ID.String())
	return s.session(user)
}

// SignIn checks the credentials. Unknown email and wrong password are
// indistinguishable to the caller.
func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	user, hash, err := s.users.UserByEmail(ctx, email)
	if errors.Is(err, core.ErrNotFound) {
		return Session{}, fmt.Errorf("%w: invalid email or password", core.ErrNotAuthenticated)
	}
	if err != nil {
		return Session{}, err
	}
	if !CheckPassword(hash, password) {
		s.logger.WarnContext(ctx, "Sign-in rejected", log.FieldUserID, user.ID.String())
		return Session{}, fmt.Errorf("%w: invalid email or password", core.ErrNotAuthenticated)
	}
	return s.session(user)
}

// Me returns the user behind an authenticated request.
func (s *Service) Me(ctx context.Context, userID uuid.UUID) (core.User, error) {
	user, err := s.users.UserByID(ctx, userID)
	if errors.Is(err, core.ErrNotFound) {
		return core.User{}, core.ErrNotAuthenticated
	}
	return user, err
}

func (s *Service) session(user core.User) (Session, error) {
	token, exp, err := s.issuer.Issue(user)
	if err != nil {
		return Session{}, err
	}
	return Session{AccessToken: token, ExpiresAt: exp, User: ViewOfUser(user)}, nil
}
