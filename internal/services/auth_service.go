package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"productdesk/internal/domain"
	"productdesk/internal/repos"
	"productdesk/internal/validate"
)

type AuthService struct {
	Users *repos.UserRepo
}

func NewAuthService(users *repos.UserRepo) *AuthService { return &AuthService{Users: users} }

func (s *AuthService) Login(ctx context.Context, sid, email, password string) (*domain.User, error) {
	u, err := s.Users.ByEmail(ctx, email)
	if err != nil {
		return nil, ErrBadCreds
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Hash), []byte(password)) != nil {
		return nil, ErrBadCreds
	}
	if err := s.Users.BindSession(ctx, sid, u.ID); err != nil {
		return nil, storeErr("auth.login", err)
	}
	return u, nil
}

// SignUp creates a viewer profile and signs it in on sid.
func (s *AuthService) SignUp(ctx context.Context, sid, email, password string) (*domain.User, error) {
	email, ok := validate.Email(email)
	if !ok {
		return nil, invalid("email", "is invalid")
	}
	if !validate.Password(password) {
		return nil, invalid("password", "needs 8+ characters with upper, lower, digit and symbol")
	}
	if _, err := s.Users.ByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := domain.User{
		ID:        uuid.NewString(),
		Email:     strings.ToLower(email),
		Hash:      string(hash),
		Role:      domain.RoleViewer,
		CreatedAt: domain.FormatTime(time.Now()),
	}
	if err := s.Users.Create(ctx, u); err != nil {
		return nil, storeErr("auth.signup", err)
	}
	if err := s.Users.BindSession(ctx, sid, u.ID); err != nil {
		return nil, storeErr("auth.signup", err)
	}
	return &u, nil
}

func (s *AuthService) Logout(ctx context.Context, sid string) error {
	return storeErr("auth.logout", s.Users.UnbindSession(ctx, sid))
}

func (s *AuthService) CurrentUser(ctx context.Context, sid string) (*domain.User, error) {
	u, err := s.Users.SessionUser(ctx, sid)
	if err != nil {
		return nil, storeErr("auth.current_user", err)
	}
	return u, nil
}

// Session returns the session context for the user signed in on sid.
func (s *AuthService) Session(ctx context.Context, sid string) (*Session, error) {
	u, err := s.CurrentUser(ctx, sid)
	if err != nil {
		return nil, err
	}
	return NewSession(s.Users, *u), nil
}
