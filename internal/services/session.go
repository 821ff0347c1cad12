package services

import (
	"context"
	"sync"

	"productdesk/internal/domain"
	"productdesk/internal/repos"
)

// Session is the signed-in user as one request or one poller sees it.
// Role is re-read with Refresh; nothing else in the package reads the
// current user from anywhere but here.
type Session struct {
	users *repos.UserRepo

	mu   sync.RWMutex
	user domain.User
}

func NewSession(users *repos.UserRepo, u domain.User) *Session {
	return &Session{users: users, user: u}
}

func (s *Session) UserID() string { return s.user.ID }
func (s *Session) Email() string  { return s.user.Email }

func (s *Session) Role() domain.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user.Role
}

func (s *Session) IsAdmin() bool { return s.Role() == domain.RoleAdmin }

func (s *Session) User() domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// Refresh re-reads the role from the store. A deleted profile reports
// ErrNotFound and drops the session to viewer.
func (s *Session) Refresh(ctx context.Context) (domain.Role, error) {
	role, err := s.users.Role(ctx, s.user.ID)
	if err != nil {
		err = storeErr("session.refresh", err)
		if err == ErrNotFound {
			s.setRole(domain.RoleViewer)
		}
		return s.Role(), err
	}
	s.setRole(role)
	return role, nil
}

func (s *Session) setRole(r domain.Role) {
	s.mu.Lock()
	s.user.Role = r
	s.mu.Unlock()
}

func (s *Session) requireAdmin() error {
	if !s.IsAdmin() {
		return ErrForbidden
	}
	return nil
}
