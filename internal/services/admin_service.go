package services

import (
	"context"

	"productdesk/internal/domain"
	"productdesk/internal/repos"
)

// AdminService manages profiles and their roles. Role changes are plain
// writes with no history.
type AdminService struct {
	store *repos.Store
}

func NewAdminService(store *repos.Store) *AdminService { return &AdminService{store: store} }

func (s *AdminService) ListProfiles(ctx context.Context, sess *Session) ([]domain.User, error) {
	if err := sess.requireAdmin(); err != nil {
		return nil, err
	}
	users, err := s.store.Users.List(ctx)
	if err != nil {
		return nil, storeErr("admin.list_profiles", err)
	}
	return users, nil
}

// SetRole changes a profile's role. Admins cannot demote themselves.
func (s *AdminService) SetRole(ctx context.Context, sess *Session, targetID string, role domain.Role) error {
	if err := sess.requireAdmin(); err != nil {
		return err
	}
	if !role.Valid() {
		return invalid("role", "must be viewer or admin")
	}
	if targetID == sess.UserID() && role != domain.RoleAdmin {
		return ErrForbidden
	}
	ok, err := s.store.Users.SetRole(ctx, targetID, role)
	if err != nil {
		return storeErr("admin.set_role", err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// DeleteProfile removes a profile with its sessions and drops every edit
// lock it held.
func (s *AdminService) DeleteProfile(ctx context.Context, sess *Session, targetID string) error {
	if err := sess.requireAdmin(); err != nil {
		return err
	}
	if targetID == sess.UserID() {
		return ErrForbidden
	}
	return storeErr("admin.delete_profile", s.store.InTx(ctx, func(tx *repos.Store) error {
		if _, err := tx.Products.UnlockAllBy(ctx, targetID); err != nil {
			return err
		}
		ok, err := tx.Users.DeleteProfile(ctx, targetID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		return nil
	}))
}
