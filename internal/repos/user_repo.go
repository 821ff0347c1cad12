package repos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"productdesk/internal/domain"
)

type UserRepo struct{ db sqlx.ExtContext }

func NewUserRepo(db sqlx.ExtContext) *UserRepo { return &UserRepo{db: db} }

const profileCols = `id, email, password_hash, role, created_at`

func (r *UserRepo) ByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := sqlx.GetContext(ctx, r.db, &u, r.db.Rebind(`SELECT `+profileCols+` FROM profiles WHERE LOWER(email)=LOWER(?)`), email)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) ByID(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	err := sqlx.GetContext(ctx, r.db, &u, r.db.Rebind(`SELECT `+profileCols+` FROM profiles WHERE id=?`), id)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Role returns only the role column; the poller reads it every tick.
func (r *UserRepo) Role(ctx context.Context, id string) (domain.Role, error) {
	var role domain.Role
	err := sqlx.GetContext(ctx, r.db, &role, r.db.Rebind(`SELECT role FROM profiles WHERE id=?`), id)
	return role, err
}

func (r *UserRepo) Create(ctx context.Context, u domain.User) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO profiles(id,email,password_hash,role,created_at) VALUES(?,?,?,?,?)
	`), u.ID, u.Email, u.Hash, u.Role, u.CreatedAt)
	return err
}

func (r *UserRepo) List(ctx context.Context) ([]domain.User, error) {
	out := []domain.User{}
	err := sqlx.SelectContext(ctx, r.db, &out, `SELECT `+profileCols+` FROM profiles ORDER BY LOWER(email)`)
	return out, err
}

func (r *UserRepo) SetRole(ctx context.Context, id string, role domain.Role) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE profiles SET role=? WHERE id=?`), role, id)
	return affectedOne(res, err)
}

func (r *UserRepo) CountAdmins(ctx context.Context) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, r.db, &n, `SELECT COUNT(*) FROM profiles WHERE role='admin'`)
	return n, err
}

func (r *UserRepo) BindSession(ctx context.Context, sid, userID string) error {
	now := domain.FormatTime(time.Now())
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO sessions(id,user_id,created_at,last_seen)
                          VALUES(?,?,?,?)
                          ON CONFLICT(id) DO UPDATE SET user_id=excluded.user_id,last_seen=excluded.last_seen`), sid, userID, now, now)
	return err
}

func (r *UserRepo) SessionUser(ctx context.Context, sid string) (*domain.User, error) {
	var u domain.User
	err := sqlx.GetContext(ctx, r.db, &u, r.db.Rebind(`
      SELECT u.id,u.email,u.password_hash,u.role,u.created_at
      FROM sessions s
      JOIN profiles u ON u.id=s.user_id
      WHERE s.id=?`), sid)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) UnbindSession(ctx context.Context, sid string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE sessions SET user_id=NULL,last_seen=? WHERE id=?`),
		domain.FormatTime(time.Now()), sid)
	return err
}

// DeleteProfile removes the profile and its sessions. Versions it saved
// keep its id for audit.
func (r *UserRepo) DeleteProfile(ctx context.Context, userID string) (bool, error) {
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM sessions WHERE user_id=?`), userID); err != nil {
		return false, err
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM profiles WHERE id=?`), userID)
	return affectedOne(res, err)
}
