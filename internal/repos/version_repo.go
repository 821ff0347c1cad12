package repos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"productdesk/internal/domain"
)

type VersionRepo struct{ db sqlx.ExtContext }

func NewVersionRepo(db sqlx.ExtContext) *VersionRepo { return &VersionRepo{db: db} }

func (r *VersionRepo) Insert(ctx context.Context, v domain.ProductVersion) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO product_versions(id, product_id, title, price, status, saved_by, saved_at)
		VALUES(?, ?, ?, ?, ?, ?, ?)
	`), v.ID, v.ProductID, v.Title, v.Price, v.Status, v.SavedBy, v.SavedAt)
	return err
}

// ListByProduct returns the product's versions, newest first.
func (r *VersionRepo) ListByProduct(ctx context.Context, productID string) ([]domain.ProductVersion, error) {
	out := []domain.ProductVersion{}
	err := sqlx.SelectContext(ctx, r.db, &out, r.db.Rebind(`
		SELECT id, product_id, title, price, status, saved_by, saved_at
		FROM product_versions
		WHERE product_id = ?
		ORDER BY saved_at DESC, id DESC
	`), productID)
	return out, err
}

func (r *VersionRepo) Get(ctx context.Context, id string) (domain.ProductVersion, error) {
	var v domain.ProductVersion
	err := sqlx.GetContext(ctx, r.db, &v, r.db.Rebind(`
		SELECT id, product_id, title, price, status, saved_by, saved_at
		FROM product_versions WHERE id = ?
	`), id)
	return v, err
}

// Delete returns sql.ErrNoRows when nothing was removed.
func (r *VersionRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM product_versions WHERE id = ?`), id)
	ok, err := affectedOne(res, err)
	if err != nil {
		return err
	}
	if !ok {
		return sql.ErrNoRows
	}
	return nil
}

func (r *VersionRepo) CountByProduct(ctx context.Context, productID string) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, r.db, &n, r.db.Rebind(`SELECT COUNT(*) FROM product_versions WHERE product_id = ?`), productID)
	return n, err
}

func affectedOne(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
