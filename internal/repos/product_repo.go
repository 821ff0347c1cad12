package repos

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"productdesk/internal/domain"
)

type ProductRepo struct{ db sqlx.ExtContext }

func NewProductRepo(db sqlx.ExtContext) *ProductRepo { return &ProductRepo{db: db} }

const productCols = `id, title, price, status, created_at, updated_at, locked_by, locked_at`

// Get returns sql.ErrNoRows when the product does not exist.
func (r *ProductRepo) Get(ctx context.Context, id string) (domain.Product, error) {
	var p domain.Product
	err := sqlx.GetContext(ctx, r.db, &p, r.db.Rebind(`SELECT `+productCols+` FROM products WHERE id = ?`), id)
	return p, err
}

type ListFilter struct {
	Q      string // case-insensitive title substring
	Status domain.Status
	Sort   string // created_at | updated_at | title | price
	Desc   bool
	Limit  int
	Offset int
}

var sortable = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"title":      "LOWER(title)",
	"price":      "price",
}

// List returns one page of products plus the total match count.
func (r *ProductRepo) List(ctx context.Context, f ListFilter) ([]domain.Product, int, error) {
	where := `1=1`
	args := []any{}
	if q := strings.TrimSpace(f.Q); q != "" {
		where += ` AND LOWER(title) LIKE ?`
		args = append(args, "%"+strings.ToLower(q)+"%")
	}
	if f.Status != "" {
		where += ` AND status = ?`
		args = append(args, f.Status)
	}

	var total int
	if err := sqlx.GetContext(ctx, r.db, &total, r.db.Rebind(`SELECT COUNT(*) FROM products WHERE `+where), args...); err != nil {
		return nil, 0, err
	}

	col, ok := sortable[f.Sort]
	if !ok {
		col = "created_at"
	}
	dir := "ASC"
	if f.Desc {
		dir = "DESC"
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	q := `SELECT ` + productCols + ` FROM products WHERE ` + where +
		` ORDER BY ` + col + ` ` + dir + `, id ` + dir + ` LIMIT ? OFFSET ?`
	args = append(args, f.Limit, f.Offset)

	out := []domain.Product{}
	if err := sqlx.SelectContext(ctx, r.db, &out, r.db.Rebind(q), args...); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *ProductRepo) Insert(ctx context.Context, p domain.Product) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO products(id, title, price, status, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?)
	`), p.ID, p.Title, p.Price, p.Status, p.CreatedAt, p.UpdatedAt)
	return err
}

// SaveIfFresh writes the editable fields and clears the lock, but only
// while the row still carries expectedUpdatedAt and is locked by editorID.
// p.UpdatedAt is the new token.
func (r *ProductRepo) SaveIfFresh(ctx context.Context, p domain.Product, expectedUpdatedAt, editorID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE products
		SET title = ?, price = ?, status = ?, updated_at = ?, locked_by = NULL, locked_at = NULL
		WHERE id = ? AND updated_at = ? AND locked_by = ?
	`), p.Title, p.Price, p.Status, p.UpdatedAt, p.ID, expectedUpdatedAt, editorID)
	return affectedOne(res, err)
}

// ApplyIfUnchanged writes the editable fields without touching the lock,
// guarded only by the updated_at the caller read.
func (r *ProductRepo) ApplyIfUnchanged(ctx context.Context, p domain.Product, expectedUpdatedAt string) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE products
		SET title = ?, price = ?, status = ?, updated_at = ?
		WHERE id = ? AND updated_at = ?
	`), p.Title, p.Price, p.Status, p.UpdatedAt, p.ID, expectedUpdatedAt)
	return affectedOne(res, err)
}

// TryLock sets locked_by only when nobody holds the lock.
func (r *ProductRepo) TryLock(ctx context.Context, id, editorID, at string) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE products SET locked_by = ?, locked_at = ?
		WHERE id = ? AND locked_by IS NULL
	`), editorID, at, id)
	return affectedOne(res, err)
}

// Unlock clears the lock only when editorID holds it.
func (r *ProductRepo) Unlock(ctx context.Context, id, editorID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE products SET locked_by = NULL, locked_at = NULL
		WHERE id = ? AND locked_by = ?
	`), id, editorID)
	return affectedOne(res, err)
}

// Touch renews the lease of a lock held by editorID.
func (r *ProductRepo) Touch(ctx context.Context, id, editorID, at string) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE products SET locked_at = ?
		WHERE id = ? AND locked_by = ?
	`), at, id, editorID)
	return affectedOne(res, err)
}

// ExpireLocks clears every lock whose lease started before cutoff.
func (r *ProductRepo) ExpireLocks(ctx context.Context, cutoff string) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE products SET locked_by = NULL, locked_at = NULL
		WHERE locked_by IS NOT NULL AND (locked_at IS NULL OR locked_at < ?)
	`), cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UnlockAllBy drops every lock held by editorID.
func (r *ProductRepo) UnlockAllBy(ctx context.Context, editorID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE products SET locked_by = NULL, locked_at = NULL WHERE locked_by = ?
	`), editorID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
