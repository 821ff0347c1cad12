package repos

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
)

// Store groups the repositories over one handle, either the pool or a
// transaction.
type Store struct {
	db       *sqlx.DB
	Products *ProductRepo
	Versions *VersionRepo
	Users    *UserRepo
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{
		db:       db,
		Products: NewProductRepo(db),
		Versions: NewVersionRepo(db),
		Users:    NewUserRepo(db),
	}
}

// InTx runs fn against repositories bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.db == nil {
		return errors.New("repos: nested transaction")
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&Store{
		Products: NewProductRepo(tx),
		Versions: NewVersionRepo(tx),
		Users:    NewUserRepo(tx),
	}); err != nil {
		return err
	}
	return tx.Commit()
}
