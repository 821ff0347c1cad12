package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"productdesk/internal/domain"
	"productdesk/internal/repos"
)

// Ledger keeps the append-only history of prior product states.
type Ledger struct {
	store *repos.Store
	now   func() time.Time
}

func NewLedger(store *repos.Store) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

// Snapshot archives the persisted state of the product as a new version.
// Callers run it right before the update it precedes.
func (l *Ledger) Snapshot(ctx context.Context, productID, actorID string) (domain.ProductVersion, error) {
	p, err := l.store.Products.Get(ctx, productID)
	if err != nil {
		return domain.ProductVersion{}, storeErr("ledger.snapshot", err)
	}
	return l.snapshot(ctx, l.store, p, actorID)
}

func (l *Ledger) snapshot(ctx context.Context, s *repos.Store, p domain.Product, actorID string) (domain.ProductVersion, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return domain.ProductVersion{}, err
	}
	v := domain.ProductVersion{
		ID:        id.String(),
		ProductID: p.ID,
		Title:     p.Title,
		Price:     p.Price,
		Status:    p.Status,
		SavedBy:   actorID,
		SavedAt:   domain.FormatTime(l.now()),
	}
	if err := s.Versions.Insert(ctx, v); err != nil {
		return domain.ProductVersion{}, storeErr("ledger.snapshot", err)
	}
	return v, nil
}

// List returns the product's versions, newest first.
func (l *Ledger) List(ctx context.Context, productID string) ([]domain.ProductVersion, error) {
	vs, err := l.store.Versions.ListByProduct(ctx, productID)
	if err != nil {
		return nil, storeErr("ledger.list", err)
	}
	return vs, nil
}

func (l *Ledger) Get(ctx context.Context, versionID string) (domain.ProductVersion, error) {
	v, err := l.store.Versions.Get(ctx, versionID)
	if err != nil {
		return domain.ProductVersion{}, storeErr("ledger.get", err)
	}
	return v, nil
}

// Restore writes the version's title, price and status back onto the live
// product and advances updated_at. It neither checks the edit lock nor
// records a version for the state it overwrites.
func (l *Ledger) Restore(ctx context.Context, versionID string) (domain.Product, error) {
	var out domain.Product
	err := l.store.InTx(ctx, func(tx *repos.Store) error {
		v, err := tx.Versions.Get(ctx, versionID)
		if err != nil {
			return storeErr("ledger.restore", err)
		}
		p, err := tx.Products.Get(ctx, v.ProductID)
		if err != nil {
			return storeErr("ledger.restore", err)
		}
		out, err = l.apply(ctx, tx, p, v)
		return err
	})
	if err != nil {
		return domain.Product{}, storeErr("ledger.restore", err)
	}
	return out, nil
}

func (l *Ledger) apply(ctx context.Context, s *repos.Store, p domain.Product, v domain.ProductVersion) (domain.Product, error) {
	prev := p.UpdatedAt
	p.Title, p.Price, p.Status = v.Title, v.Price, v.Status
	p.UpdatedAt = domain.NextTimestamp(l.now(), prev)
	ok, err := s.Products.ApplyIfUnchanged(ctx, p, prev)
	if err != nil {
		return domain.Product{}, storeErr("ledger.restore", err)
	}
	if !ok {
		return domain.Product{}, ErrStaleWrite
	}
	return p, nil
}

// Delete removes one version permanently.
func (l *Ledger) Delete(ctx context.Context, versionID string) error {
	return storeErr("ledger.delete", l.store.Versions.Delete(ctx, versionID))
}
