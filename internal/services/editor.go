package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"productdesk/internal/domain"
	"productdesk/internal/events"
	applog "productdesk/internal/log"
	"productdesk/internal/repos"
)

// Editor runs the edit workflow of one session: lock, save with a
// freshness check and snapshot, restore, version housekeeping.
type Editor struct {
	store   *repos.Store
	guard   *Guard
	ledger  *Ledger
	session *Session
	events  events.Broker
	now     func() time.Time
}

func NewEditor(store *repos.Store, guard *Guard, ledger *Ledger, session *Session, broker events.Broker) *Editor {
	return &Editor{store: store, guard: guard, ledger: ledger, session: session, events: broker, now: time.Now}
}

// BeginEdit takes the lock for the session user.
func (e *Editor) BeginEdit(ctx context.Context, productID string) (LockResult, error) {
	if err := e.session.requireAdmin(); err != nil {
		return LockResult{}, err
	}
	return e.guard.Acquire(ctx, productID, e.session.UserID())
}

// CancelEdit gives the lock back; a no-op when the session does not hold it.
func (e *Editor) CancelEdit(ctx context.Context, productID string) error {
	return e.guard.Release(ctx, productID, e.session.UserID())
}

// Save commits in against the product the caller loaded at
// expectedUpdatedAt. The prior state is snapshotted and the lock cleared
// in the same transaction as the update. On ErrStaleWrite nothing is
// written, the lock is released and the current product is returned
// alongside the error.
func (e *Editor) Save(ctx context.Context, productID, expectedUpdatedAt string, in ProductInput) (domain.Product, error) {
	if err := e.session.requireAdmin(); err != nil {
		return domain.Product{}, err
	}
	title, price, status, err := in.normalize()
	if err != nil {
		return domain.Product{}, err
	}
	editorID := e.session.UserID()

	if err := e.guard.ValidateFreshness(ctx, productID, expectedUpdatedAt); err != nil {
		if errors.Is(err, ErrStaleWrite) {
			return e.stale(ctx, productID)
		}
		return domain.Product{}, err
	}

	var saved domain.Product
	err = e.store.InTx(ctx, func(tx *repos.Store) error {
		cur, err := tx.Products.Get(ctx, productID)
		if err != nil {
			return storeErr("editor.save", err)
		}
		if !sameToken(cur.UpdatedAt, expectedUpdatedAt) {
			return ErrStaleWrite
		}
		switch holder := cur.Holder(); holder {
		case editorID:
		case "":
			return ErrLockNotHeld
		default:
			return &LockConflictError{HolderID: holder}
		}

		if _, err := e.ledger.snapshot(ctx, tx, cur, editorID); err != nil {
			return err
		}

		next := cur
		next.Title, next.Price = title, price
		if status != "" {
			next.Status = status
		}
		next.UpdatedAt = domain.NextTimestamp(e.now(), cur.UpdatedAt)
		next.LockedBy, next.LockedAt = nil, nil
		ok, err := tx.Products.SaveIfFresh(ctx, next, cur.UpdatedAt, editorID)
		if err != nil {
			return storeErr("editor.save", err)
		}
		if !ok {
			return ErrStaleWrite
		}
		saved = next
		return nil
	})
	switch {
	case errors.Is(err, ErrStaleWrite):
		return e.stale(ctx, productID)
	case err != nil:
		return domain.Product{}, storeErr("editor.save", err)
	}

	publish(ctx, e.events, events.Event{
		Type: events.ProductUpdated, ProductID: productID, ActorID: editorID, UpdatedAt: saved.UpdatedAt,
	})
	return saved, nil
}

// stale drops the lock and hands back the canonical row with ErrStaleWrite.
func (e *Editor) stale(ctx context.Context, productID string) (domain.Product, error) {
	if err := e.guard.Release(ctx, productID, e.session.UserID()); err != nil {
		applog.L().Warn("editor.stale.release.fail", zap.String("product_id", productID), zap.Error(err))
	}
	p, err := e.store.Products.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, storeErr("editor.refetch", err)
	}
	return p, ErrStaleWrite
}

// Restore applies a version onto the product. It is refused while another
// session holds the lock and records no version of its own.
func (e *Editor) Restore(ctx context.Context, productID, versionID string) (domain.Product, error) {
	if err := e.session.requireAdmin(); err != nil {
		return domain.Product{}, err
	}
	var out domain.Product
	err := e.store.InTx(ctx, func(tx *repos.Store) error {
		v, err := tx.Versions.Get(ctx, versionID)
		if err != nil {
			return storeErr("editor.restore", err)
		}
		if v.ProductID != productID {
			return ErrNotFound
		}
		p, err := tx.Products.Get(ctx, productID)
		if err != nil {
			return storeErr("editor.restore", err)
		}
		if holder := p.Holder(); holder != "" && holder != e.session.UserID() {
			conflict := &LockConflictError{HolderID: holder}
			if u, err := tx.Users.ByID(ctx, holder); err == nil {
				conflict.HolderEmail = u.Email
			}
			return conflict
		}
		out, err = e.ledger.apply(ctx, tx, p, v)
		return err
	})
	if err != nil {
		return domain.Product{}, storeErr("editor.restore", err)
	}
	publish(ctx, e.events, events.Event{
		Type: events.ProductRestored, ProductID: productID, ActorID: e.session.UserID(), UpdatedAt: out.UpdatedAt,
	})
	return out, nil
}

// Versions lists the history of a product, newest first.
func (e *Editor) Versions(ctx context.Context, productID string) ([]domain.ProductVersion, error) {
	if err := e.session.requireAdmin(); err != nil {
		return nil, err
	}
	if _, err := e.store.Products.Get(ctx, productID); err != nil {
		return nil, storeErr("editor.versions", err)
	}
	return e.ledger.List(ctx, productID)
}

func (e *Editor) DeleteVersion(ctx context.Context, productID, versionID string) error {
	if err := e.session.requireAdmin(); err != nil {
		return err
	}
	v, err := e.ledger.Get(ctx, versionID)
	if err != nil {
		return err
	}
	if v.ProductID != productID {
		return ErrNotFound
	}
	if err := e.ledger.Delete(ctx, versionID); err != nil {
		return err
	}
	publish(ctx, e.events, events.Event{Type: events.VersionDeleted, ProductID: productID, ActorID: e.session.UserID()})
	return nil
}
