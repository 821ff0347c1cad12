package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"productdesk/internal/domain"
	"productdesk/internal/events"
	applog "productdesk/internal/log"
	"productdesk/internal/repos"
)

type LockResult struct {
	Granted     bool   `json:"granted"`
	HolderID    string `json:"holder_id,omitempty"`
	HolderEmail string `json:"holder_email,omitempty"`
}

// Guard is the advisory edit lock plus the updated_at freshness check.
// The lock is cooperative: writes that skip the guard are still accepted
// by the store.
type Guard struct {
	store  *repos.Store
	events events.Broker
	now    func() time.Time
}

func NewGuard(store *repos.Store, broker events.Broker) *Guard {
	return &Guard{store: store, events: broker, now: time.Now}
}

// Acquire moves locked_by from NULL to editorID. On failure the holder is
// read back separately, so the name in the conflict can be one step
// behind; it is only used for the notice.
func (g *Guard) Acquire(ctx context.Context, productID, editorID string) (LockResult, error) {
	ok, err := g.store.Products.TryLock(ctx, productID, editorID, domain.FormatTime(g.now()))
	if err != nil {
		return LockResult{}, storeErr("guard.acquire", err)
	}
	if ok {
		g.publish(ctx, events.ProductLocked, productID, editorID)
		return LockResult{Granted: true, HolderID: editorID}, nil
	}

	p, err := g.store.Products.Get(ctx, productID)
	if err != nil {
		return LockResult{}, storeErr("guard.acquire", err)
	}
	holder := p.Holder()
	if holder == editorID {
		return LockResult{HolderID: editorID}, nil
	}
	res := LockResult{HolderID: holder}
	if holder != "" {
		if u, err := g.store.Users.ByID(ctx, holder); err == nil {
			res.HolderEmail = u.Email
		}
	}
	return res, &LockConflictError{HolderID: res.HolderID, HolderEmail: res.HolderEmail}
}

// Release clears the lock only when editorID holds it. Releasing a lock
// that is absent or held by someone else changes nothing.
func (g *Guard) Release(ctx context.Context, productID, editorID string) error {
	ok, err := g.store.Products.Unlock(ctx, productID, editorID)
	if err != nil {
		return storeErr("guard.release", err)
	}
	if ok {
		g.publish(ctx, events.ProductUnlocked, productID, editorID)
	}
	return nil
}

// ValidateFreshness fails with ErrStaleWrite unless the stored updated_at
// equals expectedUpdatedAt exactly.
func (g *Guard) ValidateFreshness(ctx context.Context, productID, expectedUpdatedAt string) error {
	p, err := g.store.Products.Get(ctx, productID)
	if err != nil {
		return storeErr("guard.validate_freshness", err)
	}
	if !sameToken(p.UpdatedAt, expectedUpdatedAt) {
		return ErrStaleWrite
	}
	return nil
}

// Heartbeat renews the lease of a lock editorID holds.
func (g *Guard) Heartbeat(ctx context.Context, productID, editorID string) (bool, error) {
	ok, err := g.store.Products.Touch(ctx, productID, editorID, domain.FormatTime(g.now()))
	if err != nil {
		return false, storeErr("guard.heartbeat", err)
	}
	return ok, nil
}

// ExpireStale drops locks whose lease is older than ttl.
func (g *Guard) ExpireStale(ctx context.Context, ttl time.Duration) (int64, error) {
	n, err := g.store.Products.ExpireLocks(ctx, domain.FormatTime(g.now().Add(-ttl)))
	if err != nil {
		return 0, storeErr("guard.expire", err)
	}
	return n, nil
}

func (g *Guard) publish(ctx context.Context, t events.Type, productID, actorID string) {
	publish(ctx, g.events, events.Event{Type: t, ProductID: productID, ActorID: actorID})
}

// sameToken compares two updated_at values at microsecond resolution,
// accepting RFC3339 input for the expected side.
func sameToken(stored, expected string) bool {
	if stored == expected {
		return true
	}
	t, err := domain.ParseTime(expected)
	if err != nil {
		return false
	}
	return domain.FormatTime(t) == stored && t.Equal(t.Truncate(time.Microsecond))
}

func publish(ctx context.Context, b events.Broker, e events.Event) {
	if b == nil {
		return
	}
	if err := b.Publish(context.WithoutCancel(ctx), e); err != nil {
		applog.L().Warn("events.publish.fail",
			zap.String("type", string(e.Type)), zap.String("product_id", e.ProductID), zap.Error(err))
	}
}
