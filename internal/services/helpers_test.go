package services_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"productdesk/internal/domain"
	"productdesk/internal/events"
	"productdesk/internal/repos"
	"productdesk/internal/services"
)

const t0 = "2025-01-01T00:00:00.000000Z"

type env struct {
	store  *repos.Store
	broker *events.MemoryBroker
	guard  *services.Guard
	ledger *services.Ledger
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := repos.OpenDB("sqlite", ":memory:", false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := repos.NewStore(db)
	ctx := context.Background()
	for _, u := range []domain.User{
		{ID: "alice", Email: "alice@productdesk.test", Role: domain.RoleAdmin},
		{ID: "bob", Email: "bob@productdesk.test", Role: domain.RoleAdmin},
		{ID: "vera", Email: "vera@productdesk.test", Role: domain.RoleViewer},
	} {
		u.Hash, u.CreatedAt = "x", t0
		require.NoError(t, store.Users.Create(ctx, u))
	}
	require.NoError(t, store.Products.Insert(ctx, domain.Product{
		ID: "p1", Title: "Desk Lamp", Price: decimal.RequireFromString("349.00"),
		Status: domain.StatusPublished, CreatedAt: t0, UpdatedAt: t0,
	}))

	b := events.NewMemoryBroker()
	t.Cleanup(func() { _ = b.Close() })
	return &env{store: store, broker: b, guard: services.NewGuard(store, b), ledger: services.NewLedger(store)}
}

func (e *env) session(t *testing.T, userID string) *services.Session {
	t.Helper()
	u, err := e.store.Users.ByID(context.Background(), userID)
	require.NoError(t, err)
	return services.NewSession(e.store.Users, *u)
}

func (e *env) editor(t *testing.T, userID string) *services.Editor {
	return services.NewEditor(e.store, e.guard, e.ledger, e.session(t, userID), e.broker)
}

func (e *env) product(t *testing.T, id string) domain.Product {
	t.Helper()
	p, err := e.store.Products.Get(context.Background(), id)
	require.NoError(t, err)
	return p
}

func (e *env) versions(t *testing.T, id string) []domain.ProductVersion {
	t.Helper()
	vs, err := e.ledger.List(context.Background(), id)
	require.NoError(t, err)
	return vs
}
