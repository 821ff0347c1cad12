package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"productdesk/internal/domain"
	"productdesk/internal/events"
	"productdesk/internal/services"
)

var lampV2 = services.ProductInput{Title: "Desk Lamp v2", Price: "399.99", Status: "draft"}

func TestSaveSnapshotsPriorStateAndReleases(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	ed := e.editor(t, "alice")

	res, err := ed.BeginEdit(ctx, "p1")
	require.NoError(t, err)
	require.True(t, res.Granted)

	saved, err := ed.Save(ctx, "p1", t0, lampV2)
	require.NoError(t, err)
	require.Equal(t, "Desk Lamp v2", saved.Title)
	require.True(t, saved.Price.Equal(decimal.RequireFromString("399.99")))
	require.Equal(t, domain.StatusDraft, saved.Status)
	require.Greater(t, saved.UpdatedAt, t0)
	require.Nil(t, saved.LockedBy)

	stored := e.product(t, "p1")
	require.Equal(t, saved.UpdatedAt, stored.UpdatedAt)
	require.Nil(t, stored.LockedBy)

	vs := e.versions(t, "p1")
	require.Len(t, vs, 1)
	require.Equal(t, "Desk Lamp", vs[0].Title)
	require.True(t, vs[0].Price.Equal(decimal.NewFromInt(349)))
	require.Equal(t, domain.StatusPublished, vs[0].Status)
	require.Equal(t, "alice", vs[0].SavedBy)
}

func TestSaveKeepsStatusWhenOmitted(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	ed := e.editor(t, "alice")

	_, err := ed.BeginEdit(ctx, "p1")
	require.NoError(t, err)
	saved, err := ed.Save(ctx, "p1", t0, services.ProductInput{Title: "Lamp", Price: "1"})
	require.NoError(t, err)
	require.Equal(t, domain.StatusPublished, saved.Status)
}

func TestStaleSaveNeverMutates(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	ed := e.editor(t, "alice")

	_, err := ed.BeginEdit(ctx, "p1")
	require.NoError(t, err)

	got, err := ed.Save(ctx, "p1", "2024-12-31T23:59:59.999999Z", lampV2)
	require.ErrorIs(t, err, services.ErrStaleWrite)
	require.Equal(t, "Desk Lamp", got.Title)
	require.Equal(t, t0, got.UpdatedAt)

	stored := e.product(t, "p1")
	require.Equal(t, "Desk Lamp", stored.Title)
	require.Equal(t, t0, stored.UpdatedAt)
	require.Nil(t, stored.LockedBy, "stale save exits edit mode")
	require.Empty(t, e.versions(t, "p1"))
}

func TestSaveWithoutLock(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	_, err := e.editor(t, "alice").Save(ctx, "p1", t0, lampV2)
	require.ErrorIs(t, err, services.ErrLockNotHeld)

	_, err = e.editor(t, "bob").BeginEdit(ctx, "p1")
	require.NoError(t, err)
	_, err = e.editor(t, "alice").Save(ctx, "p1", t0, lampV2)
	require.ErrorIs(t, err, services.ErrLockConflict)

	require.Equal(t, "Desk Lamp", e.product(t, "p1").Title)
	require.Equal(t, "bob", e.product(t, "p1").Holder())
	require.Empty(t, e.versions(t, "p1"))
}

func TestSaveRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	ed := e.editor(t, "alice")
	_, err := ed.BeginEdit(ctx, "p1")
	require.NoError(t, err)

	_, err = ed.Save(ctx, "p1", t0, services.ProductInput{Title: " ", Price: "-1", Status: "gone"})
	require.ErrorIs(t, err, services.ErrInvalidInput)
	var ve *services.ValidationError
	require.True(t, errors.As(err, &ve))
	require.Contains(t, ve.Fields, "title")
	require.Contains(t, ve.Fields, "price")
	require.Contains(t, ve.Fields, "status")
	require.Equal(t, "alice", e.product(t, "p1").Holder())
}

func TestViewerCannotEdit(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	ed := e.editor(t, "vera")

	_, err := ed.BeginEdit(ctx, "p1")
	require.ErrorIs(t, err, services.ErrForbidden)
	_, err = ed.Save(ctx, "p1", t0, lampV2)
	require.ErrorIs(t, err, services.ErrForbidden)
	_, err = ed.Versions(ctx, "p1")
	require.ErrorIs(t, err, services.ErrForbidden)
	require.Nil(t, e.product(t, "p1").LockedBy)
}

// A acquires, B is denied with A named, A saves and releases, B acquires.
func TestScenarioHandOffBetweenEditors(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	a, b := e.editor(t, "alice"), e.editor(t, "bob")

	res, err := a.BeginEdit(ctx, "p1")
	require.NoError(t, err)
	require.True(t, res.Granted)

	res, err = b.BeginEdit(ctx, "p1")
	require.False(t, res.Granted)
	var lc *services.LockConflictError
	require.True(t, errors.As(err, &lc))
	require.Equal(t, "alice@productdesk.test", lc.HolderEmail)

	saved, err := a.Save(ctx, "p1", t0, lampV2)
	require.NoError(t, err)
	require.Greater(t, saved.UpdatedAt, t0)
	require.Len(t, e.versions(t, "p1"), 1)
	require.NoError(t, a.CancelEdit(ctx, "p1"))

	res, err = b.BeginEdit(ctx, "p1")
	require.NoError(t, err)
	require.True(t, res.Granted)
}

// A opens the form at T0, a raw restore moves the product to T1, A's save
// is rejected and A sees the restored state.
func TestScenarioRestoreMakesOpenFormStale(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	a := e.editor(t, "alice")

	v, err := e.ledger.Snapshot(ctx, "p1", "bob")
	require.NoError(t, err)
	p := e.product(t, "p1")
	p.Title, p.UpdatedAt = "Desk Lamp (sale)", "2025-01-01T00:00:00.500000Z"
	ok, err := e.store.Products.ApplyIfUnchanged(ctx, p, t0)
	require.NoError(t, err)
	require.True(t, ok)
	loadedAt := p.UpdatedAt

	_, err = a.BeginEdit(ctx, "p1")
	require.NoError(t, err)

	restored, err := e.ledger.Restore(ctx, v.ID)
	require.NoError(t, err)
	require.Greater(t, restored.UpdatedAt, loadedAt)

	got, err := a.Save(ctx, "p1", loadedAt, lampV2)
	require.ErrorIs(t, err, services.ErrStaleWrite)
	require.Equal(t, "Desk Lamp", got.Title)
	require.Equal(t, restored.UpdatedAt, got.UpdatedAt)
	require.Len(t, e.versions(t, "p1"), 1)
}

func TestGuardedRestore(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	a, b := e.editor(t, "alice"), e.editor(t, "bob")

	_, err := a.BeginEdit(ctx, "p1")
	require.NoError(t, err)
	_, err = a.Save(ctx, "p1", t0, lampV2)
	require.NoError(t, err)
	v := e.versions(t, "p1")[0]

	_, err = a.BeginEdit(ctx, "p1")
	require.NoError(t, err)

	_, err = b.Restore(ctx, "p1", v.ID)
	require.ErrorIs(t, err, services.ErrLockConflict)
	require.Equal(t, "Desk Lamp v2", e.product(t, "p1").Title)

	_, err = b.Restore(ctx, "other", v.ID)
	require.ErrorIs(t, err, services.ErrNotFound)

	got, err := a.Restore(ctx, "p1", v.ID)
	require.NoError(t, err)
	require.Equal(t, "Desk Lamp", got.Title)
	require.Len(t, e.versions(t, "p1"), 1)
}

func TestDeleteVersionChecksProduct(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	v, err := e.ledger.Snapshot(ctx, "p1", "alice")
	require.NoError(t, err)

	ed := e.editor(t, "alice")
	require.ErrorIs(t, ed.DeleteVersion(ctx, "other", v.ID), services.ErrNotFound)
	require.ErrorIs(t, e.editor(t, "vera").DeleteVersion(ctx, "p1", v.ID), services.ErrForbidden)
	require.NoError(t, ed.DeleteVersion(ctx, "p1", v.ID))
	require.ErrorIs(t, ed.DeleteVersion(ctx, "p1", v.ID), services.ErrNotFound)
}

func TestSavePublishesEvent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e := newEnv(t)

	got := make(chan string, 8)
	require.NoError(t, e.broker.Subscribe(ctx, func(_ context.Context, ev events.Event) { got <- string(ev.Type) }))

	ed := e.editor(t, "alice")
	_, err := ed.BeginEdit(ctx, "p1")
	require.NoError(t, err)
	_, err = ed.Save(ctx, "p1", t0, lampV2)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(got) >= 2 }, time.Second, 5*time.Millisecond)
	require.Equal(t, "product.locked", <-got)
	require.Equal(t, "product.updated", <-got)
}
