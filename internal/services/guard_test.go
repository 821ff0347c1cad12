package services_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"productdesk/internal/repos"
	"productdesk/internal/services"
)

func TestAcquireGrantsOnceAndNamesHolder(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	res, err := e.guard.Acquire(ctx, "p1", "alice")
	require.NoError(t, err)
	require.True(t, res.Granted)

	res, err = e.guard.Acquire(ctx, "p1", "bob")
	require.ErrorIs(t, err, services.ErrLockConflict)
	require.False(t, res.Granted)
	var lc *services.LockConflictError
	require.True(t, errors.As(err, &lc))
	require.Equal(t, "alice", lc.HolderID)
	require.Equal(t, "alice@productdesk.test", lc.HolderEmail)
	require.Contains(t, err.Error(), "alice@productdesk.test")

	// self re-acquire is not granted and not a conflict
	res, err = e.guard.Acquire(ctx, "p1", "alice")
	require.NoError(t, err)
	require.False(t, res.Granted)
	require.Equal(t, "alice", res.HolderID)
}

func TestAcquireMissingProduct(t *testing.T) {
	_, err := newEnv(t).guard.Acquire(context.Background(), "nope", "alice")
	require.ErrorIs(t, err, services.ErrNotFound)
}

func TestConcurrentAcquireHasOneWinner(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	const n = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			res, err := e.guard.Acquire(ctx, "p1", id)
			if err != nil && !errors.Is(err, services.ErrLockConflict) {
				t.Errorf("acquire %s: %v", id, err)
				return
			}
			if res.Granted {
				mu.Lock()
				winners = append(winners, id)
				mu.Unlock()
			}
		}(fmt.Sprintf("editor-%d", i))
	}
	wg.Wait()

	require.Len(t, winners, 1)
	require.Equal(t, winners[0], e.product(t, "p1").Holder())
}

func TestReleaseIsIdempotentAndHolderOnly(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	_, err := e.guard.Acquire(ctx, "p1", "alice")
	require.NoError(t, err)

	require.NoError(t, e.guard.Release(ctx, "p1", "bob"))
	require.Equal(t, "alice", e.product(t, "p1").Holder())

	require.NoError(t, e.guard.Release(ctx, "p1", "alice"))
	require.Nil(t, e.product(t, "p1").LockedBy)

	require.NoError(t, e.guard.Release(ctx, "p1", "alice"))
	require.NoError(t, e.guard.Release(ctx, "nope", "alice"))
	require.Nil(t, e.product(t, "p1").LockedBy)
}

func TestValidateFreshness(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	require.NoError(t, e.guard.ValidateFreshness(ctx, "p1", t0))
	require.NoError(t, e.guard.ValidateFreshness(ctx, "p1", "2025-01-01T00:00:00Z"))
	require.ErrorIs(t, e.guard.ValidateFreshness(ctx, "p1", "2025-01-01T00:00:00.000001Z"), services.ErrStaleWrite)
	require.ErrorIs(t, e.guard.ValidateFreshness(ctx, "p1", "garbage"), services.ErrStaleWrite)
	require.ErrorIs(t, e.guard.ValidateFreshness(ctx, "nope", t0), services.ErrNotFound)
}

func TestHeartbeatAndExpireStale(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	_, err := e.guard.Acquire(ctx, "p1", "alice")
	require.NoError(t, err)

	ok, err := e.guard.Heartbeat(ctx, "p1", "bob")
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = e.guard.Heartbeat(ctx, "p1", "alice")
	require.NoError(t, err)
	require.True(t, ok)

	n, err := e.guard.ExpireStale(ctx, time.Hour)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, "alice", e.product(t, "p1").Holder())

	n, err = e.guard.ExpireStale(ctx, -time.Second)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	require.Nil(t, e.product(t, "p1").LockedBy)
}

func TestStoreFailureIsTyped(t *testing.T) {
	ctx := context.Background()
	db, err := repos.OpenDB("sqlite", ":memory:", false)
	require.NoError(t, err)
	guard := services.NewGuard(repos.NewStore(db), nil)
	require.NoError(t, db.Close())

	_, err = guard.Acquire(ctx, "p1", "alice")
	require.ErrorIs(t, err, services.ErrStoreUnavailable)
	var se *services.StoreError
	require.True(t, errors.As(err, &se))
	require.Equal(t, "guard.acquire", se.Op)
}
