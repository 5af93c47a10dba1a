package wallet

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/poker-table-coordinator/internal/model"
)

func newAuthorizer(t *testing.T, initial int64) (*Authorizer, *MemoryLedger, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	l := NewMemoryLedger(initial)
	return NewAuthorizer(rdb, l, nil), l, mr
}

func TestOpenHoldInsufficientFunds(t *testing.T) {
	a, _, mr := newAuthorizer(t, 50)
	_, err := a.OpenHold(context.Background(), "s1", "u1", 60)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.False(t, mr.Exists(IndexKey("s1", "u1")), "a failed open must not block the seat")

	h, err := a.OpenHold(context.Background(), "s1", "u1", 50)
	require.NoError(t, err)
	assert.Equal(t, model.HoldPending, h.State)
}

func TestHoldUniquenessPerSeat(t *testing.T) {
	ctx := context.Background()
	a, _, _ := newAuthorizer(t, 1000)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var opened, rejected int
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.OpenHold(ctx, "s1", "u1", 10)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				opened++
			case errors.Is(err, ErrHoldExists):
				rejected++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, opened)
	assert.Equal(t, 9, rejected)

	id, ok, err := a.ActiveHold(ctx, "s1", "u1")
	require.NoError(t, err)
	require.True(t, ok)

	// Another session is a different seat.
	_, err = a.OpenHold(ctx, "s2", "u1", 10)
	require.NoError(t, err)

	require.NoError(t, a.Release(ctx, id))
	_, ok, _ = a.ActiveHold(ctx, "s1", "u1")
	assert.False(t, ok)
	_, err = a.OpenHold(ctx, "s1", "u1", 10)
	assert.NoError(t, err, "a released hold frees the seat")
}

func TestAdjustHoldFailsClosed(t *testing.T) {
	ctx := context.Background()
	a, l, _ := newAuthorizer(t, 100)

	h, err := a.OpenHold(ctx, "s1", "u1", 10)
	require.NoError(t, err)
	require.NoError(t, a.AdjustHold(ctx, h.ID, 100))

	err = a.AdjustHold(ctx, h.ID, 120)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	got, err := a.Get(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Amount)
	assert.Equal(t, int64(100), l.Escrowed("u1"))
}

func TestCommitAndReleaseAreIdempotent(t *testing.T) {
	ctx := context.Background()
	a, l, _ := newAuthorizer(t, 200)

	w, err := a.OpenHold(ctx, "s1", "a", 50)
	require.NoError(t, err)
	lo, err := a.OpenHold(ctx, "s1", "b", 50)
	require.NoError(t, err)

	require.NoError(t, a.Commit(ctx, w.ID, 100))
	require.NoError(t, a.Commit(ctx, w.ID, 100))
	require.NoError(t, a.Release(ctx, w.ID), "release after commit is a no-op")
	require.NoError(t, a.Release(ctx, lo.ID))
	require.NoError(t, a.Release(ctx, lo.ID))
	require.NoError(t, a.Commit(ctx, lo.ID, 999), "commit after release is a no-op")

	got, _ := a.Get(ctx, w.ID)
	assert.Equal(t, model.HoldCommitted, got.State)
	assert.Equal(t, int64(100), got.Payout)
	got, _ = a.Get(ctx, lo.ID)
	assert.Equal(t, model.HoldReleased, got.State)
	assert.Equal(t, int64(0), got.Payout)

	balA, _ := l.Balance(ctx, "a")
	balB, _ := l.Balance(ctx, "b")
	assert.Equal(t, int64(250), balA, "paid out exactly once")
	assert.Equal(t, int64(150), balB)

	assert.ErrorIs(t, a.AdjustHold(ctx, w.ID, 10), ErrHoldClosed)
	assert.ErrorIs(t, a.Commit(ctx, "missing", 1), ErrUnknownHold)
}

func TestRefundReturnsEscrow(t *testing.T) {
	ctx := context.Background()
	a, l, _ := newAuthorizer(t, 100)
	h, err := a.OpenHold(ctx, "s1", "u1", 40)
	require.NoError(t, err)
	require.NoError(t, a.Refund(ctx, h.ID))
	bal, _ := l.Balance(ctx, "u1")
	assert.Equal(t, int64(100), bal)
	got, _ := a.Get(ctx, h.ID)
	assert.Equal(t, model.HoldReleased, got.State)
}
