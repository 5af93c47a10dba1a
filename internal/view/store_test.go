package view

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/poker-table-coordinator/internal/model"
)

func newStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb), mr
}

func TestStoreCreateLoad(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	_, err := s.Load(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Create(ctx, waiting()))
	assert.ErrorIs(t, s.Create(ctx, waiting()), ErrExists)

	v, err := s.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.Revision)
	assert.Equal(t, model.StatusWaiting, v.Status)
}

func TestStorePersistCAS(t *testing.T) {
	ctx := context.Background()
	s, mr := newStore(t)
	require.NoError(t, s.Create(ctx, waiting()))

	next, _, err := Project(waiting(), dealt(), Effects{Seated: seated()}, t0)
	require.NoError(t, err)

	mr.Set("lobby:s1:members", "x")
	err = s.Persist(ctx, 1, next, PersistOptions{
		Delete:  []string{"lobby:s1:members"},
		Mark:    []string{"lobby:s1:closed"},
		MarkTTL: time.Hour,
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("lobby:s1:members"), "lobby deleted with the status flip")
	assert.True(t, mr.Exists("lobby:s1:closed"))

	// A writer that projected from revision 1 lost the race.
	err = s.Persist(ctx, 1, next, PersistOptions{})
	assert.ErrorIs(t, err, ErrConflict)

	rev, err := s.Revision(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), rev)

	got, err := s.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, next.Participants, got.Participants)
	assert.JSONEq(t, `{"n":1}`, string(got.EngineState))

	next.ID = "ghost"
	assert.ErrorIs(t, s.Persist(ctx, 1, next, PersistOptions{}), ErrNotFound)
}

func TestStoreFreeze(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	frozen, err := s.Frozen(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, frozen)

	require.NoError(t, s.Freeze(ctx, "s1", "conflict"))
	frozen, _ = s.Frozen(ctx, "s1")
	assert.True(t, frozen)

	require.NoError(t, s.Unfreeze(ctx, "s1"))
	frozen, _ = s.Frozen(ctx, "s1")
	assert.False(t, frozen)
}
