package redisstore_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobpilot/orchestrator/internal/adapter/correlation/redisstore"
	"github.com/jobpilot/orchestrator/internal/domain"
)

func newStore(t *testing.T) *redisstore.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redisstore.New(client)
}

func TestStore_SetGetRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "c-1", `{"portal":"workday"}`))

	v, err := s.Get(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, `{"portal":"workday"}`, v)
}

func TestStore_Get_MissingKey(t *testing.T) {
	s := newStore(t)

	_, err := s.Get(context.Background(), "c-404")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_Del_ToleratesMissing(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "c-1", "snap"))
	require.NoError(t, s.Del(ctx, "c-1"))
	require.NoError(t, s.Del(ctx, "c-1"))

	_, err := s.Get(ctx, "c-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_Exists(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	ok, err := s.Exists(ctx, "c-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "c-1", "snap"))

	ok, err = s.Exists(ctx, "c-1")
	require.NoError(t, err)
	assert.True(t, ok)
}
