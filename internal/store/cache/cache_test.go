package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	IDs []string `json:"ids"`
}

func exercise(t *testing.T, c CacheService) {
	ctx := context.Background()

	var out snapshot
	assert.ErrorIs(t, c.Get(ctx, "missing", &out), ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "k", snapshot{IDs: []string{"a", "b"}}, time.Minute))
	require.NoError(t, c.Get(ctx, "k", &out))
	assert.Equal(t, []string{"a", "b"}, out.IDs)

	require.NoError(t, c.Delete(ctx, "k"))
	assert.ErrorIs(t, c.Get(ctx, "k", &out), ErrCacheMiss)
}

func TestMemoryCache(t *testing.T) {
	exercise(t, NewMemoryCache())
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache()
	now := time.Now()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(context.Background(), "k", 1, time.Second))
	now = now.Add(2 * time.Second)

	var v int
	assert.ErrorIs(t, c.Get(context.Background(), "k", &v), ErrCacheMiss)
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := Connect(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	defer client.Close()

	c := NewRedisCache(client, "router:")
	exercise(t, c)

	require.NoError(t, c.Set(context.Background(), "ttl", 1, time.Second))
	assert.True(t, mr.Exists("router:ttl"))
	mr.FastForward(2 * time.Second)

	var v int
	assert.ErrorIs(t, c.Get(context.Background(), "ttl", &v), ErrCacheMiss)
}
