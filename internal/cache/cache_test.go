package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func redisCache(t *testing.T) (Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb, zap.NewNop()), mr
}

func TestCacheBackends(t *testing.T) {
	rc, _ := redisCache(t)
	backends := map[string]Cache{
		"memory": New(nil, nil),
		"redis":  rc,
	}

	for name, c := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := c.Get(ctx, "product:1")
			assert.ErrorIs(t, err, ErrCacheMiss)

			require.NoError(t, c.Set(ctx, "product:1", []byte("a"), time.Minute))
			require.NoError(t, c.Set(ctx, "product:2", []byte("b"), time.Minute))
			require.NoError(t, c.Set(ctx, "category:1", []byte("c"), time.Minute))

			got, err := c.Get(ctx, "product:1")
			require.NoError(t, err)
			assert.Equal(t, []byte("a"), got)

			require.NoError(t, c.DeleteByPattern(ctx, "product:*"))
			_, err = c.Get(ctx, "product:2")
			assert.ErrorIs(t, err, ErrCacheMiss)
			_, err = c.Get(ctx, "category:1")
			assert.NoError(t, err)

			require.NoError(t, c.Delete(ctx, "category:1"))
			_, err = c.Get(ctx, "category:1")
			assert.ErrorIs(t, err, ErrCacheMiss)
		})
	}
}

func TestInMemoryExpiry(t *testing.T) {
	c := NewInMemory()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(context.Background(), "k", []byte("v"), time.Minute))
	now = now.Add(2 * time.Minute)

	_, err := c.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisExpiry(t *testing.T) {
	c, mr := redisCache(t)
	require.NoError(t, c.Set(context.Background(), "k", []byte("v"), time.Minute))

	mr.FastForward(2 * time.Minute)

	_, err := c.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestJSONHelpers(t *testing.T) {
	c := NewInMemory()
	type item struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}

	require.NoError(t, SetJSON(context.Background(), c, "item", item{ID: 1, Name: "Ashwagandha"}, time.Minute))

	var got item
	require.NoError(t, GetJSON(context.Background(), c, "item", &got))
	assert.Equal(t, item{ID: 1, Name: "Ashwagandha"}, got)
}
