package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryCacheGetPut(t *testing.T) {
	c := NewQueryCache(10, time.Minute)

	_, ok := c.Get("m", "vali")
	assert.False(t, ok)

	c.Put("m", "vali", []float32{1, 2})
	v, ok := c.Get("m", "vali")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2}, v)

	_, ok = c.Get("other-model", "vali")
	assert.False(t, ok)
}

func TestQueryCacheEviction(t *testing.T) {
	c := NewQueryCache(2, time.Minute)
	c.Put("m", "a", []float32{1})
	c.Put("m", "b", []float32{2})

	_, _ = c.Get("m", "a")
	c.Put("m", "c", []float32{3})

	assert.Equal(t, 2, c.Size())
	_, ok := c.Get("m", "b")
	assert.False(t, ok, "least recently used entry should be evicted")
	_, ok = c.Get("m", "a")
	assert.True(t, ok)
}

func TestQueryCacheTTL(t *testing.T) {
	c := NewQueryCache(10, time.Millisecond)
	c.Put("m", "a", []float32{1})
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("m", "a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
}

func TestQueryCacheInvalidate(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	c.Put("m", "a", []float32{1})
	c.Invalidate()

	_, ok := c.Get("m", "a")
	assert.False(t, ok)
}

func TestEmbeddingCacheLocalOnly(t *testing.T) {
	c := NewEmbeddingCache(NewQueryCache(10, time.Minute), nil, 0, nil)
	ctx := context.Background()

	c.Set(ctx, "m", "balo", []float32{0.5})
	v, ok := c.Get(ctx, "m", "balo")
	require.True(t, ok)
	assert.Equal(t, []float32{0.5}, v)

	c.Invalidate()
	_, ok = c.Get(ctx, "m", "balo")
	assert.False(t, ok)
}

func TestEmbeddingCacheRedisDownIsMiss(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	c := NewEmbeddingCache(NewQueryCache(10, time.Minute), rdb, time.Hour, nil)
	ctx := context.Background()

	_, ok := c.Get(ctx, "m", "túi")
	assert.False(t, ok)

	c.Set(ctx, "m", "túi", []float32{1})
	v, ok := c.Get(ctx, "m", "túi")
	require.True(t, ok)
	assert.Equal(t, []float32{1}, v)
}

func TestNewRedisClient(t *testing.T) {
	rdb, err := NewRedisClient("")
	require.NoError(t, err)
	assert.Nil(t, rdb)

	_, err = NewRedisClient("not a url")
	assert.Error(t, err)

	rdb, err = NewRedisClient("redis://localhost:6379/2")
	require.NoError(t, err)
	defer rdb.Close()
	assert.Equal(t, 2, rdb.Options().DB)
}
