package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCache_Types(t *testing.T) {
	for _, kind := range []string{"", "gocache", "memory", "GoCache"} {
		c, err := NewCache(Config{Type: kind, DefaultExpiration: time.Minute, CleanupInterval: time.Minute})
		require.NoError(t, err, kind)
		assert.NotNil(t, c)
	}

	_, err := NewCache(Config{Type: "memcached"})
	assert.ErrorContains(t, err, "unsupported cache type")

	_, err = NewCache(Config{Type: "redis"})
	assert.ErrorContains(t, err, "redis address is required")
}

func TestGoCache_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewGoCache(DefaultConfig())

	require.NoError(t, c.Set(ctx, "room-1", 3, 0))
	v, ok := c.Get(ctx, "room-1")
	require.True(t, ok)
	assert.Equal(t, 3, v)

	require.NoError(t, c.Delete(ctx, "room-1"))
	_, ok = c.Get(ctx, "room-1")
	assert.False(t, ok)
	assert.NoError(t, c.Close())
}

func TestGoCache_Expiration(t *testing.T) {
	ctx := context.Background()
	c := NewGoCache(Config{DefaultExpiration: time.Minute, CleanupInterval: time.Minute})

	require.NoError(t, c.Set(ctx, "short", "x", 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)
	_, ok := c.Get(ctx, "short")
	assert.False(t, ok)
}
