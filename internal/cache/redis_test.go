package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewWithClient(client), mr
}

func TestBlacklistToken(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.BlacklistToken(ctx, "h1", time.Now().Add(time.Minute)))
	assert.True(t, c.IsTokenBlacklisted(ctx, "h1"))
	assert.False(t, c.IsTokenBlacklisted(ctx, "h2"))

	mr.FastForward(2 * time.Minute)
	assert.False(t, c.IsTokenBlacklisted(ctx, "h1"))
}

func TestBlacklistExpiredTokenIsNoop(t *testing.T) {
	c, mr := newTestCache(t)

	require.NoError(t, c.BlacklistToken(context.Background(), "old", time.Now().Add(-time.Second)))
	assert.False(t, mr.Exists(blacklistKey("old")))
}

func TestTurnLockIsExclusive(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	token, ok, err := c.AcquireTurn(ctx, 7, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, token)

	_, ok, err = c.AcquireTurn(ctx, 7, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire on the same conversation must fail")

	_, ok, err = c.AcquireTurn(ctx, 8, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "other conversations are independent")

	require.NoError(t, c.ReleaseTurn(ctx, 7, token))
	_, ok, err = c.AcquireTurn(ctx, 7, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReleaseTurnIgnoresForeignToken(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	token, ok, err := c.AcquireTurn(ctx, 3, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, c.ReleaseTurn(ctx, 3, "someone-else"))
	got, err := mr.Get(turnKey(3))
	require.NoError(t, err)
	assert.Equal(t, token, got)
}

func TestTurnLockExpires(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	_, ok, err := c.AcquireTurn(ctx, 5, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)
	_, ok, err = c.AcquireTurn(ctx, 5, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}
