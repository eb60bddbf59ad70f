package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newRedisCache(t *testing.T) (StatusCache, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStatusCache(client, zaptest.NewLogger(t)), srv
}

func TestRedisStatusCacheRoundTrip(t *testing.T) {
	c, srv := newRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetMany(ctx, map[string]int64{"graph_a": 3, "graph_b": 0}, 30*time.Second))

	got, err := c.GetMany(ctx, []string{"graph_a", "graph_b", "graph_c"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"graph_a": 3, "graph_b": 0}, got)

	ttl := srv.TTL(statusKey("graph_a"))
	assert.Equal(t, 30*time.Second, ttl)

	raw, err := srv.Get(statusKey("graph_a"))
	require.NoError(t, err)
	entry, err := decodeStatus([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, int64(3), entry.Count)
}

func TestRedisStatusCacheExpiresAndInvalidates(t *testing.T) {
	c, srv := newRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetMany(ctx, map[string]int64{"graph_a": 1, "graph_b": 2}, 10*time.Second))
	require.NoError(t, c.Invalidate(ctx, "graph_a"))

	got, err := c.GetMany(ctx, []string{"graph_a", "graph_b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"graph_b": 2}, got)

	srv.FastForward(11 * time.Second)
	got, err = c.GetMany(ctx, []string{"graph_b"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisStatusCacheIgnoresCorruptEntries(t *testing.T) {
	c, srv := newRedisCache(t)
	require.NoError(t, srv.Set(statusKey("graph_a"), "not snappy"))

	got, err := c.GetMany(context.Background(), []string{"graph_a"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryStatusCache(t *testing.T) {
	c := NewStatusCache(nil, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, c.SetMany(ctx, map[string]int64{"graph_a": 4}, time.Minute))
	got, err := c.GetMany(ctx, []string{"graph_a", "graph_b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"graph_a": 4}, got)

	require.NoError(t, c.Invalidate(ctx, "graph_a"))
	got, err = c.GetMany(ctx, []string{"graph_a"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTTLCacheExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := &ttlCache[string, int]{entries: map[string]ttlEntry[int]{}, now: func() time.Time { return now }}

	c.Set("a", 1, time.Second)
	c.Set("zero", 1, 0)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	_, ok = c.Get("zero")
	assert.False(t, ok)

	now = now.Add(time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok)
}
