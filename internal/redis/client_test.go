package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client, err := NewClient(context.Background(), &Config{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client, mr
}

func TestNewClient(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		_, err := NewClient(context.Background(), nil)
		assert.Error(t, err)
	})

	t.Run("sets default pool size", func(t *testing.T) {
		mr := miniredis.RunT(t)
		config := &Config{Address: mr.Addr()}

		client, err := NewClient(context.Background(), config)
		require.NoError(t, err)
		defer client.Close()

		assert.Equal(t, 10, config.PoolSize)
	})

	t.Run("unreachable server", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		_, err := NewClient(context.Background(), &Config{Address: addr})
		assert.Error(t, err)
	})
}

func TestClient_Health(t *testing.T) {
	client, mr := setupTestRedis(t)

	assert.NoError(t, client.Health(context.Background()))

	mr.Close()
	assert.Error(t, client.Health(context.Background()))
}

func TestClient_SetIfAbsent(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	ok, err := client.SetIfAbsent(ctx, "routed:conv-1", "allocate_next_n", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.SetIfAbsent(ctx, "routed:conv-1", "allocate_next_n", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, time.Minute, mr.TTL("routed:conv-1"))

	mr.FastForward(2 * time.Minute)
	ok, err = client.SetIfAbsent(ctx, "routed:conv-1", "allocate_next_n", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClient_DeleteAndExists(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	_, err := client.SetIfAbsent(ctx, "k", "v", time.Minute)
	require.NoError(t, err)

	exists, err := client.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, client.Delete(ctx, "k"))

	exists, err = client.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.NoError(t, client.Delete(ctx, "never-set"))
}

func TestClient_CheckRateLimit(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, count, err := client.CheckRateLimit(ctx, "rl:client", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, i, count)
	}

	allowed, count, err := client.CheckRateLimit(ctx, "rl:client", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 3, count)

	allowed, _, err = client.CheckRateLimit(ctx, "rl:other", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
}
