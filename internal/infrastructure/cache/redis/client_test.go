package redis_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unifiedui/livechat-service/internal/core/cache"
	rediscache "github.com/unifiedui/livechat-service/internal/infrastructure/cache/redis"
)

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, cache.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client, err := rediscache.NewClient(rediscache.Config{
		Host:       mr.Host(),
		Port:       mr.Port(),
		DefaultTTL: time.Minute,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	return mr, client
}

func TestNewClient_ConnectionFailure(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	host, port := mr.Host(), mr.Port()
	mr.Close()

	_, err = rediscache.NewClient(rediscache.Config{Host: host, Port: port})

	assert.ErrorContains(t, err, "failed to connect to redis")
}

func TestClient_SetAndGet(t *testing.T) {
	_, client := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "k", []byte("v"), 0))
	got, err := client.Get(ctx, "k")

	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestClient_GetMissingReturnsNil(t *testing.T) {
	_, client := setupMiniredis(t)

	got, err := client.Get(context.Background(), "missing")

	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestClient_DefaultAndExplicitTTL(t *testing.T) {
	mr, client := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "default", []byte("v"), 0))
	require.NoError(t, client.Set(ctx, "short", []byte("v"), 5*time.Second))

	assert.Equal(t, time.Minute, mr.TTL("default"))
	assert.Equal(t, 5*time.Second, mr.TTL("short"))

	mr.FastForward(6 * time.Second)
	got, err := client.Get(ctx, "short")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestClient_Delete(t *testing.T) {
	_, client := setupMiniredis(t)
	ctx := context.Background()
	require.NoError(t, client.Set(ctx, "k", []byte("v"), 0))

	deleted, err := client.Delete(ctx, "k")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = client.Delete(ctx, "k")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestClient_DeletePattern(t *testing.T) {
	_, client := setupMiniredis(t)
	ctx := context.Background()
	for i := 0; i < 250; i++ {
		require.NoError(t, client.Set(ctx, fmt.Sprintf("livechat:business:%d", i), []byte("v"), 0))
	}
	require.NoError(t, client.Set(ctx, "other:key", []byte("v"), 0))

	n, err := client.DeletePattern(ctx, "livechat:business:*")

	require.NoError(t, err)
	assert.Equal(t, int64(250), n)
	other, err := client.Get(ctx, "other:key")
	require.NoError(t, err)
	assert.NotNil(t, other)
}

func TestClient_Ping(t *testing.T) {
	_, client := setupMiniredis(t)

	assert.NoError(t, client.Ping(context.Background()))
}
