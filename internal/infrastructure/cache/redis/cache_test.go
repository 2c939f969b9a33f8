package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esoteric-oracle/oracle-service/internal/core/cache"
	rediscache "github.com/esoteric-oracle/oracle-service/internal/infrastructure/cache/redis"
)

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, cache.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client, err := rediscache.NewClient(rediscache.Config{
		Host:       mr.Host(),
		Port:       mr.Port(),
		DefaultTTL: time.Hour,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	return mr, client
}

func TestNewClient_ConnectionRefused(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	host, port := mr.Host(), mr.Port()
	mr.Close()

	client, err := rediscache.NewClient(rediscache.Config{Host: host, Port: port})

	assert.Error(t, err)
	assert.Nil(t, client)
}

func TestCache_SetAndGet(t *testing.T) {
	_, client := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "tokens:abc", []byte("sealed"), time.Minute))

	result, err := client.Get(ctx, "tokens:abc")
	assert.NoError(t, err)
	assert.Equal(t, []byte("sealed"), result)
}

func TestCache_GetMissingKeyReturnsNil(t *testing.T) {
	_, client := setupMiniredis(t)

	result, err := client.Get(context.Background(), "missing")

	assert.NoError(t, err)
	assert.Nil(t, result)
}

func TestCache_SetUsesDefaultTTL(t *testing.T) {
	mr, client := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "activity:abc", []byte("1"), 0))

	assert.Equal(t, time.Hour, mr.TTL("oracle:activity:abc"))
}

func TestCache_TTLExpiry(t *testing.T) {
	mr, client := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "short", []byte("v"), 2*time.Second))
	mr.FastForward(3 * time.Second)

	result, err := client.Get(ctx, "short")
	assert.NoError(t, err)
	assert.Nil(t, result)
}

func TestCache_Delete(t *testing.T) {
	_, client := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "k", []byte("v"), time.Minute))

	deleted, err := client.Delete(ctx, "k")
	assert.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = client.Delete(ctx, "k")
	assert.NoError(t, err)
	assert.False(t, deleted)
}

func TestCache_PublishSubscribe(t *testing.T) {
	_, client := setupMiniredis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := client.Subscribe(ctx, "oracle:auth:*")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, client.Publish(ctx, "oracle:auth:sid-1", []byte(`{"event":"SIGNED_OUT"}`)))

	select {
	case msg := <-sub.Messages():
		assert.Equal(t, "oracle:auth:sid-1", msg.Channel)
		assert.JSONEq(t, `{"event":"SIGNED_OUT"}`, string(msg.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestCache_Ping(t *testing.T) {
	_, client := setupMiniredis(t)

	assert.NoError(t, client.Ping(context.Background()))
}

func TestCache_KeysAreNamespaced(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := rediscache.NewClient(rediscache.Config{Host: mr.Host(), Port: mr.Port(), KeyPrefix: "staging:"})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "tokens:sid-1", []byte("sealed"), time.Minute))

	assert.True(t, mr.Exists("staging:tokens:sid-1"))
	assert.False(t, mr.Exists("tokens:sid-1"))

	deleted, err := client.Delete(ctx, "tokens:sid-1")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.False(t, mr.Exists("staging:tokens:sid-1"))
}
