package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestRedis(t *testing.T) *Redis {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	endpoint, err := c.Endpoint(ctx, "")
	require.NoError(t, err)

	p, err := New(Config{Client: goredis.NewClient(&goredis.Options{Addr: endpoint}), Prefix: "edge:", CloseClient: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(ctx) })
	return p
}

func TestNew_NilClient(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNilClient)
}

func TestIntegration_GetSetDel(t *testing.T) {
	p := setupTestRedis(t)
	ctx := context.Background()

	_, ok, err := p.Get(ctx, "kv:default:a")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = p.Set(ctx, "kv:default:a", []byte{0, 1, 2}, 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	b, ok, err := p.Get(ctx, "kv:default:a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte{0, 1, 2}, b)

	require.NoError(t, p.Del(ctx, "kv:default:a"))
	require.NoError(t, p.Del(ctx, "kv:default:a"))
	_, ok, err = p.Get(ctx, "kv:default:a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIntegration_PrefixAndTTL(t *testing.T) {
	p := setupTestRedis(t)
	ctx := context.Background()

	ok, err := p.Set(ctx, "kv:default:t", []byte("x"), 0, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ttl, err := p.rdb.TTL(ctx, "edge:kv:default:t").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	exists, err := p.rdb.Exists(ctx, "kv:default:t").Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}

func TestClose_BorrowedClientStaysOpen(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()
	p, err := New(Config{Client: client})
	require.NoError(t, err)
	require.NoError(t, p.Close(context.Background()))
	require.NoError(t, p.Close(context.Background()))
}
