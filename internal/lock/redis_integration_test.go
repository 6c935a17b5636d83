//go:build integration

package lock

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(ctx).Err())
	return rdb
}

func TestRedisLockerExclusionAndRelease(t *testing.T) {
	ctx := context.Background()
	rdb := startRedis(t)
	locker := NewRedis(rdb, "stravasync:lock:", time.Minute)

	release, err := locker.TryAcquire(ctx, "user-1")
	require.NoError(t, err)

	_, err = locker.TryAcquire(ctx, "user-1")
	require.ErrorIs(t, err, ErrHeld)

	require.NoError(t, release(ctx))
	again, err := locker.TryAcquire(ctx, "user-1")
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestRedisLockerDoesNotReleaseForeignToken(t *testing.T) {
	ctx := context.Background()
	rdb := startRedis(t)
	locker := NewRedis(rdb, "stravasync:lock:", time.Minute)

	release, err := locker.TryAcquire(ctx, "user-1")
	require.NoError(t, err)

	// Simulate expiry followed by another holder.
	require.NoError(t, rdb.Set(ctx, "stravasync:lock:user-1", "someone-else", time.Minute).Err())
	require.NoError(t, release(ctx))

	value, err := rdb.Get(ctx, "stravasync:lock:user-1").Result()
	require.NoError(t, err)
	require.Equal(t, "someone-else", value)
}
