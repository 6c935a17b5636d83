//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRedisCacheRoundTripAndInvalidate(t *testing.T) {
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

	c := NewRedis(rdb, "stravasync:stats:", time.Minute)

	var out map[string]float64
	hit, err := c.Get(ctx, "user-1", &out)
	require.NoError(t, err)
	require.False(t, hit)

	require.NoError(t, c.Set(ctx, "user-1", map[string]float64{"km": 5}))
	hit, err = c.Get(ctx, "user-1", &out)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, 5.0, out["km"])

	require.NoError(t, c.Invalidate(ctx, "user-1"))
	hit, err = c.Get(ctx, "user-1", &out)
	require.NoError(t, err)
	require.False(t, hit)
}
