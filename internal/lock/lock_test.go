package lock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalExclusion(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()

	release, err := l.TryAcquire(ctx, "user-1")
	require.NoError(t, err)

	_, err = l.TryAcquire(ctx, "user-1")
	require.ErrorIs(t, err, ErrHeld)

	other, err := l.TryAcquire(ctx, "user-2")
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, release(ctx))
	require.NoError(t, release(ctx), "release is idempotent")

	again, err := l.TryAcquire(ctx, "user-1")
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}
