package stats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/stravasync/internal/domain"
	"example.com/stravasync/internal/logging"
	"example.com/stravasync/internal/persistence/memory"
)

func TestTotalDistanceKm(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewService(store)

	total, err := svc.TotalDistanceKm(ctx, "user-1")
	require.NoError(t, err)
	require.Zero(t, total)

	require.NoError(t, store.InsertActivity(ctx, domain.Activity{UserID: "user-1", ActivityID: 1, Distance: 5000}))
	total, err = svc.TotalDistanceKm(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, 5.0, total)

	require.NoError(t, store.InsertActivity(ctx, domain.Activity{UserID: "user-1", ActivityID: 2, Distance: 2500}))
	require.NoError(t, store.InsertActivity(ctx, domain.Activity{UserID: "user-2", ActivityID: 3, Distance: 9000}))
	total, err = svc.TotalDistanceKm(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, 7.5, total)
}

func TestTotalDistanceOrderIndependent(t *testing.T) {
	a := []domain.Activity{{Distance: 1234.5}, {Distance: 10}, {Distance: 8765.5}}
	b := []domain.Activity{a[2], a[0], a[1]}
	require.InDelta(t, TotalDistanceKm(a), TotalDistanceKm(b), 1e-9)
	require.InDelta(t, 10.01, TotalDistanceKm(a), 1e-9)
}

func TestSummarize(t *testing.T) {
	early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(48 * time.Hour)
	summary := Summarize("u", []domain.Activity{
		{SportType: "Run", Distance: 5000, ElapsedTime: 1500, StartDate: early},
		{SportType: "Ride", Distance: 20000, ElapsedTime: 3600, StartDate: late},
		{SportType: "Run", Distance: 3000, ElapsedTime: 900, StartDate: early},
	})

	require.Equal(t, 3, summary.ActivityCount)
	require.Equal(t, 28.0, summary.TotalDistanceKm)
	require.Equal(t, int64(6000), summary.TotalElapsedSeconds)
	require.Equal(t, 8.0, summary.DistanceKmBySport["Run"])
	require.True(t, summary.LastActivityStartsAt.Equal(late))
}

type fakeCache struct {
	stored map[string]Summary
	getErr error
	sets   int
}

func (c *fakeCache) Get(_ context.Context, userID string, dest any) (bool, error) {
	if c.getErr != nil {
		return false, c.getErr
	}
	s, ok := c.stored[userID]
	if ok {
		*dest.(*Summary) = s
	}
	return ok, nil
}

func (c *fakeCache) Set(_ context.Context, userID string, value any) error {
	c.sets++
	c.stored[userID] = value.(Summary)
	return nil
}

type countingLister struct {
	inner ActivityLister
	calls int
}

func (l *countingLister) ListActivities(ctx context.Context, userID string) ([]domain.Activity, error) {
	l.calls++
	return l.inner.ListActivities(ctx, userID)
}

func TestSummaryReadThroughCache(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.InsertActivity(ctx, domain.Activity{UserID: "u", ActivityID: 1, Distance: 1000, SportType: "Run"}))

	lister := &countingLister{inner: store}
	cache := &fakeCache{stored: map[string]Summary{}}
	svc := NewService(lister, WithCache(cache), WithLogger(logging.Discard()))

	first, err := svc.Summary(ctx, "u")
	require.NoError(t, err)
	second, err := svc.Summary(ctx, "u")
	require.NoError(t, err)

	require.Equal(t, first.TotalDistanceKm, second.TotalDistanceKm)
	require.Equal(t, 1, lister.calls)
	require.Equal(t, 1, cache.sets)
}

func TestSummaryFallsBackWhenCacheFails(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	cache := &fakeCache{stored: map[string]Summary{}, getErr: errors.New("redis down")}
	svc := NewService(store, WithCache(cache), WithLogger(logging.Discard()))

	summary, err := svc.Summary(ctx, "u")
	require.NoError(t, err)
	require.Zero(t, summary.ActivityCount)
}
