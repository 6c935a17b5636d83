package activitysync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/stravasync/internal/domain"
	"example.com/stravasync/internal/lock"
	"example.com/stravasync/internal/logging"
	"example.com/stravasync/internal/persistence/memory"
	"example.com/stravasync/internal/stats"
	"example.com/stravasync/internal/strava"
)

type stubCreds struct {
	cred *domain.Credential
	err  error
}

func (s stubCreds) Credential(context.Context, string) (*domain.Credential, error) {
	return s.cred, s.err
}

type stubFetcher struct {
	mu         sync.Mutex
	athlete    strava.Athlete
	activities []strava.ActivitySummary
	err        error
	calls      int
}

func (f *stubFetcher) Athlete(_ context.Context, token string) (strava.Athlete, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if token == "" {
		return strava.Athlete{}, errors.New("missing token")
	}
	return f.athlete, f.err
}

func (f *stubFetcher) Activities(context.Context, string) ([]strava.ActivitySummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.activities, f.err
}

type failingStore struct {
	*memory.Store
	failID int64
}

func (s failingStore) InsertActivity(ctx context.Context, a domain.Activity) error {
	if a.ActivityID == s.failID {
		return errors.New("disk full")
	}
	return s.Store.InsertActivity(ctx, a)
}

type countingInvalidator struct{ calls atomic.Int32 }

func (c *countingInvalidator) Invalidate(context.Context, string) error {
	c.calls.Add(1)
	return nil
}

func summary(id int64, distance float64, sport string) strava.ActivitySummary {
	s := strava.ActivitySummary{
		ID:          id,
		Name:        "Morning " + sport,
		Distance:    distance,
		ElapsedTime: 1200,
		SportType:   sport,
		StartDate:   time.Date(2024, 5, 1, 6, 0, int(id), 0, time.UTC).Format(time.RFC3339),
		Timezone:    "(GMT+00:00) Europe/London",
	}
	s.Athlete.ID = 42
	return s
}

func connected() stubCreds {
	return stubCreds{cred: &domain.Credential{UserID: "user-1", AthleteID: 42, AccessToken: "token", RefreshToken: "refresh"}}
}

func newEngine(creds CredentialSource, fetcher Fetcher, store domain.ActivityStore, opts ...Option) *Engine {
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	return NewEngine(creds, fetcher, store, opts...)
}

func TestSyncImportsSingleActivity(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	sex := "M"
	weight := 72.5
	fetcher := &stubFetcher{
		athlete:    strava.Athlete{ID: 42, Sex: &sex, Weight: &weight},
		activities: []strava.ActivitySummary{{ID: 1, Distance: 5000, ElapsedTime: 1200, SportType: "Run"}},
	}

	report, err := newEngine(connected(), fetcher, store).Sync(ctx, "user-1", PolicyInsertOnly)
	require.NoError(t, err)
	require.Equal(t, 1, report.NewCount)
	require.False(t, report.NoChanges())
	require.NotEmpty(t, report.RunID)

	stored, err := store.ListActivities(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, 5000.0, stored[0].Distance)
	require.Equal(t, "M", stored[0].Sex)
	require.Equal(t, 72.5, stored[0].Weight)
	require.Equal(t, domain.UnknownValue, stored[0].Name)
	require.Equal(t, domain.UnknownValue, stored[0].Timezone)
	require.Equal(t, int64(42), stored[0].AthleteID)

	total, err := stats.NewService(store).TotalDistanceKm(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, 5.0, total)
}

func TestSyncTwiceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	fetcher := &stubFetcher{
		athlete:    strava.Athlete{ID: 42},
		activities: []strava.ActivitySummary{summary(1, 5000, "Run"), summary(2, 10000, "Ride")},
	}
	engine := newEngine(connected(), fetcher, store)

	first, err := engine.Sync(ctx, "user-1", PolicyInsertOnly)
	require.NoError(t, err)
	require.Equal(t, 2, first.NewCount)

	second, err := engine.Sync(ctx, "user-1", PolicyInsertOnly)
	require.NoError(t, err)
	require.True(t, second.NoChanges())
	require.Equal(t, 2, second.SkippedCount)
	require.NotEqual(t, first.RunID, second.RunID)
	require.Empty(t, second.Written)
	require.Len(t, second.Activities, 2)

	stored, err := store.ListActivities(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, stored, 2)
}

func TestSyncReportCarriesFullReconciledList(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	fetcher := &stubFetcher{
		athlete:    strava.Athlete{ID: 42},
		activities: []strava.ActivitySummary{summary(1, 5000, "Run"), summary(2, 10000, "Ride")},
	}
	engine := newEngine(connected(), fetcher, store)

	_, err := engine.Sync(ctx, "user-1", PolicyInsertOnly)
	require.NoError(t, err)

	fetcher.activities = append(fetcher.activities, summary(3, 2000, "Walk"))
	report, err := engine.Sync(ctx, "user-1", PolicyInsertOnly)
	require.NoError(t, err)
	require.Equal(t, 1, report.NewCount)
	require.Len(t, report.Written, 1)
	require.Len(t, report.Activities, 3)

	ids := make([]int64, 0, len(report.Activities))
	for _, a := range report.Activities {
		ids = append(ids, a.ActivityID)
	}
	require.Equal(t, []int64{3, 2, 1}, ids, "newest first")
	require.Equal(t, "Morning Walk", report.Activities[0].Name)
}

func TestSyncInsertsOnlyUnknownActivities(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.InsertActivity(ctx, domain.Activity{UserID: "user-1", ActivityID: 1, Name: "Old name", Distance: 1000}))

	fetcher := &stubFetcher{
		athlete:    strava.Athlete{ID: 42},
		activities: []strava.ActivitySummary{summary(1, 5000, "Run"), summary(2, 3000, "Walk")},
	}

	report, err := newEngine(connected(), fetcher, store).Sync(ctx, "user-1", PolicyInsertOnly)
	require.NoError(t, err)
	require.Equal(t, 1, report.NewCount)
	require.Equal(t, 1, report.SkippedCount)
	require.Len(t, report.Written, 1)
	require.Equal(t, int64(2), report.Written[0].ActivityID)
	require.Len(t, report.Activities, 2)

	stored, err := store.ListActivities(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for _, a := range stored {
		if a.ActivityID == 1 {
			require.Equal(t, "Old name", a.Name)
		}
	}
}

func TestSyncOverwriteRefreshesExisting(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	created := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.InsertActivity(ctx, domain.Activity{UserID: "user-1", ActivityID: 1, Name: "Old", Distance: 1000, CreatedAt: created}))

	fetcher := &stubFetcher{athlete: strava.Athlete{ID: 42}, activities: []strava.ActivitySummary{summary(1, 5000, "Run")}}

	report, err := newEngine(connected(), fetcher, store).Sync(ctx, "user-1", PolicyOverwrite)
	require.NoError(t, err)
	require.Equal(t, 0, report.NewCount)
	require.Equal(t, 1, report.UpdatedCount)
	require.True(t, report.NoChanges())

	stored, err := store.ListActivities(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, "Morning Run", stored[0].Name)
	require.Equal(t, 5000.0, stored[0].Distance)
	require.True(t, stored[0].CreatedAt.Equal(created))
}

func TestSyncEmptyRemoteList(t *testing.T) {
	report, err := newEngine(connected(), &stubFetcher{}, memory.NewStore()).Sync(context.Background(), "user-1", PolicyInsertOnly)
	require.NoError(t, err)
	require.True(t, report.NoChanges())
	require.Empty(t, report.Outcomes)
}

func TestSyncNotConnected(t *testing.T) {
	fetcher := &stubFetcher{}
	_, err := newEngine(stubCreds{}, fetcher, memory.NewStore()).Sync(context.Background(), "user-1", PolicyInsertOnly)
	require.ErrorIs(t, err, domain.ErrNotConnected)
	require.Zero(t, fetcher.calls)
}

func TestSyncRejectsCredentialWithoutTokens(t *testing.T) {
	fetcher := &stubFetcher{}
	creds := stubCreds{cred: &domain.Credential{UserID: "user-1", AthleteID: 42, RefreshToken: "refresh"}}
	_, err := newEngine(creds, fetcher, memory.NewStore()).Sync(context.Background(), "user-1", PolicyInsertOnly)
	require.ErrorIs(t, err, domain.ErrNotConnected)
	require.Zero(t, fetcher.calls)
}

func TestSyncPropagatesUpstreamError(t *testing.T) {
	upstream := &strava.UpstreamError{Endpoint: "athlete", StatusCode: 500}
	fetcher := &stubFetcher{err: upstream}
	store := memory.NewStore()

	_, err := newEngine(connected(), fetcher, store).Sync(context.Background(), "user-1", PolicyInsertOnly)
	var target *strava.UpstreamError
	require.ErrorAs(t, err, &target)
	require.Equal(t, 500, target.StatusCode)

	stored, err := store.ListActivities(context.Background(), "user-1")
	require.NoError(t, err)
	require.Empty(t, stored)
}

func TestSyncReportsPartialFailure(t *testing.T) {
	ctx := context.Background()
	store := failingStore{Store: memory.NewStore(), failID: 2}
	fetcher := &stubFetcher{
		athlete:    strava.Athlete{ID: 42},
		activities: []strava.ActivitySummary{summary(1, 1000, "Run"), summary(2, 2000, "Run"), summary(3, 3000, "Run")},
	}

	report, err := newEngine(connected(), fetcher, store, WithWriteConcurrency(2)).Sync(ctx, "user-1", PolicyInsertOnly)
	var batch *BatchError
	require.ErrorAs(t, err, &batch)
	require.Len(t, batch.Failed, 1)
	require.Equal(t, int64(2), batch.Failed[0].ActivityID)

	require.NotNil(t, report)
	require.Equal(t, 2, report.NewCount)
	require.Equal(t, 1, report.FailedCount)

	stored, err := store.ListActivities(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, stored, 2)
}

func TestSyncRejectsOverlappingRun(t *testing.T) {
	ctx := context.Background()
	locker := lock.NewLocal()
	release, err := locker.TryAcquire(ctx, "sync:user-1")
	require.NoError(t, err)

	engine := newEngine(connected(), &stubFetcher{}, memory.NewStore(), WithLocker(locker))
	_, err = engine.Sync(ctx, "user-1", PolicyInsertOnly)
	require.ErrorIs(t, err, ErrSyncInProgress)

	require.NoError(t, release(ctx))
	_, err = engine.Sync(ctx, "user-1", PolicyInsertOnly)
	require.NoError(t, err)
}

func TestSyncInvalidatesOnlyAfterWrites(t *testing.T) {
	ctx := context.Background()
	inv := &countingInvalidator{}
	fetcher := &stubFetcher{athlete: strava.Athlete{ID: 42}, activities: []strava.ActivitySummary{summary(1, 1000, "Run")}}
	engine := newEngine(connected(), fetcher, memory.NewStore(), WithInvalidator(inv))

	_, err := engine.Sync(ctx, "user-1", PolicyInsertOnly)
	require.NoError(t, err)
	_, err = engine.Sync(ctx, "user-1", PolicyInsertOnly)
	require.NoError(t, err)
	require.Equal(t, int32(1), inv.calls.Load())
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	require.Equal(t, PolicyInsertOnly, p)

	p, err = ParsePolicy("Overwrite")
	require.NoError(t, err)
	require.Equal(t, PolicyOverwrite, p)

	_, err = ParsePolicy("merge")
	require.ErrorIs(t, err, ErrUnknownPolicy)
}
