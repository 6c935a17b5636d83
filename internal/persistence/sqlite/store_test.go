package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/stravasync/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore("file:" + filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.ApplyMigrations())
	return store
}

func TestSQLiteCredentials(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	cred, err := store.GetCredential(ctx, "user-1")
	require.NoError(t, err)
	require.Nil(t, cred)

	require.NoError(t, store.InsertCredential(ctx, domain.Credential{UserID: "user-1", AthleteID: 5, AccessToken: "a", RefreshToken: "r", ExpiresAt: 10}))
	require.ErrorIs(t, store.InsertCredential(ctx, domain.Credential{UserID: "user-2", AthleteID: 5, AccessToken: "a", RefreshToken: "r"}), domain.ErrCredentialExists)

	byAthlete, err := store.FindCredentialByAthlete(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, "user-1", byAthlete.UserID)
	require.Equal(t, int64(10), byAthlete.ExpiresAt)

	byAthlete.RefreshToken = "r2"
	require.NoError(t, store.UpdateCredential(ctx, *byAthlete))
	require.ErrorIs(t, store.UpdateCredential(ctx, domain.Credential{UserID: "ghost", AccessToken: "a", RefreshToken: "r"}), domain.ErrCredentialNotFound)

	got, err := store.GetCredential(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, "r2", got.RefreshToken)
}

func TestSQLiteActivities(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	base := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, store.InsertActivity(ctx, domain.Activity{
			UserID: "u", ActivityID: i, Name: "run", SportType: "Run", Timezone: "UTC", Sex: "F",
			Distance: float64(i * 1000), StartDate: base.Add(time.Duration(i) * time.Hour), StartDateLocal: base,
		}))
	}
	require.ErrorIs(t, store.InsertActivity(ctx, domain.Activity{UserID: "u", ActivityID: 1, Name: "dup", SportType: "Run", Timezone: "UTC", Sex: "F"}), domain.ErrActivityExists)

	require.NoError(t, store.UpdateActivity(ctx, domain.Activity{UserID: "u", ActivityID: 2, Name: "renamed", SportType: "Run", Timezone: "UTC", Sex: "F",
		Distance: 2500, StartDate: base.Add(2 * time.Hour), StartDateLocal: base}))
	require.ErrorIs(t, store.UpdateActivity(ctx, domain.Activity{UserID: "u", ActivityID: 9}), domain.ErrActivityNotFound)

	page, next, err := store.ListActivitiesPage(ctx, "u", nil, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, int64(3), page[0].ActivityID)
	require.Equal(t, "renamed", page[1].Name)
	require.True(t, page[0].StartDate.Equal(base.Add(3*time.Hour)))

	rest, next, err := store.ListActivitiesPage(ctx, "u", next, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.Nil(t, next)
}

func TestSQLiteZeroStartDateRoundTrips(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	undated := domain.Activity{UserID: "user-1", ActivityID: 1}
	undated.Normalize()
	require.NoError(t, store.InsertActivity(ctx, undated))
	dated := domain.Activity{UserID: "user-1", ActivityID: 2, StartDate: time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)}
	require.NoError(t, store.InsertActivity(ctx, dated))

	list, err := store.ListActivities(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, int64(2), list[0].ActivityID)
	require.True(t, list[1].StartDate.IsZero(), "got %s", list[1].StartDate)
	require.True(t, list[1].StartDateLocal.IsZero())

	page, next, err := store.ListActivitiesPage(ctx, "user-1", nil, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	page, _, err = store.ListActivitiesPage(ctx, "user-1", next, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, int64(1), page[0].ActivityID)
	require.True(t, page[0].StartDate.IsZero())
}

func TestSQLiteConstraintErrorsUseDriverCodes(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	cred := domain.Credential{UserID: "user-1", AthleteID: 9, AccessToken: "a", RefreshToken: "r"}
	require.NoError(t, store.InsertCredential(ctx, cred))
	cred.AthleteID = 10
	require.ErrorIs(t, store.InsertCredential(ctx, cred), domain.ErrCredentialExists, "primary key clash")

	require.False(t, isConstraintViolation(errors.New("UNIQUE constraint failed: credentials.user_id")))
	require.False(t, isConstraintViolation(nil))
}
