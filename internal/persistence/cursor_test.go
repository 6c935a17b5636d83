package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/stravasync/internal/domain"
)

func TestCursorRoundTrip(t *testing.T) {
	c := &domain.Cursor{StartDate: time.Date(2024, 5, 1, 7, 30, 0, 0, time.UTC), ActivityID: 987654321}

	decoded, err := DecodeCursor(EncodeCursor(c))
	require.NoError(t, err)
	require.True(t, c.StartDate.Equal(decoded.StartDate))
	require.Equal(t, c.ActivityID, decoded.ActivityID)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	cur, err := DecodeCursor("")
	require.NoError(t, err)
	require.Nil(t, cur)

	_, err = DecodeCursor("!!!")
	require.Error(t, err)

	_, err = DecodeCursor(EncodeCursor(nil) + "bm9waXBl")
	require.Error(t, err)
}

func TestNextCursorOnlyForFullPages(t *testing.T) {
	start := time.Now().UTC()
	page := []domain.Activity{{ActivityID: 2, StartDate: start}, {ActivityID: 1, StartDate: start}}

	require.Nil(t, NextCursor(page, 3))
	next := NextCursor(page, 2)
	require.NotNil(t, next)
	require.Equal(t, int64(1), next.ActivityID)
}

func TestBefore(t *testing.T) {
	ts := time.Now().UTC()
	c := &domain.Cursor{StartDate: ts, ActivityID: 10}

	require.True(t, Before(domain.Activity{StartDate: ts, ActivityID: 9}, c))
	require.False(t, Before(domain.Activity{StartDate: ts, ActivityID: 10}, c))
	require.True(t, Before(domain.Activity{StartDate: ts.Add(-time.Second), ActivityID: 99}, c))
	require.False(t, Before(domain.Activity{StartDate: ts.Add(time.Second), ActivityID: 1}, c))
}
