package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAthleteSendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/athlete", r.URL.Path)
		require.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id": 99, "sex": "F", "weight": 61.5}`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL + "/api/v3", HTTPClient: srv.Client()})
	athlete, err := client.Athlete(context.Background(), "token-1")
	require.NoError(t, err)
	require.Equal(t, int64(99), athlete.ID)
	require.Equal(t, "F", athlete.SexOrEmpty())
	require.Equal(t, 61.5, athlete.WeightOrZero())
}

func TestAthleteNullFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": 1, "sex": null, "weight": null}`))
	}))
	defer srv.Close()

	athlete, err := NewClient(Config{BaseURL: srv.URL, HTTPClient: srv.Client()}).Athlete(context.Background(), "t")
	require.NoError(t, err)
	require.Empty(t, athlete.SexOrEmpty())
	require.Zero(t, athlete.WeightOrZero())
}

func TestActivitiesPaginatesUntilShortPage(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.Equal(t, "2", r.URL.Query().Get("per_page"))
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		var items []map[string]any
		switch page {
		case 1:
			items = []map[string]any{activityJSON(1), activityJSON(2)}
		case 2:
			items = []map[string]any{activityJSON(3)}
		default:
			t.Fatalf("unexpected page %d", page)
		}
		_ = json.NewEncoder(w).Encode(items)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, PageSize: 2, HTTPClient: srv.Client()})
	activities, err := client.Activities(context.Background(), "t")
	require.NoError(t, err)
	require.Len(t, activities, 3)
	require.Equal(t, int32(2), calls.Load())
	require.Equal(t, "Run", activities[0].Sport())
	require.Equal(t, time.Date(2018, 2, 16, 14, 52, 54, 0, time.UTC), activities[0].StartTime())
}

func TestActivitiesStopsAtMaxPages(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		_ = json.NewEncoder(w).Encode([]map[string]any{activityJSON(int64(n))})
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, PageSize: 1, MaxPages: 3, HTTPClient: srv.Client()})
	activities, err := client.Activities(context.Background(), "t")
	require.NoError(t, err)
	require.Len(t, activities, 3)
	require.Equal(t, int32(3), calls.Load())
}

func TestActivitiesEmptyList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	activities, err := NewClient(Config{BaseURL: srv.URL, HTTPClient: srv.Client()}).Activities(context.Background(), "t")
	require.NoError(t, err)
	require.NotNil(t, activities)
	require.Empty(t, activities)
}

func TestNonSuccessIsUpstreamError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Authorization Error"}`))
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL, HTTPClient: srv.Client()}).Activities(context.Background(), "expired")
	var upErr *UpstreamError
	require.True(t, errors.As(err, &upErr))
	require.Equal(t, http.StatusUnauthorized, upErr.StatusCode)
	require.Equal(t, "athlete_activities", upErr.Endpoint)
	require.Contains(t, upErr.Body, "Authorization Error")
	require.Equal(t, int32(1), calls.Load(), "upstream failures are not retried")
}

func TestRateLimiterHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":1}`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, RateLimit: 1, RateWindow: time.Hour, HTTPClient: srv.Client()})
	_, err := client.Athlete(context.Background(), "t")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = client.Athlete(ctx, "t")
	require.Error(t, err, "second call must wait for the bucket and give up with the context")
}

func activityJSON(id int64) map[string]any {
	return map[string]any{
		"id":               id,
		"name":             fmt.Sprintf("Activity %d", id),
		"distance":         5000.0,
		"elapsed_time":     1200,
		"sport_type":       "Run",
		"start_date":       "2018-02-16T14:52:54Z",
		"start_date_local": "2018-02-16T06:52:54Z",
		"timezone":         "(GMT-08:00) America/Los_Angeles",
		"athlete":          map[string]any{"id": 134815},
		"map":              map[string]any{"summary_polyline": "ki{eFvqfiVqAWQIGEEKAYJgBVqDJ{BHa@jAkNJw@Pw@V{APs@"},
	}
}
