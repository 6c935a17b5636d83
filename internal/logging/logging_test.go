package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPMiddlewareAssignsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Service: "test", Format: "json"}, &buf)

	var seen bool
	handler := HTTPMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context()) != nil
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/strava/callback?code=secret&state=u", nil))

	require.True(t, seen)
	require.NotEmpty(t, rr.Header().Get(RequestIDHeader))

	var record map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record))
	require.Equal(t, float64(http.StatusTeapot), record["status"])
	require.Equal(t, "/v1/strava/callback", record["path"])
	require.False(t, strings.Contains(buf.String(), "secret"), "query string must not be logged")
}

func TestHTTPMiddlewareKeepsIncomingRequestID(t *testing.T) {
	handler := HTTPMiddleware(Discard())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, "req-123", rr.Header().Get(RequestIDHeader))
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	require.NotNil(t, FromContext(context.Background()))
	require.Equal(t, parseLevel("WARNING"), parseLevel("warn"))
}
