package httptransport

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/stravasync/internal/auth"
	"example.com/stravasync/internal/logging"
)

func TestCORSPreflight(t *testing.T) {
	called := false
	h := CORS("http://localhost:5173")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/v1/activities", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	require.False(t, called)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/activities", nil))
	require.True(t, called)
}

func TestDefaultServerConfig(t *testing.T) {
	srv := NewServer(DefaultServerConfig(":0"), http.NotFoundHandler())
	require.Equal(t, ":0", srv.Addr)
	require.Positive(t, srv.WriteTimeout)
}

func TestChainLogsRejectedRequests(t *testing.T) {
	var logs bytes.Buffer
	logger := logging.NewWithWriter(logging.Config{Service: "test", Level: "info", Format: "json"}, &logs)
	authMiddleware := auth.NewMiddleware(auth.Config{Secret: "s", Issuer: "i"})

	called := false
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }),
		logging.HTTPMiddleware(logger),
		CORS("http://localhost:5173"),
		authMiddleware.Wrap,
	)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/activities", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotEmpty(t, rec.Header().Get(logging.RequestIDHeader))
	require.Contains(t, logs.String(), "/v1/activities")
	require.False(t, called)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/v1/activities", nil))
	require.Equal(t, http.StatusNoContent, rec.Code, "preflight needs no token")
}
