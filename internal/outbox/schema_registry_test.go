package outbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/stravasync/internal/events"
)

type registryRequest struct {
	SchemaType string `json:"schemaType"`
	Schema     string `json:"schema"`
}

func TestEnsureSchemaRegistersMissingSubject(t *testing.T) {
	var registered string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var body registryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "JSON", body.SchemaType)

		switch r.URL.Path {
		case "/subjects/strava_activity_imported-value":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error_code": 40401, "message": "Subject 'strava_activity_imported-value' not found."}`))
		case "/subjects/strava_activity_imported-value/versions":
			registered = body.Schema
			_, _ = w.Write([]byte(`{"id": 12}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	id, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), "strava_activity_imported-value", events.ActivityChangedSchema)
	require.NoError(t, err)
	require.Equal(t, 12, id)
	require.Equal(t, events.ActivityChangedSchema, registered)
}

func TestEnsureSchemaRegistersNewSchemaVersion(t *testing.T) {
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.URL.Path)
		if r.URL.Path == "/subjects/s" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error_code": 40403, "message": "Schema not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id": 7}`))
	}))
	defer srv.Close()

	id, err := NewSchemaRegistryClient(srv.URL+"/").EnsureSchema(context.Background(), "s", "{}")
	require.NoError(t, err)
	require.Equal(t, 7, id)
	require.Equal(t, []string{"/subjects/s", "/subjects/s/versions"}, calls)
}

func TestEnsureSchemaReturnsKnownID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/subjects/s", r.URL.Path)
		_, _ = w.Write([]byte(`{"subject": "s", "id": 5, "version": 3}`))
	}))
	defer srv.Close()

	id, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), "s", "{}")
	require.NoError(t, err)
	require.Equal(t, 5, id)
}

func TestEnsureSchemaDoesNotRegisterOnServerError(t *testing.T) {
	posts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts++
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error_code": 50001, "message": "store error"}`))
	}))
	defer srv.Close()

	_, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), "s", "{}")
	var regErr *RegistryError
	require.ErrorAs(t, err, &regErr)
	require.Equal(t, http.StatusInternalServerError, regErr.StatusCode)
	require.Equal(t, 50001, regErr.Code)
	require.Equal(t, 1, posts)
}

func TestEncodeWireFormat(t *testing.T) {
	frame := encodeWireFormat(258, []byte(`{}`))
	require.Equal(t, []byte{0, 0, 0, 1, 2, '{', '}'}, frame)
}

func TestSchemaCatalogCoversActivityEvents(t *testing.T) {
	for _, eventType := range []string{events.TypeActivityImported, events.TypeActivityUpdated} {
		entry, ok := schemaCatalog[eventType]
		require.True(t, ok, eventType)
		require.True(t, json.Valid([]byte(entry.Schema)))
	}
}
