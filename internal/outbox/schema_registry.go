package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrSubjectNotFound is returned when the registry has no versions for a subject.
var ErrSubjectNotFound = errors.New("schema subject not found")

// Registry error codes returned alongside 404s.
const (
	codeSubjectNotFound = 40401
	codeSchemaNotFound  = 40403
)

const registryContentType = "application/vnd.schemaregistry.v1+json"

// RegistryError is a non-2xx answer from the schema registry.
type RegistryError struct {
	StatusCode int
	Code       int    `json:"error_code"`
	Message    string `json:"message"`
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("schema registry: status %d code %d: %s", e.StatusCode, e.Code, e.Message)
}

// SchemaRegistryClient resolves ids for the JSON schemas that frame activity
// change events.
type SchemaRegistryClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewSchemaRegistryClient constructs a client for the registry at baseURL.
func NewSchemaRegistryClient(baseURL string) *SchemaRegistryClient {
	return &SchemaRegistryClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// EnsureSchema returns the id of schema under subject, registering it when
// the registry does not know this exact schema yet. Other registry failures
// are returned as is so events are not framed with a guessed id.
func (c *SchemaRegistryClient) EnsureSchema(ctx context.Context, subject string, schema string) (int, error) {
	id, err := c.lookup(ctx, subject, schema)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, ErrSubjectNotFound) {
		var regErr *RegistryError
		if !errors.As(err, &regErr) || regErr.Code != codeSchemaNotFound {
			return 0, err
		}
	}
	return c.register(ctx, subject, schema)
}

func (c *SchemaRegistryClient) lookup(ctx context.Context, subject, schema string) (int, error) {
	return c.post(ctx, "/subjects/"+url.PathEscape(subject), schema)
}

func (c *SchemaRegistryClient) register(ctx context.Context, subject, schema string) (int, error) {
	id, err := c.post(ctx, "/subjects/"+url.PathEscape(subject)+"/versions", schema)
	if err != nil {
		return 0, fmt.Errorf("register %s: %w", subject, err)
	}
	return id, nil
}

func (c *SchemaRegistryClient) post(ctx context.Context, path, schema string) (int, error) {
	body, err := json.Marshal(map[string]string{"schemaType": "JSON", "schema": schema})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", registryContentType)
	req.Header.Set("Accept", registryContentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		regErr := &RegistryError{StatusCode: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, regErr) != nil || regErr.Message == "" {
			regErr.Message = strings.TrimSpace(string(data))
		}
		if regErr.Code == codeSubjectNotFound {
			return 0, fmt.Errorf("%w: %s", ErrSubjectNotFound, regErr.Message)
		}
		return 0, regErr
	}

	var payload struct {
		ID int `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, err
	}
	if payload.ID <= 0 {
		return 0, fmt.Errorf("schema registry returned no id for %s", path)
	}
	return payload.ID, nil
}
