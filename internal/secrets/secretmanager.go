package secrets

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	secretmanager "google.golang.org/api/secretmanager/v1"
)

// SecretManagerStore reads the latest version of secrets held in Google Secret Manager.
type SecretManagerStore struct {
	project string
	svc     *secretmanager.Service
}

// NewSecretManagerStore builds a store for project. Extra client options (credentials file,
// endpoint) are passed through to the API client.
func NewSecretManagerStore(ctx context.Context, project string, opts ...option.ClientOption) (*SecretManagerStore, error) {
	if strings.TrimSpace(project) == "" {
		return nil, errors.New("secret manager: project is required")
	}
	svc, err := secretmanager.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("secret manager: create service: %w", err)
	}
	return &SecretManagerStore{project: project, svc: svc}, nil
}

// GetSecret implements Store.
func (s *SecretManagerStore) GetSecret(ctx context.Context, name string) (string, error) {
	resource := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", s.project, name)

	resp, err := s.svc.Projects.Secrets.Versions.Access(resource).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
		}
		return "", err
	}
	if resp.Payload == nil {
		return "", fmt.Errorf("%w: %s has no payload", ErrSecretNotFound, name)
	}

	data, err := base64.StdEncoding.DecodeString(resp.Payload.Data)
	if err != nil {
		return "", fmt.Errorf("secret manager: decode %s: %w", name, err)
	}
	return string(data), nil
}
