// Package secrets resolves the Strava client credentials from a secret backend.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrSecretNotFound is returned when a backend has no value for a secret name.
var ErrSecretNotFound = errors.New("secret not found")

// Store reads a named secret.
type Store interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// ClientCredentials is the OAuth client identity registered with Strava.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
}

// SecretInitError reports that the client credentials could not be resolved.
// Processes treat it as fatal at startup.
type SecretInitError struct {
	Name string
	Err  error
}

func (e *SecretInitError) Error() string {
	return fmt.Sprintf("load secret %q: %v", e.Name, e.Err)
}

func (e *SecretInitError) Unwrap() error { return e.Err }

// LoadClientCredentials fetches the client id and secret once. Empty values are errors.
func LoadClientCredentials(ctx context.Context, store Store, idName, secretName string) (ClientCredentials, error) {
	id, err := fetch(ctx, store, idName)
	if err != nil {
		return ClientCredentials{}, err
	}
	secret, err := fetch(ctx, store, secretName)
	if err != nil {
		return ClientCredentials{}, err
	}
	return ClientCredentials{ClientID: id, ClientSecret: secret}, nil
}

func fetch(ctx context.Context, store Store, name string) (string, error) {
	value, err := store.GetSecret(ctx, name)
	if err != nil {
		return "", &SecretInitError{Name: name, Err: err}
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", &SecretInitError{Name: name, Err: errors.New("empty value")}
	}
	return value, nil
}

// EnvStore resolves secrets from environment variables. A secret named
// "strava-client-id" is read from STRAVA_CLIENT_ID.
type EnvStore struct {
	lookup func(string) (string, bool)
}

// NewEnvStore returns an EnvStore over the process environment.
func NewEnvStore() *EnvStore {
	return &EnvStore{lookup: os.LookupEnv}
}

// NewEnvStoreWith returns an EnvStore over a custom lookup.
func NewEnvStoreWith(lookup func(string) (string, bool)) *EnvStore {
	return &EnvStore{lookup: lookup}
}

// GetSecret implements Store.
func (s *EnvStore) GetSecret(_ context.Context, name string) (string, error) {
	key := EnvKey(name)
	value, ok := s.lookup(key)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, key)
	}
	return value, nil
}

// EnvKey maps a secret name onto its environment variable.
func EnvKey(name string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_", "/", "_").Replace(name))
}
