package domain

import (
	"context"
	"errors"
)

var (
	// ErrNotConnected is returned when no credential exists for the user.
	ErrNotConnected = errors.New("user has not connected a strava account")
	// ErrCredentialExists is returned when an insert clashes on user or athlete.
	ErrCredentialExists = errors.New("credential already exists")
	// ErrCredentialNotFound is returned when an update targets a missing user.
	ErrCredentialNotFound = errors.New("credential not found")
	// ErrActivityExists is returned when an insert clashes on (user, activity).
	ErrActivityExists = errors.New("activity already exists")
	// ErrActivityNotFound is returned when an update targets a missing activity.
	ErrActivityNotFound = errors.New("activity not found")
)

// CredentialStore persists Credential records. Lookups return nil, nil when
// nothing matches.
type CredentialStore interface {
	GetCredential(ctx context.Context, userID string) (*Credential, error)
	FindCredentialByAthlete(ctx context.Context, athleteID int64) (*Credential, error)
	InsertCredential(ctx context.Context, cred Credential) error
	UpdateCredential(ctx context.Context, cred Credential) error
}

// ActivityStore persists Activity records.
type ActivityStore interface {
	ListActivities(ctx context.Context, userID string) ([]Activity, error)
	ListActivitiesPage(ctx context.Context, userID string, cursor *Cursor, limit int) ([]Activity, *Cursor, error)
	InsertActivity(ctx context.Context, activity Activity) error
	UpdateActivity(ctx context.Context, activity Activity) error
}

// Store bundles both record kinds behind one backend.
type Store interface {
	CredentialStore
	ActivityStore
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	Close() error
}
