// Package memory provides a process-local store for tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"example.com/stravasync/internal/domain"
	"example.com/stravasync/internal/persistence"
)

// Store keeps credentials and activities in maps guarded by a RWMutex.
type Store struct {
	mu          sync.RWMutex
	credentials map[string]domain.Credential
	athletes    map[int64]string
	activities  map[domain.ActivityKey]domain.Activity
	now         func() time.Time
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		credentials: make(map[string]domain.Credential),
		athletes:    make(map[int64]string),
		activities:  make(map[domain.ActivityKey]domain.Activity),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Close implements domain.Store.
func (s *Store) Close() error { return nil }

// Ping implements domain.Store.
func (s *Store) Ping(context.Context) error { return nil }

// GetCredential implements domain.CredentialStore.
func (s *Store) GetCredential(_ context.Context, userID string) (*domain.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.credentials[userID]
	if !ok {
		return nil, nil
	}
	return &cred, nil
}

// FindCredentialByAthlete implements domain.CredentialStore.
func (s *Store) FindCredentialByAthlete(_ context.Context, athleteID int64) (*domain.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.athletes[athleteID]
	if !ok {
		return nil, nil
	}
	cred := s.credentials[userID]
	return &cred, nil
}

// InsertCredential implements domain.CredentialStore.
func (s *Store) InsertCredential(_ context.Context, cred domain.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.credentials[cred.UserID]; exists {
		return domain.ErrCredentialExists
	}
	if cred.AthleteID != 0 {
		if _, taken := s.athletes[cred.AthleteID]; taken {
			return domain.ErrCredentialExists
		}
	}

	now := s.now()
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = now
	}
	cred.UpdatedAt = now
	s.credentials[cred.UserID] = cred
	if cred.AthleteID != 0 {
		s.athletes[cred.AthleteID] = cred.UserID
	}
	return nil
}

// UpdateCredential implements domain.CredentialStore.
func (s *Store) UpdateCredential(_ context.Context, cred domain.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.credentials[cred.UserID]
	if !ok {
		return domain.ErrCredentialNotFound
	}
	if cred.AthleteID != 0 {
		if owner, taken := s.athletes[cred.AthleteID]; taken && owner != cred.UserID {
			return domain.ErrCredentialExists
		}
	}
	if existing.AthleteID != 0 && existing.AthleteID != cred.AthleteID {
		delete(s.athletes, existing.AthleteID)
	}

	cred.CreatedAt = existing.CreatedAt
	cred.UpdatedAt = s.now()
	s.credentials[cred.UserID] = cred
	if cred.AthleteID != 0 {
		s.athletes[cred.AthleteID] = cred.UserID
	}
	return nil
}

// ListActivities implements domain.ActivityStore.
func (s *Store) ListActivities(_ context.Context, userID string) ([]domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Activity, 0)
	for key, activity := range s.activities {
		if key.UserID == userID {
			out = append(out, activity)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// ListActivitiesPage implements domain.ActivityStore.
func (s *Store) ListActivitiesPage(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	all, err := s.ListActivities(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	page := make([]domain.Activity, 0, limit)
	for _, activity := range all {
		if !persistence.Before(activity, cursor) {
			continue
		}
		page = append(page, activity)
		if len(page) == limit {
			break
		}
	}
	return page, persistence.NextCursor(page, limit), nil
}

// InsertActivity implements domain.ActivityStore.
func (s *Store) InsertActivity(_ context.Context, activity domain.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := activity.Key()
	if _, exists := s.activities[key]; exists {
		return domain.ErrActivityExists
	}
	now := s.now()
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = now
	}
	activity.UpdatedAt = now
	s.activities[key] = activity
	return nil
}

// UpdateActivity implements domain.ActivityStore.
func (s *Store) UpdateActivity(_ context.Context, activity domain.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := activity.Key()
	existing, ok := s.activities[key]
	if !ok {
		return domain.ErrActivityNotFound
	}
	activity.CreatedAt = existing.CreatedAt
	activity.UpdatedAt = s.now()
	s.activities[key] = activity
	return nil
}

func sortNewestFirst(activities []domain.Activity) {
	sort.Slice(activities, func(i, j int) bool {
		a, b := activities[i], activities[j]
		if a.StartDate.Equal(b.StartDate) {
			return a.ActivityID > b.ActivityID
		}
		return a.StartDate.After(b.StartDate)
	})
}
