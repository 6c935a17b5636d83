// Package sqlite implements the credential and activity stores on an embedded
// SQLite database for single-node deployments. Timestamps are stored as unix
// nanoseconds so keyset ordering stays numeric.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sqlitedriver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"example.com/stravasync/internal/domain"
	"example.com/stravasync/internal/persistence"
)

const credentialColumns = `user_id, COALESCE(athlete_id, 0), access_token, refresh_token, expires_at, scope, created_at, updated_at`

const activityColumns = `user_id, activity_id, name, distance, elapsed_time, sport_type, start_date, start_date_local, timezone, athlete_id, sex, weight, created_at, updated_at`

// Store is a database/sql backed store using the modernc SQLite driver.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore opens the database at dsn.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// Serialise writers; SQLite allows one at a time.
	db.SetMaxOpenConns(1)

	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetCredential implements domain.CredentialStore.
func (s *Store) GetCredential(ctx context.Context, userID string) (*domain.Credential, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+credentialColumns+` FROM strava_credentials WHERE user_id = ?`, userID)
	return scanCredential(row)
}

// FindCredentialByAthlete implements domain.CredentialStore.
func (s *Store) FindCredentialByAthlete(ctx context.Context, athleteID int64) (*domain.Credential, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+credentialColumns+` FROM strava_credentials WHERE athlete_id = ?`, athleteID)
	return scanCredential(row)
}

// InsertCredential implements domain.CredentialStore.
func (s *Store) InsertCredential(ctx context.Context, cred domain.Credential) error {
	now := s.now().UnixNano()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO strava_credentials (user_id, athlete_id, access_token, refresh_token, expires_at, scope, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		cred.UserID, nullIfZero(cred.AthleteID), cred.AccessToken, cred.RefreshToken, cred.ExpiresAt, cred.Scope, now, now,
	)
	if isConstraintViolation(err) {
		return domain.ErrCredentialExists
	}
	return err
}

// UpdateCredential implements domain.CredentialStore.
func (s *Store) UpdateCredential(ctx context.Context, cred domain.Credential) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE strava_credentials
            SET athlete_id = ?, access_token = ?, refresh_token = ?, expires_at = ?, scope = ?, updated_at = ?
          WHERE user_id = ?`,
		nullIfZero(cred.AthleteID), cred.AccessToken, cred.RefreshToken, cred.ExpiresAt, cred.Scope, s.now().UnixNano(), cred.UserID,
	)
	if isConstraintViolation(err) {
		return domain.ErrCredentialExists
	}
	if err != nil {
		return err
	}
	return requireRow(res, domain.ErrCredentialNotFound)
}

// ListActivities implements domain.ActivityStore.
func (s *Store) ListActivities(ctx context.Context, userID string) ([]domain.Activity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+activityColumns+` FROM strava_activities WHERE user_id = ? ORDER BY start_date DESC, activity_id DESC`, userID)
	if err != nil {
		return nil, err
	}
	return collectActivities(rows)
}

// ListActivitiesPage implements domain.ActivityStore.
func (s *Store) ListActivitiesPage(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	query := `SELECT ` + activityColumns + ` FROM strava_activities WHERE user_id = ?`
	args := []any{userID}
	if cursor != nil {
		ts := toNanos(cursor.StartDate)
		query += ` AND (start_date < ? OR (start_date = ? AND activity_id < ?))`
		args = append(args, ts, ts, cursor.ActivityID)
	}
	query += ` ORDER BY start_date DESC, activity_id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	page, err := collectActivities(rows)
	if err != nil {
		return nil, nil, err
	}
	return page, persistence.NextCursor(page, limit), nil
}

// InsertActivity implements domain.ActivityStore.
func (s *Store) InsertActivity(ctx context.Context, a domain.Activity) error {
	now := s.now().UnixNano()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO strava_activities (`+activityColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT (user_id, activity_id) DO NOTHING`,
		a.UserID, a.ActivityID, a.Name, a.Distance, a.ElapsedTime, a.SportType,
		toNanos(a.StartDate), toNanos(a.StartDateLocal), a.Timezone, a.AthleteID, a.Sex, a.Weight, now, now,
	)
	if err != nil {
		return err
	}
	return requireRow(res, domain.ErrActivityExists)
}

// UpdateActivity implements domain.ActivityStore.
func (s *Store) UpdateActivity(ctx context.Context, a domain.Activity) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE strava_activities
            SET name = ?, distance = ?, elapsed_time = ?, sport_type = ?, start_date = ?, start_date_local = ?,
                timezone = ?, athlete_id = ?, sex = ?, weight = ?, updated_at = ?
          WHERE user_id = ? AND activity_id = ?`,
		a.Name, a.Distance, a.ElapsedTime, a.SportType, toNanos(a.StartDate), toNanos(a.StartDateLocal),
		a.Timezone, a.AthleteID, a.Sex, a.Weight, s.now().UnixNano(), a.UserID, a.ActivityID,
	)
	if err != nil {
		return err
	}
	return requireRow(res, domain.ErrActivityNotFound)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCredential(row scanner) (*domain.Credential, error) {
	var (
		cred             domain.Credential
		created, updated int64
	)
	err := row.Scan(&cred.UserID, &cred.AthleteID, &cred.AccessToken, &cred.RefreshToken, &cred.ExpiresAt, &cred.Scope, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cred.CreatedAt = fromNanos(created)
	cred.UpdatedAt = fromNanos(updated)
	return &cred, nil
}

func collectActivities(rows *sql.Rows) ([]domain.Activity, error) {
	defer rows.Close()

	out := make([]domain.Activity, 0)
	for rows.Next() {
		var (
			a                                   domain.Activity
			start, startLocal, created, updated int64
		)
		if err := rows.Scan(&a.UserID, &a.ActivityID, &a.Name, &a.Distance, &a.ElapsedTime, &a.SportType,
			&start, &startLocal, &a.Timezone, &a.AthleteID, &a.Sex, &a.Weight, &created, &updated); err != nil {
			return nil, err
		}
		a.StartDate = fromNanos(start)
		a.StartDateLocal = fromNanos(startLocal)
		a.CreatedAt = fromNanos(created)
		a.UpdatedAt = fromNanos(updated)
		out = append(out, a)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result, none error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return none
	}
	return nil
}

// toNanos stores the zero time as 0; its UnixNano is undefined.
func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func nullIfZero(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func isConstraintViolation(err error) bool {
	var sqliteErr *sqlitedriver.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
