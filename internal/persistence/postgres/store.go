// Package postgres implements the credential and activity stores on Postgres,
// recording activity change events in the outbox inside the same transaction.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/stravasync/internal/domain"
	"example.com/stravasync/internal/events"
	"example.com/stravasync/internal/observability"
	"example.com/stravasync/internal/persistence"
)

const uniqueViolation = "23505"

const credentialColumns = `user_id, COALESCE(athlete_id, 0), access_token, refresh_token, expires_at, scope, created_at, updated_at`

const activityColumns = `user_id, activity_id, name, distance, elapsed_time, sport_type, start_date, start_date_local, timezone, athlete_id, sex, weight, created_at, updated_at`

// Store provides Postgres-backed persistence for credentials, activities and outbox events.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store over an existing pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close is a no-op; the pool is owned by the caller.
func (s *Store) Close() error { return nil }

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// GetCredential implements domain.CredentialStore.
func (s *Store) GetCredential(ctx context.Context, userID string) (*domain.Credential, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+credentialColumns+` FROM strava_credentials WHERE user_id=$1`, userID)
	return scanCredential(row)
}

// FindCredentialByAthlete implements domain.CredentialStore.
func (s *Store) FindCredentialByAthlete(ctx context.Context, athleteID int64) (*domain.Credential, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+credentialColumns+` FROM strava_credentials WHERE athlete_id=$1`, athleteID)
	return scanCredential(row)
}

// InsertCredential implements domain.CredentialStore.
func (s *Store) InsertCredential(ctx context.Context, cred domain.Credential) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO strava_credentials (user_id, athlete_id, access_token, refresh_token, expires_at, scope, created_at, updated_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$7)`,
		cred.UserID, nullIfZero(cred.AthleteID), cred.AccessToken, cred.RefreshToken, cred.ExpiresAt, cred.Scope, now,
	)
	if isUniqueViolation(err) {
		return domain.ErrCredentialExists
	}
	return err
}

// UpdateCredential implements domain.CredentialStore.
func (s *Store) UpdateCredential(ctx context.Context, cred domain.Credential) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE strava_credentials
            SET athlete_id=$2, access_token=$3, refresh_token=$4, expires_at=$5, scope=$6, updated_at=NOW()
          WHERE user_id=$1`,
		cred.UserID, nullIfZero(cred.AthleteID), cred.AccessToken, cred.RefreshToken, cred.ExpiresAt, cred.Scope,
	)
	if isUniqueViolation(err) {
		return domain.ErrCredentialExists
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCredentialNotFound
	}
	return nil
}

// ListActivities implements domain.ActivityStore.
func (s *Store) ListActivities(ctx context.Context, userID string) ([]domain.Activity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+activityColumns+` FROM strava_activities WHERE user_id=$1 ORDER BY start_date DESC, activity_id DESC`, userID)
	if err != nil {
		return nil, err
	}
	return collectActivities(rows)
}

// ListActivitiesPage implements domain.ActivityStore using keyset pagination.
func (s *Store) ListActivitiesPage(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	args := []interface{}{userID, limit}
	query := `SELECT ` + activityColumns + ` FROM strava_activities WHERE user_id=$1`
	if cursor != nil {
		query += ` AND (start_date, activity_id) < ($3, $4)`
		args = append(args, cursor.StartDate, cursor.ActivityID)
	}
	query += ` ORDER BY start_date DESC, activity_id DESC LIMIT $2`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	page, err := collectActivities(rows)
	if err != nil {
		return nil, nil, err
	}
	return page, persistence.NextCursor(page, limit), nil
}

// InsertActivity implements domain.ActivityStore and records an activity.imported event.
func (s *Store) InsertActivity(ctx context.Context, activity domain.Activity) error {
	now := time.Now().UTC()
	activity.CreatedAt, activity.UpdatedAt = now, now

	return s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`INSERT INTO strava_activities (`+activityColumns+`)
             VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
             ON CONFLICT (user_id, activity_id) DO NOTHING`,
			activity.UserID, activity.ActivityID, activity.Name, activity.Distance, activity.ElapsedTime, activity.SportType,
			activity.StartDate, activity.StartDateLocal, activity.Timezone, activity.AthleteID, activity.Sex, activity.Weight,
			activity.CreatedAt, activity.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrActivityExists
		}
		return insertOutbox(ctx, tx, activity, events.TypeActivityImported)
	})
}

// UpdateActivity implements domain.ActivityStore and records an activity.updated event.
func (s *Store) UpdateActivity(ctx context.Context, activity domain.Activity) error {
	activity.UpdatedAt = time.Now().UTC()

	return s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE strava_activities
                SET name=$3, distance=$4, elapsed_time=$5, sport_type=$6, start_date=$7, start_date_local=$8,
                    timezone=$9, athlete_id=$10, sex=$11, weight=$12, updated_at=$13
              WHERE user_id=$1 AND activity_id=$2`,
			activity.UserID, activity.ActivityID, activity.Name, activity.Distance, activity.ElapsedTime, activity.SportType,
			activity.StartDate, activity.StartDateLocal, activity.Timezone, activity.AthleteID, activity.Sex, activity.Weight,
			activity.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrActivityNotFound
		}
		return insertOutbox(ctx, tx, activity, events.TypeActivityUpdated)
	})
}

func (s *Store) withTx(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordActivityPersisted(time.Now())
	return nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, activity domain.Activity, eventType string) error {
	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	body, err := json.Marshal(events.ActivityChanged{
		UserID:      activity.UserID,
		ActivityID:  activity.ActivityID,
		AthleteID:   activity.AthleteID,
		Name:        activity.Name,
		SportType:   activity.SportType,
		Distance:    activity.Distance,
		ElapsedTime: activity.ElapsedTime,
		StartDate:   activity.StartDate,
		OccurredAt:  activity.UpdatedAt,
	})
	if err != nil {
		return err
	}

	aggregateID := strconv.FormatInt(activity.ActivityID, 10)
	dedupeKey := fmt.Sprintf("%s:%s:%s:%d", activity.UserID, aggregateID, eventType, activity.UpdatedAt.UnixNano())

	_, err = tx.Exec(ctx,
		`INSERT INTO outbox (user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		activity.UserID,
		"strava_activity",
		aggregateID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		activity.UserID,
		body,
		dedupeKey,
	)
	return err
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]EventMetadata{
	events.TypeActivityImported: {
		Topic:         "strava_activity_imported",
		SchemaSubject: "strava_activity_imported-value",
	},
	events.TypeActivityUpdated: {
		Topic:         "strava_activity_updated",
		SchemaSubject: "strava_activity_updated-value",
	},
}

func scanCredential(row pgx.Row) (*domain.Credential, error) {
	var cred domain.Credential
	err := row.Scan(&cred.UserID, &cred.AthleteID, &cred.AccessToken, &cred.RefreshToken, &cred.ExpiresAt, &cred.Scope, &cred.CreatedAt, &cred.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func collectActivities(rows pgx.Rows) ([]domain.Activity, error) {
	defer rows.Close()

	out := make([]domain.Activity, 0)
	for rows.Next() {
		var a domain.Activity
		if err := rows.Scan(&a.UserID, &a.ActivityID, &a.Name, &a.Distance, &a.ElapsedTime, &a.SportType,
			&a.StartDate, &a.StartDateLocal, &a.Timezone, &a.AthleteID, &a.Sex, &a.Weight, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullIfZero(value int64) interface{} {
	if value == 0 {
		return nil
	}
	return value
}
