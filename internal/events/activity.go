// Package events defines the payloads published for activity changes.
package events

import "time"

// Event types recorded in the outbox.
const (
	TypeActivityImported = "activity.imported"
	TypeActivityUpdated  = "activity.updated"
)

// ActivityChanged is emitted when a sync inserts or overwrites a local activity.
type ActivityChanged struct {
	UserID      string    `json:"user_id"`
	ActivityID  int64     `json:"activity_id"`
	AthleteID   int64     `json:"athlete_id"`
	Name        string    `json:"name"`
	SportType   string    `json:"sport_type"`
	Distance    float64   `json:"distance"`
	ElapsedTime int64     `json:"elapsed_time"`
	StartDate   time.Time `json:"start_date"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// ActivityChangedSchema is the JSON schema registered for ActivityChanged payloads.
const ActivityChangedSchema = `{
  "type": "object",
  "title": "StravaActivityChanged",
  "properties": {
    "user_id": {"type": "string"},
    "activity_id": {"type": "integer"},
    "athlete_id": {"type": "integer"},
    "name": {"type": "string"},
    "sport_type": {"type": "string"},
    "distance": {"type": "number"},
    "elapsed_time": {"type": "integer"},
    "start_date": {"type": "string", "format": "date-time"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["user_id", "activity_id", "sport_type", "distance", "elapsed_time", "start_date", "occurred_at"],
  "additionalProperties": false
}`

// Kafka record headers set by the outbox dispatcher.
const (
	HeaderEventType     = "event_type"
	HeaderUserID        = "user_id"
	HeaderSchemaSubject = "schema_subject"
)
