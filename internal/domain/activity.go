package domain

import (
	"strings"
	"time"
)

// UnknownValue replaces absent remote string fields.
const UnknownValue = "Unknown"

// Activity is the locally persisted projection of a remote activity, keyed by
// (UserID, ActivityID) and denormalised with the athlete profile at sync time.
type Activity struct {
	UserID         string
	ActivityID     int64
	Name           string
	Distance       float64 // meters
	ElapsedTime    int64   // seconds
	SportType      string
	StartDate      time.Time
	StartDateLocal time.Time
	Timezone       string
	AthleteID      int64
	Sex            string
	Weight         float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Normalize applies the defaults for absent or out-of-range remote values.
func (a *Activity) Normalize() {
	a.Name = orUnknown(a.Name)
	a.SportType = orUnknown(a.SportType)
	a.Timezone = orUnknown(a.Timezone)
	a.Sex = orUnknown(a.Sex)
	if a.Distance < 0 {
		a.Distance = 0
	}
	if a.ElapsedTime < 0 {
		a.ElapsedTime = 0
	}
	if a.Weight < 0 {
		a.Weight = 0
	}
	a.StartDate = a.StartDate.UTC()
}

// Key returns the composite identity of the record.
func (a Activity) Key() ActivityKey {
	return ActivityKey{UserID: a.UserID, ActivityID: a.ActivityID}
}

// ActivityKey is the composite primary key of an Activity.
type ActivityKey struct {
	UserID     string
	ActivityID int64
}

// Cursor models the keyset pagination token for activity listings.
type Cursor struct {
	StartDate  time.Time
	ActivityID int64
}

func orUnknown(value string) string {
	if strings.TrimSpace(value) == "" {
		return UnknownValue
	}
	return value
}
