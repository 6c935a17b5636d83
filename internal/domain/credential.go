// Package domain defines the records and store contracts shared by the OAuth,
// sync and aggregation layers.
package domain

import "time"

// Credential is the per-user Strava token record. One record exists per local
// user and at most one per remote athlete.
type Credential struct {
	UserID       string
	AthleteID    int64
	AccessToken  string
	RefreshToken string
	// ExpiresAt is the absolute unix time (seconds) at which AccessToken lapses.
	ExpiresAt int64
	Scope     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the access token is expired or will be within skew.
func (c Credential) Expired(now time.Time, skew time.Duration) bool {
	if c.ExpiresAt == 0 {
		return false
	}
	return !now.Add(skew).Before(time.Unix(c.ExpiresAt, 0))
}

// Connected reports whether the record carries a usable token pair.
func (c *Credential) Connected() bool {
	return c != nil && c.AccessToken != "" && c.RefreshToken != ""
}
