package api

import (
	"time"

	"example.com/stravasync/internal/activitysync"
	"example.com/stravasync/internal/domain"
	"example.com/stravasync/internal/oauth"
)

// AuthorizeResponse carries the provider consent URL.
type AuthorizeResponse struct {
	URL string `json:"url"`
}

// CredentialView describes a stored connection without exposing tokens.
type CredentialView struct {
	UserID    string              `json:"user_id"`
	AthleteID int64               `json:"athlete_id"`
	Scope     string              `json:"scope,omitempty"`
	ExpiresAt time.Time           `json:"expires_at"`
	Outcome   oauth.UpsertOutcome `json:"outcome,omitempty"`
}

// ActivityView exposes a stored activity.
type ActivityView struct {
	ActivityID     int64     `json:"activity_id"`
	Name           string    `json:"name"`
	Distance       float64   `json:"distance"`
	ElapsedTime    int64     `json:"elapsed_time"`
	SportType      string    `json:"sport_type"`
	StartDate      time.Time `json:"start_date"`
	StartDateLocal time.Time `json:"start_date_local"`
	Timezone       string    `json:"timezone"`
	AthleteID      int64     `json:"athlete_id"`
	Sex            string    `json:"sex"`
	Weight         float64   `json:"weight"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ListActivitiesResponse packages list results.
type ListActivitiesResponse struct {
	Items      []ActivityView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// WriteFailure names an activity whose write failed during a sync.
type WriteFailure struct {
	ActivityID int64  `json:"activity_id"`
	Op         string `json:"op"`
	Error      string `json:"error"`
}

// SyncResponse summarises a sync run.
type SyncResponse struct {
	RunID        string         `json:"run_id"`
	Policy       string         `json:"policy"`
	NewCount     int            `json:"new_count"`
	UpdatedCount int            `json:"updated_count"`
	SkippedCount int            `json:"skipped_count"`
	FailedCount  int            `json:"failed_count"`
	NoChanges    bool           `json:"no_changes"`
	Activities   []ActivityView `json:"activities"`
	WrittenIDs   []int64        `json:"written_activity_ids,omitempty"`
	Failures     []WriteFailure `json:"failures,omitempty"`
}

// ToActivityView converts a stored activity to its wire form.
func ToActivityView(a domain.Activity) ActivityView {
	return ActivityView{
		ActivityID:     a.ActivityID,
		Name:           a.Name,
		Distance:       a.Distance,
		ElapsedTime:    a.ElapsedTime,
		SportType:      a.SportType,
		StartDate:      a.StartDate,
		StartDateLocal: a.StartDateLocal,
		Timezone:       a.Timezone,
		AthleteID:      a.AthleteID,
		Sex:            a.Sex,
		Weight:         a.Weight,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

// ToCredentialView strips tokens from a credential.
func ToCredentialView(c *domain.Credential, outcome oauth.UpsertOutcome) *CredentialView {
	if c == nil {
		return nil
	}
	view := &CredentialView{
		UserID:    c.UserID,
		AthleteID: c.AthleteID,
		Scope:     c.Scope,
		Outcome:   outcome,
	}
	if c.ExpiresAt > 0 {
		view.ExpiresAt = time.Unix(c.ExpiresAt, 0).UTC()
	}
	return view
}

// ToSyncResponse converts a sync report to its wire form. Failed writes are
// listed with their error text.
func ToSyncResponse(r *activitysync.Report) *SyncResponse {
	if r == nil {
		return nil
	}
	resp := &SyncResponse{
		RunID:        r.RunID,
		Policy:       string(r.Policy),
		NewCount:     r.NewCount,
		UpdatedCount: r.UpdatedCount,
		SkippedCount: r.SkippedCount,
		FailedCount:  r.FailedCount,
		NoChanges:    r.NoChanges(),
		Activities:   make([]ActivityView, 0, len(r.Activities)),
	}
	for _, a := range r.Activities {
		resp.Activities = append(resp.Activities, ToActivityView(a))
	}
	for _, a := range r.Written {
		resp.WrittenIDs = append(resp.WrittenIDs, a.ActivityID)
	}
	for _, o := range r.Outcomes {
		if o.Err != nil {
			resp.Failures = append(resp.Failures, WriteFailure{ActivityID: o.ActivityID, Op: string(o.Op), Error: o.Err.Error()})
		}
	}
	return resp
}
