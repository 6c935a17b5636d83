package strava

import "time"

// Athlete is the subset of the authenticated athlete profile the sync needs.
type Athlete struct {
	ID     int64    `json:"id"`
	Sex    *string  `json:"sex"`
	Weight *float64 `json:"weight"`
}

// SexOrEmpty returns the profile sex or "" when Strava omitted it.
func (a Athlete) SexOrEmpty() string {
	if a.Sex == nil {
		return ""
	}
	return *a.Sex
}

// WeightOrZero returns the profile weight or 0 when Strava omitted it.
func (a Athlete) WeightOrZero() float64 {
	if a.Weight == nil {
		return 0
	}
	return *a.Weight
}

// ActivitySummary is one element of the athlete activities listing.
type ActivitySummary struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	Distance       float64 `json:"distance"`
	ElapsedTime    int64   `json:"elapsed_time"`
	SportType      string  `json:"sport_type"`
	Type           string  `json:"type"`
	StartDate      string  `json:"start_date"`
	StartDateLocal string  `json:"start_date_local"`
	Timezone       string  `json:"timezone"`
	Athlete        struct {
		ID int64 `json:"id"`
	} `json:"athlete"`
	Map struct {
		SummaryPolyline string `json:"summary_polyline"`
	} `json:"map"`
}

// Sport returns sport_type, falling back to the legacy type field.
func (a ActivitySummary) Sport() string {
	if a.SportType != "" {
		return a.SportType
	}
	return a.Type
}

// StartTime parses start_date. Absent or malformed values yield the zero time.
func (a ActivitySummary) StartTime() time.Time {
	return parseTime(a.StartDate)
}

// StartTimeLocal parses start_date_local, which Strava renders with a Z suffix
// even though it is wall-clock time in the activity's timezone.
func (a ActivitySummary) StartTimeLocal() time.Time {
	return parseTime(a.StartDateLocal)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
