// Package stats computes per-user aggregates over stored activities.
package stats

import (
	"context"
	"log/slog"
	"time"

	"example.com/stravasync/internal/domain"
)

// Summary aggregates a user's stored activities.
type Summary struct {
	UserID               string             `json:"user_id"`
	ActivityCount        int                `json:"activity_count"`
	TotalDistanceKm      float64            `json:"total_distance_km"`
	TotalElapsedSeconds  int64              `json:"total_elapsed_seconds"`
	DistanceKmBySport    map[string]float64 `json:"distance_km_by_sport"`
	LastActivityStartsAt *time.Time         `json:"last_activity_starts_at,omitempty"`
}

// ActivityLister is the read side of domain.ActivityStore used here.
type ActivityLister interface {
	ListActivities(ctx context.Context, userID string) ([]domain.Activity, error)
}

// SummaryCache stores computed summaries.
type SummaryCache interface {
	Get(ctx context.Context, userID string, dest any) (bool, error)
	Set(ctx context.Context, userID string, value any) error
}

// Option configures optional behaviour for the Service.
type Option func(*Service)

// WithCache enables read-through caching of summaries.
func WithCache(cache SummaryCache) Option {
	return func(s *Service) { s.cache = cache }
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// Service answers aggregate queries.
type Service struct {
	store  ActivityLister
	cache  SummaryCache
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(store ActivityLister, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TotalDistanceKm sums the user's activity distances in kilometres. A user with
// no activities has a total of zero.
func (s *Service) TotalDistanceKm(ctx context.Context, userID string) (float64, error) {
	activities, err := s.store.ListActivities(ctx, userID)
	if err != nil {
		return 0, err
	}
	return TotalDistanceKm(activities), nil
}

// Summary returns the full aggregate for userID, served from the cache when possible.
func (s *Service) Summary(ctx context.Context, userID string) (Summary, error) {
	if s.cache != nil {
		var cached Summary
		hit, err := s.cache.Get(ctx, userID, &cached)
		if err != nil {
			s.logger.WarnContext(ctx, "stats cache read failed", "user_id", userID, "error", err)
		} else if hit {
			return cached, nil
		}
	}

	activities, err := s.store.ListActivities(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	summary := Summarize(userID, activities)

	if s.cache != nil {
		if err := s.cache.Set(ctx, userID, summary); err != nil {
			s.logger.WarnContext(ctx, "stats cache write failed", "user_id", userID, "error", err)
		}
	}
	return summary, nil
}

// TotalDistanceKm sums distances (meters) and converts to kilometres.
func TotalDistanceKm(activities []domain.Activity) float64 {
	var meters float64
	for _, a := range activities {
		meters += a.Distance
	}
	return meters / 1000
}

// Summarize builds a Summary from a set of activities.
func Summarize(userID string, activities []domain.Activity) Summary {
	summary := Summary{
		UserID:            userID,
		ActivityCount:     len(activities),
		TotalDistanceKm:   TotalDistanceKm(activities),
		DistanceKmBySport: make(map[string]float64),
	}
	for _, a := range activities {
		summary.TotalElapsedSeconds += a.ElapsedTime
		summary.DistanceKmBySport[a.SportType] += a.Distance / 1000
		if summary.LastActivityStartsAt == nil || a.StartDate.After(*summary.LastActivityStartsAt) {
			start := a.StartDate
			summary.LastActivityStartsAt = &start
		}
	}
	return summary
}
