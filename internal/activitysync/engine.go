// Package activitysync imports a user's Strava activities into local storage.
package activitysync

import (
	"cmp"
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"example.com/stravasync/internal/cache"
	"example.com/stravasync/internal/domain"
	"example.com/stravasync/internal/lock"
	"example.com/stravasync/internal/observability"
	"example.com/stravasync/internal/strava"
)

// CredentialSource yields a usable credential for a user. The OAuth engine
// satisfies it and refreshes expiring tokens on the way.
type CredentialSource interface {
	Credential(ctx context.Context, userID string) (*domain.Credential, error)
}

// Fetcher reads remote athlete data.
type Fetcher interface {
	Athlete(ctx context.Context, accessToken string) (strava.Athlete, error)
	Activities(ctx context.Context, accessToken string) ([]strava.ActivitySummary, error)
}

const defaultWriteConcurrency = 8

// Option configures optional behaviour for the Engine.
type Option func(*Engine)

// WithLocker serialises runs per user.
func WithLocker(locker lock.Locker) Option {
	return func(e *Engine) { e.locker = locker }
}

// WithInvalidator drops cached views after a run that wrote anything.
func WithInvalidator(inv cache.Invalidator) Option {
	return func(e *Engine) { e.invalidator = inv }
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithWriteConcurrency bounds the number of concurrent store writes.
func WithWriteConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine orchestrates a sync run.
type Engine struct {
	creds       CredentialSource
	fetcher     Fetcher
	store       domain.ActivityStore
	locker      lock.Locker
	invalidator cache.Invalidator
	logger      *slog.Logger
	concurrency int
	now         func() time.Time
}

// NewEngine wires an Engine.
func NewEngine(creds CredentialSource, fetcher Fetcher, store domain.ActivityStore, opts ...Option) *Engine {
	e := &Engine{
		creds:       creds,
		fetcher:     fetcher,
		store:       store,
		invalidator: cache.NoopInvalidator{},
		logger:      slog.Default(),
		concurrency: defaultWriteConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sync pulls the user's remote activities and writes the ones that are new
// (and, under PolicyOverwrite, the ones that changed). A non-nil Report is
// returned alongside a *BatchError when only some writes failed.
func (e *Engine) Sync(ctx context.Context, userID string, policy Policy) (report *Report, err error) {
	started := time.Now()
	runID := ulid.MustNew(ulid.Timestamp(started), rand.Reader).String()
	logger := e.logger.With("run_id", runID, "user_id", userID, "policy", string(policy))
	defer func() { observability.RecordSyncRun(string(policy), started, err) }()

	if e.locker != nil {
		release, lockErr := e.locker.TryAcquire(ctx, "sync:"+userID)
		if errors.Is(lockErr, lock.ErrHeld) {
			return nil, ErrSyncInProgress
		}
		if lockErr != nil {
			return nil, lockErr
		}
		defer func() {
			if relErr := release(context.WithoutCancel(ctx)); relErr != nil {
				logger.WarnContext(ctx, "release sync lock", "error", relErr)
			}
		}()
	}

	cred, err := e.creds.Credential(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !cred.Connected() {
		return nil, domain.ErrNotConnected
	}

	athlete, err := e.fetcher.Athlete(ctx, cred.AccessToken)
	if err != nil {
		return nil, err
	}
	remote, err := e.fetcher.Activities(ctx, cred.AccessToken)
	if err != nil {
		return nil, err
	}

	local, err := e.store.ListActivities(ctx, userID)
	if err != nil {
		return nil, err
	}
	known := make(map[int64]domain.Activity, len(local))
	for _, a := range local {
		known[a.ActivityID] = a
	}

	report = &Report{RunID: runID, UserID: userID, Policy: policy}
	outcomes := make([]WriteOutcome, len(remote))
	written := make([]*domain.Activity, len(remote))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, summary := range remote {
		record := e.buildActivity(userID, summary, athlete)
		existing, exists := known[summary.ID]
		if exists && policy != PolicyOverwrite {
			outcomes[i] = WriteOutcome{ActivityID: summary.ID, Op: OpSkipped}
			continue
		}
		g.Go(func() error {
			if exists {
				record.CreatedAt = existing.CreatedAt
				if err := e.store.UpdateActivity(gctx, record); err != nil {
					outcomes[i] = WriteOutcome{ActivityID: record.ActivityID, Op: OpUpdate, Err: err}
					return nil
				}
				outcomes[i] = WriteOutcome{ActivityID: record.ActivityID, Op: OpUpdate}
				written[i] = &record
				return nil
			}
			err := e.store.InsertActivity(gctx, record)
			switch {
			case errors.Is(err, domain.ErrActivityExists):
				outcomes[i] = WriteOutcome{ActivityID: record.ActivityID, Op: OpSkipped}
			case err != nil:
				outcomes[i] = WriteOutcome{ActivityID: record.ActivityID, Op: OpInsert, Err: err}
			default:
				outcomes[i] = WriteOutcome{ActivityID: record.ActivityID, Op: OpInsert}
				written[i] = &record
			}
			return nil
		})
	}
	_ = g.Wait()

	var failed []WriteOutcome
	for i, outcome := range outcomes {
		switch {
		case outcome.Err != nil:
			report.FailedCount++
			failed = append(failed, outcome)
			observability.RecordSyncWrite(string(outcome.Op), "error")
		case outcome.Op == OpInsert:
			report.NewCount++
			observability.RecordSyncWrite(string(outcome.Op), "success")
		case outcome.Op == OpUpdate:
			report.UpdatedCount++
			observability.RecordSyncWrite(string(outcome.Op), "success")
		default:
			report.SkippedCount++
			observability.RecordSyncWrite(string(OpSkipped), "success")
		}
		if written[i] != nil {
			report.Written = append(report.Written, *written[i])
			known[written[i].ActivityID] = *written[i]
		}
	}
	report.Outcomes = outcomes
	report.Activities = reconciled(known)

	if len(report.Written) > 0 {
		if invErr := e.invalidator.Invalidate(ctx, userID); invErr != nil {
			logger.WarnContext(ctx, "invalidate cached views", "error", invErr)
		}
	}

	logger.InfoContext(ctx, "sync completed",
		"remote", len(remote),
		"new", report.NewCount,
		"updated", report.UpdatedCount,
		"skipped", report.SkippedCount,
		"failed", report.FailedCount,
		"duration_ms", time.Since(started).Milliseconds(),
	)

	if len(failed) > 0 {
		return report, &BatchError{Failed: failed}
	}
	return report, nil
}

// reconciled flattens the merged local view, newest first.
func reconciled(byID map[int64]domain.Activity) []domain.Activity {
	out := make([]domain.Activity, 0, len(byID))
	for _, a := range byID {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b domain.Activity) int {
		if c := b.StartDate.Compare(a.StartDate); c != 0 {
			return c
		}
		return cmp.Compare(b.ActivityID, a.ActivityID)
	})
	return out
}

func (e *Engine) buildActivity(userID string, s strava.ActivitySummary, athlete strava.Athlete) domain.Activity {
	now := e.now().UTC()
	athleteID := s.Athlete.ID
	if athleteID == 0 {
		athleteID = athlete.ID
	}
	a := domain.Activity{
		UserID:         userID,
		ActivityID:     s.ID,
		Name:           s.Name,
		Distance:       s.Distance,
		ElapsedTime:    s.ElapsedTime,
		SportType:      s.Sport(),
		StartDate:      s.StartTime(),
		StartDateLocal: s.StartTimeLocal(),
		Timezone:       s.Timezone,
		AthleteID:      athleteID,
		Sex:            athlete.SexOrEmpty(),
		Weight:         athlete.WeightOrZero(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	a.Normalize()
	return a
}
