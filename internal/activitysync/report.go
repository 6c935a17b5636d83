package activitysync

import (
	"fmt"
	"strings"

	"example.com/stravasync/internal/domain"
)

// Policy decides what happens to remote activities that already exist locally.
type Policy string

const (
	// PolicyInsertOnly leaves existing records untouched.
	PolicyInsertOnly Policy = "insert_only"
	// PolicyOverwrite refreshes existing records from the remote copy.
	PolicyOverwrite Policy = "overwrite"
)

// ParsePolicy maps a string to a Policy. The empty string selects PolicyInsertOnly.
func ParsePolicy(value string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(value))) {
	case "", PolicyInsertOnly:
		return PolicyInsertOnly, nil
	case PolicyOverwrite:
		return PolicyOverwrite, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, value)
	}
}

// Op is the write performed for one remote activity.
type Op string

const (
	OpInsert  Op = "insert"
	OpUpdate  Op = "update"
	OpSkipped Op = "skipped"
)

// WriteOutcome is the result for one remote activity.
type WriteOutcome struct {
	ActivityID int64
	Op         Op
	Err        error
}

// Report summarises a sync run.
type Report struct {
	RunID        string
	UserID       string
	Policy       Policy
	NewCount     int
	UpdatedCount int
	SkippedCount int
	FailedCount  int
	// Activities is the user's full local set after the run, newest first.
	Activities []domain.Activity
	// Written holds only the records inserted or updated by this run.
	Written  []domain.Activity
	Outcomes []WriteOutcome
}

// NoChanges reports whether the run found nothing new to import.
func (r *Report) NoChanges() bool {
	return r.NewCount == 0
}
