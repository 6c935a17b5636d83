package activitysync

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSyncInProgress is returned when another sync for the same user holds the lock.
var ErrSyncInProgress = errors.New("sync already in progress for user")

// ErrUnknownPolicy is returned by ParsePolicy for unrecognised values.
var ErrUnknownPolicy = errors.New("unknown sync policy")

// BatchError reports the activities whose writes failed. Writes that succeeded
// in the same run remain committed.
type BatchError struct {
	Failed []WriteOutcome
}

func (e *BatchError) Error() string {
	ids := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		ids = append(ids, fmt.Sprintf("%d", f.ActivityID))
	}
	return fmt.Sprintf("%d activity writes failed: %s", len(e.Failed), strings.Join(ids, ","))
}

// Unwrap exposes the individual write errors to errors.Is/As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, f := range e.Failed {
		errs = append(errs, f.Err)
	}
	return errs
}
