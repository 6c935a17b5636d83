// Package outcome turns operation results into the uniform success/failure
// shape returned by the HTTP API and the CLI.
package outcome

import (
	"errors"
	"net/http"

	"example.com/stravasync/internal/activitysync"
	"example.com/stravasync/internal/domain"
	"example.com/stravasync/internal/oauth"
	"example.com/stravasync/internal/secrets"
	"example.com/stravasync/internal/strava"
)

// Kind classifies a failure for callers.
type Kind string

const (
	KindNotConnected    Kind = "not_connected"
	KindReauthorize     Kind = "reauthorize"
	KindExchangeFailed  Kind = "exchange_failed"
	KindUpstreamFailed  Kind = "upstream_failed"
	KindInvalidCallback Kind = "invalid_callback"
	KindAccessDenied    Kind = "access_denied"
	KindSyncInProgress  Kind = "sync_in_progress"
	KindPartialWrite    Kind = "partial_write"
	KindInvalidRequest  Kind = "invalid_request"
	KindMisconfigured   Kind = "misconfigured"
	KindInternal        Kind = "internal"
)

// Result is the boundary representation of an operation.
type Result[T any] struct {
	Success bool   `json:"success"`
	Kind    Kind   `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
	Data    T      `json:"data,omitempty"`
}

// From builds a Result. Data is kept on failure so partial results (such as
// a sync report with some failed writes) still reach the caller.
func From[T any](v T, err error) Result[T] {
	if err == nil {
		return Result[T]{Success: true, Data: v}
	}
	return Result[T]{Kind: Classify(err), Message: err.Error(), Data: v}
}

// Classify maps an error onto a Kind.
func Classify(err error) Kind {
	var (
		refreshErr  *oauth.RefreshError
		exchangeErr *oauth.ExchangeError
		upstreamErr *strava.UpstreamError
		batchErr    *activitysync.BatchError
		secretErr   *secrets.SecretInitError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrNotConnected):
		return KindNotConnected
	case errors.As(err, &refreshErr):
		return KindReauthorize
	case errors.As(err, &exchangeErr):
		return KindExchangeFailed
	case errors.As(err, &upstreamErr):
		return KindUpstreamFailed
	case errors.Is(err, oauth.ErrMissingCallbackParams):
		return KindInvalidCallback
	case errors.Is(err, oauth.ErrAccessDenied):
		return KindAccessDenied
	case errors.Is(err, activitysync.ErrSyncInProgress):
		return KindSyncInProgress
	case errors.As(err, &batchErr):
		return KindPartialWrite
	case errors.Is(err, activitysync.ErrUnknownPolicy), errors.Is(err, oauth.ErrMissingUserID):
		return KindInvalidRequest
	case errors.As(err, &secretErr), errors.Is(err, oauth.ErrClientNotInitialized):
		return KindMisconfigured
	default:
		return KindInternal
	}
}

// HTTPStatus returns the response status used for a Kind.
func HTTPStatus(kind Kind) int {
	switch kind {
	case "":
		return http.StatusOK
	case KindNotConnected:
		return http.StatusNotFound
	case KindReauthorize, KindAccessDenied:
		return http.StatusUnauthorized
	case KindExchangeFailed, KindUpstreamFailed:
		return http.StatusBadGateway
	case KindInvalidCallback, KindInvalidRequest:
		return http.StatusBadRequest
	case KindSyncInProgress:
		return http.StatusConflict
	case KindPartialWrite:
		return http.StatusMultiStatus
	case KindMisconfigured:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
