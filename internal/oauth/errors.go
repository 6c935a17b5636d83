package oauth

import (
	"errors"
	"fmt"
)

var (
	// ErrClientNotInitialized is returned when the engine is built without client credentials.
	ErrClientNotInitialized = errors.New("oauth client credentials not initialised")
	// ErrMissingUserID is returned when an authorize URL is requested without a user.
	ErrMissingUserID = errors.New("user id is required")
	// ErrMissingCallbackParams is returned when the redirect lacks code or state.
	ErrMissingCallbackParams = errors.New("callback is missing code or state")
	// ErrAccessDenied is returned when the athlete declined the authorization request.
	ErrAccessDenied = errors.New("athlete denied access")
)

// ExchangeError reports a failed authorization-code exchange. StatusCode is zero
// when the token endpoint could not be reached or answered with an unusable body.
type ExchangeError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *ExchangeError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("authorization code exchange failed: %v", e.Err)
	}
	return fmt.Sprintf("authorization code exchange failed with status %d: %s", e.StatusCode, e.Body)
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// RefreshError reports a rejected refresh-token grant. Callers should ask the
// user to authorize again rather than retry.
type RefreshError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *RefreshError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("token refresh failed: %v", e.Err)
	}
	return fmt.Sprintf("token refresh failed with status %d: %s", e.StatusCode, e.Body)
}

func (e *RefreshError) Unwrap() error { return e.Err }
