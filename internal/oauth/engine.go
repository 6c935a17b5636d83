// Package oauth implements the Strava authorization-code and refresh-token grants
// and keeps the per-user credential record current.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"example.com/stravasync/internal/domain"
	"example.com/stravasync/internal/observability"
	"example.com/stravasync/internal/secrets"
)

// UpsertOutcome tags how a code exchange was reconciled with the store.
type UpsertOutcome string

const (
	Inserted UpsertOutcome = "inserted"
	Updated  UpsertOutcome = "updated"
)

// Config holds the provider endpoints and fixed authorization parameters.
type Config struct {
	AuthURL        string
	TokenURL       string
	RedirectURL    string
	Scope          string
	ApprovalPrompt string
	// RefreshSkew is how early Credential refreshes ahead of expiry.
	RefreshSkew time.Duration
}

// CallbackParams are the query parameters Strava appends to the redirect URL.
type CallbackParams struct {
	Code  string
	State string
	Scope string
	Error string
}

// Option configures optional behaviour for the Engine.
type Option func(*Engine)

// WithHTTPClient sets the client used for token endpoint calls.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Engine) { e.httpClient = client }
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine performs token grants and reconciles results into the credential store.
type Engine struct {
	oauth      *oauth2.Config
	cfg        Config
	store      domain.CredentialStore
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// NewEngine builds an Engine from resolved client credentials.
func NewEngine(creds secrets.ClientCredentials, cfg Config, store domain.CredentialStore, opts ...Option) (*Engine, error) {
	if strings.TrimSpace(creds.ClientID) == "" || strings.TrimSpace(creds.ClientSecret) == "" {
		return nil, ErrClientNotInitialized
	}

	e := &Engine{
		oauth: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: cfg.RedirectURL,
			// Strava expects a comma separated scope list in a single parameter.
			Scopes: []string{cfg.Scope},
		},
		cfg:    cfg,
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// AuthorizeURL builds the provider authorization URL carrying userID as state.
func (e *Engine) AuthorizeURL(userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", ErrMissingUserID
	}
	opts := []oauth2.AuthCodeOption{}
	if e.cfg.ApprovalPrompt != "" {
		opts = append(opts, oauth2.SetAuthURLParam("approval_prompt", e.cfg.ApprovalPrompt))
	}
	return e.oauth.AuthCodeURL(userID, opts...), nil
}

// HandleCallback validates the redirect parameters and exchanges the code.
func (e *Engine) HandleCallback(ctx context.Context, params CallbackParams) (*domain.Credential, UpsertOutcome, error) {
	if params.Error != "" {
		e.logger.WarnContext(ctx, "strava authorization declined", "user_id", params.State, "error", params.Error)
		return nil, "", fmt.Errorf("%w: %s", ErrAccessDenied, params.Error)
	}
	if strings.TrimSpace(params.Code) == "" || strings.TrimSpace(params.State) == "" {
		e.logger.WarnContext(ctx, "strava callback missing parameters", "has_code", params.Code != "", "has_state", params.State != "")
		return nil, "", ErrMissingCallbackParams
	}
	return e.exchange(ctx, params.Code, params.State, params.Scope)
}

// ExchangeAuthorizationCode trades code for tokens and upserts the credential by athlete.
func (e *Engine) ExchangeAuthorizationCode(ctx context.Context, code, state string) (*domain.Credential, UpsertOutcome, error) {
	if strings.TrimSpace(code) == "" || strings.TrimSpace(state) == "" {
		return nil, "", ErrMissingCallbackParams
	}
	return e.exchange(ctx, code, state, "")
}

func (e *Engine) exchange(ctx context.Context, code, state, scope string) (*domain.Credential, UpsertOutcome, error) {
	token, err := e.oauth.Exchange(e.clientContext(ctx), code)
	observability.RecordTokenGrant("authorization_code", err)
	if err != nil {
		status, body := retrieveDetails(err)
		return nil, "", &ExchangeError{StatusCode: status, Body: body, Err: err}
	}

	athleteID := athleteIDFrom(token)
	if athleteID == 0 {
		return nil, "", &ExchangeError{StatusCode: http.StatusOK, Body: "token response carried no athlete id", Err: errors.New("missing athlete id")}
	}

	cred, outcome, err := e.upsert(ctx, state, athleteID, token, scope)
	if err != nil {
		return nil, "", err
	}
	e.logger.InfoContext(ctx, "strava credential stored",
		"user_id", cred.UserID, "athlete_id", athleteID, "outcome", string(outcome), "expires_at", cred.ExpiresAt)
	return cred, outcome, nil
}

// upsert applies the athlete-first reconciliation: an existing record for the
// athlete wins, then a record for the state user, otherwise a new record.
func (e *Engine) upsert(ctx context.Context, state string, athleteID int64, token *oauth2.Token, scope string) (*domain.Credential, UpsertOutcome, error) {
	for attempt := 0; attempt < 2; attempt++ {
		existing, err := e.store.FindCredentialByAthlete(ctx, athleteID)
		if err != nil {
			return nil, "", fmt.Errorf("find credential by athlete: %w", err)
		}
		if existing == nil {
			existing, err = e.store.GetCredential(ctx, state)
			if err != nil {
				return nil, "", fmt.Errorf("get credential: %w", err)
			}
		}

		if existing != nil {
			merged := *existing
			merged.AthleteID = athleteID
			e.applyToken(&merged, token)
			if scope != "" {
				merged.Scope = scope
			}
			if err := e.store.UpdateCredential(ctx, merged); err != nil {
				return nil, "", fmt.Errorf("update credential: %w", err)
			}
			return &merged, Updated, nil
		}

		cred := domain.Credential{UserID: state, AthleteID: athleteID, Scope: scope}
		e.applyToken(&cred, token)
		err = e.store.InsertCredential(ctx, cred)
		if errors.Is(err, domain.ErrCredentialExists) {
			// A concurrent callback for the same athlete or user inserted first.
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("insert credential: %w", err)
		}
		return &cred, Inserted, nil
	}
	return nil, "", fmt.Errorf("insert credential: %w", domain.ErrCredentialExists)
}

// Refresh exchanges the stored refresh token for a new token pair.
func (e *Engine) Refresh(ctx context.Context, userID string) (*domain.Credential, error) {
	cred, err := e.store.GetCredential(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	if cred == nil {
		return nil, domain.ErrNotConnected
	}
	return e.refresh(ctx, *cred)
}

func (e *Engine) refresh(ctx context.Context, cred domain.Credential) (*domain.Credential, error) {
	source := e.oauth.TokenSource(e.clientContext(ctx), &oauth2.Token{RefreshToken: cred.RefreshToken})
	token, err := source.Token()
	observability.RecordTokenGrant("refresh_token", err)
	if err != nil {
		status, body := retrieveDetails(err)
		e.logger.WarnContext(ctx, "strava token refresh rejected", "user_id", cred.UserID, "status", status)
		return nil, &RefreshError{StatusCode: status, Body: body, Err: err}
	}

	e.applyToken(&cred, token)
	if err := e.store.UpdateCredential(ctx, cred); err != nil {
		return nil, fmt.Errorf("update credential: %w", err)
	}
	e.logger.InfoContext(ctx, "strava token refreshed", "user_id", cred.UserID, "expires_at", cred.ExpiresAt)
	return &cred, nil
}

// Credential returns the user's credential, refreshing it first when the access
// token is expired or about to expire.
func (e *Engine) Credential(ctx context.Context, userID string) (*domain.Credential, error) {
	cred, err := e.store.GetCredential(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	if cred == nil {
		return nil, domain.ErrNotConnected
	}
	if !cred.Expired(e.now(), e.cfg.RefreshSkew) {
		return cred, nil
	}
	return e.refresh(ctx, *cred)
}

func (e *Engine) applyToken(cred *domain.Credential, token *oauth2.Token) {
	cred.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		cred.RefreshToken = token.RefreshToken
	}
	cred.ExpiresAt = e.expiresAt(token)
}

func (e *Engine) expiresAt(token *oauth2.Token) int64 {
	if v, ok := numberExtra(token.Extra("expires_at")); ok && v > 0 {
		return v
	}
	if !token.Expiry.IsZero() {
		return token.Expiry.Unix()
	}
	if v, ok := numberExtra(token.Extra("expires_in")); ok && v > 0 {
		return e.now().Unix() + v
	}
	return 0
}

func (e *Engine) clientContext(ctx context.Context) context.Context {
	if e.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
}

func athleteIDFrom(token *oauth2.Token) int64 {
	athlete, ok := token.Extra("athlete").(map[string]interface{})
	if !ok {
		return 0
	}
	id, _ := numberExtra(athlete["id"])
	return id
}

func numberExtra(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case string:
		var parsed int64
		if _, err := fmt.Sscan(n, &parsed); err == nil {
			return parsed, true
		}
	}
	return 0, false
}

func retrieveDetails(err error) (int, string) {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) && rerr.Response != nil {
		return rerr.Response.StatusCode, string(rerr.Body)
	}
	return 0, err.Error()
}
