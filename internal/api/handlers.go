// Package api exposes HTTP handlers for connecting Strava accounts, syncing
// activities and reading them back.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"example.com/stravasync/internal/activitysync"
	"example.com/stravasync/internal/auth"
	"example.com/stravasync/internal/domain"
	"example.com/stravasync/internal/logging"
	"example.com/stravasync/internal/oauth"
	"example.com/stravasync/internal/outcome"
	"example.com/stravasync/internal/persistence"
	"example.com/stravasync/internal/stats"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// Connector runs the OAuth flow. *oauth.Engine implements it.
type Connector interface {
	AuthorizeURL(userID string) (string, error)
	HandleCallback(ctx context.Context, params oauth.CallbackParams) (*domain.Credential, oauth.UpsertOutcome, error)
	Refresh(ctx context.Context, userID string) (*domain.Credential, error)
}

// Syncer runs activity imports. *activitysync.Engine implements it.
type Syncer interface {
	Sync(ctx context.Context, userID string, policy activitysync.Policy) (*activitysync.Report, error)
}

// StatsReader answers aggregate queries. *stats.Service implements it.
type StatsReader interface {
	Summary(ctx context.Context, userID string) (stats.Summary, error)
}

// ActivityPager lists stored activities page by page.
type ActivityPager interface {
	ListActivitiesPage(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error)
}

// Pinger reports backend reachability for the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps bundles the handler collaborators. Connector may be nil when the
// client credentials could not be loaded; OAuth routes then report misconfigured.
type Deps struct {
	Connector        Connector
	Syncer           Syncer
	Stats            StatsReader
	Activities       ActivityPager
	Health           Pinger
	DefaultPolicy    activitysync.Policy
	CallbackRedirect string
}

// Handler coordinates HTTP requests with the sync services.
type Handler struct {
	deps Deps
}

// NewHandler builds a Handler.
func NewHandler(deps Deps) *Handler {
	if deps.DefaultPolicy == "" {
		deps.DefaultPolicy = activitysync.PolicyInsertOnly
	}
	return &Handler{deps: deps}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", h.healthz)
	mux.HandleFunc("/v1/strava/authorize", h.authorize)
	mux.HandleFunc("/v1/strava/callback", h.callback)
	mux.HandleFunc("/v1/strava/refresh", h.refresh)
	mux.HandleFunc("/v1/strava/sync", h.sync)
	mux.HandleFunc("/v1/activities", h.listActivities)
	mux.HandleFunc("/v1/activities/stats", h.activityStats)
}

// healthz reports OK once the store answers a ping.
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.deps.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.deps.Health.Ping(ctx); err != nil {
			logging.FromContext(r.Context()).WarnContext(r.Context(), "health check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("unavailable"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}
	if h.deps.Connector == nil {
		writeResult(w, outcome.From[*AuthorizeResponse](nil, oauth.ErrClientNotInitialized))
		return
	}

	authURL, err := h.deps.Connector.AuthorizeURL(claims.Subject)
	if err != nil {
		writeResult(w, outcome.From[*AuthorizeResponse](nil, err))
		return
	}
	if r.URL.Query().Get("redirect") == "1" {
		http.Redirect(w, r, authURL, http.StatusFound)
		return
	}
	writeResult(w, outcome.From(&AuthorizeResponse{URL: authURL}, nil))
}

func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	if h.deps.Connector == nil {
		h.finishCallback(w, r, outcome.From[*CredentialView](nil, oauth.ErrClientNotInitialized))
		return
	}

	q := r.URL.Query()
	cred, upsert, err := h.deps.Connector.HandleCallback(r.Context(), oauth.CallbackParams{
		Code:  q.Get("code"),
		State: q.Get("state"),
		Scope: q.Get("scope"),
		Error: q.Get("error"),
	})
	if err != nil {
		logging.FromContext(r.Context()).WarnContext(r.Context(), "strava callback failed", "error", err)
	}
	h.finishCallback(w, r, outcome.From(ToCredentialView(cred, upsert), err))
}

func (h *Handler) finishCallback(w http.ResponseWriter, r *http.Request, res outcome.Result[*CredentialView]) {
	if h.deps.CallbackRedirect == "" {
		writeResult(w, res)
		return
	}
	target, err := url.Parse(h.deps.CallbackRedirect)
	if err != nil {
		writeResult(w, res)
		return
	}
	status := string(res.Kind)
	if res.Success {
		status = "connected"
	}
	q := target.Query()
	q.Set("status", status)
	target.RawQuery = q.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}
	if h.deps.Connector == nil {
		writeResult(w, outcome.From[*CredentialView](nil, oauth.ErrClientNotInitialized))
		return
	}

	cred, err := h.deps.Connector.Refresh(r.Context(), claims.Subject)
	writeResult(w, outcome.From(ToCredentialView(cred, ""), err))
}

func (h *Handler) sync(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	policy := h.deps.DefaultPolicy
	if raw := r.URL.Query().Get("policy"); raw != "" {
		parsed, err := activitysync.ParsePolicy(raw)
		if err != nil {
			writeResult(w, outcome.From[*SyncResponse](nil, err))
			return
		}
		policy = parsed
	}

	report, err := h.deps.Syncer.Sync(r.Context(), claims.Subject, policy)
	writeResult(w, outcome.From(ToSyncResponse(report), err))
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeActivitiesRead)
	if !ok {
		return
	}

	limit := defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = min(parsed, maxPageSize)
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, outcome.KindInvalidRequest, "invalid cursor")
		return
	}

	page, next, err := h.deps.Activities.ListActivitiesPage(r.Context(), claims.Subject, cursor, limit)
	if err != nil {
		writeResult(w, outcome.From[*ListActivitiesResponse](nil, err))
		return
	}

	resp := &ListActivitiesResponse{Items: make([]ActivityView, 0, len(page)), NextCursor: persistence.EncodeCursor(next)}
	for _, a := range page {
		resp.Items = append(resp.Items, ToActivityView(a))
	}
	writeResult(w, outcome.From(resp, nil))
}

func (h *Handler) activityStats(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeActivitiesRead)
	if !ok {
		return
	}

	summary, err := h.deps.Stats.Summary(r.Context(), claims.Subject)
	writeResult(w, outcome.From(summary, err))
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	return false
}

// requireScope accepts activities:write wherever activities:read is required.
func requireScope(w http.ResponseWriter, r *http.Request, scope string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if claims.HasScope(scope) || (scope == auth.ScopeActivitiesRead && claims.HasScope(auth.ScopeActivitiesWrite)) {
		return claims, true
	}
	writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
	return nil, false
}

func writeResult[T any](w http.ResponseWriter, res outcome.Result[T]) {
	writeJSON(w, outcome.HTTPStatus(res.Kind), res)
}

func writeError(w http.ResponseWriter, status int, kind outcome.Kind, detail string) {
	writeJSON(w, status, outcome.Result[any]{Kind: kind, Message: detail})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
