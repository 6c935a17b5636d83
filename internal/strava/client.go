// Package strava is a minimal client for the Strava v3 resource endpoints used by the sync.
package strava

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"example.com/stravasync/internal/observability"
)

const (
	defaultPageSize = 100
	maxPageSize     = 200
)

// UpstreamError reports a non-2xx response from a resource endpoint.
type UpstreamError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("strava %s returned status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Config tunes the client.
type Config struct {
	BaseURL string
	// PageSize is sent as per_page; Strava caps it at 200.
	PageSize int
	// MaxPages bounds a single activities listing; zero means unbounded.
	MaxPages int
	Timeout  time.Duration
	// RateLimit requests are allowed per RateWindow. Zero disables pacing.
	RateLimit  int
	RateWindow time.Duration
	HTTPClient *http.Client
}

// Client issues bearer-authenticated GET requests against the Strava API.
type Client struct {
	baseURL  string
	pageSize int
	maxPages int
	timeout  time.Duration
	base     *http.Client
	limiter  *rate.Limiter
}

// NewClient constructs a Client.
func NewClient(cfg Config) *Client {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 && cfg.RateWindow > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.RateWindow/time.Duration(cfg.RateLimit)), cfg.RateLimit)
	}

	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		pageSize: pageSize,
		maxPages: cfg.MaxPages,
		timeout:  cfg.Timeout,
		base:     base,
		limiter:  limiter,
	}
}

// Athlete fetches the authenticated athlete profile.
func (c *Client) Athlete(ctx context.Context, accessToken string) (Athlete, error) {
	var athlete Athlete
	if err := c.get(ctx, accessToken, "athlete", "/athlete", nil, &athlete); err != nil {
		return Athlete{}, err
	}
	return athlete, nil
}

// Activities lists all of the athlete's activities, following pages until a
// short page, an empty page or MaxPages.
func (c *Client) Activities(ctx context.Context, accessToken string) ([]ActivitySummary, error) {
	var all []ActivitySummary
	for page := 1; c.maxPages <= 0 || page <= c.maxPages; page++ {
		query := url.Values{}
		query.Set("per_page", strconv.Itoa(c.pageSize))
		query.Set("page", strconv.Itoa(page))

		var batch []ActivitySummary
		if err := c.get(ctx, accessToken, "athlete_activities", "/athlete/activities", query, &batch); err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < c.pageSize {
			break
		}
	}
	if all == nil {
		all = []ActivitySummary{}
	}
	return all, nil
}

func (c *Client) get(ctx context.Context, accessToken, endpoint, path string, query url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.clientFor(ctx, accessToken).Do(req)
	if err != nil {
		observability.RecordUpstream(endpoint, 0)
		return fmt.Errorf("strava %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	observability.RecordUpstream(endpoint, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &UpstreamError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("strava %s: decode response: %w", endpoint, err)
	}
	return nil
}

func (c *Client) clientFor(ctx context.Context, accessToken string) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.base)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}))
	client.Timeout = c.timeout
	return client
}
