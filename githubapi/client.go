// Package githubapi reads recent public activity for a GitHub user.
package githubapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"buildinpublic-hub/errs"
	"buildinpublic-hub/logger"

	"github.com/sirupsen/logrus"
)

// Client calls GET /users/{handle}/events/public. Only one page is read, so the
// result is a best-effort recent window rather than a full history.
type Client struct {
	baseURL    string
	token      string
	perPage    int
	httpClient *http.Client
	log        logrus.FieldLogger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithPerPage(n int) Option {
	return func(c *Client) {
		if n > 0 && n <= 100 {
			c.perPage = n
		}
	}
}

func NewClient(baseURL, token string, log logrus.FieldLogger, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		token:   token,
		perPage: 100,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: logger.Component(log, "github"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RecentEvents returns the user's most recent public events, newest first.
func (c *Client) RecentEvents(ctx context.Context, handle string) ([]Event, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid GitHub API URL %q: %w", c.baseURL, err)
	}
	endpoint := base.JoinPath("users", handle, "events", "public")
	q := endpoint.Query()
	q.Set("per_page", strconv.Itoa(c.perPage))
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build events request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: GET events for @%s: %v", errs.ErrUpstreamFetch, handle, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if limited, reset := rateLimited(resp); limited {
		c.log.WithFields(logrus.Fields{"handle": handle, "reset": reset}).Warn("GitHub rate limit hit")
		return nil, fmt.Errorf("%w: %w: resets at %s", errs.ErrUpstreamFetch, errs.ErrRateLimited, reset)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: GitHub returned %d for @%s: %s", errs.ErrUpstreamFetch, resp.StatusCode, handle, string(body))
	}

	var events []Event
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, fmt.Errorf("%w: decode events for @%s: %v", errs.ErrUpstreamFetch, handle, err)
	}

	c.log.WithFields(logrus.Fields{
		"handle":         handle,
		"events":         len(events),
		"rate_remaining": resp.Header.Get("X-RateLimit-Remaining"),
	}).Debug("fetched public events")
	return events, nil
}

func rateLimited(resp *http.Response) (bool, string) {
	if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusTooManyRequests {
		return false, ""
	}
	if resp.Header.Get("X-RateLimit-Remaining") != "0" {
		return false, ""
	}
	reset := "unknown"
	if sec, err := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64); err == nil {
		reset = time.Unix(sec, 0).UTC().Format(time.RFC3339)
	}
	return true, reset
}
