// Package jira is a small client for the Jira Cloud REST API v3 endpoints the
// permission audit reads. Every call is throttled host-wide.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"permaudit.io/internal/obs"
)

const maxErrorBody = 4 << 10

// Config describes how to reach and pace a Jira site.
type Config struct {
	BaseURL  string // e.g. https://acme.atlassian.net
	Email    string
	APIToken string
	Timeout  time.Duration

	// RatePerSecond and Burst feed a token bucket shared by all calls.
	RatePerSecond float64
	Burst         int
	// MaxInFlight caps concurrent outstanding requests across all fan-out levels.
	MaxInFlight int64
}

// Client issues authenticated, throttled Jira REST calls.
type Client struct {
	baseURL  string
	email    string
	apiToken string
	timeout  time.Duration
	http     *http.Client
	limiter  *rate.Limiter
	inFlight *semaphore.Weighted
}

// Option configures Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client (tests, proxies).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New constructs a Client with defaults for unset pacing values.
func New(cfg Config, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	u, err := url.Parse(base)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("jira: invalid base url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 16
	}
	c := &Client{
		baseURL:  base,
		email:    cfg.Email,
		apiToken: cfg.APIToken,
		timeout:  cfg.Timeout,
		http:     &http.Client{Timeout: cfg.Timeout},
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		inFlight: semaphore.NewWeighted(cfg.MaxInFlight),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SearchUsers returns one page of the user directory.
func (c *Client) SearchUsers(ctx context.Context, startAt, maxResults int) ([]User, error) {
	q := url.Values{}
	q.Set("startAt", strconv.Itoa(startAt))
	q.Set("maxResults", strconv.Itoa(maxResults))
	var out []User
	if err := c.do(ctx, "users.search", http.MethodGet, "/rest/api/3/users/search", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SearchProjects returns one page of projects.
func (c *Client) SearchProjects(ctx context.Context, startAt, maxResults int) (ProjectPage, error) {
	q := url.Values{}
	q.Set("startAt", strconv.Itoa(startAt))
	q.Set("maxResults", strconv.Itoa(maxResults))
	var out ProjectPage
	err := c.do(ctx, "project.search", http.MethodGet, "/rest/api/3/project/search", q, nil, &out)
	return out, err
}

// Permissions returns the full permission key taxonomy.
func (c *Client) Permissions(ctx context.Context) (map[string]PermissionDef, error) {
	var out PermissionsResponse
	if err := c.do(ctx, "permissions", http.MethodGet, "/rest/api/3/permissions", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Permissions, nil
}

// CheckGlobalPermissions evaluates keys for a single account.
func (c *Client) CheckGlobalPermissions(ctx context.Context, accountID string, keys []string) (PermissionCheck, error) {
	body := permissionCheckRequest{AccountID: accountID, GlobalPermissions: keys}
	if body.GlobalPermissions == nil {
		body.GlobalPermissions = []string{}
	}
	var out PermissionCheck
	err := c.do(ctx, "permissions.check", http.MethodPost, "/rest/api/3/permissions/check", nil, body, &out)
	return out, err
}

// ProjectPermissionScheme returns the scheme assigned to a project.
func (c *Client) ProjectPermissionScheme(ctx context.Context, projectKeyOrID string) (PermissionScheme, error) {
	var out PermissionScheme
	path := "/rest/api/3/project/" + url.PathEscape(projectKeyOrID) + "/permissionscheme"
	err := c.do(ctx, "project.permissionscheme", http.MethodGet, path, nil, nil, &out)
	return out, err
}

// ProjectRoleDetails lists the roles configured on a project.
func (c *Client) ProjectRoleDetails(ctx context.Context, projectKeyOrID string) ([]RoleDetail, error) {
	var out []RoleDetail
	path := "/rest/api/3/project/" + url.PathEscape(projectKeyOrID) + "/roledetails"
	if err := c.do(ctx, "project.roledetails", http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ProjectRole returns a role with its actors.
func (c *Client) ProjectRole(ctx context.Context, projectKeyOrID, roleID string) (ProjectRole, error) {
	var out ProjectRole
	path := "/rest/api/3/project/" + url.PathEscape(projectKeyOrID) + "/role/" + url.PathEscape(roleID)
	err := c.do(ctx, "project.role", http.MethodGet, path, nil, nil, &out)
	return out, err
}

// UserGroups lists the groups an account belongs to.
func (c *Client) UserGroups(ctx context.Context, accountID string) ([]Group, error) {
	q := url.Values{}
	q.Set("accountId", accountID)
	var out []Group
	if err := c.do(ctx, "user.groups", http.MethodGet, "/rest/api/3/user/groups", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SearchIssues returns one page of the enhanced JQL search.
func (c *Client) SearchIssues(ctx context.Context, query IssueQuery) (IssuePage, error) {
	q := url.Values{}
	q.Set("jql", query.JQL)
	if len(query.Fields) > 0 {
		q.Set("fields", strings.Join(query.Fields, ","))
	} else {
		q.Set("fields", "*all")
	}
	if query.MaxResults > 0 {
		q.Set("maxResults", strconv.Itoa(query.MaxResults))
	}
	if query.NextPageToken != "" {
		q.Set("nextPageToken", query.NextPageToken)
	}
	var out IssuePage
	err := c.do(ctx, "search.jql", http.MethodGet, "/rest/api/3/search/jql", q, nil, &out)
	return out, err
}

type validator interface {
	validate() error
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, query url.Values, body, out any) error {
	status := "error"
	start := time.Now()
	defer func() {
		obs.JiraRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		obs.JiraRequestsTotal.WithLabelValues(endpoint, status).Inc()
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("jira %s: %w", endpoint, err)
	}
	if err := c.inFlight.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("jira %s: %w", endpoint, err)
	}
	defer c.inFlight.Release(1)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("jira %s: encode body: %w", endpoint, err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("jira %s: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.email != "" || c.apiToken != "" {
		req.SetBasicAuth(c.email, c.apiToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("jira %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	status = strconv.Itoa(resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &DecodeError{Endpoint: endpoint, Err: err}
	}
	if v, ok := out.(validator); ok {
		if err := v.validate(); err != nil {
			return &DecodeError{Endpoint: endpoint, Err: err}
		}
	}
	return nil
}
