// Package analytics ships audit payloads to the external analytics service
// and forwards conversational queries to it.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"permaudit.io/internal/obs"
)

const maxErrorBody = 4 << 10

// EventPermissionAudit tags every payload and query of this service.
const EventPermissionAudit = "permissionaudit"

// ErrNotConfigured is returned when the target URL is empty.
var ErrNotConfigured = errors.New("analytics: endpoint not configured")

// StatusError is a non-2xx answer from the analytics service.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("analytics %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

type Config struct {
	IngestURL string
	QueryURL  string
	APIKey    string
	Timeout   time.Duration
}

// Client talks to the ingest and query endpoints with an x-api-key header.
type Client struct {
	ingestURL string
	queryURL  string
	apiKey    string
	http      *http.Client
}

// Option configures Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func New(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := &Client{
		ingestURL: strings.TrimSpace(cfg.IngestURL),
		queryURL:  strings.TrimSpace(cfg.QueryURL),
		apiKey:    cfg.APIKey,
		http:      &http.Client{Timeout: cfg.Timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send posts one payload to the ingest endpoint. It never retries.
func (c *Client) Send(ctx context.Context, body any) error {
	_, err := c.post(ctx, "send", c.ingestURL, body)
	return err
}

// QueryRequest is the conversational query envelope.
type QueryRequest struct {
	Query  string `json:"query"`
	Event  string `json:"event"`
	OrgID  string `json:"orgId"`
	Locale string `json:"locale,omitempty"`
	UserID string `json:"userId,omitempty"`
}

// QueryResponse is either {success, data} or an error envelope.
type QueryResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Query forwards a question and returns the backend's answer untouched.
// An upstream error envelope comes back as Success=false with a nil error.
func (c *Client) Query(ctx context.Context, req QueryRequest) (QueryResponse, error) {
	if strings.TrimSpace(req.Query) == "" {
		return QueryResponse{}, errors.New("analytics: query is required")
	}
	if req.Event == "" {
		req.Event = EventPermissionAudit
	}
	raw, err := c.post(ctx, "query", c.queryURL, req)
	if err != nil {
		return QueryResponse{}, err
	}
	var out QueryResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return QueryResponse{}, fmt.Errorf("analytics query: decode response: %w", err)
	}
	if !out.Success && out.Error == "" {
		out.Error = "query failed"
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, op, target string, body any) (_ []byte, err error) {
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		obs.AnalyticsRequestsTotal.WithLabelValues(op, outcome).Inc()
	}()
	if target == "" {
		return nil, ErrNotConfigured
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("analytics %s: encode body: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("analytics %s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analytics %s: %w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	return io.ReadAll(resp.Body)
}
