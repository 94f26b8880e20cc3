// Package rest provides the HTTP fallback surface of the telemetry service:
// status seeding plus the trigger and reset actions.
package rest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/coachpo/observatory/errs"
	"github.com/coachpo/observatory/internal/normalize"
	"github.com/coachpo/observatory/internal/schema"
)

const (
	statusEndpoint  = "/api/evolution/status"
	triggerEndpoint = "/api/evolution/trigger"
	resetEndpoint   = "/api/evolution/reset"

	// Actions are user-triggered; pace them so a held key cannot hammer the
	// server.
	actionInterval = 500 * time.Millisecond
	actionBurst    = 2
)

// TriggerResult is the server reply to a trigger action.
type TriggerResult struct {
	Status           string `json:"status"`
	Generation       uint64 `json:"generation"`
	ExpectedDuration any    `json:"expected_duration"`
}

// ResetResult is the server reply to a reset action.
type ResetResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Client calls the telemetry REST endpoints.
type Client struct {
	http    *http.Client
	baseURL string
	actions *rate.Limiter
}

// NewClient creates a REST client for the given base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := new(http.Client)
	client.Timeout = timeout
	return &Client{
		http:    client,
		baseURL: strings.TrimRight(baseURL, "/"),
		actions: rate.NewLimiter(rate.Every(actionInterval), actionBurst),
	}
}

// Status fetches the current telemetry snapshot. Failures are reported as
// feed-unavailable errors; the caller degrades to simulated data.
func (c *Client) Status(ctx context.Context) (*schema.Snapshot, error) {
	body, err := c.get(ctx, statusEndpoint)
	if err != nil {
		return nil, errs.New(errs.CodeFeedUnavailable, errs.WithEndpoint(statusEndpoint), errs.WithCause(err))
	}
	raw := make(map[string]any)
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errs.New(errs.CodeFeedUnavailable, errs.WithEndpoint(statusEndpoint),
			errs.WithMessage("unparseable status payload"), errs.WithCause(err))
	}
	return normalize.Snapshot(raw), nil
}

// Trigger requests a new evolution cycle. Any transport failure, non-2xx
// status, or a reply other than "triggered" is an action error.
func (c *Client) Trigger(ctx context.Context) (*TriggerResult, error) {
	var result TriggerResult
	if err := c.post(ctx, triggerEndpoint, &result); err != nil {
		return nil, err
	}
	if result.Status != "triggered" {
		return nil, errs.New(errs.CodeAction, errs.WithEndpoint(triggerEndpoint),
			errs.WithMessage(fmt.Sprintf("trigger refused: %s", result.Status)))
	}
	return &result, nil
}

// Reset asks the server to restart evolution from scratch.
func (c *Client) Reset(ctx context.Context) (*ResetResult, error) {
	var result ResetResult
	if err := c.post(ctx, resetEndpoint, &result); err != nil {
		return nil, err
	}
	if result.Status != "reset_complete" {
		return nil, errs.New(errs.CodeAction, errs.WithEndpoint(resetEndpoint),
			errs.WithMessage(fmt.Sprintf("reset refused: %s", result.Status)))
	}
	return &result, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", endpoint, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s status %d", endpoint, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", endpoint, err)
	}
	return body, nil
}

func (c *Client) post(ctx context.Context, endpoint string, out any) error {
	if err := c.actions.Wait(ctx); err != nil {
		return errs.New(errs.CodeAction, errs.WithEndpoint(endpoint), errs.WithCause(err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(nil))
	if err != nil {
		return errs.New(errs.CodeAction, errs.WithEndpoint(endpoint), errs.WithCause(err))
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return errs.New(errs.CodeAction, errs.WithEndpoint(endpoint), errs.WithCause(err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.New(errs.CodeAction, errs.WithEndpoint(endpoint), errs.WithCause(err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errs.New(errs.CodeAction, errs.WithEndpoint(endpoint), errs.WithHTTP(resp.StatusCode))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errs.New(errs.CodeAction, errs.WithEndpoint(endpoint),
			errs.WithMessage("unparseable action reply"), errs.WithCause(err))
	}
	return nil
}
