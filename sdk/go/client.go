// Package mapform is a Go client for the MAP patient access form API.
package mapform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Config holds the configuration for the form client.
type Config struct {
	// BaseURL is the root URL of the form server.
	// The "/api/v1" suffix is appended automatically if missing.
	BaseURL string

	// HTTPClient is an optional custom HTTP client.
	// If nil, a default client with a 30s timeout is used, long enough
	// to cover a submission and its notification.
	HTTPClient *http.Client
}

func (c *Config) defaults() {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	if !strings.HasSuffix(c.BaseURL, "/api/v1") {
		c.BaseURL = c.BaseURL + "/api/v1"
	}
}

// Client walks one form session. It is safe for concurrent use, but the
// server serializes the calls of a session.
type Client struct {
	cfg Config

	mu    sync.RWMutex
	token string
}

// NewClient creates a new form client with the given configuration.
func NewClient(cfg Config) *Client {
	cfg.defaults()
	return &Client{cfg: cfg}
}

// Token returns the session token, or "" before Start
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Resume binds the client to a session token obtained earlier
func (c *Client) Resume(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Start opens a new session and keeps its token for subsequent calls.
func (c *Client) Start(ctx context.Context) (*Session, error) {
	var resp StartResponse
	if err := c.do(ctx, http.MethodPost, "/sessions", nil, false, &resp); err != nil {
		return nil, err
	}
	c.Resume(resp.Token)
	return resp.Session, nil
}

// Current returns the current step of the session.
func (c *Client) Current(ctx context.Context) (*Session, error) {
	return c.session(ctx, http.MethodGet, "/sessions/current", nil)
}

// Step returns the static definition of a step. It needs no session.
func (c *Client) Step(ctx context.Context, index int) (*Step, error) {
	var step Step
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/steps/%d", index), nil, false, &step); err != nil {
		return nil, err
	}
	return &step, nil
}

// Acknowledge confirms the healthcare professional disclaimer.
func (c *Client) Acknowledge(ctx context.Context) (*Session, error) {
	return c.session(ctx, http.MethodPost, "/sessions/current/acknowledge", nil)
}

// Next moves to the following step.
func (c *Client) Next(ctx context.Context) (*Session, error) {
	return c.session(ctx, http.MethodPost, "/sessions/current/next", nil)
}

// Previous moves to the preceding step.
func (c *Client) Previous(ctx context.Context) (*Session, error) {
	return c.session(ctx, http.MethodPost, "/sessions/current/previous", nil)
}

// Answer records one field value. Dates are sent as YYYY-MM-DD strings and
// multi choices as string slices.
func (c *Client) Answer(ctx context.Context, step int, field string, value interface{}) (*Session, error) {
	return c.session(ctx, http.MethodPut, "/sessions/current/answers", Answer{Step: step, Field: field, Value: value})
}

// Submit sends the completed form.
func (c *Client) Submit(ctx context.Context) (*SubmitResult, error) {
	var res SubmitResult
	if err := c.do(ctx, http.MethodPost, "/sessions/current/submit", nil, true, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Close discards the session on the server and forgets the token.
func (c *Client) Close(ctx context.Context) error {
	if err := c.do(ctx, http.MethodDelete, "/sessions/current", nil, true, nil); err != nil {
		return err
	}
	c.Resume("")
	return nil
}

func (c *Client) session(ctx context.Context, method, path string, payload interface{}) (*Session, error) {
	var s Session
	if err := c.do(ctx, method, path, payload, true, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// do sends a request to the form API and decodes the response into out.
func (c *Client) do(ctx context.Context, method, path string, payload interface{}, withSession bool, out interface{}) error {
	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("mapform: failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("mapform: failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if withSession {
		token := c.Token()
		if token == "" {
			return ErrNoSession
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("mapform: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("mapform: failed to read response: %w", err)
	}

	// The server renews tokens of active sessions
	if renewed := resp.Header.Get("X-Session-Token"); withSession && renewed != "" && resp.StatusCode < 400 {
		c.Resume(renewed)
	}

	if resp.StatusCode >= 400 {
		return parseAPIError(resp.StatusCode, body)
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("mapform: failed to parse response: %w", err)
	}
	return nil
}
