package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vidcast/internal/services"
)

const clientTimeout = 30 * time.Second

// Client calls the daemon's HTTP interface.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a client for the daemon listening at bind, which is a
// host:port pair or a full http URL.
func NewClient(bind, token string) *Client {
	base := strings.TrimRight(bind, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: base,
		token:   token,
		http:    &http.Client{Timeout: clientTimeout},
	}
}

// Status fetches the daemon status snapshot.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var out Status
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitTask enqueues a new upload task.
func (c *Client) SubmitTask(ctx context.Context, req SubmitTaskRequest) (*Task, error) {
	var out Task
	if err := c.do(ctx, http.MethodPost, "/api/tasks", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTask fetches a single task by id.
func (c *Client) GetTask(ctx context.Context, id string) (*Task, error) {
	var out Task
	if err := c.do(ctx, http.MethodGet, "/api/tasks/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelTask cancels a queued or processing task.
func (c *Client) CancelTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/tasks/"+url.PathEscape(id), nil, nil)
}

// ListQueue returns tasks, optionally filtered by status names.
func (c *Client) ListQueue(ctx context.Context, statuses ...string) ([]Task, error) {
	path := "/api/queue"
	if len(statuses) > 0 {
		path += "?status=" + url.QueryEscape(strings.Join(statuses, ","))
	}
	var out []Task
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ClearQueue removes completed, failed, and cancelled tasks.
func (c *Client) ClearQueue(ctx context.Context) (int64, error) {
	var out ClearResult
	if err := c.do(ctx, http.MethodPost, "/api/queue/clear", nil, &out); err != nil {
		return 0, err
	}
	return out.Removed, nil
}

// RetryFailed requeues failed tasks. Empty ids means all failed tasks.
func (c *Client) RetryFailed(ctx context.Context, ids ...string) (int64, error) {
	var out RetryResult
	if err := c.do(ctx, http.MethodPost, "/api/queue/retry", RetryRequest{IDs: ids}, &out); err != nil {
		return 0, err
	}
	return out.Retried, nil
}

// ListAccounts returns all registered accounts.
func (c *Client) ListAccounts(ctx context.Context) ([]Account, error) {
	var out []Account
	if err := c.do(ctx, http.MethodGet, "/api/accounts", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddAccount registers a platform account with the daemon.
func (c *Client) AddAccount(ctx context.Context, req AddAccountRequest) (*Account, error) {
	var out Account
	if err := c.do(ctx, http.MethodPost, "/api/accounts", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RemoveAccount deletes an account by id.
func (c *Client) RemoveAccount(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/accounts/"+url.PathEscape(id), nil, nil)
}

// CheckAccount runs a health check against a single account.
func (c *Client) CheckAccount(ctx context.Context, id string) (*HealthReport, error) {
	var out HealthReport
	if err := c.do(ctx, http.MethodPost, "/api/accounts/"+url.PathEscape(id)+"/check", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckAllAccounts runs health checks against every account.
func (c *Client) CheckAllAccounts(ctx context.Context) ([]HealthReport, error) {
	var out []HealthReport
	if err := c.do(ctx, http.MethodPost, "/api/accounts/check", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) decodeError(resp *http.Response) error {
	message := resp.Status
	var payload ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&payload); err == nil && payload.Error != "" {
		message = payload.Error
	}
	if resp.StatusCode == http.StatusNotFound {
		return services.Wrap(services.ErrNotFound, "api", "request", message, nil)
	}
	return fmt.Errorf("daemon error: %s", message)
}
