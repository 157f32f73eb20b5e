package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/tasksync/tasksync/internal/schema"
)

// maxErrorBody caps how much of a failed response is read for its message.
const maxErrorBody = 64 << 10

// Client talks to the task API served by internal/server.
//
// Transport failures, timeouts and 5xx responses are reported as
// schema.ErrRemoteUnreachable; 404 as schema.ErrNotFound; 400 as
// schema.ErrValidation.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ Store = (*Client)(nil)

// NewClient returns a client for the API at baseURL. A nil httpClient
// selects http.DefaultClient. Per-call deadlines come from the context.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) List(ctx context.Context) ([]*schema.Task, error) {
	var out struct {
		Tasks []*schema.Task `json:"tasks"`
	}
	if err := c.do(ctx, http.MethodGet, "/tasks", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	if out.Tasks == nil {
		out.Tasks = []*schema.Task{}
	}
	return out.Tasks, nil
}

func (c *Client) Create(ctx context.Context, req schema.NewTask) (*schema.Task, error) {
	var out struct {
		Task *schema.Task `json:"task"`
	}
	if err := c.do(ctx, http.MethodPost, "/tasks", req, &out); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return out.Task, nil
}

func (c *Client) Update(ctx context.Context, id string, patch schema.Patch) (*schema.Task, error) {
	var out struct {
		Task *schema.Task `json:"task"`
	}
	if err := c.do(ctx, http.MethodPut, "/tasks/"+url.PathEscape(id), patch, &out); err != nil {
		return nil, fmt.Errorf("failed to update task %s: %w", id, err)
	}
	return out.Task, nil
}

func (c *Client) Delete(ctx context.Context, id string) (*schema.Task, error) {
	var out struct {
		Task *schema.Task `json:"task"`
	}
	if err := c.do(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	return out.Task, nil
}

func (c *Client) Reconcile(ctx context.Context, req SyncRequest) (*SyncResponse, error) {
	if req.Tasks == nil {
		req.Tasks = []*schema.Task{}
	}
	var out SyncResponse
	if err := c.do(ctx, http.MethodPost, "/tasks/sync", req, &out); err != nil {
		return nil, fmt.Errorf("failed to reconcile batch: %w", err)
	}
	if out.Updated == nil {
		out.Updated = []*schema.Task{}
	}
	return &out, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// do sends body as JSON and decodes a successful response envelope into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", schema.ErrRemoteUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}

	return statusErr(resp)
}

// statusErr maps a failed response to the matching sentinel, carrying the
// server's error message when the body is a JSON envelope.
func statusErr(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := http.StatusText(resp.StatusCode)
	if gjson.ValidBytes(data) {
		if m := gjson.GetBytes(data, "error"); m.Exists() && m.String() != "" {
			msg = m.String()
		}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", schema.ErrNotFound, msg)
	case resp.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", schema.ErrValidation, msg)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: server returned %d: %s", schema.ErrRemoteUnreachable, resp.StatusCode, msg)
	default:
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, msg)
	}
}
