package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.manus.im/v1"
	apiKeyHeader   = "API_KEY"

	defaultRequestTimeout = 30 * time.Second
	maxErrorBody          = 2048
)

// Client is a thin transport to the agent service. It never retries and
// never sleeps; polling policy lives in the poller.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithRequestTimeout bounds a single HTTP round trip.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(client *Client) {
		client.httpClient = &http.Client{Timeout: d}
	}
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

// NewClient returns a Client for baseURL. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit creates a task on the agent service.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*Submission, error) {
	const op = "submit task"
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal submit request: %w", err)
	}

	var sub Submission
	if err := c.do(ctx, op, http.MethodPost, c.baseURL+"/tasks", body, &sub); err != nil {
		return nil, err
	}
	if sub.TaskID == "" {
		return nil, &UnreachableError{Op: op, Err: fmt.Errorf("response missing task_id")}
	}
	sub.Prompt = req.Prompt
	sub.AgentProfile = req.AgentProfile
	sub.SubmittedAt = c.now()

	c.logger.Info("agent task submitted", "task_id", sub.TaskID, "profile", req.AgentProfile)
	return &sub, nil
}

// FetchStatus reads the current state of a task. A 404 maps to ErrTaskNotFound.
func (c *Client) FetchStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	const op = "fetch task status"
	var st TaskStatus
	if err := c.do(ctx, op, http.MethodGet, c.baseURL+"/tasks/"+url.PathEscape(taskID), nil, &st); err != nil {
		return nil, err
	}
	if st.ID == "" {
		st.ID = taskID
	}
	return &st, nil
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, body []byte, out any) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rdr)
	if err != nil {
		return fmt.Errorf("create %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(apiKeyHeader, c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &UnreachableError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && method == http.MethodGet {
		return ErrTaskNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("agent service returned error", "op", op, "status", resp.StatusCode)
		return &RejectedError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &UnreachableError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
