package kwscout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// Option configures the Client.
type Option interface {
	apply(*Client)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*Client)

func (f optionFunc) apply(c *Client) { f(c) }

// WithAPIKey sets the bearer token sent with every request.
func WithAPIKey(key string) Option {
	return optionFunc(func(c *Client) {
		c.apiKey = key
	})
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return optionFunc(func(c *Client) {
		c.httpClient = hc
	})
}

// WithTimeout sets the per-request timeout. Ignored when WithHTTPClient
// supplies a client of its own.
func WithTimeout(d time.Duration) Option {
	return optionFunc(func(c *Client) {
		c.timeout = d
	})
}

// Client talks to a kwscout server over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
}

// New creates a Client for the given server base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: defaultTimeout,
	}
	for _, o := range opts {
		o.apply(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	return c
}

// StartDiscovery launches a new asynchronous discovery run.
func (c *Client) StartDiscovery(ctx context.Context, req DiscoveryRequest) (StartResult, error) {
	var out StartResult
	err := c.do(ctx, http.MethodPost, "/api/v1/discoveries", req, &out)
	return out, err
}

// Progress returns the current state of a run.
func (c *Client) Progress(ctx context.Context, runID string) (Progress, error) {
	var out Progress
	err := c.do(ctx, http.MethodGet, "/api/v1/discoveries/"+runID, nil, &out)
	return out, err
}

// Keywords returns the scored keywords of a completed run.
// Returns ErrRunNotComplete while the run is still in progress.
func (c *Client) Keywords(ctx context.Context, runID string) (KeywordsResult, error) {
	var out KeywordsResult
	err := c.do(ctx, http.MethodGet, "/api/v1/discoveries/"+runID+"/keywords", nil, &out)
	return out, err
}

// Resume restarts an interrupted run from its last checkpoint. Already
// completed runs are returned as-is without touching the server pipeline.
func (c *Client) Resume(ctx context.Context, runID string) (Progress, error) {
	var out Progress
	err := c.do(ctx, http.MethodPost, "/api/v1/discoveries/"+runID+"/resume", nil, &out)
	return out, err
}

// Health returns the server health summary.
func (c *Client) Health(ctx context.Context) (HealthReport, error) {
	var out HealthReport
	err := c.do(ctx, http.MethodGet, "/health", nil, &out)
	return out, err
}

// WaitForCompletion polls the run until it reaches a terminal stage. A run
// that ends in the error stage returns the last progress together with an
// error carrying its message.
func (c *Client) WaitForCompletion(ctx context.Context, runID string, pollInterval time.Duration) (Progress, error) {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		progress, err := c.Progress(ctx, runID)
		if err != nil {
			return progress, err
		}
		if progress.Stage.Terminal() {
			if progress.Stage == StageError {
				return progress, fmt.Errorf("run %s failed: %s", runID, progress.Error)
			}
			return progress, nil
		}

		select {
		case <-ctx.Done():
			return progress, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
	}
	if apiErr.Code == "" {
		apiErr.Code = "http_" + fmt.Sprint(resp.StatusCode)
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	apiErr.sentinel = sentinelForCode(apiErr.Code, resp.StatusCode)
	return apiErr
}
