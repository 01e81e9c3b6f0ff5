package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	nova "github.com/novalabs/nova"
)

// Client is a streaming completions client. One Client serves many
// concurrent generations; each is tracked by its request id so Abort can
// cancel it mid-flight.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	name    string
	opts    []Option

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
}

// NewClient creates a completions client.
//
// baseURL is the API base (e.g. "http://localhost:8000/v1",
// "https://api.openai.com/v1"). The /completions path is appended
// automatically.
func NewClient(apiKey, model, baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:   apiKey,
		model:    model,
		baseURL:  baseURL,
		client:   &http.Client{},
		name:     "openai",
		inflight: make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the backend name (default "openai", configurable via WithName).
func (c *Client) Name() string { return c.name }

// Generate streams one completion into ch, closing ch when the generation
// ends. Sampling is validated before any network traffic; an out-of-range
// config is the caller's error, not the server's.
func (c *Client) Generate(ctx context.Context, prompt string, cfg nova.SamplingConfig, requestID string, ch chan<- string) error {
	if err := cfg.Validate(); err != nil {
		close(ch)
		return err
	}

	body := buildBody(c.model, prompt, cfg, c.opts...)
	body.Stream = true
	body.User = requestID

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.track(requestID, cancel)
	defer c.untrack(requestID)

	resp, err := c.send(ctx, body)
	if err != nil {
		close(ch)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		close(ch)
		return c.httpErr(resp)
	}

	return streamSSE(ctx, resp.Body, ch)
}

// Abort cancels the in-flight generation identified by requestID. Unknown
// ids are a no-op: the generation may already have finished.
func (c *Client) Abort(requestID string) {
	c.mu.Lock()
	cancel := c.inflight[requestID]
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *Client) track(requestID string, cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight[requestID] = cancel
}

func (c *Client) untrack(requestID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, requestID)
}

// send marshals the request body and posts it to the completions endpoint.
func (c *Client) send(ctx context.Context, body completionRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", c.name, err)
	}

	url := c.baseURL + "/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", c.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	return c.client.Do(httpReq)
}

// httpErr reads the response body into a typed error.
func (c *Client) httpErr(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return &HTTPError{Status: resp.StatusCode, Body: string(body)}
}

// HTTPError is a non-200 response from the completions endpoint.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("completions endpoint returned %d: %s", e.Status, e.Body)
}

// Compile-time interface check.
var _ nova.InferenceEngine = (*Client)(nil)
