package openaicompat

import "net/http"

// ClientOption configures a Client instance.
type ClientOption func(*Client)

// WithName sets the backend name returned by Name() (default "openai").
// Use this to distinguish backends in logs.
func WithName(name string) ClientOption {
	return func(c *Client) { c.name = name }
}

// WithHTTPClient sets a custom HTTP client (e.g. for timeouts or proxies).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.client = hc }
}

// WithOptions appends request-level options (seed, extra stop sequences)
// applied to every request made by this client.
func WithOptions(opts ...Option) ClientOption {
	return func(c *Client) { c.opts = append(c.opts, opts...) }
}
