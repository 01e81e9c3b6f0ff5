// Package fetch provides the web_fetch agent tool: download a URL and
// extract its readable text via go-readability, falling back to a plain
// tag strip when extraction fails.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"

	nova "github.com/novalabs/nova"
)

// maxBodyBytes limits how much of a response body is read.
const maxBodyBytes = 1 << 20 // 1MB

// maxOutput caps the extracted text returned to the transcript.
const maxOutput = 8000

// Tool fetches URLs and extracts readable content.
type Tool struct {
	client *http.Client
}

// New creates a fetch Tool with a 15-second timeout.
func New() *Tool {
	return &Tool{
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (t *Tool) Definitions() []nova.ToolDefinition {
	return []nova.ToolDefinition{{
		Name:        "web_fetch",
		Description: "Fetch a URL and extract its readable text content. Use for reading web pages, articles, documentation.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"url":{"type":"string","description":"URL to fetch"}},"required":["url"]}`),
	}}
}

func (t *Tool) Execute(ctx context.Context, _ string, args json.RawMessage) (nova.ToolResult, error) {
	var params struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return nova.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}

	content, err := t.Fetch(ctx, params.URL)
	if err != nil {
		return nova.ToolResult{Error: err.Error()}, nil
	}

	if len(content) > maxOutput {
		content = content[:maxOutput] + "\n... (truncated)"
	}
	return nova.ToolResult{Content: content}, nil
}

// Fetch downloads a URL and extracts readable text. Exported for use outside
// the tool registry (e.g. memory bootstrap).
func (t *Tool) Fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; NovaBot/1.0)")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read error: %w", err)
	}

	page := string(body)

	parsedURL, _ := url.Parse(rawURL)
	article, err := readability.FromReader(strings.NewReader(page), parsedURL)
	if err == nil && article.TextContent != "" {
		return strings.TrimSpace(article.TextContent), nil
	}

	return stripTags(page), nil
}

var (
	scriptPattern = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	tagPattern    = regexp.MustCompile(`<[^>]*>`)
	blankPattern  = regexp.MustCompile(`[ \t]+`)
	linePattern   = regexp.MustCompile(`\n{3,}`)
)

// stripTags is the last-resort extraction path when readability gives up on
// a page. It drops script/style blocks, removes tags, and collapses the
// leftover whitespace.
func stripTags(page string) string {
	page = scriptPattern.ReplaceAllString(page, " ")
	page = tagPattern.ReplaceAllString(page, "\n")
	page = html.UnescapeString(page)
	page = blankPattern.ReplaceAllString(page, " ")

	lines := strings.Split(page, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	page = strings.Join(lines, "\n")
	page = linePattern.ReplaceAllString(page, "\n\n")
	return strings.TrimSpace(page)
}
