// Package pdfreader provides the pdf_read agent tool.
//
// It uses ledongthuc/pdf (BSD-3, pure Go, no CGO) for text extraction, so
// the dependency is only pulled in by builds that register the tool.
package pdfreader

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	nova "github.com/novalabs/nova"
)

// defaultMaxPages bounds extraction when the caller gives no page range.
const defaultMaxPages = 10

// maxOutput caps the extracted text returned to the transcript.
const maxOutput = 8000

// Tool extracts text from PDF files in a sandboxed workspace.
type Tool struct {
	workspacePath string
}

// New creates a pdf Tool restricted to workspacePath.
func New(workspacePath string) *Tool {
	return &Tool{workspacePath: workspacePath}
}

func (t *Tool) Definitions() []nova.ToolDefinition {
	return []nova.ToolDefinition{{
		Name:        "pdf_read",
		Description: "Extract text from a PDF file in the workspace. Reads up to 10 pages unless a range is given.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"PDF path relative to workspace"},"first_page":{"type":"integer","description":"First page to read (1-based, default 1)"},"last_page":{"type":"integer","description":"Last page to read (default first_page+9)"}},"required":["path"]}`),
	}}
}

func (t *Tool) Execute(ctx context.Context, _ string, args json.RawMessage) (nova.ToolResult, error) {
	var params struct {
		Path      string `json:"path"`
		FirstPage int    `json:"first_page"`
		LastPage  int    `json:"last_page"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return nova.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	if params.Path == "" {
		return nova.ToolResult{Error: "path is required"}, nil
	}
	if filepath.IsAbs(params.Path) || strings.Contains(params.Path, "..") {
		return nova.ToolResult{Error: "path must stay within the workspace: " + params.Path}, nil
	}

	first := params.FirstPage
	if first < 1 {
		first = 1
	}
	last := params.LastPage
	if last < first {
		last = first + defaultMaxPages - 1
	}

	text, pages, err := extract(filepath.Join(t.workspacePath, params.Path), first, last)
	if err != nil {
		return nova.ToolResult{Error: err.Error()}, nil
	}
	if text == "" {
		return nova.ToolResult{Content: "(no extractable text)"}, nil
	}
	if len(text) > maxOutput {
		text = text[:maxOutput] + "\n... (truncated)"
	}
	return nova.ToolResult{Content: fmt.Sprintf("[pages %d-%d of %d]\n%s", first, min(last, pages), pages, text)}, nil
}

// extract pulls plain text from the given page range. Unreadable pages are
// skipped rather than failing the whole document.
func extract(path string, first, last int) (string, int, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	total := r.NumPage()
	if last > total {
		last = total
	}

	var text strings.Builder
	for i := first; i <= last; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pageText = strings.TrimSpace(pageText)
		if pageText == "" {
			continue
		}
		if text.Len() > 0 {
			text.WriteString("\n\n")
		}
		text.WriteString(pageText)
	}
	return strings.TrimSpace(text.String()), total, nil
}
