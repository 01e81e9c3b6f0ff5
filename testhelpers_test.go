package nova

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
)

// scriptBackend is a test InferenceEngine that streams canned responses,
// popped in order, and records everything it was asked to do.
type scriptBackend struct {
	mu        sync.Mutex
	responses []string
	prompts   []string
	configs   []SamplingConfig
	aborted   []string
	calls     int
	failAt    int   // 1-based call index that fails instead of streaming; 0 disables
	failErr   error // error returned at failAt
}

func (b *scriptBackend) Generate(ctx context.Context, prompt string, cfg SamplingConfig, requestID string, ch chan<- string) error {
	defer close(ch)

	b.mu.Lock()
	b.calls++
	call := b.calls
	b.prompts = append(b.prompts, prompt)
	b.configs = append(b.configs, cfg)
	resp := "exhausted"
	if call-1 < len(b.responses) {
		resp = b.responses[call-1]
	}
	b.mu.Unlock()

	if b.failAt != 0 && call == b.failAt {
		return b.failErr
	}

	// Stream in two fragments so accumulation is exercised.
	mid := len(resp) / 2
	for _, frag := range []string{resp[:mid], resp[mid:]} {
		if frag == "" {
			continue
		}
		select {
		case ch <- frag:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *scriptBackend) Abort(requestID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.aborted = append(b.aborted, requestID)
}

// fakeMemory is an in-memory MemoryStore recording writes and serving
// canned snippets per partition.
type fakeMemory struct {
	mu          sync.Mutex
	episodic    []string
	semantic    []string
	procedural  []string
	snippets    map[string][]string // partition label -> canned retrieval
	queries     []string
	retrieveErr error
}

func (m *fakeMemory) add(dst *[]string, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	*dst = append(*dst, content)
	return nil
}

func (m *fakeMemory) AddEpisodic(_ context.Context, content string, _ map[string]string) error {
	return m.add(&m.episodic, content)
}
func (m *fakeMemory) AddSemantic(_ context.Context, content string, _ map[string]string) error {
	return m.add(&m.semantic, content)
}
func (m *fakeMemory) AddProcedural(_ context.Context, content string, _ map[string]string) error {
	return m.add(&m.procedural, content)
}

func (m *fakeMemory) retrieve(label, query string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, query)
	if m.retrieveErr != nil {
		return nil, m.retrieveErr
	}
	return m.snippets[label], nil
}

func (m *fakeMemory) RetrieveEpisodic(_ context.Context, query string, _ int) ([]string, error) {
	return m.retrieve("episodic", query)
}
func (m *fakeMemory) RetrieveSemantic(_ context.Context, query string, _ int) ([]string, error) {
	return m.retrieve("semantic", query)
}
func (m *fakeMemory) RetrieveProcedural(_ context.Context, query string, _ int) ([]string, error) {
	return m.retrieve("procedural", query)
}

// stubTool answers every definition it advertises with fn.
type stubTool struct {
	defs []ToolDefinition
	fn   func(name string, args json.RawMessage) (ToolResult, error)
}

func (s stubTool) Definitions() []ToolDefinition { return s.defs }
func (s stubTool) Execute(_ context.Context, name string, args json.RawMessage) (ToolResult, error) {
	return s.fn(name, args)
}

// runChat drives one HandleChat call to completion, draining the stream.
func runChat(t *testing.T, e *Engine, req Request) ([]StreamChunk, error) {
	t.Helper()
	ch := make(chan StreamChunk, 256)
	errc := make(chan error, 1)
	go func() { errc <- e.HandleChat(context.Background(), req, ch) }()
	var chunks []StreamChunk
	for c := range ch {
		chunks = append(chunks, c)
	}
	return chunks, <-errc
}

// chunkText concatenates the content deltas of a stream.
func chunkText(chunks []StreamChunk) string {
	var b strings.Builder
	for _, c := range chunks {
		for _, choice := range c.Choices {
			b.WriteString(choice.Delta.Content)
		}
	}
	return b.String()
}

// lastChunk returns the final chunk of a stream.
func lastChunk(t *testing.T, chunks []StreamChunk) StreamChunk {
	t.Helper()
	if len(chunks) == 0 {
		t.Fatal("stream produced no chunks")
	}
	return chunks[len(chunks)-1]
}
