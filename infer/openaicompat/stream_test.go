package openaicompat

import (
	"context"
	"strings"
	"testing"
)

func collect(t *testing.T, body string) ([]string, error) {
	t.Helper()
	ch := make(chan string, 64)
	err := streamSSE(context.Background(), strings.NewReader(body), ch)
	var got []string
	for s := range ch {
		got = append(got, s)
	}
	return got, err
}

func TestStreamSSE(t *testing.T) {
	body := `data: {"id":"cmpl-1","choices":[{"index":0,"text":"Hello"}]}

data: {"id":"cmpl-1","choices":[{"index":0,"text":" world"}]}

data: {"id":"cmpl-1","choices":[{"index":0,"text":"","finish_reason":"stop"}]}

data: [DONE]
`
	got, err := collect(t, body)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(got, "") != "Hello world" {
		t.Errorf("deltas = %v, want Hello world", got)
	}
}

func TestStreamSSESkipsMalformedChunks(t *testing.T) {
	body := `data: {"id":"cmpl-1","choices":[{"text":"a"}]}

data: {not json

: comment line

data: {"id":"cmpl-1","choices":[{"text":"b"}]}

data: [DONE]
`
	got, err := collect(t, body)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(got, "") != "ab" {
		t.Errorf("deltas = %v, want ab", got)
	}
}

func TestStreamSSEEndOfBodyWithoutSentinel(t *testing.T) {
	body := `data: {"id":"cmpl-1","choices":[{"text":"partial"}]}
`
	got, err := collect(t, body)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(got, "") != "partial" {
		t.Errorf("deltas = %v, want partial", got)
	}
}

func TestStreamSSECancelledConsumer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ch := make(chan string) // unbuffered, and nobody reads
	err := streamSSE(ctx, strings.NewReader(`data: {"choices":[{"text":"x"}]}`+"\n"), ch)
	if err == nil {
		t.Fatal("streamSSE = nil, want context error")
	}
	if _, open := <-ch; open {
		t.Error("channel left open after cancellation")
	}
}
