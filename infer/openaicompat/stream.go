package openaicompat

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
)

// streamSSE reads an SSE completions stream from body and forwards text
// deltas to ch. The channel is closed when streaming completes, whether by
// the [DONE] sentinel, end of body, or error.
//
// SSE format expected:
//
//	data: {"id":"...","choices":[{"text":"..."}]}\n
//	data: [DONE]\n
func streamSSE(ctx context.Context, body io.Reader, ch chan<- string) error {
	defer close(ch)

	scanner := bufio.NewScanner(body)
	// Large payloads: a single delta can carry a whole code block.
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return nil
		}

		var chunk completionChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Skip malformed chunks.
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		if text := chunk.Choices[0].Text; text != "" {
			select {
			case ch <- text:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			// A cancelled read surfaces as a body error; report the cause.
			return ctx.Err()
		}
		return err
	}
	return nil
}
