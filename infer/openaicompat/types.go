// Package openaicompat implements nova.InferenceEngine over any
// OpenAI-compatible completions API (vLLM, llama.cpp server, Ollama,
// LM Studio, TGI, and hosted providers exposing /v1/completions).
package openaicompat

// --- Request types ---

// completionRequest is the completions request body. top_k and ignore_eos
// are vLLM extensions; servers that do not know them ignore unknown fields.
type completionRequest struct {
	Model            string   `json:"model"`
	Prompt           string   `json:"prompt"`
	Stream           bool     `json:"stream,omitempty"`
	Temperature      float64  `json:"temperature"`
	TopP             float64  `json:"top_p"`
	TopK             int      `json:"top_k,omitempty"`
	MaxTokens        int      `json:"max_tokens"`
	PresencePenalty  float64  `json:"presence_penalty,omitempty"`
	FrequencyPenalty float64  `json:"frequency_penalty,omitempty"`
	Stop             []string `json:"stop,omitempty"`
	IgnoreEOS        bool     `json:"ignore_eos,omitempty"`
	Seed             *int     `json:"seed,omitempty"`

	// User carries the namespaced request id so server-side logs can be
	// correlated with the engine's step ids.
	User string `json:"user,omitempty"`
}

// --- Response types ---

// completionChunk is one streamed SSE payload (or the whole body when not
// streaming).
type completionChunk struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []completionChoice `json:"choices"`
}

type completionChoice struct {
	Index        int    `json:"index"`
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason,omitempty"`
}
