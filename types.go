package nova

import (
	"encoding/json"
	"fmt"
)

// Message is a single transcript entry. Transcripts are append-only ordered
// sequences owned exclusively by the loop executing one request; a Message is
// never mutated after it has been appended.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// Message constructors.

func SystemMessage(text string) Message {
	return Message{Role: "system", Content: text}
}

func UserMessage(text string) Message {
	return Message{Role: "user", Content: text}
}

func AssistantMessage(text string) Message {
	return Message{Role: "assistant", Content: text}
}

// Preset names a sampling-configuration override profile. Presets are pure
// functions over SamplingConfig: applying one twice yields the same result.
type Preset string

const (
	PresetNone          Preset = ""
	PresetCoding        Preset = "coding"
	PresetDeterministic Preset = "deterministic"
	PresetCreative      Preset = "creative"
	PresetResearch      Preset = "research"
	PresetAutonomous    Preset = "autonomous"
)

// SamplingConfig controls generation behavior. The zero value is not useful;
// start from DefaultSampling.
type SamplingConfig struct {
	Temperature      float64  `json:"temperature"`
	TopP             float64  `json:"top_p"`
	TopK             int      `json:"top_k"`
	MaxTokens        int      `json:"max_tokens"`
	PresencePenalty  float64  `json:"presence_penalty"`
	FrequencyPenalty float64  `json:"frequency_penalty"`
	Stop             []string `json:"stop,omitempty"`
	IgnoreEOS        bool     `json:"ignore_eos"`
	Preset           Preset   `json:"preset,omitempty"`

	// MaxDebugAttempts bounds the self-correction cycle when a request
	// carries verification code.
	MaxDebugAttempts int `json:"max_debug_attempts"`
}

// DefaultSampling returns the baseline sampling configuration.
func DefaultSampling() SamplingConfig {
	return SamplingConfig{
		Temperature:      0.7,
		TopP:             1.0,
		TopK:             -1,
		MaxTokens:        256,
		MaxDebugAttempts: 3,
	}
}

// Validate checks field ranges. IgnoreEOS without a stop sequence is rejected
// because generation could never terminate.
func (c SamplingConfig) Validate() error {
	if c.Temperature < 0 {
		return fmt.Errorf("temperature must be >= 0, got %g", c.Temperature)
	}
	if c.TopP < 0 || c.TopP > 1 {
		return fmt.Errorf("top_p must be in [0,1], got %g", c.TopP)
	}
	if c.TopK < -1 {
		return fmt.Errorf("top_k must be >= -1, got %d", c.TopK)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be > 0, got %d", c.MaxTokens)
	}
	if c.IgnoreEOS && len(c.Stop) == 0 {
		return fmt.Errorf("ignore_eos requires at least one stop sequence")
	}
	return nil
}

// Applied returns a copy with the preset's overrides applied. Idempotent:
// the overrides are absolute values (or monotone floors), so applying a
// preset to an already-applied config changes nothing. Loops call this
// before every generation step, rebuilding from the original request config.
func (c SamplingConfig) Applied() SamplingConfig {
	switch c.Preset {
	case PresetCoding, PresetDeterministic:
		c.Temperature = 0.1
		c.TopP = 0.1
		c.MaxTokens = max(c.MaxTokens, 1024)
	case PresetCreative:
		c.Temperature = 0.9
		c.TopP = 0.95
	case PresetResearch:
		c.Temperature = 0.2
		c.TopP = 0.95
		c.MaxTokens = 2048
	case PresetAutonomous:
		c.Temperature = 0.2
		c.TopP = 0.9
		c.MaxTokens = max(c.MaxTokens, 2048)
	}
	return c
}

// canonical serializes the config with lexicographically sorted field names.
// Used for cache key derivation: field order must never affect the key.
func (c SamplingConfig) canonical() string {
	// Round-trip through a map; encoding/json sorts map keys.
	raw, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return ""
	}
	sorted, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(sorted)
}

// ToolDefinition describes one callable capability advertised to the model.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema
}

// Request is a chat completion request handed to the engine.
type Request struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`

	// Sampling overrides generation behavior; nil means DefaultSampling.
	Sampling *SamplingConfig `json:"sampling_params,omitempty"`

	// Tools enables agent mode on the standard loop and supplies the
	// catalog advertised in the prompt.
	Tools []ToolDefinition `json:"tools,omitempty"`

	// ResponseFormat set to "json_object" prepends a strict-JSON system
	// line to the assembled prompt.
	ResponseFormat string `json:"response_format,omitempty"`

	// VerifyCode, when non-empty, enables the self-correction cycle: after
	// a code-producing tool call the produced code is run against this
	// verification code and failures feed corrective instructions back.
	VerifyCode string `json:"test_code,omitempty"`
}

// sampling returns the effective config: the request's own, or the default.
func (r *Request) sampling() SamplingConfig {
	if r.Sampling != nil {
		return *r.Sampling
	}
	return DefaultSampling()
}

// lastUserContent returns the content of the most recent user message,
// scanning in reverse. Empty when no user message exists.
func lastUserContent(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

// --- Output stream types ---

// Delta is an incremental fragment of generated text.
type Delta struct {
	Content string `json:"content,omitempty"`
}

// ChunkChoice carries one delta within a StreamChunk.
type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// ChunkError is attached to the final chunk when a request fails fatally.
type ChunkError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

// StreamChunk is the wire shape emitted to the transport layer. Closing the
// output channel is the distinguished end-of-stream marker; the last content
// chunk before that carries a non-nil FinishReason.
type StreamChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
	Err     *ChunkError   `json:"error,omitempty"`
}

// chunkObject is the constant object tag on every stream chunk.
const chunkObject = "chat.completion.chunk"

var finishStop = "stop"

// contentChunk builds a plain delta chunk.
func contentChunk(id string, created int64, model, content string, finish *string) StreamChunk {
	return StreamChunk{
		ID:      id,
		Object:  chunkObject,
		Created: created,
		Model:   model,
		Choices: []ChunkChoice{{Index: 0, Delta: Delta{Content: content}, FinishReason: finish}},
	}
}

// errorChunk builds a terminal error chunk.
func errorChunk(id string, created int64, model, message string) StreamChunk {
	return StreamChunk{
		ID:      id,
		Object:  chunkObject,
		Created: created,
		Model:   model,
		Err:     &ChunkError{Message: message, Type: "internal_error", Code: 500},
	}
}
