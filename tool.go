package nova

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Tool defines an agent capability with one or more tool functions.
type Tool interface {
	Definitions() []ToolDefinition
	Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error)
}

// ToolResult is the outcome of a tool execution.
type ToolResult struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// ToolRegistry holds all registered tools and resolves calls by name.
type ToolRegistry struct {
	tools []Tool
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{}
}

// Add registers a tool.
func (r *ToolRegistry) Add(t Tool) {
	r.tools = append(r.tools, t)
}

// AllDefinitions returns tool definitions from all registered tools.
func (r *ToolRegistry) AllDefinitions() []ToolDefinition {
	var defs []ToolDefinition
	for _, t := range r.tools {
		defs = append(defs, t.Definitions()...)
	}
	return defs
}

// resolve finds the tool owning name, or nil.
func (r *ToolRegistry) resolve(name string) Tool {
	for _, t := range r.tools {
		for _, d := range t.Definitions() {
			if d.Name == name {
				return t
			}
		}
	}
	return nil
}

// Invoker resolves and executes tool calls, normalizing every failure mode
// into the returned payload. It never returns a Go error: tool failures are
// recoverable-in-context (fed back to the model), not caller errors.
type Invoker struct {
	registry *ToolRegistry
	logger   *slog.Logger
}

// NewInvoker creates an Invoker over the given registry.
func NewInvoker(registry *ToolRegistry, logger *slog.Logger) *Invoker {
	if logger == nil {
		logger = nopLogger
	}
	return &Invoker{registry: registry, logger: logger}
}

// Invoke executes the named tool with the given input object. An unresolvable
// name yields {"error": "tool not found"}; an execution error or panic yields
// {"error": <message>}; success yields {"output": <content>}.
func (i *Invoker) Invoke(ctx context.Context, name string, input map[string]any) (payload map[string]any) {
	defer func() {
		if p := recover(); p != nil {
			i.logger.Warn("tool panicked", "tool", name, "panic", p)
			payload = map[string]any{"error": fmt.Sprintf("tool %q panic: %v", name, p)}
		}
	}()

	tool := i.registry.resolve(name)
	if tool == nil {
		return map[string]any{"error": "tool not found"}
	}

	args, err := json.Marshal(input)
	if err != nil {
		return map[string]any{"error": "invalid tool input: " + err.Error()}
	}

	result, err := tool.Execute(ctx, name, args)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	if result.Error != "" {
		return map[string]any{"error": result.Error}
	}
	return map[string]any{"output": result.Content}
}

// toolOutputMessage folds a tool call record into the transcript as a system
// message. The record itself is ephemeral; the transcript entry is the only
// place it survives.
func toolOutputMessage(payload map[string]any) Message {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = []byte(`{"error":"unencodable tool output"}`)
	}
	m := SystemMessage("Tool Output: " + string(raw))
	m.Name = toolMessageName
	return m
}
