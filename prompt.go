package nova

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
)

// defaultMemoryTopK is the number of snippets retrieved per memory partition.
const defaultMemoryTopK = 3

// PromptAssembler linearizes a message transcript into a single prompt
// string, injecting retrieved memory, the tool catalog, and a trailing
// assistant marker. It is a pure function over the transcript and the
// memory query results; retrieval errors degrade to an empty block.
type PromptAssembler struct {
	memory MemoryStore // nil disables retrieval
	topK   int
	logger *slog.Logger
}

// NewPromptAssembler creates an assembler. mem may be nil.
func NewPromptAssembler(mem MemoryStore, logger *slog.Logger) *PromptAssembler {
	if logger == nil {
		logger = nopLogger
	}
	return &PromptAssembler{memory: mem, topK: defaultMemoryTopK, logger: logger}
}

// Assemble builds the prompt: the most recent user message is the memory
// query; snippets from the three partitions form one labeled block; the tool
// catalog (if any) is serialized into a human-readable description; every
// message is linearized as "<ROLE>: <content>\n"; the memory and tool blocks
// are appended to the existing system message, or a leading system message
// is synthesized when none exists. An empty transcript or absent user
// message means no retrieval is attempted.
func (a *PromptAssembler) Assemble(ctx context.Context, transcript []Message, tools []ToolDefinition) string {
	memoryBlock := a.memoryBlock(ctx, lastUserContent(transcript))
	toolBlock := toolCatalogBlock(tools)

	var b strings.Builder
	systemSeen := false
	for _, msg := range transcript {
		role := strings.ToUpper(msg.Role)
		content := msg.Content
		if msg.Role == "system" && !systemSeen {
			content += memoryBlock + toolBlock
			systemSeen = true
		}
		b.WriteString(role)
		b.WriteString(": ")
		b.WriteString(content)
		b.WriteString("\n")
	}

	prompt := b.String()
	if !systemSeen && (memoryBlock != "" || toolBlock != "") {
		prompt = "SYSTEM: " + strings.TrimLeft(memoryBlock+toolBlock, "\n") + "\n" + prompt
	}
	return prompt + "ASSISTANT:"
}

// memoryBlock retrieves top-k snippets from each partition and concatenates
// them into one labeled block. An empty query skips retrieval entirely.
func (a *PromptAssembler) memoryBlock(ctx context.Context, query string) string {
	if a.memory == nil || query == "" {
		return ""
	}

	type partition struct {
		label    string
		retrieve func(context.Context, string, int) ([]string, error)
	}
	partitions := []partition{
		{"EPISODIC", a.memory.RetrieveEpisodic},
		{"SEMANTIC", a.memory.RetrieveSemantic},
		{"PROCEDURAL", a.memory.RetrieveProcedural},
	}

	var b strings.Builder
	for _, p := range partitions {
		snippets, err := p.retrieve(ctx, query, a.topK)
		if err != nil {
			a.logger.Warn("memory retrieval failed", "partition", p.label, "error", err)
			continue
		}
		for _, s := range snippets {
			b.WriteString("[" + p.label + "] ")
			b.WriteString(s)
			b.WriteString("\n")
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "\nRELEVANT MEMORY:\n" + b.String() +
		"(Do not simply repeat failed attempts. Build on what succeeded.)\n"
}

// toolCatalogBlock serializes the tool catalog into a human-readable schema
// description the model can act on.
func toolCatalogBlock(tools []ToolDefinition) string {
	if len(tools) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\nAVAILABLE TOOLS:\n")
	for _, t := range tools {
		b.WriteString("- ")
		b.WriteString(t.Name)
		b.WriteString(": ")
		b.WriteString(t.Description)
		b.WriteString("\n")
		if len(t.Parameters) > 0 {
			params, err := json.Marshal(t.Parameters)
			if err == nil {
				b.WriteString("  parameters: ")
				b.Write(params)
				b.WriteString("\n")
			}
		}
	}
	b.WriteString("\nTo use a tool, output the JSON format of the tool call.\n")
	return b.String()
}
