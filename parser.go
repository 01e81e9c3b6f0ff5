package nova

import (
	"encoding/json"
	"regexp"
	"strings"
)

// fencedBlock matches a markdown code fence with an optional language tag.
var fencedBlock = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")

// extractJSON picks the candidate JSON substring from raw model text.
// Precedence, first match wins: fenced code block, then the span from the
// first '{' to the last '}', then the whole text as a last resort.
func extractJSON(text string) string {
	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end != -1 && end > start {
		return text[start : end+1]
	}
	return text
}

// ParseRoleOutput extracts a JSON object from raw model text and validates it
// against the schema for role. Failure is always a *ParseError: MalformedJSON
// when no object decodes, SchemaViolation when validation fails. Retrying is
// a loop-level concern; this function has no retry logic.
func ParseRoleOutput(raw string, role Role) (RoleOutput, error) {
	candidate := extractJSON(raw)

	// Decode to a throwaway map first so malformed JSON is reported as such
	// rather than as a field error of the target schema.
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &probe); err != nil {
		return nil, &ParseError{Kind: MalformedJSON, Detail: err.Error()}
	}

	out, perr := decodeRole(role, []byte(candidate))
	if perr != nil {
		return nil, perr
	}
	return out, nil
}

// toolAction is the shape of a naive ReAct tool call detected in free text.
type toolAction struct {
	Action string
	Input  map[string]any
}

// detectToolAction applies the standard loop's naive heuristic: take the span
// from the first '{' to the last '}', decode it, and treat it as a tool call
// when it carries an "action" field other than "final_answer". Prose that
// merely contains braces simply fails to decode and is treated as text.
func detectToolAction(text string) (toolAction, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return toolAction{}, false
	}
	var wire struct {
		Action string         `json:"action"`
		Input  map[string]any `json:"input"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &wire); err != nil {
		return toolAction{}, false
	}
	if wire.Action == "" || wire.Action == actionFinalAnswer {
		return toolAction{}, false
	}
	return toolAction{Action: wire.Action, Input: wire.Input}, true
}
