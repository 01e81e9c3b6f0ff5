package nova

import (
	"errors"
	"testing"
)

func TestExtractJSONPrecedence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"fenced block wins over surrounding braces",
			"prelude {not this}\n```json\n{\"a\": 1}\n```\ntrailer",
			`{"a": 1}`,
		},
		{
			"fence without language tag",
			"```\n{\"a\": 1}\n```",
			`{"a": 1}`,
		},
		{
			"brace span when no fence",
			"Here you go: {\"a\": 1} hope that helps",
			`{"a": 1}`,
		},
		{
			"outermost braces on nested objects",
			`x {"a": {"b": 2}} y`,
			`{"a": {"b": 2}}`,
		},
		{
			"whole text as last resort",
			`"just a string"`,
			`"just a string"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSON(tt.in); got != tt.want {
				t.Errorf("extractJSON = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseRoleOutputMalformed(t *testing.T) {
	_, err := ParseRoleOutput("I think we should {do: something", RolePlanner)
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %T, want *ParseError", err)
	}
	if perr.Kind != MalformedJSON {
		t.Errorf("Kind = %v, want MalformedJSON", perr.Kind)
	}
}

func TestParseRoleOutputSchemaViolation(t *testing.T) {
	// Valid JSON, wrong shape for the role.
	_, err := ParseRoleOutput(`{"analysis": "ok", "milestones": [], "next_step": "handoff_to_architect"}`, RolePlanner)
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %T, want *ParseError", err)
	}
	if perr.Kind != SchemaViolation {
		t.Errorf("Kind = %v, want SchemaViolation", perr.Kind)
	}
}

func TestParseRoleOutputValid(t *testing.T) {
	raw := "Sure, here is the plan:\n```json\n" +
		`{"analysis": "small task", "milestones": ["one"], "next_step": "handoff_to_architect"}` +
		"\n```"
	out, err := ParseRoleOutput(raw, RolePlanner)
	if err != nil {
		t.Fatal(err)
	}
	plan, ok := out.(PlannerOutput)
	if !ok {
		t.Fatalf("output type = %T, want PlannerOutput", out)
	}
	if plan.Analysis != "small task" {
		t.Errorf("Analysis = %q, want %q", plan.Analysis, "small task")
	}
}

func TestDetectToolAction(t *testing.T) {
	action, ok := detectToolAction(`I'll check the file. {"action": "read_file", "input": {"path": "a.txt"}}`)
	if !ok {
		t.Fatal("tool action not detected")
	}
	if action.Action != "read_file" {
		t.Errorf("Action = %q, want %q", action.Action, "read_file")
	}
	if action.Input["path"] != "a.txt" {
		t.Errorf("Input[path] = %v, want a.txt", action.Input["path"])
	}
}

func TestDetectToolActionIgnoresFinalAnswer(t *testing.T) {
	if _, ok := detectToolAction(`{"action": "final_answer", "input": {"text": "done"}}`); ok {
		t.Error("final_answer treated as a tool call")
	}
}

func TestDetectToolActionIgnoresProse(t *testing.T) {
	cases := []string{
		"No braces at all here.",
		"Set {x} to {y} in the config.", // braces but not JSON
		`{"note": "an object without an action field"}`,
	}
	for _, in := range cases {
		if _, ok := detectToolAction(in); ok {
			t.Errorf("detectToolAction(%q) = true, want false", in)
		}
	}
}
