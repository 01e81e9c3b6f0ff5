package nova

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role identifies one phase of the autonomous or research state machine.
// The set is closed: every Role is mapped at compile time to its instruction
// text and expected output schema, so an unhandled role is unreachable rather
// than a runtime string-matching failure.
type Role int

const (
	RolePlanner Role = iota
	RoleArchitect
	RoleEngineer
	RoleEvaluator
	RoleCritic
	RoleProblem
	RoleHypothesis
	RoleDesign
	RoleExecution
	RoleAnalysis
)

func (r Role) String() string {
	switch r {
	case RolePlanner:
		return "planner"
	case RoleArchitect:
		return "architect"
	case RoleEngineer:
		return "engineer"
	case RoleEvaluator:
		return "evaluator"
	case RoleCritic:
		return "critic"
	case RoleProblem:
		return "problem"
	case RoleHypothesis:
		return "hypothesis"
	case RoleDesign:
		return "design"
	case RoleExecution:
		return "execution"
	case RoleAnalysis:
		return "analysis"
	}
	return "unknown"
}

// RoleOutput is the validated structured output of one generation step.
// A RoleOutput is only ever constructed by successful schema validation and
// is immutable once constructed.
type RoleOutput interface {
	// OutputRole reports which role schema produced this output.
	OutputRole() Role
}

// Action values shared by engineer-shaped outputs.
const actionFinalAnswer = "final_answer"

// --- Autonomous roles ---

// PlannerOutput breaks the request into milestones.
type PlannerOutput struct {
	Analysis   string   `json:"analysis"`
	Milestones []string `json:"milestones"`
	NextStep   string   `json:"next_step"` // "handoff_to_architect"
}

func (PlannerOutput) OutputRole() Role { return RolePlanner }

// ArchitectOutput proposes a structure for the solution.
type ArchitectOutput struct {
	DesignRationale string            `json:"design_rationale"`
	FileStructure   map[string]string `json:"file_structure"`
	NextStep        string            `json:"next_step"` // "handoff_to_engineer"
}

func (ArchitectOutput) OutputRole() Role { return RoleArchitect }

// EngineerOutput is a single ReAct-style action.
type EngineerOutput struct {
	Thought string         `json:"thought"`
	Action  string         `json:"action"` // tool name or "final_answer"
	Input   map[string]any `json:"input"`
}

func (EngineerOutput) OutputRole() Role { return RoleEngineer }

// EvaluatorOutput reports test progress and routes the solution onward.
type EvaluatorOutput struct {
	TestPlan string         `json:"test_plan"`
	Action   string         `json:"action,omitempty"` // "python_exec" or empty
	Input    map[string]any `json:"input,omitempty"`
	Status   string         `json:"status"` // "pass", "fail", "running"
	Issues   []string       `json:"issues"`
	NextStep string         `json:"next_step"` // "hand_to_critic", "retry_engineer", "continue_testing"
}

func (EvaluatorOutput) OutputRole() Role { return RoleEvaluator }

// CriticOutput accepts or rejects the finished solution.
type CriticOutput struct {
	Critique string `json:"critique"`
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback"`
}

func (CriticOutput) OutputRole() Role { return RoleCritic }

// --- Research roles ---

// ProblemOutput identifies the core challenge and literature keywords.
type ProblemOutput struct {
	CoreChallenge      string   `json:"core_challenge"`
	LiteratureKeywords []string `json:"literature_keywords"`
	NextStep           string   `json:"next_step"` // "hypothesis"
}

func (ProblemOutput) OutputRole() Role { return RoleProblem }

// HypothesisOutput states a testable theory.
type HypothesisOutput struct {
	HypothesisStatement string `json:"hypothesis_statement"`
	ExpectedOutcome     string `json:"expected_outcome"`
	NoveltyArgument     string `json:"novelty_argument"`
	NextStep            string `json:"next_step"` // "design"
}

func (HypothesisOutput) OutputRole() Role { return RoleHypothesis }

// DesignOutput plans the experiment.
type DesignOutput struct {
	Metrics            []string `json:"metrics"`
	Baseline           string   `json:"baseline"`
	ImplementationPlan string   `json:"implementation_plan"`
	NextStep           string   `json:"next_step"` // "execution"
}

func (DesignOutput) OutputRole() Role { return RoleDesign }

// ExecutionOutput requests a tool invocation during the experiment.
type ExecutionOutput struct {
	Thought string         `json:"thought"`
	Action  string         `json:"action"`
	Input   map[string]any `json:"input"`
}

func (ExecutionOutput) OutputRole() Role { return RoleExecution }

// AnalysisOutput concludes the experiment and routes the loop.
type AnalysisOutput struct {
	Observation string `json:"observation"`
	Supported   bool   `json:"supported"`
	Conclusion  string `json:"conclusion"`
	NextStep    string `json:"next_step"` // "done", "refine_hypothesis"
}

func (AnalysisOutput) OutputRole() Role { return RoleAnalysis }

// --- Validation ---

// schemaErr builds a SchemaViolation carrying the violation detail; the text
// is fed back to the model verbatim, so it names the offending field.
func schemaErr(format string, args ...any) *ParseError {
	return &ParseError{Kind: SchemaViolation, Detail: fmt.Sprintf(format, args...)}
}

func requireString(field, v string) *ParseError {
	if strings.TrimSpace(v) == "" {
		return schemaErr("required field %q is missing or empty", field)
	}
	return nil
}

func requireEnum(field, v string, allowed ...string) *ParseError {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return schemaErr("field %q must be one of %v, got %q", field, allowed, v)
}

// decodeRole decodes raw JSON into the output type for the given role and
// validates required fields and closed enumerations. This is the only
// constructor for RoleOutput values.
func decodeRole(role Role, data []byte) (RoleOutput, *ParseError) {
	switch role {
	case RolePlanner:
		var out PlannerOutput
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, schemaErr("planner output: %v", err)
		}
		if err := requireString("analysis", out.Analysis); err != nil {
			return nil, err
		}
		if len(out.Milestones) == 0 {
			return nil, schemaErr("required field %q is missing or empty", "milestones")
		}
		if err := requireEnum("next_step", out.NextStep, "handoff_to_architect"); err != nil {
			return nil, err
		}
		return out, nil

	case RoleArchitect:
		var out ArchitectOutput
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, schemaErr("architect output: %v", err)
		}
		if err := requireString("design_rationale", out.DesignRationale); err != nil {
			return nil, err
		}
		if len(out.FileStructure) == 0 {
			return nil, schemaErr("required field %q is missing or empty", "file_structure")
		}
		if err := requireEnum("next_step", out.NextStep, "handoff_to_engineer"); err != nil {
			return nil, err
		}
		return out, nil

	case RoleEngineer:
		var wire struct {
			Thought *string        `json:"thought"`
			Action  *string        `json:"action"`
			Input   map[string]any `json:"input"`
		}
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, schemaErr("engineer output: %v", err)
		}
		if wire.Thought == nil {
			return nil, schemaErr("required field %q is missing or empty", "thought")
		}
		if wire.Action == nil {
			return nil, schemaErr("required field %q is missing or empty", "action")
		}
		if wire.Input == nil {
			return nil, schemaErr("required field %q is missing or empty", "input")
		}
		return EngineerOutput{Thought: *wire.Thought, Action: *wire.Action, Input: wire.Input}, nil

	case RoleEvaluator:
		var out EvaluatorOutput
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, schemaErr("evaluator output: %v", err)
		}
		if err := requireString("test_plan", out.TestPlan); err != nil {
			return nil, err
		}
		if err := requireEnum("status", out.Status, "pass", "fail", "running"); err != nil {
			return nil, err
		}
		if out.Action != "" {
			if err := requireEnum("action", out.Action, "python_exec"); err != nil {
				return nil, err
			}
		}
		if err := requireEnum("next_step", out.NextStep, "hand_to_critic", "retry_engineer", "continue_testing"); err != nil {
			return nil, err
		}
		return out, nil

	case RoleCritic:
		var wire struct {
			Critique *string `json:"critique"`
			Approved *bool   `json:"approved"`
			Feedback *string `json:"feedback"`
		}
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, schemaErr("critic output: %v", err)
		}
		if wire.Critique == nil || *wire.Critique == "" {
			return nil, schemaErr("required field %q is missing or empty", "critique")
		}
		if wire.Approved == nil {
			return nil, schemaErr("required field %q is missing or empty", "approved")
		}
		if wire.Feedback == nil {
			return nil, schemaErr("required field %q is missing or empty", "feedback")
		}
		return CriticOutput{Critique: *wire.Critique, Approved: *wire.Approved, Feedback: *wire.Feedback}, nil

	case RoleProblem:
		var out ProblemOutput
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, schemaErr("problem output: %v", err)
		}
		if err := requireString("core_challenge", out.CoreChallenge); err != nil {
			return nil, err
		}
		if len(out.LiteratureKeywords) == 0 {
			return nil, schemaErr("required field %q is missing or empty", "literature_keywords")
		}
		if err := requireEnum("next_step", out.NextStep, "hypothesis"); err != nil {
			return nil, err
		}
		return out, nil

	case RoleHypothesis:
		var out HypothesisOutput
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, schemaErr("hypothesis output: %v", err)
		}
		if err := requireString("hypothesis_statement", out.HypothesisStatement); err != nil {
			return nil, err
		}
		if err := requireString("expected_outcome", out.ExpectedOutcome); err != nil {
			return nil, err
		}
		if err := requireString("novelty_argument", out.NoveltyArgument); err != nil {
			return nil, err
		}
		if err := requireEnum("next_step", out.NextStep, "design"); err != nil {
			return nil, err
		}
		return out, nil

	case RoleDesign:
		var out DesignOutput
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, schemaErr("design output: %v", err)
		}
		if len(out.Metrics) == 0 {
			return nil, schemaErr("required field %q is missing or empty", "metrics")
		}
		if err := requireString("baseline", out.Baseline); err != nil {
			return nil, err
		}
		if err := requireString("implementation_plan", out.ImplementationPlan); err != nil {
			return nil, err
		}
		if err := requireEnum("next_step", out.NextStep, "execution"); err != nil {
			return nil, err
		}
		return out, nil

	case RoleExecution:
		var wire struct {
			Thought *string        `json:"thought"`
			Action  *string        `json:"action"`
			Input   map[string]any `json:"input"`
		}
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, schemaErr("execution output: %v", err)
		}
		if wire.Thought == nil {
			return nil, schemaErr("required field %q is missing or empty", "thought")
		}
		if wire.Action == nil {
			return nil, schemaErr("required field %q is missing or empty", "action")
		}
		if wire.Input == nil {
			return nil, schemaErr("required field %q is missing or empty", "input")
		}
		return ExecutionOutput{Thought: *wire.Thought, Action: *wire.Action, Input: wire.Input}, nil

	case RoleAnalysis:
		var wire struct {
			Observation *string `json:"observation"`
			Supported   *bool   `json:"supported"`
			Conclusion  *string `json:"conclusion"`
			NextStep    *string `json:"next_step"`
		}
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, schemaErr("analysis output: %v", err)
		}
		if wire.Observation == nil || *wire.Observation == "" {
			return nil, schemaErr("required field %q is missing or empty", "observation")
		}
		if wire.Supported == nil {
			return nil, schemaErr("required field %q is missing or empty", "supported")
		}
		if wire.Conclusion == nil || *wire.Conclusion == "" {
			return nil, schemaErr("required field %q is missing or empty", "conclusion")
		}
		if wire.NextStep == nil {
			return nil, schemaErr("required field %q is missing or empty", "next_step")
		}
		if err := requireEnum("next_step", *wire.NextStep, "done", "refine_hypothesis"); err != nil {
			return nil, err
		}
		return AnalysisOutput{Observation: *wire.Observation, Supported: *wire.Supported, Conclusion: *wire.Conclusion, NextStep: *wire.NextStep}, nil
	}
	return nil, schemaErr("no schema registered for role %s", role)
}
