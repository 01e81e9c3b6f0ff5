package nova

import (
	"encoding/json"
	"strings"
	"testing"
)

const (
	plannerOK   = `{"analysis": "build a parser", "milestones": ["grammar", "tests"], "next_step": "handoff_to_architect"}`
	architectOK = `{"design_rationale": "single module", "file_structure": ["parser.py"], "next_step": "handoff_to_engineer"}`
	engineerFin = `{"thought": "implementation complete", "action": "final_answer", "input": {}}`
	evaluatorOK = `{"test_plan": "run the suite", "status": "pass", "next_step": "hand_to_critic"}`
	criticOK    = `{"critique": "clean and tested", "approved": true, "feedback": ""}`
)

func autonomousRequest(task string) Request {
	cfg := DefaultSampling()
	cfg.Preset = PresetAutonomous
	return Request{
		Messages: []Message{UserMessage(task)},
		Sampling: &cfg,
	}
}

func TestAutonomousHappyPath(t *testing.T) {
	backend := &scriptBackend{responses: []string{
		plannerOK, architectOK, engineerFin, evaluatorOK, criticOK,
	}}
	mem := &fakeMemory{}
	e := New(backend, WithMemory(mem))

	chunks, err := runChat(t, e, autonomousRequest("build a parser"))
	if err != nil {
		t.Fatal(err)
	}
	if backend.calls != 5 {
		t.Fatalf("backend calls = %d, want 5 (one per role)", backend.calls)
	}

	// Every role's output streams live.
	got := chunkText(chunks)
	for _, fragment := range []string{"handoff_to_architect", "handoff_to_engineer", "final_answer", "hand_to_critic", "clean and tested"} {
		if !strings.Contains(got, fragment) {
			t.Errorf("stream missing %q", fragment)
		}
	}
	last := lastChunk(t, chunks)
	if last.Choices[0].FinishReason == nil || *last.Choices[0].FinishReason != "stop" {
		t.Errorf("last chunk = %+v, want finish_reason stop", last)
	}

	// Approval records a SUCCESS episode keyed by the task.
	mem.mu.Lock()
	defer mem.mu.Unlock()
	if len(mem.episodic) != 1 {
		t.Fatalf("episodic records = %d, want 1", len(mem.episodic))
	}
	if !strings.Contains(mem.episodic[0], "Task: build a parser") || !strings.Contains(mem.episodic[0], "SUCCESS") {
		t.Errorf("episode = %q, want SUCCESS keyed by task", mem.episodic[0])
	}
}

func TestAutonomousCachedStepsKeepStreaming(t *testing.T) {
	backend := &scriptBackend{responses: []string{
		plannerOK, architectOK, engineerFin, evaluatorOK, criticOK,
	}}
	e := New(backend, WithCache(NewMemoryCache()))

	if _, err := runChat(t, e, autonomousRequest("build a parser")); err != nil {
		t.Fatal(err)
	}
	chunks, err := runChat(t, e, autonomousRequest("build a parser"))
	if err != nil {
		t.Fatal(err)
	}
	if backend.calls != 5 {
		t.Fatalf("backend calls = %d, want 5 (second run should replay from cache)", backend.calls)
	}

	// Replayed role steps are intermediate chunks; only the machine's own
	// terminal chunk may carry a finish_reason.
	for i, c := range chunks[:len(chunks)-1] {
		if c.Choices[0].FinishReason != nil {
			t.Errorf("chunk %d finish_reason = %q, want nil", i, *c.Choices[0].FinishReason)
		}
	}
	last := lastChunk(t, chunks)
	if last.Choices[0].FinishReason == nil || *last.Choices[0].FinishReason != "stop" {
		t.Errorf("last chunk = %+v, want finish_reason stop", last)
	}
}

func TestAutonomousAppliesLowTemperatureSampling(t *testing.T) {
	backend := &scriptBackend{responses: []string{
		plannerOK, architectOK, engineerFin, evaluatorOK, criticOK,
	}}
	e := New(backend)

	// The caller's creative settings give way to the machine's.
	req := autonomousRequest("task")
	req.Sampling.Temperature = 0.95
	req.Sampling.MaxTokens = 64
	if _, err := runChat(t, e, req); err != nil {
		t.Fatal(err)
	}
	for i, cfg := range backend.configs {
		if cfg.Temperature != 0.2 || cfg.TopP != 0.9 {
			t.Errorf("step %d sampling = (%g, %g), want (0.2, 0.9)", i+1, cfg.Temperature, cfg.TopP)
		}
		if cfg.MaxTokens < 2048 {
			t.Errorf("step %d MaxTokens = %d, want >= 2048", i+1, cfg.MaxTokens)
		}
	}
}

func TestAutonomousParseFailureRetriesSameState(t *testing.T) {
	backend := &scriptBackend{responses: []string{
		"I will plan this out for you in prose.", // no JSON object
		plannerOK, architectOK, engineerFin, evaluatorOK, criticOK,
	}}
	e := New(backend)

	if _, err := runChat(t, e, autonomousRequest("task")); err != nil {
		t.Fatal(err)
	}
	if backend.calls != 6 {
		t.Fatalf("backend calls = %d, want 6 (malformed planner output retried)", backend.calls)
	}
	// The retry prompt carries corrective feedback and stays on the planner.
	if !strings.Contains(backend.prompts[1], "not valid JSON") {
		t.Errorf("retry prompt missing corrective feedback:\n%s", backend.prompts[1])
	}
	if !strings.Contains(backend.prompts[1], "You are the PLANNER") {
		t.Errorf("retry prompt left the planner state:\n%s", backend.prompts[1])
	}
}

func TestAutonomousStepCapOnPersistentMalformedOutput(t *testing.T) {
	responses := make([]string, autonomousMaxSteps+3)
	for i := range responses {
		responses[i] = "still just prose"
	}
	backend := &scriptBackend{responses: responses}
	e := New(backend)

	if _, err := runChat(t, e, autonomousRequest("task")); err != nil {
		t.Fatal(err)
	}
	if backend.calls != autonomousMaxSteps {
		t.Errorf("backend calls = %d, want %d", backend.calls, autonomousMaxSteps)
	}
}

func TestAutonomousEngineerToolCall(t *testing.T) {
	tool := stubTool{
		defs: []ToolDefinition{{Name: "write_file", Description: "Writes a file"}},
		fn: func(_ string, args json.RawMessage) (ToolResult, error) {
			return ToolResult{Content: "wrote parser.py"}, nil
		},
	}
	backend := &scriptBackend{responses: []string{
		plannerOK, architectOK,
		`{"thought": "write the file", "action": "write_file", "input": {"path": "parser.py"}}`,
		engineerFin, evaluatorOK, criticOK,
	}}
	e := New(backend, WithTools(tool))

	req := autonomousRequest("build a parser")
	req.Tools = e.tools.AllDefinitions()
	chunks, err := runChat(t, e, req)
	if err != nil {
		t.Fatal(err)
	}
	if backend.calls != 6 {
		t.Fatalf("backend calls = %d, want 6 (tool call keeps the engineer state)", backend.calls)
	}
	if got := chunkText(chunks); !strings.Contains(got, "[System: Executing write_file...]") {
		t.Errorf("execution notice missing:\n%s", got)
	}
	// The engineer's next prompt sees the tool output.
	if !strings.Contains(backend.prompts[3], "wrote parser.py") {
		t.Errorf("post-tool prompt missing tool output:\n%s", backend.prompts[3])
	}
}

func TestAutonomousEvaluatorIssuesRouteBackToEngineer(t *testing.T) {
	backend := &scriptBackend{responses: []string{
		plannerOK, architectOK, engineerFin,
		`{"test_plan": "run the suite", "status": "fail", "issues": ["off-by-one in loop"], "next_step": "retry_engineer"}`,
		engineerFin, evaluatorOK, criticOK,
	}}
	e := New(backend)

	if _, err := runChat(t, e, autonomousRequest("task")); err != nil {
		t.Fatal(err)
	}
	if backend.calls != 7 {
		t.Fatalf("backend calls = %d, want 7", backend.calls)
	}
	// The re-entered engineer sees the evaluator's issues.
	if !strings.Contains(backend.prompts[4], "off-by-one in loop") {
		t.Errorf("engineer prompt missing evaluator issues:\n%s", backend.prompts[4])
	}
}

func TestAutonomousCriticRejectionRoutesBackToEngineer(t *testing.T) {
	backend := &scriptBackend{responses: []string{
		plannerOK, architectOK, engineerFin, evaluatorOK,
		`{"critique": "missing edge cases", "approved": false, "feedback": "handle empty input"}`,
		engineerFin, evaluatorOK, criticOK,
	}}
	mem := &fakeMemory{}
	e := New(backend, WithMemory(mem))

	if _, err := runChat(t, e, autonomousRequest("task")); err != nil {
		t.Fatal(err)
	}
	if backend.calls != 8 {
		t.Fatalf("backend calls = %d, want 8", backend.calls)
	}
	if !strings.Contains(backend.prompts[5], "handle empty input") {
		t.Errorf("engineer prompt missing critic feedback:\n%s", backend.prompts[5])
	}
	// Only the final approval records an episode.
	mem.mu.Lock()
	defer mem.mu.Unlock()
	if len(mem.episodic) != 1 {
		t.Errorf("episodic records = %d, want 1", len(mem.episodic))
	}
}

func TestAutonomousEvaluatorRunsRequestedCode(t *testing.T) {
	tool := stubTool{
		defs: []ToolDefinition{{Name: "python_exec", Description: "Runs python"}},
		fn: func(string, json.RawMessage) (ToolResult, error) {
			return ToolResult{Content: "3 passed"}, nil
		},
	}
	backend := &scriptBackend{responses: []string{
		plannerOK, architectOK, engineerFin,
		`{"test_plan": "probe the suite", "action": "python_exec", "input": {"code": "run_tests()"}, "status": "running", "next_step": "continue_testing"}`,
		evaluatorOK, criticOK,
	}}
	e := New(backend, WithTools(tool))

	req := autonomousRequest("task")
	req.Tools = e.tools.AllDefinitions()
	if _, err := runChat(t, e, req); err != nil {
		t.Fatal(err)
	}
	if backend.calls != 6 {
		t.Fatalf("backend calls = %d, want 6 (code run keeps the evaluator state)", backend.calls)
	}
	if !strings.Contains(backend.prompts[4], "3 passed") {
		t.Errorf("evaluator prompt missing execution output:\n%s", backend.prompts[4])
	}
}
