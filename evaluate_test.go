package nova

import (
	"context"
	"strings"
	"testing"
	"time"
)

// scriptRunner is a CodeRunner returning canned results, popped in order.
type scriptRunner struct {
	results []CodeResult
	errs    []error
	scripts []string
	idx     int
}

func (r *scriptRunner) Run(_ context.Context, code string) (CodeResult, error) {
	r.scripts = append(r.scripts, code)
	i := r.idx
	r.idx++
	var res CodeResult
	var err error
	if i < len(r.results) {
		res = r.results[i]
	}
	if i < len(r.errs) {
		err = r.errs[i]
	}
	return res, err
}

// blockingRunner waits for its context to expire.
type blockingRunner struct{}

func (blockingRunner) Run(ctx context.Context, _ string) (CodeResult, error) {
	<-ctx.Done()
	return CodeResult{}, ctx.Err()
}

func TestEvaluatePass(t *testing.T) {
	runner := &scriptRunner{results: []CodeResult{{Stdout: "ok\n", ExitCode: 0}}}
	ev := NewEvaluator(runner)

	got := ev.Evaluate(context.Background(), "def f():\n    return 1", "assert f() == 1")
	if !got.Passed {
		t.Fatalf("verdict = %+v, want pass", got)
	}
	if !strings.Contains(runner.scripts[0], "# --- TEST HARNESS ---") {
		t.Error("verification code not appended to the produced code")
	}
}

func TestEvaluateNonZeroExit(t *testing.T) {
	runner := &scriptRunner{results: []CodeResult{{Stderr: "AssertionError", ExitCode: 1}}}
	ev := NewEvaluator(runner)

	got := ev.Evaluate(context.Background(), "code", "verify")
	if got.Passed {
		t.Fatal("verdict passed on non-zero exit")
	}
	if !strings.Contains(got.Feedback, "AssertionError") {
		t.Errorf("Feedback = %q, want stderr included", got.Feedback)
	}
}

func TestEvaluateFailureMarkerWithCleanExit(t *testing.T) {
	// Harnesses often print failures and exit zero anyway.
	runner := &scriptRunner{results: []CodeResult{{Stdout: "FAILED (errors=1)", ExitCode: 0}}}
	ev := NewEvaluator(runner)

	if got := ev.Evaluate(context.Background(), "code", "verify"); got.Passed {
		t.Error("verdict passed despite failure marker in output")
	}

	runner = &scriptRunner{results: []CodeResult{{Stderr: "Traceback (most recent call last):", ExitCode: 0}}}
	ev = NewEvaluator(runner)
	if got := ev.Evaluate(context.Background(), "code", "verify"); got.Passed {
		t.Error("verdict passed despite traceback in stderr")
	}
}

func TestEvaluateTimeoutIsTestFailure(t *testing.T) {
	ev := NewEvaluator(blockingRunner{})
	ev.timeout = 10 * time.Millisecond

	got := ev.Evaluate(context.Background(), "while True: pass", "verify")
	if got.Passed {
		t.Fatal("verdict passed on timeout")
	}
	if !strings.Contains(got.Feedback, "timed out") {
		t.Errorf("Feedback = %q, want timeout message", got.Feedback)
	}
}
