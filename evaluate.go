package nova

import (
	"context"
	"errors"
	"strings"
	"time"
)

// CodeRunner executes a piece of code and reports its outcome. The runner is
// responsible for its own sandboxing; tools/pyexec provides a subprocess
// implementation.
type CodeRunner interface {
	Run(ctx context.Context, code string) (CodeResult, error)
}

// CodeResult is the raw outcome of a code execution.
type CodeResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// defaultVerifyTimeout bounds one self-correction execution.
const defaultVerifyTimeout = 30 * time.Second

// Evaluator runs produced code against caller-supplied verification code.
// It drives the automated debug cycle of the standard loop and the
// evaluator role of the autonomous state machine.
type Evaluator struct {
	runner  CodeRunner
	timeout time.Duration
}

// NewEvaluator creates an Evaluator with the default timeout.
func NewEvaluator(r CodeRunner) *Evaluator {
	return &Evaluator{runner: r, timeout: defaultVerifyTimeout}
}

// VerifyResult is the evaluator's verdict on one execution.
type VerifyResult struct {
	Passed   bool
	Feedback string
}

// Evaluate appends the verification code to the produced code and runs the
// combined script under the timeout. A timeout is a test failure, not a
// system error. Output mentioning a traceback or test failure counts as a
// failure even when the process exited cleanly, since test harnesses often
// print failures to stderr and exit zero.
func (ev *Evaluator) Evaluate(ctx context.Context, code, verifyCode string) VerifyResult {
	script := code + "\n\n# --- TEST HARNESS ---\n" + verifyCode

	runCtx, cancel := context.WithTimeout(ctx, ev.timeout)
	defer cancel()

	result, err := ev.runner.Run(runCtx, script)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return VerifyResult{Passed: false, Feedback: "Execution timed out after " + ev.timeout.String() + "."}
		}
		return VerifyResult{Passed: false, Feedback: "Execution error:\n" + err.Error()}
	}
	if result.ExitCode != 0 {
		return VerifyResult{Passed: false, Feedback: "Execution failed:\n" + result.Stderr}
	}
	if containsFailureMarker(result.Stderr) || containsFailureMarker(result.Stdout) {
		return VerifyResult{Passed: false, Feedback: "Test failed:\n" + result.Stderr + result.Stdout}
	}
	return VerifyResult{Passed: true, Feedback: "Tests passed successfully."}
}

func containsFailureMarker(s string) bool {
	return strings.Contains(s, "Traceback") ||
		strings.Contains(s, "Error") ||
		strings.Contains(s, "FAILED")
}
