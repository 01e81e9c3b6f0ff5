// Package pyexec runs Python code in a subprocess.
//
// It provides both the python_exec agent tool and the CodeRunner used by the
// self-correction evaluator. Execution is a plain subprocess with a
// pre-execution blocklist; it is not a security sandbox.
package pyexec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"time"

	nova "github.com/novalabs/nova"
)

// blockedPatterns reject obviously dangerous code before execution.
var blockedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`os\.system\s*\(`),
	regexp.MustCompile(`subprocess\.\w+\s*\(`),
	regexp.MustCompile(`shutil\.rmtree\s*\(`),
}

// maxOutput caps captured stdout/stderr per stream.
const maxOutput = 8000

// Runner executes Python scripts via a subprocess. Implements nova.CodeRunner.
type Runner struct {
	pythonBin string
	workDir   string
	timeout   time.Duration
}

var _ nova.CodeRunner = (*Runner)(nil)

// Option configures a Runner.
type Option func(*Runner)

// WithWorkDir sets the working directory for executed scripts.
func WithWorkDir(dir string) Option {
	return func(r *Runner) { r.workDir = dir }
}

// WithTimeout sets the per-execution timeout. The caller's context still
// applies; whichever expires first wins.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

// NewRunner creates a Runner that executes code via the given Python binary
// (e.g. "python3").
func NewRunner(pythonBin string, opts ...Option) *Runner {
	r := &Runner{pythonBin: pythonBin, timeout: 30 * time.Second}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run writes code to a temp script and executes it, capturing both streams
// and the exit code. A non-zero exit is reported through CodeResult, not as
// an error; errors are reserved for failures to run at all.
func (r *Runner) Run(ctx context.Context, code string) (nova.CodeResult, error) {
	for _, pat := range blockedPatterns {
		if pat.MatchString(code) {
			return nova.CodeResult{
				Stderr:   "blocked: code contains prohibited pattern: " + pat.String(),
				ExitCode: 1,
			}, nil
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tmpFile, err := os.CreateTemp("", "nova-exec-*.py")
	if err != nil {
		return nova.CodeResult{}, fmt.Errorf("pyexec: create temp file: %w", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.WriteString(code); err != nil {
		tmpFile.Close()
		return nova.CodeResult{}, fmt.Errorf("pyexec: write script: %w", err)
	}
	tmpFile.Close()

	cmd := exec.CommandContext(runCtx, r.pythonBin, tmpFile.Name())
	cmd.Dir = r.workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()

	result := nova.CodeResult{
		Stdout: truncate(stdout.String()),
		Stderr: truncate(stderr.String()),
	}

	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return result, context.DeadlineExceeded
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, fmt.Errorf("pyexec: run %s: %w", r.pythonBin, err)
	}
	return result, nil
}

func truncate(s string) string {
	if len(s) > maxOutput {
		return s[:maxOutput] + "\n... (truncated)"
	}
	return s
}

// Tool exposes the Runner as the python_exec agent tool.
type Tool struct {
	runner *Runner
}

// NewTool wraps a Runner as a nova.Tool.
func NewTool(runner *Runner) *Tool {
	return &Tool{runner: runner}
}

func (t *Tool) Definitions() []nova.ToolDefinition {
	return []nova.ToolDefinition{{
		Name:        "python_exec",
		Description: "Execute a Python script and return its stdout/stderr. Use for calculations, data processing, and running tests.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"code":{"type":"string","description":"Python source to execute"}},"required":["code"]}`),
	}}
}

func (t *Tool) Execute(ctx context.Context, _ string, args json.RawMessage) (nova.ToolResult, error) {
	var params struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return nova.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	if params.Code == "" {
		return nova.ToolResult{Error: "code is required"}, nil
	}

	result, err := t.runner.Run(ctx, params.Code)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nova.ToolResult{Content: result.Stdout, Error: "execution timed out"}, nil
		}
		return nova.ToolResult{Error: err.Error()}, nil
	}

	output := result.Stdout
	if result.Stderr != "" {
		if output != "" {
			output += "\n--- stderr ---\n"
		}
		output += result.Stderr
	}
	if result.ExitCode != 0 {
		return nova.ToolResult{Content: output, Error: fmt.Sprintf("exit code %d", result.ExitCode)}, nil
	}
	if output == "" {
		output = "(no output)"
	}
	return nova.ToolResult{Content: output}, nil
}
