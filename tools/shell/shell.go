// Package shell provides the shell_exec agent tool.
//
// Commands run through `sh -c` inside a workspace directory, gated by an
// allowlist of command prefixes. Only listed commands may run, and shell
// metacharacters are rejected outright so a listed command cannot smuggle
// an unlisted one in behind it.
package shell

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	nova "github.com/novalabs/nova"
)

// defaultAllowlist is the read-mostly command set permitted out of the box.
// Multi-word entries match the full prefix, so "git status" is allowed
// while "git push" is not.
var defaultAllowlist = []string{"ls", "grep", "cat", "git status", "echo"}

// metacharacters that chain or redirect commands. Any occurrence fails the
// command, since the allowlist only inspects the leading words.
var metacharacters = []string{";", "&&", "||", "|", "`", "$(", ">", "<"}

// maxOutput caps the combined output returned to the transcript.
const maxOutput = 4000

// Tool executes allowlisted shell commands in a workspace directory.
type Tool struct {
	workspacePath string
	allowlist     []string
	timeout       time.Duration
}

// Option configures a Tool.
type Option func(*Tool)

// WithAllowlist replaces the default command allowlist. Entries are
// leading-word prefixes ("cat", "git status").
func WithAllowlist(commands ...string) Option {
	return func(t *Tool) { t.allowlist = commands }
}

// New creates a shell Tool. Commands run in workspacePath with the given
// timeout in seconds.
func New(workspacePath string, timeoutSeconds int, opts ...Option) *Tool {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}
	t := &Tool{
		workspacePath: workspacePath,
		allowlist:     defaultAllowlist,
		timeout:       time.Duration(timeoutSeconds) * time.Second,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *Tool) Definitions() []nova.ToolDefinition {
	return []nova.ToolDefinition{{
		Name:        "shell_exec",
		Description: "Execute a shell command in the workspace directory. Allowed commands: " + strings.Join(t.allowlist, ", ") + ". Returns stdout and stderr.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"command":{"type":"string","description":"Shell command to execute"}},"required":["command"]}`),
	}}
}

func (t *Tool) Execute(ctx context.Context, _ string, args json.RawMessage) (nova.ToolResult, error) {
	var params struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return nova.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}

	command := strings.TrimSpace(params.Command)
	if command == "" {
		return nova.ToolResult{Error: "command is required"}, nil
	}
	if reason := t.check(command); reason != "" {
		return nova.ToolResult{Error: reason}, nil
	}

	cmdCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "sh", "-c", command)
	cmd.Dir = t.workspacePath

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	output := stdout.String()
	if stderr.Len() > 0 {
		if output != "" {
			output += "\n"
		}
		output += "[stderr]\n" + stderr.String()
	}
	if len(output) > maxOutput {
		output = output[:maxOutput] + "\n... (truncated)"
	}

	if cmdCtx.Err() == context.DeadlineExceeded {
		return nova.ToolResult{Content: output, Error: fmt.Sprintf("command timed out after %s", t.timeout)}, nil
	}
	if err != nil {
		if output == "" {
			output = err.Error()
		}
		return nova.ToolResult{Content: output, Error: "command failed: " + err.Error()}, nil
	}
	if output == "" {
		output = "(no output)"
	}
	return nova.ToolResult{Content: output}, nil
}

// check validates a command against the metacharacter list and the
// allowlist, returning an error message or "".
func (t *Tool) check(command string) string {
	for _, m := range metacharacters {
		if strings.Contains(command, m) {
			return fmt.Sprintf("command contains %q, which is not allowed", m)
		}
	}

	words := strings.Fields(command)
	for _, entry := range t.allowlist {
		prefix := strings.Fields(entry)
		if len(prefix) > len(words) {
			continue
		}
		matched := true
		for i, w := range prefix {
			if words[i] != w {
				matched = false
				break
			}
		}
		if matched {
			return ""
		}
	}
	return fmt.Sprintf("command %q is not allowed", words[0])
}
