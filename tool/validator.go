package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentloom/orchestrator/sandbox"
)

// Validator checks whether a sandbox's current state satisfies completion
// before the "done" tool is allowed to report success (spec.md glossary,
// "Done contract": completion is signaled by the assistant calling `done`
// and its validator returning textual "success"). Run's outer error is a
// sandbox/infra failure; the inner string, when non-empty, is a validation
// failure message the model can read and act on.
type Validator interface {
	Run(ctx context.Context, sb sandbox.Sandbox) (string, error)
}

// NoOpValidator always succeeds, for threads with nothing to verify.
type NoOpValidator struct{}

// Run implements Validator.
func (NoOpValidator) Run(ctx context.Context, sb sandbox.Sandbox) (string, error) {
	return "", nil
}

// CommandValidator runs a shell command in the sandbox and treats exit code
// 0 as success; any other code is a validation failure carrying the
// command's output for the model to inspect.
type CommandValidator struct {
	Command []string
}

// NewCommandValidator builds a CommandValidator that runs command.
func NewCommandValidator(command ...string) CommandValidator {
	return CommandValidator{Command: command}
}

// Run implements Validator.
func (v CommandValidator) Run(ctx context.Context, sb sandbox.Sandbox) (string, error) {
	result, err := sb.Exec(ctx, v.Command)
	if err != nil {
		return "", err
	}
	if result.ExitCode == 0 {
		return "", nil
	}
	return fmt.Sprintf("command %q failed with exit code: %d\nstdout: %s\nstderr: %s",
		strings.Join(v.Command, " "), result.ExitCode, result.Stdout, result.Stderr), nil
}

// PythonUvValidator runs a Python project's entrypoint via `uv run main.py`,
// treating a timeout (exit 124) as success along with exit 0.
type PythonUvValidator struct{}

// Run implements Validator.
func (PythonUvValidator) Run(ctx context.Context, sb sandbox.Sandbox) (string, error) {
	result, err := sb.Exec(ctx, []string{"uv", "run", "main.py"})
	if err != nil {
		return "", err
	}
	if result.ExitCode == 0 || result.ExitCode == 124 {
		return "", nil
	}
	return fmt.Sprintf("validation failed with exit code: %d\nstdout: %s\nstderr: %s",
		result.ExitCode, result.Stdout, result.Stderr), nil
}

// TaskListValidator requires a planning.md checklist in the sandbox to be
// fully checked off before delegating to inner. A missing planning.md is not
// itself a failure — only an incomplete or empty one is.
type TaskListValidator struct {
	Inner Validator
	Path  string
}

// NewTaskListValidator wraps inner with a planning.md checklist gate.
func NewTaskListValidator(inner Validator) TaskListValidator {
	return TaskListValidator{Inner: inner, Path: "planning.md"}
}

// Run implements Validator.
func (v TaskListValidator) Run(ctx context.Context, sb sandbox.Sandbox) (string, error) {
	content, err := sb.ReadFile(ctx, v.Path)
	if err == nil {
		text := string(content)
		hasIncomplete := strings.Contains(text, "[ ]")
		hasCompleted := strings.Contains(text, "[x]") || strings.Contains(text, "[X]")
		switch {
		case hasIncomplete:
			return "not all tasks are completed", nil
		case !hasCompleted:
			return "no completed tasks found", nil
		}
	}
	inner := v.Inner
	if inner == nil {
		inner = NoOpValidator{}
	}
	return inner.Run(ctx, sb)
}
