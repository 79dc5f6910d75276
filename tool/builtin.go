package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentloom/orchestrator/sandbox"
)

// doneResult is the exact text thread.Fold checks for, per spec.md §4.7's
// "done" tool-call convention: a successful call to a tool named "done"
// whose result text is precisely "success" promotes the aggregate to Done.
// Any other text — including a validation failure message — leaves the
// thread in Tool state so the model can retry (spec.md §4.2/§8 scenario 3).
const doneResult = "success"

// Done returns the built-in completion tool every configured thread (and
// every delegated child thread) carries: calling it runs v against the
// aggregate's sandbox and only reports success once v passes. A nil v
// behaves like NoOpValidator, always succeeding.
func Done(v Validator) Tool {
	if v == nil {
		v = NoOpValidator{}
	}
	spec, err := NewSpec("done", "Run checks, and if successful, mark the task as finished.", json.RawMessage(`{
		"type": "object",
		"properties": {"summary": {"type": "string", "description": "A short summary of the outcome."}},
		"required": ["summary"]
	}`))
	if err != nil {
		panic("tool: built-in done spec failed to compile: " + err.Error())
	}
	return Tool{
		Spec: spec,
		Handler: func(ctx context.Context, args json.RawMessage, sb sandbox.Sandbox) (json.RawMessage, *Error, error) {
			failure, err := v.Run(ctx, sb)
			if err != nil {
				return nil, nil, fmt.Errorf("validator failed: %w", err)
			}
			if failure != "" {
				return json.RawMessage("validation error: " + failure), nil, nil
			}
			return json.RawMessage(doneResult), nil, nil
		},
	}
}
