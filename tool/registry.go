package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentloom/orchestrator/sandbox"
)

// Handler is a tool's call entry point: `call(args_json, &mut sandbox) →
// Result<Result<output_json, error_json>, fatal>` (spec.md §4.4). The outer
// error return is fatal and aborts the batch; the *Error return is a domain
// error embedded in the ToolResult.
type Handler func(ctx context.Context, args json.RawMessage, sb sandbox.Sandbox) (json.RawMessage, *Error, error)

// Tool pairs a Spec with its Handler.
type Tool struct {
	Spec    Spec
	Handler Handler
}

// Registry is a name-keyed lookup of Tools.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds tool to the registry, rejecting duplicate names.
func (r *Registry) Register(t Tool) error {
	if t.Spec.Name == "" {
		return fmt.Errorf("tool: cannot register a tool with an empty name")
	}
	if _, exists := r.tools[t.Spec.Name]; exists {
		return fmt.Errorf("tool: %q is already registered", t.Spec.Name)
	}
	r.tools[t.Spec.Name] = t
	return nil
}

// Lookup returns the tool registered under name, if any.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Specs returns every registered tool's Spec, in no particular order, for
// exporting to the LLM capability as Request.Tools.
func (r *Registry) Specs() []Spec {
	specs := make([]Spec, 0, len(r.tools))
	for _, t := range r.tools {
		specs = append(specs, t.Spec)
	}
	return specs
}

// Call resolves name and invokes it. An unresolved name yields NotFound as a
// domain error (not fatal), per spec.md §4.4 point 2. Argument-schema
// violations are likewise domain errors: the model made a malformed call,
// not the processor.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage, sb sandbox.Sandbox) (json.RawMessage, *Error, error) {
	t, ok := r.Lookup(name)
	if !ok {
		return nil, NotFound(name), nil
	}
	if err := t.Spec.Validate(args); err != nil {
		return nil, New(err.Error()), nil
	}
	return t.Handler(ctx, args, sb)
}
