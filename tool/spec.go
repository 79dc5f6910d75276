// Package tool is the typed tool invocation protocol of spec.md §4.4/§6: a
// name, a JSON schema for arguments, a description, and a call entry point
// operating against a sandbox.
package tool

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/agentloom/orchestrator/llm"
)

// Spec describes one tool's metadata and compiled argument schema. Grounded
// on the compile-then-validate pattern in
// goadesign-goa-ai/registry/service.go's executeLocalTool.
type Spec struct {
	Name        string
	Description string
	Parameters  json.RawMessage // JSON schema

	schema *jsonschema.Schema
}

// NewSpec compiles parameters as a JSON schema and returns a Spec ready to
// validate tool-call arguments against it.
func NewSpec(name, description string, parameters json.RawMessage) (Spec, error) {
	if name == "" {
		return Spec{}, fmt.Errorf("tool: name is required")
	}
	if len(parameters) == 0 {
		parameters = json.RawMessage(`{"type":"object"}`)
	}

	var schemaDoc any
	if err := json.Unmarshal(parameters, &schemaDoc); err != nil {
		return Spec{}, fmt.Errorf("tool %q: unmarshal schema: %w", name, err)
	}

	c := jsonschema.NewCompiler()
	resourceID := name + ".schema.json"
	if err := c.AddResource(resourceID, schemaDoc); err != nil {
		return Spec{}, fmt.Errorf("tool %q: add schema resource: %w", name, err)
	}
	compiled, err := c.Compile(resourceID)
	if err != nil {
		return Spec{}, fmt.Errorf("tool %q: compile schema: %w", name, err)
	}

	return Spec{Name: name, Description: description, Parameters: parameters, schema: compiled}, nil
}

// Validate checks argsJSON against the compiled schema.
func (s Spec) Validate(argsJSON json.RawMessage) error {
	var doc any
	if err := json.Unmarshal(argsJSON, &doc); err != nil {
		return fmt.Errorf("tool %q: unmarshal args: %w", s.Name, err)
	}
	if err := s.schema.Validate(doc); err != nil {
		return fmt.Errorf("tool %q: %w", s.Name, err)
	}
	return nil
}

// LLMToolDef exports this spec in the shape the LLM capability needs
// (spec.md §6 "tool definition exported to LLM").
func (s Spec) LLMToolDef() llm.ToolDef {
	return llm.ToolDef{Name: s.Name, Description: s.Description, Parameters: s.Parameters}
}
