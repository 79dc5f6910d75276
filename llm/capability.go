// Package llm is the completion-model capability boundary: a provider-agnostic
// request/response shape and the vendor-neutral error classification processors
// need to decide whether to retry. Concrete vendor adapters (llm/anthropic)
// implement Client; the engine never imports a vendor SDK outside that adapter.
package llm

import (
	"context"
	"encoding/json"
)

// ToolDef is a tool definition exported to the model, per §6.
type ToolDef struct {
	Name        string
	Description string
	Parameters  json.RawMessage // JSON schema
}

// ToolCall is one function call the model requested.
type ToolCall struct {
	ID   string
	Name string
	Args json.RawMessage
}

// MessageRole identifies the speaker of a Request message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is one turn of the transcript sent to the model.
type Message struct {
	Role      MessageRole
	Text      string
	ToolCalls []ToolCall // set on assistant messages that made tool calls
}

// Request is a completion request, built from a folded thread.State.
type Request struct {
	Model       string
	Messages    []Message
	System      string
	Tools       []ToolDef
	Temperature float64
	MaxTokens   int
}

// FinishReason classifies why the model stopped generating.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishToolCalls FinishReason = "tool_calls"
	FinishLength    FinishReason = "length"
)

// Response is the model's answer to a Request.
type Response struct {
	Text         string
	ToolCalls    []ToolCall
	FinishReason FinishReason
	TokensOut    int
}

// Client is the completion-model capability. Implementations must classify
// every returned error as a *ProviderError with Class Transient or Permanent
// (see providererror.go) so callers can apply the retry policy in §4.3/§7.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}
