// Package thread is the conversation aggregate: a pure fold over an
// append-only event prefix and a pure command handler deciding which events a
// command may legally produce. Nothing in this package performs I/O — no
// event store, no LLM call, no sandbox exec — so every exported function is
// trivially deterministic and safe to call from any goroutine.
package thread

import "encoding/json"

// Event type discriminators, persisted verbatim as an envelope's event_type.
const (
	EventLLMConfig           = "LLMConfig"
	EventUserMessage         = "UserMessage"
	EventAgentMessage        = "AgentMessage"
	EventToolResult          = "ToolResult"
	EventToolResultRaw       = "ToolResultRaw"
	EventDelegated           = "Delegated"
	EventDelegationCompleted = "DelegationCompleted"
	EventFail                = "Fail"
)

// EventVersionV1 is the event_version stamped on every event this package
// produces. A future incompatible payload change bumps this and teaches Fold
// to branch on it.
const EventVersionV1 = "v1"

// RawEvent is the minimal input Fold needs: a decoded (sequence, type,
// payload) triple. Callers translate eventlog.Envelope into RawEvent at the
// boundary so this package never imports the store.
type RawEvent struct {
	Sequence  int64
	EventType string
	Data      json.RawMessage
}

// Event is an event Decide has approved for append. Data is a concrete
// struct from this file (LLMConfigData, UserMessageData, ...), suitable to
// pass directly as the `data any` argument of eventlog.Store.Append.
type Event struct {
	Type    string
	Version string
	Data    any
}

// ToolCall is one function call requested by the model.
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// ToolResultItem is one outcome in a ToolResult batch, keyed back to the
// tool-call id it answers.
type ToolResultItem struct {
	ToolCallID string `json:"tool_call_id"`
	Text       string `json:"text"`
	IsError    bool   `json:"is_error,omitempty"`
}

// ParentLink names the parent aggregate and the tool call that spawned a
// delegated child thread.
type ParentLink struct {
	AggregateID string `json:"aggregate_id"`
	ToolCallID  string `json:"tool_call_id"`
}

// LLMConfigData configures a thread. At most one is ever folded per
// aggregate, and it must precede every other event.
type LLMConfigData struct {
	Model       string      `json:"model"`
	Temperature float64     `json:"temperature"`
	MaxTokens   int         `json:"max_tokens"`
	Preamble    string      `json:"preamble"`
	Tools       []string    `json:"tools"`
	Recipient   string      `json:"recipient"`
	Parent      *ParentLink `json:"parent,omitempty"`
}

// UserMessageData carries a prompt from the user or an upstream thread.
type UserMessageData struct {
	Content string `json:"content"`
}

// AgentMessageData carries model output: text, tool calls, or both.
type AgentMessageData struct {
	Text      string     `json:"text,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Recipient string     `json:"recipient,omitempty"`
}

// ToolResultData is the outcome of executing a batch of tool calls.
type ToolResultData struct {
	Items []ToolResultItem `json:"items"`
}

// ToolResultRawData is pre-compaction tool output, observed only by the
// compaction worker — it never drives the conversation state machine.
type ToolResultRawData struct {
	ToolCallID string `json:"tool_call_id"`
	Text       string `json:"text"`
}

// DelegatedData records the spawn of a child thread for a trigger tool call.
type DelegatedData struct {
	ParentToolCallID string `json:"parent_tool_call_id"`
	ChildAggregateID string `json:"child_aggregate_id"`
}

// DelegationCompletedData marks that a child thread finished and its result
// was folded back into the parent.
type DelegationCompletedData struct {
	ParentToolCallID string `json:"parent_tool_call_id"`
	Summary          string `json:"summary"`
}

// FailData records why an aggregate transitioned to the terminal Fail state.
type FailData struct {
	Message string `json:"message"`
}
