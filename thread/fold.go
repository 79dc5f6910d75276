package thread

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Fold reduces an ordered event prefix into a State. It is pure: the same
// prefix always yields the same state, on any process, any number of times.
//
// Fold returns an error only when the prefix itself violates an aggregate
// invariant (a duplicate or misplaced LLMConfig, an event appended after a
// terminal state, a ToolResult referencing a tool-call id that was never
// offered) — these indicate a bug in the writer, not a normal runtime
// condition.
func Fold(events []RawEvent) (State, error) {
	st := State{PendingDelegations: map[string]string{}}
	configured := false
	var pendingCalls map[string]ToolCall

	for _, ev := range events {
		if st.Kind.Terminal() {
			return State{}, fmt.Errorf("thread: event %s appended after terminal state %s", ev.EventType, st.Kind)
		}

		switch ev.EventType {
		case EventLLMConfig:
			if configured {
				return State{}, fmt.Errorf("thread: duplicate LLMConfig for aggregate")
			}
			if st.Kind != KindNone {
				return State{}, fmt.Errorf("thread: LLMConfig must precede every other event")
			}
			var data LLMConfigData
			if err := json.Unmarshal(ev.Data, &data); err != nil {
				return State{}, fmt.Errorf("thread: decode LLMConfig: %w", err)
			}
			st.Model = data.Model
			st.Temperature = data.Temperature
			st.MaxTokens = data.MaxTokens
			st.Preamble = data.Preamble
			st.Tools = data.Tools
			st.Recipient = data.Recipient
			st.Parent = data.Parent
			configured = true

		case EventUserMessage:
			if st.Kind != KindNone && st.Kind != KindUserWait {
				return State{}, fmt.Errorf("thread: UserMessage invalid in state %s", st.Kind)
			}
			var data UserMessageData
			if err := json.Unmarshal(ev.Data, &data); err != nil {
				return State{}, fmt.Errorf("thread: decode UserMessage: %w", err)
			}
			st.Messages = append(st.Messages, Message{Role: RoleUser, Text: data.Content})
			st.Kind = KindUser

		case EventAgentMessage:
			if st.Kind != KindUser && st.Kind != KindTool {
				return State{}, fmt.Errorf("thread: AgentMessage invalid in state %s", st.Kind)
			}
			var data AgentMessageData
			if err := json.Unmarshal(ev.Data, &data); err != nil {
				return State{}, fmt.Errorf("thread: decode AgentMessage: %w", err)
			}
			st.Messages = append(st.Messages, Message{Role: RoleAssistant, Text: data.Text, ToolCalls: data.ToolCalls})
			if len(data.ToolCalls) > 0 {
				st.Kind = KindAgent
				pendingCalls = make(map[string]ToolCall, len(data.ToolCalls))
				for _, tc := range data.ToolCalls {
					pendingCalls[tc.ID] = tc
				}
			} else {
				st.Kind = KindUserWait
				pendingCalls = nil
			}

		case EventToolResult:
			if st.Kind != KindAgent {
				return State{}, fmt.Errorf("thread: ToolResult invalid in state %s", st.Kind)
			}
			var data ToolResultData
			if err := json.Unmarshal(ev.Data, &data); err != nil {
				return State{}, fmt.Errorf("thread: decode ToolResult: %w", err)
			}
			done := false
			for _, item := range data.Items {
				tc, known := pendingCalls[item.ToolCallID]
				if !known {
					return State{}, fmt.Errorf("thread: ToolResult references unknown tool call %q", item.ToolCallID)
				}
				if tc.Name == "done" && !item.IsError && strings.TrimSpace(item.Text) == "success" {
					done = true
				}
				delete(st.PendingDelegations, item.ToolCallID)
			}
			pendingCalls = nil
			if done {
				st.Kind = KindDone
			} else {
				st.Kind = KindTool
			}

		case EventToolResultRaw:
			// Observed only by the compaction worker; never drives this fold.

		case EventDelegated:
			var data DelegatedData
			if err := json.Unmarshal(ev.Data, &data); err != nil {
				return State{}, fmt.Errorf("thread: decode Delegated: %w", err)
			}
			st.PendingDelegations[data.ParentToolCallID] = data.ChildAggregateID

		case EventDelegationCompleted:
			var data DelegationCompletedData
			if err := json.Unmarshal(ev.Data, &data); err != nil {
				return State{}, fmt.Errorf("thread: decode DelegationCompleted: %w", err)
			}
			delete(st.PendingDelegations, data.ParentToolCallID)

		case EventFail:
			var data FailData
			if err := json.Unmarshal(ev.Data, &data); err != nil {
				return State{}, fmt.Errorf("thread: decode Fail: %w", err)
			}
			st.Kind = KindFail
			st.FailMsg = data.Message

		default:
			// Unknown event types are tolerated for forward compatibility —
			// event_version lets a future reader branch explicitly instead.
		}

		st.LastSequence = ev.Sequence
	}
	return st, nil
}
