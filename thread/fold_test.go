package thread_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentloom/orchestrator/thread"
)

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestFold_SimpleUserWaitTransition(t *testing.T) {
	events := []thread.RawEvent{
		{Sequence: 1, EventType: thread.EventLLMConfig, Data: mustJSON(t, thread.LLMConfigData{Model: "M", Tools: []string{"done"}})},
		{Sequence: 2, EventType: thread.EventUserMessage, Data: mustJSON(t, thread.UserMessageData{Content: "say hi"})},
		{Sequence: 3, EventType: thread.EventAgentMessage, Data: mustJSON(t, thread.AgentMessageData{Text: "hi"})},
	}
	st, err := thread.Fold(events)
	require.NoError(t, err)
	assert.Equal(t, thread.KindUserWait, st.Kind)
	require.Len(t, st.Messages, 2)
	assert.Equal(t, thread.RoleUser, st.Messages[0].Role)
	assert.Equal(t, "say hi", st.Messages[0].Text)
	assert.Equal(t, thread.RoleAssistant, st.Messages[1].Role)
	assert.Equal(t, "hi", st.Messages[1].Text)
}

func TestFold_DoneOnSuccessfulDoneCall(t *testing.T) {
	events := []thread.RawEvent{
		{Sequence: 1, EventType: thread.EventLLMConfig, Data: mustJSON(t, thread.LLMConfigData{Model: "M", Tools: []string{"done", "write_file"}})},
		{Sequence: 2, EventType: thread.EventUserMessage, Data: mustJSON(t, thread.UserMessageData{Content: "write a.txt"})},
		{Sequence: 3, EventType: thread.EventAgentMessage, Data: mustJSON(t, thread.AgentMessageData{ToolCalls: []thread.ToolCall{{ID: "c1", Name: "write_file"}}})},
		{Sequence: 4, EventType: thread.EventToolResult, Data: mustJSON(t, thread.ToolResultData{Items: []thread.ToolResultItem{{ToolCallID: "c1", Text: "ok"}}})},
		{Sequence: 5, EventType: thread.EventAgentMessage, Data: mustJSON(t, thread.AgentMessageData{ToolCalls: []thread.ToolCall{{ID: "c2", Name: "done"}}})},
		{Sequence: 6, EventType: thread.EventToolResult, Data: mustJSON(t, thread.ToolResultData{Items: []thread.ToolResultItem{{ToolCallID: "c2", Text: "success"}}})},
	}
	st, err := thread.Fold(events)
	require.NoError(t, err)
	assert.Equal(t, thread.KindDone, st.Kind)
}

func TestFold_NonSuccessDoneRetriesAsTool(t *testing.T) {
	events := []thread.RawEvent{
		{Sequence: 1, EventType: thread.EventLLMConfig, Data: mustJSON(t, thread.LLMConfigData{Model: "M", Tools: []string{"done"}})},
		{Sequence: 2, EventType: thread.EventUserMessage, Data: mustJSON(t, thread.UserMessageData{Content: "go"})},
		{Sequence: 3, EventType: thread.EventAgentMessage, Data: mustJSON(t, thread.AgentMessageData{ToolCalls: []thread.ToolCall{{ID: "c1", Name: "done"}}})},
		{Sequence: 4, EventType: thread.EventToolResult, Data: mustJSON(t, thread.ToolResultData{Items: []thread.ToolResultItem{{ToolCallID: "c1", Text: "not yet"}}})},
	}
	st, err := thread.Fold(events)
	require.NoError(t, err)
	assert.Equal(t, thread.KindTool, st.Kind)
}

func TestFold_RejectsEventAfterTerminalState(t *testing.T) {
	events := []thread.RawEvent{
		{Sequence: 1, EventType: thread.EventLLMConfig, Data: mustJSON(t, thread.LLMConfigData{Model: "M"})},
		{Sequence: 2, EventType: thread.EventUserMessage, Data: mustJSON(t, thread.UserMessageData{Content: "go"})},
		{Sequence: 3, EventType: thread.EventFail, Data: mustJSON(t, thread.FailData{Message: "boom"})},
		{Sequence: 4, EventType: thread.EventUserMessage, Data: mustJSON(t, thread.UserMessageData{Content: "still here?"})},
	}
	_, err := thread.Fold(events)
	assert.Error(t, err)
}

func TestFold_RejectsDuplicateLLMConfig(t *testing.T) {
	events := []thread.RawEvent{
		{Sequence: 1, EventType: thread.EventLLMConfig, Data: mustJSON(t, thread.LLMConfigData{Model: "M"})},
		{Sequence: 2, EventType: thread.EventLLMConfig, Data: mustJSON(t, thread.LLMConfigData{Model: "M2"})},
	}
	_, err := thread.Fold(events)
	assert.Error(t, err)
}

func TestFold_RejectsToolResultForUnknownCall(t *testing.T) {
	events := []thread.RawEvent{
		{Sequence: 1, EventType: thread.EventLLMConfig, Data: mustJSON(t, thread.LLMConfigData{Model: "M"})},
		{Sequence: 2, EventType: thread.EventUserMessage, Data: mustJSON(t, thread.UserMessageData{Content: "go"})},
		{Sequence: 3, EventType: thread.EventAgentMessage, Data: mustJSON(t, thread.AgentMessageData{ToolCalls: []thread.ToolCall{{ID: "c1", Name: "write_file"}}})},
		{Sequence: 4, EventType: thread.EventToolResult, Data: mustJSON(t, thread.ToolResultData{Items: []thread.ToolResultItem{{ToolCallID: "does-not-exist", Text: "ok"}}})},
	}
	_, err := thread.Fold(events)
	assert.Error(t, err)
}

func TestFold_DelegationTracksPendingUntilCompleted(t *testing.T) {
	events := []thread.RawEvent{
		{Sequence: 1, EventType: thread.EventLLMConfig, Data: mustJSON(t, thread.LLMConfigData{Model: "M"})},
		{Sequence: 2, EventType: thread.EventUserMessage, Data: mustJSON(t, thread.UserMessageData{Content: "go"})},
		{Sequence: 3, EventType: thread.EventAgentMessage, Data: mustJSON(t, thread.AgentMessageData{ToolCalls: []thread.ToolCall{{ID: "c1", Name: "compact_error"}}})},
		{Sequence: 4, EventType: thread.EventDelegated, Data: mustJSON(t, thread.DelegatedData{ParentToolCallID: "c1", ChildAggregateID: "child-1"})},
	}
	st, err := thread.Fold(events)
	require.NoError(t, err)
	assert.Equal(t, "child-1", st.PendingDelegations["c1"])

	events = append(events, thread.RawEvent{Sequence: 5, EventType: thread.EventToolResult, Data: mustJSON(t, thread.ToolResultData{Items: []thread.ToolResultItem{{ToolCallID: "c1", Text: "short summary"}}})})
	st, err = thread.Fold(events)
	require.NoError(t, err)
	assert.Equal(t, thread.KindTool, st.Kind)
	assert.NotContains(t, st.PendingDelegations, "c1")
}
