package thread_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentloom/orchestrator/thread"
)

func TestDecide_ConfigureLLMOnlyOnceFromNone(t *testing.T) {
	events, err := thread.Decide(thread.State{Kind: thread.KindNone}, thread.ConfigureLLM{Model: "M", Tools: []string{"done"}})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, thread.EventLLMConfig, events[0].Type)

	_, err = thread.Decide(thread.State{Kind: thread.KindUser}, thread.ConfigureLLM{Model: "M"})
	assert.Error(t, err)
}

func TestDecide_UserMessageAllowedFromNoneAndUserWait(t *testing.T) {
	_, err := thread.Decide(thread.State{Kind: thread.KindNone}, thread.SubmitUserMessage{Content: "hi"})
	require.NoError(t, err)

	_, err = thread.Decide(thread.State{Kind: thread.KindUserWait}, thread.SubmitUserMessage{Content: "follow up"})
	require.NoError(t, err)

	_, err = thread.Decide(thread.State{Kind: thread.KindAgent}, thread.SubmitUserMessage{Content: "too soon"})
	assert.Error(t, err)
}

func TestDecide_AgentMessageRequiresUserOrTool(t *testing.T) {
	_, err := thread.Decide(thread.State{Kind: thread.KindUser}, thread.SubmitAgentMessage{Text: "hi"})
	require.NoError(t, err)

	_, err = thread.Decide(thread.State{Kind: thread.KindTool}, thread.SubmitAgentMessage{Text: "hi"})
	require.NoError(t, err)

	_, err = thread.Decide(thread.State{Kind: thread.KindDone}, thread.SubmitAgentMessage{Text: "too late"})
	assert.Error(t, err)
}

func TestDecide_ToolResultRequiresAgentState(t *testing.T) {
	_, err := thread.Decide(thread.State{Kind: thread.KindAgent}, thread.SubmitToolResult{
		Items: []thread.ToolResultItem{{ToolCallID: "c1", Text: "ok"}},
	})
	require.NoError(t, err)

	_, err = thread.Decide(thread.State{Kind: thread.KindUserWait}, thread.SubmitToolResult{})
	assert.Error(t, err)
}

func TestDecide_SubmitFailRejectedOnceTerminal(t *testing.T) {
	_, err := thread.Decide(thread.State{Kind: thread.KindAgent}, thread.SubmitFail{Message: "boom"})
	require.NoError(t, err)

	_, err = thread.Decide(thread.State{Kind: thread.KindDone}, thread.SubmitFail{Message: "too late"})
	assert.Error(t, err)

	_, err = thread.Decide(thread.State{Kind: thread.KindFail}, thread.SubmitFail{Message: "again"})
	assert.Error(t, err)
}

func TestDecide_DelegationRejectsDoubleDelegationOfSameCall(t *testing.T) {
	st := thread.State{Kind: thread.KindAgent, PendingDelegations: map[string]string{"c1": "child-1"}}
	_, err := thread.Decide(st, thread.SubmitDelegation{ParentToolCallID: "c1", ChildAggregateID: "child-2"})
	assert.Error(t, err)

	_, err = thread.Decide(st, thread.SubmitDelegation{ParentToolCallID: "c2", ChildAggregateID: "child-2"})
	assert.NoError(t, err)
}
