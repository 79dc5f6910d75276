package anthropic

import (
	"context"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentloom/orchestrator/llm"
)

type stubMessagesClient struct {
	lastParams sdk.MessageNewParams
	resp       *sdk.Message
	err        error
}

func (s *stubMessagesClient) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	s.lastParams = body
	return s.resp, s.err
}

func TestComplete_TextOnly(t *testing.T) {
	stub := &stubMessagesClient{
		resp: &sdk.Message{
			Content: []sdk.ContentBlockUnion{
				{Type: "text", Text: "world"},
			},
			StopReason: sdk.StopReasonEndTurn,
			Usage:      sdk.Usage{OutputTokens: 5},
		},
	}
	cl, err := New(stub, Options{DefaultModel: "claude-3-5-sonnet-20241022", MaxTokens: 128})
	require.NoError(t, err)

	resp, err := cl.Complete(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Text: "hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "world", resp.Text)
	assert.Equal(t, llm.FinishStop, resp.FinishReason)
	assert.Equal(t, 5, resp.TokensOut)
	assert.Equal(t, sdk.Model("claude-3-5-sonnet-20241022"), stub.lastParams.Model)
}

func TestComplete_ToolUse(t *testing.T) {
	stub := &stubMessagesClient{
		resp: &sdk.Message{
			Content: []sdk.ContentBlockUnion{
				{Type: "tool_use", ID: "call_1", Name: "write_file", Input: []byte(`{"path":"a.txt"}`)},
			},
			StopReason: sdk.StopReasonToolUse,
		},
	}
	cl, err := New(stub, Options{DefaultModel: "claude-3-5-sonnet-20241022", MaxTokens: 128})
	require.NoError(t, err)

	resp, err := cl.Complete(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Text: "write a file"}},
		Tools: []llm.ToolDef{
			{Name: "write_file", Description: "writes a file", Parameters: []byte(`{"type":"object"}`)},
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "write_file", resp.ToolCalls[0].Name)
	assert.Equal(t, llm.FinishToolCalls, resp.FinishReason)
	require.Len(t, stub.lastParams.Tools, 1)
}

func TestComplete_MissingMaxTokensIsInvalidRequest(t *testing.T) {
	stub := &stubMessagesClient{}
	cl, err := New(stub, Options{DefaultModel: "claude-3-5-sonnet-20241022"})
	require.NoError(t, err)

	_, err = cl.Complete(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Text: "hi"}},
	})
	require.Error(t, err)
	pe, ok := llm.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, llm.KindInvalidRequest, pe.Kind())
	assert.Equal(t, llm.ClassPermanent, pe.Class())
}

func TestComplete_RateLimitedIsClassifiedTransient(t *testing.T) {
	stub := &stubMessagesClient{
		err: &sdk.Error{StatusCode: 429, RequestID: "req_1"},
	}
	cl, err := New(stub, Options{DefaultModel: "claude-3-5-sonnet-20241022", MaxTokens: 64})
	require.NoError(t, err)

	_, err = cl.Complete(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Text: "hi"}},
	})
	require.Error(t, err)
	pe, ok := llm.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, llm.KindRateLimited, pe.Kind())
	assert.Equal(t, llm.ClassTransient, pe.Class())
}

func TestComplete_ServerErrorIsUnavailable(t *testing.T) {
	stub := &stubMessagesClient{
		err: &sdk.Error{StatusCode: 503, RequestID: "req_2"},
	}
	cl, err := New(stub, Options{DefaultModel: "claude-3-5-sonnet-20241022", MaxTokens: 64})
	require.NoError(t, err)

	_, err = cl.Complete(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Text: "hi"}},
	})
	require.Error(t, err)
	pe, ok := llm.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, llm.KindUnavailable, pe.Kind())
	assert.Equal(t, llm.ClassTransient, pe.Class())
}

func TestComplete_NonAPIErrorIsUnavailable(t *testing.T) {
	stub := &stubMessagesClient{err: context.DeadlineExceeded}
	cl, err := New(stub, Options{DefaultModel: "claude-3-5-sonnet-20241022", MaxTokens: 64})
	require.NoError(t, err)

	_, err = cl.Complete(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Text: "hi"}},
	})
	require.Error(t, err)
	pe, ok := llm.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, llm.KindUnavailable, pe.Kind())
}
