package tool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentloom/orchestrator/sandbox"
)

func echoSpec(t *testing.T) Spec {
	t.Helper()
	spec, err := NewSpec("echo", "echoes text", json.RawMessage(`{
		"type": "object",
		"properties": {"text": {"type": "string"}},
		"required": ["text"]
	}`))
	require.NoError(t, err)
	return spec
}

func TestRegistry_RegisterRejectsDuplicateNames(t *testing.T) {
	r := NewRegistry()
	tl := Tool{Spec: echoSpec(t), Handler: func(ctx context.Context, args json.RawMessage, sb sandbox.Sandbox) (json.RawMessage, *Error, error) {
		return args, nil, nil
	}}
	require.NoError(t, r.Register(tl))
	assert.Error(t, r.Register(tl))
}

func TestRegistry_CallReturnsNotFoundForUnknownTool(t *testing.T) {
	r := NewRegistry()
	out, domainErr, fatalErr := r.Call(context.Background(), "missing", json.RawMessage(`{}`), nil)
	assert.Nil(t, out)
	assert.NoError(t, fatalErr)
	require.NotNil(t, domainErr)
	assert.Equal(t, `tool "missing" not found`, domainErr.Error())
	assert.False(t, domainErr.Fatal)
}

func TestRegistry_CallValidatesArgsBeforeInvokingHandler(t *testing.T) {
	r := NewRegistry()
	called := false
	require.NoError(t, r.Register(Tool{
		Spec: echoSpec(t),
		Handler: func(ctx context.Context, args json.RawMessage, sb sandbox.Sandbox) (json.RawMessage, *Error, error) {
			called = true
			return args, nil, nil
		},
	}))

	_, domainErr, fatalErr := r.Call(context.Background(), "echo", json.RawMessage(`{}`), nil)
	assert.NoError(t, fatalErr)
	assert.NotNil(t, domainErr)
	assert.False(t, called)
}

func TestRegistry_CallInvokesHandlerOnValidArgs(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Tool{
		Spec: echoSpec(t),
		Handler: func(ctx context.Context, args json.RawMessage, sb sandbox.Sandbox) (json.RawMessage, *Error, error) {
			return args, nil, nil
		},
	}))

	out, domainErr, fatalErr := r.Call(context.Background(), "echo", json.RawMessage(`{"text":"hi"}`), nil)
	require.NoError(t, fatalErr)
	assert.Nil(t, domainErr)
	assert.JSONEq(t, `{"text":"hi"}`, string(out))
}

func TestRegistry_CallPropagatesFatalErrorFromHandler(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Tool{
		Spec: echoSpec(t),
		Handler: func(ctx context.Context, args json.RawMessage, sb sandbox.Sandbox) (json.RawMessage, *Error, error) {
			return nil, nil, Fatalf("sandbox gone")
		},
	}))

	_, domainErr, fatalErr := r.Call(context.Background(), "echo", json.RawMessage(`{"text":"hi"}`), nil)
	assert.Nil(t, domainErr)
	require.Error(t, fatalErr)
}

func TestRegistry_SpecsReturnsAllRegistered(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Tool{Spec: echoSpec(t), Handler: func(ctx context.Context, args json.RawMessage, sb sandbox.Sandbox) (json.RawMessage, *Error, error) {
		return nil, nil, nil
	}}))
	assert.Len(t, r.Specs(), 1)
}
