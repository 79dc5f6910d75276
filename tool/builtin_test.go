package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentloom/orchestrator/sandbox"
)

type fakeValidator struct {
	failure string
	err     error
}

func (f fakeValidator) Run(ctx context.Context, sb sandbox.Sandbox) (string, error) {
	return f.failure, f.err
}

func TestDone_NilValidatorBehavesAsNoOpAndReturnsExactSuccessText(t *testing.T) {
	d := Done(nil)
	out, toolErr, err := d.Handler(context.Background(), json.RawMessage(`{"summary":"wrapped up"}`), nil)
	require.NoError(t, err)
	require.Nil(t, toolErr)
	assert.Equal(t, doneResult, string(out))
	assert.Equal(t, "success", string(out))
}

func TestDone_PassingValidatorReturnsSuccessText(t *testing.T) {
	d := Done(NoOpValidator{})
	out, toolErr, err := d.Handler(context.Background(), json.RawMessage(`{"summary":"ok"}`), nil)
	require.NoError(t, err)
	require.Nil(t, toolErr)
	assert.Equal(t, "success", string(out))
}

func TestDone_FailingValidatorReturnsNonSuccessTextNotDomainError(t *testing.T) {
	d := Done(fakeValidator{failure: "tests did not pass"})
	out, toolErr, err := d.Handler(context.Background(), json.RawMessage(`{"summary":"ok"}`), nil)
	require.NoError(t, err)
	require.Nil(t, toolErr)
	assert.NotEqual(t, "success", string(out))
	assert.Contains(t, string(out), "tests did not pass")
}

func TestDone_ValidatorInfraErrorIsFatalNotDomain(t *testing.T) {
	d := Done(fakeValidator{err: errors.New("sandbox unreachable")})
	out, toolErr, err := d.Handler(context.Background(), json.RawMessage(`{"summary":"ok"}`), nil)
	require.Error(t, err)
	assert.Nil(t, toolErr)
	assert.Nil(t, out)
	assert.Contains(t, err.Error(), "sandbox unreachable")
}

func TestDone_SpecRequiresSummaryArgument(t *testing.T) {
	d := Done(nil)
	assert.Equal(t, "done", d.Spec.Name)
	assert.NoError(t, d.Spec.Validate(json.RawMessage(`{"summary":"ok"}`)))
	assert.Error(t, d.Spec.Validate(json.RawMessage(`{}`)))
}

func TestDone_RegistersAndCallsThroughRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Done(nil)))

	out, toolErr, err := r.Call(context.Background(), "done", json.RawMessage(`{"summary":"finished"}`), nil)
	require.NoError(t, err)
	require.Nil(t, toolErr)
	assert.Equal(t, "success", string(out))
}
