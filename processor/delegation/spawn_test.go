package delegation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentloom/orchestrator/eventlog"
	"github.com/agentloom/orchestrator/eventlog/memstore"
	"github.com/agentloom/orchestrator/thread"
)

func TestSpawn_RejectsDelegationWhenChildIDIsAlreadyAnAncestor(t *testing.T) {
	store := memstore.New(memstore.Options{})

	appendCmd(t, store, "s1", "grandparent", thread.ConfigureLLM{Model: "m", Tools: []string{"done"}, Recipient: "main"})
	appendCmd(t, store, "s1", "parent", thread.ConfigureLLM{
		Model: "m", Tools: []string{"research"}, Recipient: "main",
		Parent: &thread.ParentLink{AggregateID: "grandparent", ToolCallID: "tc0"},
	})
	// Simulate a previously-recorded delegation whose child id coincides with
	// an ancestor of "parent" — the adversarial case the ancestor walk guards
	// against.
	appendCmd(t, store, "s1", "parent", thread.SubmitDelegation{ParentToolCallID: "tc1", ChildAggregateID: "grandparent"})

	_, err := Spawn(context.Background(), store, "s1", "parent", "tc1", "investigate", SpawnConfig{
		Model: "m", Tools: []string{"done"}, Recipient: "main",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestSpawn_AllowsDelegationWhenNoCycle(t *testing.T) {
	store := memstore.New(memstore.Options{})
	appendCmd(t, store, "s1", "parent", thread.ConfigureLLM{Model: "m", Tools: []string{"research"}, Recipient: "main"})

	childID, err := Spawn(context.Background(), store, "s1", "parent", "tc1", "investigate", SpawnConfig{
		Model: "m", Tools: []string{"done"}, Recipient: "main",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, childID)

	envs, err := store.Load(context.Background(), eventlog.Query{Stream: "s1", AggregateID: childID}, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, envs)
}

func TestAncestorChain_FollowsParentLinksToRoot(t *testing.T) {
	store := memstore.New(memstore.Options{})
	appendCmd(t, store, "s1", "root", thread.ConfigureLLM{Model: "m", Tools: []string{"done"}, Recipient: "main"})
	appendCmd(t, store, "s1", "mid", thread.ConfigureLLM{
		Model: "m", Tools: []string{"done"}, Recipient: "main",
		Parent: &thread.ParentLink{AggregateID: "root", ToolCallID: "tc"},
	})
	appendCmd(t, store, "s1", "leaf", thread.ConfigureLLM{
		Model: "m", Tools: []string{"done"}, Recipient: "main",
		Parent: &thread.ParentLink{AggregateID: "mid", ToolCallID: "tc"},
	})

	chain, err := ancestorChain(context.Background(), store, "s1", "leaf")
	require.NoError(t, err)
	assert.Equal(t, []string{"leaf", "mid", "root"}, chain)
}
