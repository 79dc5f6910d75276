package delegation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/agentloom/orchestrator/eventlog"
	"github.com/agentloom/orchestrator/processor"
	"github.com/agentloom/orchestrator/thread"
)

// SpawnConfig describes the child thread a delegated tool call (or an
// oversized tool result routed through compaction) spawns.
type SpawnConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Preamble    string
	Tools       []string
	Recipient   string
}

// Spawn records parentToolCallID as delegated on parentAggregateID (if not
// already) and configures the child thread with seedContent as its opening
// user message. It is idempotent: calling it again for a tool call that was
// already delegated returns the same child aggregate id without emitting
// duplicate events, so a crash between steps is safe to retry.
func Spawn(ctx context.Context, store eventlog.Store, streamID, parentAggregateID, parentToolCallID, seedContent string, cfg SpawnConfig) (string, error) {
	_, parentEnvs, err := processor.LoadState(ctx, store, streamID, parentAggregateID)
	if err != nil {
		return "", err
	}

	childAggregateID := findChildID(parentEnvs, parentToolCallID)
	if childAggregateID == "" {
		childAggregateID = uuid.NewString()
		ok, err := processor.Append(ctx, store, streamID, parentAggregateID, thread.SubmitDelegation{
			ParentToolCallID: parentToolCallID,
			ChildAggregateID: childAggregateID,
		})
		if err != nil {
			return "", err
		}
		if !ok {
			// Lost a race with another writer recording the same delegation;
			// recover the id it actually wrote.
			_, parentEnvs, err = processor.LoadState(ctx, store, streamID, parentAggregateID)
			if err != nil {
				return "", err
			}
			childAggregateID = findChildID(parentEnvs, parentToolCallID)
			if childAggregateID == "" {
				return "", fmt.Errorf("delegation: tool call %q has no recorded delegation after a failed append", parentToolCallID)
			}
		}
	}

	ancestors, err := ancestorChain(ctx, store, streamID, parentAggregateID)
	if err != nil {
		return "", err
	}
	for _, id := range ancestors {
		if id == childAggregateID {
			return "", fmt.Errorf("delegation: aggregate %q already appears as an ancestor of %q, refusing to create a cycle", childAggregateID, parentAggregateID)
		}
	}

	if _, err := processor.Append(ctx, store, streamID, childAggregateID, thread.ConfigureLLM{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Preamble:    cfg.Preamble,
		Tools:       cfg.Tools,
		Recipient:   cfg.Recipient,
		Parent:      &thread.ParentLink{AggregateID: parentAggregateID, ToolCallID: parentToolCallID},
	}); err != nil {
		return "", err
	}
	if _, err := processor.Append(ctx, store, streamID, childAggregateID, thread.SubmitUserMessage{Content: seedContent}); err != nil {
		return "", err
	}
	return childAggregateID, nil
}

// ancestorChain walks Parent links upward starting at aggregateID itself,
// returning every aggregate id in that lineage (spec.md §9, "Cyclic
// references"). A seen-set guards against looping forever should the chain
// somehow already be cyclic.
func ancestorChain(ctx context.Context, store eventlog.Store, streamID, aggregateID string) ([]string, error) {
	seen := make(map[string]bool)
	var chain []string
	for current := aggregateID; current != "" && !seen[current]; {
		seen[current] = true
		chain = append(chain, current)
		st, _, err := processor.LoadState(ctx, store, streamID, current)
		if err != nil {
			return nil, err
		}
		if st.Parent == nil {
			break
		}
		current = st.Parent.AggregateID
	}
	return chain, nil
}

func findChildID(envs []eventlog.Envelope, parentToolCallID string) string {
	for _, e := range envs {
		if e.EventType != thread.EventDelegated {
			continue
		}
		var data thread.DelegatedData
		if json.Unmarshal(e.Data, &data) == nil && data.ParentToolCallID == parentToolCallID {
			return data.ChildAggregateID
		}
	}
	return ""
}
