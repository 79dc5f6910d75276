package processor

import (
	"context"
	"encoding/json"

	"github.com/agentloom/orchestrator/eventlog"
	"github.com/agentloom/orchestrator/thread"
)

// LoadState loads the full event prefix for (streamID, aggregateID) and folds
// it. Every processor consults this immediately before acting, so a decision
// is always made against the latest committed state rather than the
// triggering envelope alone — this is the idempotence guard described in
// spec.md §4.3/§5: if some other writer already advanced the aggregate past
// the state a handler expected, the fold reflects that and the handler can
// no-op instead of emitting a conflicting event.
func LoadState(ctx context.Context, store eventlog.Store, streamID, aggregateID string) (thread.State, []eventlog.Envelope, error) {
	envs, err := store.Load(ctx, eventlog.Query{Stream: streamID, AggregateID: aggregateID}, 0)
	if err != nil {
		return thread.State{}, nil, err
	}
	raw := make([]thread.RawEvent, len(envs))
	for i, e := range envs {
		raw[i] = thread.RawEvent{Sequence: e.Sequence, EventType: e.EventType, Data: e.Data}
	}
	st, err := thread.Fold(raw)
	if err != nil {
		return thread.State{}, nil, err
	}
	return st, envs, nil
}

// Append runs cmd against the aggregate's current state and appends whatever
// events Decide approves. It returns (false, nil) without appending when cmd
// is no longer valid for the freshly loaded state — the expected outcome of
// losing a race with another writer, not an error.
func Append(ctx context.Context, store eventlog.Store, streamID, aggregateID string, cmd thread.Command) (bool, error) {
	st, _, err := LoadState(ctx, store, streamID, aggregateID)
	if err != nil {
		return false, err
	}
	events, err := thread.Decide(st, cmd)
	if err != nil {
		return false, nil
	}
	for _, ev := range events {
		if _, err := store.Append(ctx, streamID, aggregateID, ev.Type, ev.Version, ev.Data, eventlog.Metadata{}); err != nil {
			return false, err
		}
	}
	return true, nil
}

// DelegationStatus classifies where a tool call sits relative to the
// delegation/compaction machinery, derived from the raw event prefix rather
// than from thread.State alone: a call can be "delegated" for either reason
// (spec.md §4.5 trigger tools, §4.6 oversized tool output routed through the
// same mechanism), and both share the Delegated/DelegationCompleted events.
type DelegationStatus int

const (
	// NotDelegated means no Delegated event exists yet for the call.
	NotDelegated DelegationStatus = iota
	// DelegationPending means a Delegated event exists but no
	// DelegationCompleted has arrived yet.
	DelegationPending
	// DelegationDone means the delegation finished; Summary holds its result.
	DelegationDone
)

// FindDelegation scans envs for the Delegated/DelegationCompleted pair
// belonging to toolCallID and reports its status. When status is
// DelegationDone, summary holds the completed child's reported result.
func FindDelegation(envs []eventlog.Envelope, toolCallID string) (status DelegationStatus, summary string) {
	delegated := false
	for _, e := range envs {
		switch e.EventType {
		case thread.EventDelegated:
			var data thread.DelegatedData
			if json.Unmarshal(e.Data, &data) == nil && data.ParentToolCallID == toolCallID {
				delegated = true
			}
		case thread.EventDelegationCompleted:
			var data thread.DelegationCompletedData
			if json.Unmarshal(e.Data, &data) == nil && data.ParentToolCallID == toolCallID {
				return DelegationDone, data.Summary
			}
		}
	}
	if delegated {
		return DelegationPending, ""
	}
	return NotDelegated, ""
}

// HasToolResultRaw reports whether a ToolResultRaw event already exists for
// toolCallID — the compaction worker's "observed but not yet routed" marker.
func HasToolResultRaw(envs []eventlog.Envelope, toolCallID string) bool {
	for _, e := range envs {
		if e.EventType != thread.EventToolResultRaw {
			continue
		}
		var data thread.ToolResultRawData
		if json.Unmarshal(e.Data, &data) == nil && data.ToolCallID == toolCallID {
			return true
		}
	}
	return false
}
