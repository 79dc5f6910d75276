// Package delegation implements the Delegation Processor (spec.md §4.5):
// when a trigger tool call appears in a batch, it spawns a child thread to
// answer it instead of routing the call to the Tool Processor's registry;
// when that child thread finishes, it folds the result back into the
// parent's own delegation bookkeeping so the Tool Processor can complete the
// batch.
package delegation

import (
	"context"
	"encoding/json"

	"github.com/agentloom/orchestrator/eventlog"
	"github.com/agentloom/orchestrator/processor"
	"github.com/agentloom/orchestrator/telemetry"
	"github.com/agentloom/orchestrator/thread"
)

// Profile describes the child thread a trigger tool spawns and how to derive
// its opening message from the tool call's arguments.
type Profile struct {
	SpawnConfig SpawnConfig
	SeedContent func(args []byte) string
}

// Processor is the Delegation Processor. Profiles is keyed by trigger tool
// name; a tool call whose name isn't a key is left for the Tool Processor.
type Processor struct {
	store    eventlog.Store
	profiles map[string]Profile
	log      telemetry.Logger
}

// New constructs a Processor recognizing the trigger tool names in profiles.
func New(store eventlog.Store, profiles map[string]Profile, log telemetry.Logger) *Processor {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	return &Processor{store: store, profiles: profiles, log: log}
}

// Run subscribes to every aggregate on stream, spawning and completing
// delegations until ctx is canceled.
func (p *Processor) Run(ctx context.Context, stream string) error {
	return processor.Run(ctx, p.store, eventlog.Query{Stream: stream}, "delegation", p.log, p.handle)
}

func (p *Processor) handle(ctx context.Context, env eventlog.Envelope) error {
	switch env.EventType {
	case thread.EventAgentMessage:
		return p.maybeSpawn(ctx, env.StreamID, env.AggregateID)
	case thread.EventToolResult:
		return p.maybeComplete(ctx, env.StreamID, env.AggregateID)
	default:
		return nil
	}
}

// maybeSpawn spawns a child thread for every still-unspawned trigger tool
// call in the aggregate's current batch.
func (p *Processor) maybeSpawn(ctx context.Context, streamID, aggregateID string) error {
	st, envs, err := processor.LoadState(ctx, p.store, streamID, aggregateID)
	if err != nil {
		return err
	}
	if st.Kind != thread.KindAgent || len(st.Messages) == 0 {
		return nil
	}

	for _, call := range st.Messages[len(st.Messages)-1].ToolCalls {
		profile, ok := p.profiles[call.Name]
		if !ok {
			continue
		}
		if status, _ := processor.FindDelegation(envs, call.ID); status != processor.NotDelegated {
			continue
		}
		seed := call.Name
		if profile.SeedContent != nil {
			seed = profile.SeedContent(call.Args)
		}
		if _, err := Spawn(ctx, p.store, streamID, aggregateID, call.ID, seed, profile.SpawnConfig); err != nil {
			p.log.Error(ctx, "delegation: spawn failed", "aggregate", aggregateID, "tool_call_id", call.ID, "tool", call.Name, "error", err)
			return err
		}
	}
	return nil
}

// maybeComplete checks whether aggregateID just reached Done as a delegated
// child and, if so, folds its result back into its parent's bookkeeping.
func (p *Processor) maybeComplete(ctx context.Context, streamID, aggregateID string) error {
	st, _, err := processor.LoadState(ctx, p.store, streamID, aggregateID)
	if err != nil {
		return err
	}
	if st.Kind != thread.KindDone || st.Parent == nil {
		return nil
	}

	_, parentEnvs, err := processor.LoadState(ctx, p.store, streamID, st.Parent.AggregateID)
	if err != nil {
		return err
	}
	if status, _ := processor.FindDelegation(parentEnvs, st.Parent.ToolCallID); status != processor.DelegationPending {
		// Already completed, or the parent never recorded this delegation
		// (not a delegated thread at all) — nothing to do either way.
		return nil
	}

	summary := doneSummary(st)

	events, err := thread.Decide(st, thread.CompleteDelegation{ParentToolCallID: st.Parent.ToolCallID, Summary: summary})
	if err != nil {
		// st.Kind raced away from Done between the load above and here.
		return nil
	}
	for _, ev := range events {
		if _, err := p.store.Append(ctx, streamID, st.Parent.AggregateID, ev.Type, ev.Version, ev.Data, eventlog.Metadata{}); err != nil {
			return err
		}
	}
	return nil
}

// doneSummary extracts the child's reported result: the "summary" argument
// of its final "done" tool call, falling back to the accompanying message
// text if the call carried no such argument.
func doneSummary(st thread.State) string {
	if len(st.Messages) == 0 {
		return ""
	}
	last := st.Messages[len(st.Messages)-1]
	for _, call := range last.ToolCalls {
		if call.Name != "done" {
			continue
		}
		var args struct {
			Summary string `json:"summary"`
		}
		if json.Unmarshal(call.Args, &args) == nil && args.Summary != "" {
			return args.Summary
		}
	}
	return last.Text
}
