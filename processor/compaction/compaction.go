// Package compaction implements the Compaction Worker (spec.md §4.6): it
// watches for oversized tool output staged as ToolResultRaw and routes it
// through a delegated summarization thread, reusing the Delegation
// Processor's spawn/complete machinery rather than a bespoke one. A
// tool-call id is routed at most once: a ToolResultRaw event that already
// has a Delegated record is left alone.
package compaction

import (
	"context"
	"encoding/json"

	"github.com/agentloom/orchestrator/eventlog"
	"github.com/agentloom/orchestrator/processor"
	"github.com/agentloom/orchestrator/processor/delegation"
	"github.com/agentloom/orchestrator/telemetry"
	"github.com/agentloom/orchestrator/thread"
)

// DefaultPreamble instructs the compaction thread on what a faithful summary
// must preserve.
const DefaultPreamble = "You compress long tool output for a coding agent's context window. " +
	"Preserve file paths, error messages, stack traces, and line numbers verbatim. " +
	"Drop repeated boilerplate and successful, uninteresting output. " +
	"When you are done, call the done tool with a summary short enough to fit comfortably " +
	"under the size budget that routed this content to you."

// Config configures the delegated compaction thread.
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Preamble    string
	Recipient   string
}

// Processor is the Compaction Worker.
type Processor struct {
	store eventlog.Store
	cfg   Config
	log   telemetry.Logger
}

// New constructs a Processor. An empty Preamble falls back to DefaultPreamble.
func New(store eventlog.Store, cfg Config, log telemetry.Logger) *Processor {
	if cfg.Preamble == "" {
		cfg.Preamble = DefaultPreamble
	}
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	return &Processor{store: store, cfg: cfg, log: log}
}

// Run subscribes to every aggregate on stream and routes oversized tool
// output through compaction until ctx is canceled.
func (p *Processor) Run(ctx context.Context, stream string) error {
	return processor.Run(ctx, p.store, eventlog.Query{Stream: stream}, "compaction", p.log, p.handle)
}

func (p *Processor) handle(ctx context.Context, env eventlog.Envelope) error {
	if env.EventType != thread.EventToolResultRaw {
		return nil
	}
	var data thread.ToolResultRawData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return err
	}

	_, envs, err := processor.LoadState(ctx, p.store, env.StreamID, env.AggregateID)
	if err != nil {
		return err
	}
	if status, _ := processor.FindDelegation(envs, data.ToolCallID); status != processor.NotDelegated {
		return nil
	}

	p.log.Info(ctx, "compaction: routing oversized tool output", "aggregate", env.AggregateID, "tool_call_id", data.ToolCallID, "bytes", len(data.Text))
	_, err = delegation.Spawn(ctx, p.store, env.StreamID, env.AggregateID, data.ToolCallID, data.Text, delegation.SpawnConfig{
		Model:       p.cfg.Model,
		Temperature: p.cfg.Temperature,
		MaxTokens:   p.cfg.MaxTokens,
		Preamble:    p.cfg.Preamble,
		Tools:       []string{"done"},
		Recipient:   p.cfg.Recipient,
	})
	return err
}
