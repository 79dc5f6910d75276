// Package toolproc implements the Tool Processor (spec.md §4.4): for every
// aggregate holding a batch of unanswered tool calls, it resolves each call
// (direct execution, a delegated trigger, or a delegated compaction) and,
// once the whole batch is resolved, appends a single ToolResult.
package toolproc

import (
	"context"
	"time"

	"github.com/agentloom/orchestrator/eventlog"
	"github.com/agentloom/orchestrator/processor"
	"github.com/agentloom/orchestrator/sandbox"
	"github.com/agentloom/orchestrator/telemetry"
	"github.com/agentloom/orchestrator/thread"
	"github.com/agentloom/orchestrator/tool"
)

// DefaultCompactionThreshold is the output size, in bytes, above which a
// tool's result is routed through the compaction worker instead of being
// embedded directly (spec.md §4.6).
const DefaultCompactionThreshold = 4000

// Options configures a Processor. Zero values fall back to spec.md defaults.
type Options struct {
	// Recipient restricts this Processor to AgentMessage events whose
	// thread.State.Recipient matches exactly (spec.md §4.4 point 1). Empty
	// means match any recipient — the default, for single-tag deployments.
	Recipient                string
	CompactionThresholdBytes int
	ExecTimeout              time.Duration // default 60s, per spec.md §5
	Logger                   telemetry.Logger
	Metrics                  telemetry.Metrics
}

// Processor is the Tool Processor.
type Processor struct {
	store     eventlog.Store
	sandboxes *sandbox.Pool
	registry  *tool.Registry
	recipient string
	threshold int
	timeout   time.Duration
	log       telemetry.Logger
	metrics   telemetry.Metrics
}

// New constructs a Processor executing tool calls via registry against
// sandboxes owned by sandboxes.
func New(store eventlog.Store, sandboxes *sandbox.Pool, registry *tool.Registry, opts Options) *Processor {
	threshold := opts.CompactionThresholdBytes
	if threshold <= 0 {
		threshold = DefaultCompactionThreshold
	}
	timeout := opts.ExecTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	return &Processor{store: store, sandboxes: sandboxes, registry: registry, recipient: opts.Recipient, threshold: threshold, timeout: timeout, log: log, metrics: metrics}
}

// Run subscribes to every aggregate on stream and resolves each one's owed
// tool-call batch until ctx is canceled.
func (p *Processor) Run(ctx context.Context, stream string) error {
	return processor.Run(ctx, p.store, eventlog.Query{Stream: stream}, "toolproc", p.log, p.handle)
}

func (p *Processor) handle(ctx context.Context, env eventlog.Envelope) error {
	return p.resolveBatch(ctx, env.StreamID, env.AggregateID)
}

// resolveBatch re-derives the aggregate's owed tool-call batch from scratch
// every time it's invoked, so it is safe to call repeatedly for the same
// aggregate as delegation and compaction events trickle in — each call picks
// up exactly the work still outstanding.
func (p *Processor) resolveBatch(ctx context.Context, streamID, aggregateID string) error {
	st, envs, err := processor.LoadState(ctx, p.store, streamID, aggregateID)
	if err != nil {
		return err
	}
	if st.Kind.Terminal() {
		if err := p.sandboxes.Release(ctx, aggregateID); err != nil {
			p.log.Warn(ctx, "toolproc: releasing sandbox failed", "aggregate", aggregateID, "error", err)
		}
		return nil
	}
	if st.Kind != thread.KindAgent || len(st.Messages) == 0 {
		return nil
	}
	if p.recipient != "" && st.Recipient != p.recipient {
		return nil
	}
	calls := st.Messages[len(st.Messages)-1].ToolCalls
	if len(calls) == 0 {
		return nil
	}

	results := make([]thread.ToolResultItem, len(calls))
	ready := true
	var needExec []int

	for i, call := range calls {
		if status, summary := processor.FindDelegation(envs, call.ID); status != processor.NotDelegated {
			if status == processor.DelegationDone {
				results[i] = thread.ToolResultItem{ToolCallID: call.ID, Text: summary}
			} else {
				ready = false
			}
			continue
		}
		if processor.HasToolResultRaw(envs, call.ID) {
			ready = false
			continue
		}
		needExec = append(needExec, i)
	}

	if len(needExec) > 0 {
		if err := p.execute(ctx, streamID, aggregateID, calls, needExec, results, &ready); err != nil {
			return err
		}
	}

	if !ready {
		return nil
	}
	return p.appendToolResult(ctx, streamID, aggregateID, results)
}

// execute runs every call indexed by needExec against a single sandbox
// acquisition, filling results in place. Oversized output is staged as
// ToolResultRaw for the compaction worker instead of embedded directly,
// which clears ready so the batch waits for compaction to finish.
func (p *Processor) execute(ctx context.Context, streamID, aggregateID string, calls []thread.ToolCall, needExec []int, results []thread.ToolResultItem, ready *bool) error {
	sb, release, err := p.sandboxes.Acquire(ctx, aggregateID)
	if err != nil {
		return p.fail(ctx, streamID, aggregateID, err)
	}
	defer release()

	for _, i := range needExec {
		call := calls[i]
		execCtx, cancel := context.WithTimeout(ctx, p.timeout)
		out, domainErr, fatalErr := p.registry.Call(execCtx, call.Name, call.Args, sb)
		cancel()

		if fatalErr == nil && domainErr != nil && domainErr.Fatal {
			fatalErr = domainErr
		}
		if fatalErr != nil {
			return p.fail(ctx, streamID, aggregateID, fatalErr)
		}
		if domainErr != nil {
			p.metrics.IncCounter("toolproc.call_domain_error", 1, "tool", call.Name)
			results[i] = thread.ToolResultItem{ToolCallID: call.ID, Text: domainErr.Error(), IsError: true}
			continue
		}

		text := string(out)
		if len(text) > p.threshold {
			p.metrics.IncCounter("toolproc.output_routed_to_compaction", 1, "tool", call.Name)
			if _, err := processor.Append(ctx, p.store, streamID, aggregateID, thread.SubmitToolResultRaw{ToolCallID: call.ID, Text: text}); err != nil {
				return err
			}
			*ready = false
			continue
		}
		results[i] = thread.ToolResultItem{ToolCallID: call.ID, Text: text}
	}
	return nil
}

func (p *Processor) appendToolResult(ctx context.Context, streamID, aggregateID string, items []thread.ToolResultItem) error {
	ok, err := processor.Append(ctx, p.store, streamID, aggregateID, thread.SubmitToolResult{Items: items})
	if err != nil {
		return err
	}
	if !ok {
		p.log.Debug(ctx, "toolproc: ToolResult skipped, aggregate already advanced", "aggregate", aggregateID)
	}
	return nil
}

func (p *Processor) fail(ctx context.Context, streamID, aggregateID string, cause error) error {
	p.log.Error(ctx, "toolproc: fatal error, failing aggregate", "aggregate", aggregateID, "error", cause)
	ok, err := processor.Append(ctx, p.store, streamID, aggregateID, thread.SubmitFail{Message: cause.Error()})
	if err != nil {
		return err
	}
	if !ok {
		p.log.Debug(ctx, "toolproc: Fail skipped, aggregate already advanced", "aggregate", aggregateID)
	}
	return nil
}
