// Package threadproc implements the Thread Processor (spec.md §4.3): for
// every aggregate that owes an LLM call, it builds a completion request from
// the folded conversation, calls the LLM capability, and appends the answer.
package threadproc

import (
	"context"
	"time"

	"github.com/agentloom/orchestrator/eventlog"
	"github.com/agentloom/orchestrator/llm"
	"github.com/agentloom/orchestrator/processor"
	"github.com/agentloom/orchestrator/telemetry"
	"github.com/agentloom/orchestrator/thread"
	"github.com/agentloom/orchestrator/tool"
)

// ToolCatalog resolves a tool name to its Spec so the Thread Processor can
// describe the aggregate's configured tool names to the model in full (name,
// description, JSON schema) rather than by name alone.
type ToolCatalog interface {
	Lookup(name string) (tool.Tool, bool)
}

// Options configures a Processor. Zero values fall back to spec.md defaults.
type Options struct {
	RetryPolicy llm.RetryPolicy
	CallTimeout time.Duration // default 60s, per spec.md §5
	Logger      telemetry.Logger
	Metrics     telemetry.Metrics
}

// Processor is the Thread Processor.
type Processor struct {
	store   eventlog.Store
	client  llm.Client
	tools   ToolCatalog
	retry   llm.RetryPolicy
	timeout time.Duration
	log     telemetry.Logger
	metrics telemetry.Metrics
}

// New constructs a Processor driving client against store, resolving each
// aggregate's configured tool names against tools.
func New(store eventlog.Store, client llm.Client, tools ToolCatalog, opts Options) *Processor {
	retry := opts.RetryPolicy
	if retry.MaxAttempts == 0 {
		retry = llm.DefaultRetryPolicy()
	}
	timeout := opts.CallTimeout
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
	return &Processor{store: store, client: client, tools: tools, retry: retry, timeout: timeout, log: log, metrics: metrics}
}

// Run subscribes to every aggregate on stream and answers each one's owed LLM
// call until ctx is canceled.
func (p *Processor) Run(ctx context.Context, stream string) error {
	return processor.Run(ctx, p.store, eventlog.Query{Stream: stream}, "threadproc", p.log, p.handle)
}

func (p *Processor) handle(ctx context.Context, env eventlog.Envelope) error {
	st, _, err := processor.LoadState(ctx, p.store, env.StreamID, env.AggregateID)
	if err != nil {
		return err
	}
	if st.Kind != thread.KindUser && st.Kind != thread.KindTool {
		return nil
	}

	req := p.buildRequest(st)
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	resp, err := llm.CallWithRetry(callCtx, p.retry, func(ctx context.Context) (llm.Response, error) {
		return p.client.Complete(ctx, req)
	})
	cancel()

	if err != nil {
		p.metrics.IncCounter("threadproc.llm_call_failed", 1, "model", st.Model)
		p.log.Warn(ctx, "threadproc: llm call failed, failing thread", "aggregate", env.AggregateID, "error", err)
		ok, appendErr := processor.Append(ctx, p.store, env.StreamID, env.AggregateID, thread.SubmitFail{Message: err.Error()})
		if appendErr != nil {
			return appendErr
		}
		if !ok {
			p.log.Debug(ctx, "threadproc: Fail skipped, aggregate already advanced", "aggregate", env.AggregateID)
		}
		return nil
	}

	p.metrics.IncCounter("threadproc.llm_call_succeeded", 1, "model", st.Model)
	ok, err := processor.Append(ctx, p.store, env.StreamID, env.AggregateID, thread.SubmitAgentMessage{
		Text:      resp.Text,
		ToolCalls: resp.ToolCalls,
		Recipient: st.Recipient,
	})
	if err != nil {
		return err
	}
	if !ok {
		p.log.Debug(ctx, "threadproc: AgentMessage skipped, aggregate already advanced", "aggregate", env.AggregateID)
	}
	return nil
}

// buildRequest translates a folded State into a completion Request.
func (p *Processor) buildRequest(st thread.State) llm.Request {
	msgs := make([]llm.Message, 0, len(st.Messages))
	for _, m := range st.Messages {
		role := llm.RoleUser
		if m.Role == thread.RoleAssistant {
			role = llm.RoleAssistant
		}
		calls := make([]llm.ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			calls[i] = llm.ToolCall{ID: tc.ID, Name: tc.Name, Args: tc.Args}
		}
		msgs = append(msgs, llm.Message{Role: role, Text: m.Text, ToolCalls: calls})
	}

	tools := make([]llm.ToolDef, 0, len(st.Tools))
	for _, name := range st.Tools {
		if p.tools == nil {
			tools = append(tools, llm.ToolDef{Name: name})
			continue
		}
		t, ok := p.tools.Lookup(name)
		if !ok {
			tools = append(tools, llm.ToolDef{Name: name})
			continue
		}
		tools = append(tools, t.Spec.LLMToolDef())
	}

	return llm.Request{
		Model:       st.Model,
		Messages:    msgs,
		System:      st.Preamble,
		Tools:       tools,
		Temperature: st.Temperature,
		MaxTokens:   st.MaxTokens,
	}
}
