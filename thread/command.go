package thread

import "fmt"

// Command is a request to append one or more events. Decide rejects a
// command invalid for the aggregate's current state rather than producing
// events that would violate the fold's invariants.
type Command interface{ isCommand() }

// ConfigureLLM is the first command issued against a fresh aggregate.
type ConfigureLLM struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Preamble    string
	Tools       []string
	Recipient   string
	Parent      *ParentLink
}

// SubmitUserMessage appends a prompt from the user or an upstream thread.
type SubmitUserMessage struct {
	Content string
}

// SubmitAgentMessage appends model output.
type SubmitAgentMessage struct {
	Text      string
	ToolCalls []ToolCall
	Recipient string
}

// SubmitToolResult appends the outcome of a tool-call batch.
type SubmitToolResult struct {
	Items []ToolResultItem
}

// SubmitToolResultRaw stages pre-compaction tool output for the compaction
// worker; it does not itself advance the conversation state machine.
type SubmitToolResultRaw struct {
	ToolCallID string
	Text       string
}

// SubmitDelegation records that a trigger tool call spawned a child thread.
// The parent aggregate remains Tool-pending: no ToolResult is produced yet.
type SubmitDelegation struct {
	ParentToolCallID string
	ChildAggregateID string
}

// CompleteDelegation marks a delegated child thread finished, once its own
// fold has reached Done.
type CompleteDelegation struct {
	ParentToolCallID string
	Summary          string
}

// SubmitFail transitions the aggregate to its terminal Fail state.
type SubmitFail struct {
	Message string
}

func (ConfigureLLM) isCommand()         {}
func (SubmitUserMessage) isCommand()    {}
func (SubmitAgentMessage) isCommand()   {}
func (SubmitToolResult) isCommand()     {}
func (SubmitToolResultRaw) isCommand()  {}
func (SubmitDelegation) isCommand()     {}
func (CompleteDelegation) isCommand()   {}
func (SubmitFail) isCommand()           {}

// Decide is the aggregate's command handler: given the current folded state
// and a command, it returns the events that command would append, or an
// error if the command is invalid for that state. Decide never mutates
// state and never performs I/O; the caller folds the returned events back in
// (or appends them to the store) separately.
func Decide(state State, cmd Command) ([]Event, error) {
	switch c := cmd.(type) {
	case ConfigureLLM:
		if state.Kind != KindNone || state.Configured() {
			return nil, fmt.Errorf("thread: ConfigureLLM invalid in state %s", state.Kind)
		}
		return []Event{{Type: EventLLMConfig, Version: EventVersionV1, Data: LLMConfigData{
			Model: c.Model, Temperature: c.Temperature, MaxTokens: c.MaxTokens,
			Preamble: c.Preamble, Tools: c.Tools, Recipient: c.Recipient, Parent: c.Parent,
		}}}, nil

	case SubmitUserMessage:
		if state.Kind != KindNone && state.Kind != KindUserWait {
			return nil, fmt.Errorf("thread: SubmitUserMessage invalid in state %s", state.Kind)
		}
		return []Event{{Type: EventUserMessage, Version: EventVersionV1, Data: UserMessageData{Content: c.Content}}}, nil

	case SubmitAgentMessage:
		if state.Kind != KindUser && state.Kind != KindTool {
			return nil, fmt.Errorf("thread: SubmitAgentMessage invalid in state %s", state.Kind)
		}
		return []Event{{Type: EventAgentMessage, Version: EventVersionV1, Data: AgentMessageData{
			Text: c.Text, ToolCalls: c.ToolCalls, Recipient: c.Recipient,
		}}}, nil

	case SubmitToolResult:
		if state.Kind != KindAgent {
			return nil, fmt.Errorf("thread: SubmitToolResult invalid in state %s", state.Kind)
		}
		return []Event{{Type: EventToolResult, Version: EventVersionV1, Data: ToolResultData{Items: c.Items}}}, nil

	case SubmitToolResultRaw:
		if state.Kind != KindAgent {
			return nil, fmt.Errorf("thread: SubmitToolResultRaw invalid in state %s", state.Kind)
		}
		return []Event{{Type: EventToolResultRaw, Version: EventVersionV1, Data: ToolResultRawData{
			ToolCallID: c.ToolCallID, Text: c.Text,
		}}}, nil

	case SubmitDelegation:
		if state.Kind != KindAgent {
			return nil, fmt.Errorf("thread: SubmitDelegation invalid in state %s", state.Kind)
		}
		if _, pending := state.PendingDelegations[c.ParentToolCallID]; pending {
			return nil, fmt.Errorf("thread: tool call %q already delegated", c.ParentToolCallID)
		}
		return []Event{{Type: EventDelegated, Version: EventVersionV1, Data: DelegatedData{
			ParentToolCallID: c.ParentToolCallID, ChildAggregateID: c.ChildAggregateID,
		}}}, nil

	case CompleteDelegation:
		if state.Kind != KindDone {
			return nil, fmt.Errorf("thread: CompleteDelegation invalid in state %s", state.Kind)
		}
		return []Event{{Type: EventDelegationCompleted, Version: EventVersionV1, Data: DelegationCompletedData{
			ParentToolCallID: c.ParentToolCallID, Summary: c.Summary,
		}}}, nil

	case SubmitFail:
		if state.Kind.Terminal() {
			return nil, fmt.Errorf("thread: SubmitFail invalid in state %s", state.Kind)
		}
		return []Event{{Type: EventFail, Version: EventVersionV1, Data: FailData{Message: c.Message}}}, nil

	default:
		return nil, fmt.Errorf("thread: unknown command %T", cmd)
	}
}
