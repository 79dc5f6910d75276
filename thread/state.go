package thread

// Kind is the coarse conversation lifecycle position, per the state machine
// in §4.7: None|UserWait -> User; User|Tool -> Agent (tool calls) or UserWait
// (no tool calls); Agent -> Tool|Done; any non-terminal kind -> Fail.
type Kind int

const (
	KindNone Kind = iota
	KindUser
	KindAgent
	KindUserWait
	KindTool
	KindDone
	KindFail
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindUser:
		return "User"
	case KindAgent:
		return "Agent"
	case KindUserWait:
		return "UserWait"
	case KindTool:
		return "Tool"
	case KindDone:
		return "Done"
	case KindFail:
		return "Fail"
	default:
		return "Unknown"
	}
}

// Terminal reports whether k admits no further transitions.
func (k Kind) Terminal() bool {
	return k == KindDone || k == KindFail
}

// State is the aggregate's derived view, produced purely by Fold.
type State struct {
	Kind    Kind
	FailMsg string

	Messages []Message

	// Model, Temperature, MaxTokens, Preamble, Tools, Recipient, Parent are
	// set once by the aggregate's single LLMConfig event.
	Model       string
	Temperature float64
	MaxTokens   int
	Preamble    string
	Tools       []string
	Recipient   string
	Parent      *ParentLink

	// PendingDelegations maps a still-open trigger tool-call id to the child
	// aggregate spawned to answer it.
	PendingDelegations map[string]string

	// LastSequence is the sequence of the last event folded. No processor in
	// this module reads it.
	LastSequence int64
}

// Configured reports whether LLMConfig has been folded.
func (s State) Configured() bool {
	return s.Model != "" || len(s.Tools) > 0
}
