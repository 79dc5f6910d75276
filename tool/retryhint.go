package tool

// RetryReason categorizes the failure that produced a RetryHint.
type RetryReason string

const (
	ReasonInvalidArguments RetryReason = "invalid_arguments"
	ReasonMissingFields    RetryReason = "missing_fields"
	ReasonUnavailable      RetryReason = "unavailable"
)

// RetryHint communicates structured retry guidance so the Tool Processor or
// Thread Processor can react without string-parsing the domain error's
// message (SPEC_FULL §5 supplement: spec.md's §4.4 "structured error result"
// language stops short of saying what's in the structure; this fills it in
// the shape runtime/agent/planner.RetryHint already uses elsewhere in the
// pack).
type RetryHint struct {
	Reason         RetryReason
	Tool           string
	RestrictToTool bool
	MissingFields  []string
	Message        string
}

// RetryHintProvider can be implemented by a domain Error to surface
// structured retry guidance. No processor in this module checks for it: the
// Tool Processor embeds only the domain error's text in the ToolResult item.
type RetryHintProvider interface {
	RetryHint() *RetryHint
}
