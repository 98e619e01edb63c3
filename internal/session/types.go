// Package session defines the conversation data model and per-engine session
// state shared by the turn engine, the safety classifier, and the exec handler.
package session

import "time"

// Role identifies the speaker of a message-shaped conversation item.
type Role string

const (
	RoleUser      Role = "user"
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
)

// ContentPart is one piece of a message's content.
type ContentPart struct {
	Type     string `json:"type"` // text|image|file|refusal
	Text     string `json:"text,omitempty"`
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// ReasoningSummaryPart is one {headline?, text} pair inside a reasoning summary item.
type ReasoningSummaryPart struct {
	Headline string `json:"headline,omitempty"`
	Text     string `json:"text"`
}

// ItemKind discriminates the Item tagged variant.
type ItemKind string

const (
	ItemKindMessage          ItemKind = "message"
	ItemKindFunctionCall     ItemKind = "function_call"
	ItemKindFunctionOutput   ItemKind = "function_call_output"
	ItemKindReasoningSummary ItemKind = "reasoning_summary"
)

// Item is the tagged conversation item exchanged with the model. Exactly one
// of the Kind-specific field groups is populated, selected by Kind.
type Item struct {
	Kind ItemKind `json:"kind"`

	// message
	Role    Role          `json:"role,omitempty"`
	Content []ContentPart `json:"content,omitempty"`

	// function_call
	CallID   string `json:"call_id,omitempty"`
	ToolName string `json:"tool_name,omitempty"`
	ArgsJSON string `json:"args_json,omitempty"`

	// function_call_output (CallID shared with function_call)
	Output       string   `json:"output,omitempty"`
	ExitCode     *int     `json:"exit_code,omitempty"`
	DurationSecs *float64 `json:"duration_seconds,omitempty"`

	// reasoning_summary
	Summary         []ReasoningSummaryPart `json:"summary,omitempty"`
	SummaryDuration *time.Duration         `json:"-"`
}

// NewMessage builds a message-kind item.
func NewMessage(role Role, parts ...ContentPart) Item {
	return Item{Kind: ItemKindMessage, Role: role, Content: parts}
}

// NewFunctionCall builds a function-call-kind item.
func NewFunctionCall(callID, toolName, argsJSON string) Item {
	return Item{Kind: ItemKindFunctionCall, CallID: callID, ToolName: toolName, ArgsJSON: argsJSON}
}

// NewFunctionCallOutput builds a function-call-output-kind item answering callID.
func NewFunctionCallOutput(callID, output string, exitCode int, duration time.Duration) Item {
	ec := exitCode
	secs := duration.Seconds()
	return Item{Kind: ItemKindFunctionOutput, CallID: callID, Output: output, ExitCode: &ec, DurationSecs: &secs}
}

// AbortedOutputJSON is the literal synthetic body used to answer any call-id
// left pending when a new run begins.
const AbortedOutputJSON = `{"output":"aborted","metadata":{"exit_code":1,"duration_seconds":0}}`

// NewAbortedOutput builds the synthetic function_call_output for a pending abort.
func NewAbortedOutput(callID string) Item {
	return Item{Kind: ItemKindFunctionOutput, CallID: callID, Output: AbortedOutputJSON}
}

// ApprovalPolicy is the three-level approval policy.
type ApprovalPolicy string

const (
	PolicySuggest  ApprovalPolicy = "suggest"
	PolicyAutoEdit ApprovalPolicy = "auto-edit"
	PolicyFullAuto ApprovalPolicy = "full-auto"
)

// NormalizePolicy defaults unrecognized or empty values to PolicySuggest, the most
// conservative policy.
func NormalizePolicy(raw string) ApprovalPolicy {
	switch ApprovalPolicy(raw) {
	case PolicyAutoEdit, PolicyFullAuto, PolicySuggest:
		return ApprovalPolicy(raw)
	default:
		return PolicySuggest
	}
}
