package protocol

import "fmt"

// ErrorCode enumerates the ways a single tool call can violate the
// protocol. These are all recovered locally by the Agent Runner via
// enforcement + retry.
type ErrorCode string

const (
	ErrMalformedArgs     ErrorCode = "malformed_args"
	ErrEmptyAnswer       ErrorCode = "empty_answer"
	ErrDuplicateAnswer   ErrorCode = "duplicate_answer"
	ErrUnknownTool       ErrorCode = "unknown_tool"
	ErrMultipleToolCalls ErrorCode = "multiple_tool_calls"
	ErrNoVoteTargets     ErrorCode = "no_vote_targets"
	ErrInvalidVoteTarget ErrorCode = "invalid_vote_target"
	ErrNoToolCall        ErrorCode = "no_tool_call"
)

// ProtocolError represents a single rejected tool call. It is returned to
// the offending agent as a tool-result message keyed by ToolCallID so the
// agent can retry within the same round.
type ProtocolError struct {
	Code       ErrorCode
	ToolCallID string
	Message    string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewProtocolError builds a ProtocolError for a tool call ID.
func NewProtocolError(code ErrorCode, toolCallID, message string) *ProtocolError {
	return &ProtocolError{Code: code, ToolCallID: toolCallID, Message: message}
}
