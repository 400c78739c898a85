// Package protocol implements the two-tool binary decision protocol agents
// use during coordination: new_answer and vote.
//
// Schemas are generated dynamically per round (the vote tool's agent_id
// enum changes as the set of answer-holders changes), so parsing and
// validation are kept separate from the generic tool.Tool interface a
// full agent framework would expose.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/massgen-go/orchestrator/pkg/agent"
)

// Tool names exposed to agents.
const (
	ToolNewAnswer = "new_answer"
	ToolVote      = "vote"
)

// NewAnswerArgs is the parsed argument set for new_answer.
type NewAnswerArgs struct {
	Content string `json:"content"`
}

// VoteArgs is the parsed argument set for vote.
type VoteArgs struct {
	AgentID string `json:"agent_id"`
	Reason  string `json:"reason"`
}

// ToolCall is a closed sum type over the two tools an agent may invoke.
// Exactly one of NewAnswer or Vote is non-nil.
type ToolCall struct {
	ID        string
	NewAnswer *NewAnswerArgs
	Vote      *VoteArgs
}

// IsNewAnswer reports whether this call is a new_answer.
func (c *ToolCall) IsNewAnswer() bool { return c != nil && c.NewAnswer != nil }

// IsVote reports whether this call is a vote.
func (c *ToolCall) IsVote() bool { return c != nil && c.Vote != nil }

// Name returns the tool name this call targets.
func (c *ToolCall) Name() string {
	switch {
	case c.IsNewAnswer():
		return ToolNewAnswer
	case c.IsVote():
		return ToolVote
	default:
		return ""
	}
}

// RawCall is what the Agent Runner assembles from streamed ToolCallDelta
// fragments once a call is complete.
type RawCall struct {
	ID       string
	Name     string
	ArgsJSON string
}

// Parse decodes a RawCall into a typed ToolCall. It does not validate
// protocol rules (duplicate answers, unknown vote targets, etc.) — that is
// the Agent Runner's job, since it requires access to current coordination
// state (see runner.validate in the coordinator package).
func Parse(raw RawCall) (*ToolCall, error) {
	switch raw.Name {
	case ToolNewAnswer:
		var args NewAnswerArgs
		if err := unmarshalArgs(raw.ArgsJSON, &args); err != nil {
			return nil, &ProtocolError{Code: ErrMalformedArgs, ToolCallID: raw.ID, Message: err.Error()}
		}
		if args.Content == "" {
			return nil, &ProtocolError{Code: ErrEmptyAnswer, ToolCallID: raw.ID, Message: "new_answer.content must not be empty"}
		}
		return &ToolCall{ID: raw.ID, NewAnswer: &args}, nil

	case ToolVote:
		var args VoteArgs
		if err := unmarshalArgs(raw.ArgsJSON, &args); err != nil {
			return nil, &ProtocolError{Code: ErrMalformedArgs, ToolCallID: raw.ID, Message: err.Error()}
		}
		return &ToolCall{ID: raw.ID, Vote: &args}, nil

	default:
		return nil, &ProtocolError{Code: ErrUnknownTool, ToolCallID: raw.ID, Message: fmt.Sprintf("unknown tool %q", raw.Name)}
	}
}

func unmarshalArgs(argsJSON string, dst any) error {
	if argsJSON == "" {
		argsJSON = "{}"
	}
	return json.Unmarshal([]byte(argsJSON), dst)
}

// Schemas builds the two tool schemas for the current round. anonymousIDs
// is the current round's answer-holder enum (agent1, agent2, ...) in
// anonymous-ID order; it may be empty if no answers exist yet, in which
// case vote is still advertised but any attempted call is rejected by the
// Agent Runner's validation (rule: vote requires at least one existing answer).
func Schemas(anonymousIDs []string) []agent.ToolSchema {
	return []agent.ToolSchema{
		{
			Name:        ToolNewAnswer,
			Description: "Propose a new answer to the task, superseding any prior answer you gave.",
			Parameters:  newAnswerSchema(),
		},
		{
			Name:        ToolVote,
			Description: "Vote for one of the answers currently on the table.",
			Parameters:  voteSchema(anonymousIDs),
		},
	}
}

func newAnswerSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"content": map[string]any{
				"type":        "string",
				"description": "The full proposed answer text. Must not be empty.",
			},
		},
		"required": []string{"content"},
	}
}

// voteSchema generates the vote tool's parameter schema by reflecting
// VoteArgs with invopop/jsonschema; the agent_id enum is injected by hand
// since it is dynamic (it changes every round as answers arrive).
func voteSchema(anonymousIDs []string) map[string]any {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(new(VoteArgs))

	data, err := json.Marshal(schema)
	if err != nil {
		// Reflection over a fixed local struct never fails; fall back to a
		// minimal hand-written schema rather than panicking.
		return voteSchemaFallback(anonymousIDs)
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return voteSchemaFallback(anonymousIDs)
	}
	delete(result, "$schema")
	delete(result, "$id")

	if props, ok := result["properties"].(map[string]any); ok {
		if agentIDProp, ok := props["agent_id"].(map[string]any); ok {
			ids := make([]any, len(anonymousIDs))
			for i, id := range anonymousIDs {
				ids[i] = id
			}
			agentIDProp["enum"] = ids
			agentIDProp["description"] = "One of the current answers' anonymous IDs."
		}
	}
	result["required"] = []string{"agent_id"}
	return result
}

func voteSchemaFallback(anonymousIDs []string) map[string]any {
	ids := make([]any, len(anonymousIDs))
	for i, id := range anonymousIDs {
		ids[i] = id
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"agent_id": map[string]any{
				"type":        "string",
				"enum":        ids,
				"description": "One of the current answers' anonymous IDs.",
			},
			"reason": map[string]any{
				"type":        "string",
				"description": "Why this answer was chosen.",
			},
		},
		"required": []string{"agent_id"},
	}
}
