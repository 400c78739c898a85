// Package agent defines the abstract capability the orchestrator consumes:
// something that accepts a list of messages plus tool schemas and returns a
// lazy chunk stream.
//
// Concrete backends (LLM providers, remote services) live outside this
// module; this package only defines the interface and the wire types that
// cross it.
package agent

import (
	"context"
	"iter"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
)

// Agent is the capability the orchestrator drives during coordination.
//
// Stream replaces the agent's conversational context with exactly the given
// messages when reset is true ("forget anything prior"); when reset is
// false, messages are appended to whatever context the agent already holds
// (used for enforcement retries within one round, see the protocol package).
//
// The returned sequence is lazy, finite, and non-restartable: ranging over
// it a second time is undefined. Cancel must cause any in-flight Stream call
// to stop producing chunks promptly; the Agent must not emit further chunks
// once cancellation is observed.
type Agent interface {
	// ID returns the stable identifier this agent is registered under.
	ID() string

	// Stream sends messages (and, when supported, tool schemas) to the
	// backend and yields chunks as they arrive.
	Stream(ctx context.Context, messages []*a2a.Message, tools []ToolSchema, reset bool) iter.Seq2[*Chunk, error]

	// Cancel stops any in-flight Stream call for this agent. Safe to call
	// even when no stream is active.
	Cancel()

	// HasFilesystemAffinity reports whether this agent works against a local
	// workspace directory. The Snapshot Bridge skips agents that answer
	// false (see snapshotBridgeFor in the coordinator package).
	HasFilesystemAffinity() bool
}

// ToolSchema describes one tool an Agent may call, in a form suitable for
// handing to an LLM backend (JSON-schema parameters).
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ChunkType identifies the kind of payload carried by a Chunk.
type ChunkType string

const (
	ChunkContent     ChunkType = "content"
	ChunkReasoning   ChunkType = "reasoning"
	ChunkToolCall    ChunkType = "tool_call"
	ChunkAgentStatus ChunkType = "agent_status"
	ChunkDone        ChunkType = "done"
	ChunkError       ChunkType = "error"
	ChunkDebug       ChunkType = "debug"
)

// SourceOrchestrator tags chunks the orchestrator itself produces (as
// opposed to chunks forwarded verbatim from an agent).
const SourceOrchestrator = "orchestrator"

// Chunk is the unit of the merged output stream. Chunks are
// immutable once emitted.
type Chunk struct {
	Type ChunkType

	// Source is the agent ID that produced this chunk, or SourceOrchestrator.
	Source string

	// Content carries text for ChunkContent, ChunkReasoning, ChunkDebug and
	// ChunkAgentStatus payloads.
	Content string

	// ToolCall carries an in-progress or completed tool-call delta for
	// ChunkToolCall payloads. Tool-call chunks are never forwarded as
	// content; the Agent Runner may synthesize a human-readable "using X"
	// status chunk instead.
	ToolCall *ToolCallDelta

	// ErrorMessage carries the error text for ChunkError payloads.
	ErrorMessage string

	Timestamp time.Time
}

// ToolCallDelta is one fragment of a tool call as it streams in. Name is
// populated on the first delta for a given ID; ArgsJSON accumulates across
// deltas; Done marks the call as fully assembled.
type ToolCallDelta struct {
	ID       string
	Name     string
	ArgsJSON string
	Done     bool
}

// NewContentChunk builds a content chunk with the current timestamp.
func NewContentChunk(source, text string) *Chunk {
	return &Chunk{Type: ChunkContent, Source: source, Content: text, Timestamp: time.Now()}
}

// NewStatusChunk builds an agent_status chunk with the current timestamp.
func NewStatusChunk(source, text string) *Chunk {
	return &Chunk{Type: ChunkAgentStatus, Source: source, Content: text, Timestamp: time.Now()}
}

// NewDoneChunk builds a done chunk with the current timestamp.
func NewDoneChunk(source string) *Chunk {
	return &Chunk{Type: ChunkDone, Source: source, Timestamp: time.Now()}
}

// NewErrorChunk builds an error chunk with the current timestamp.
func NewErrorChunk(source, msg string) *Chunk {
	return &Chunk{Type: ChunkError, Source: source, ErrorMessage: msg, Timestamp: time.Now()}
}

// TextMessage builds an a2a.Message with a single text part.
func TextMessage(role a2a.MessageRole, text string) *a2a.Message {
	return a2a.NewMessage(role, a2a.TextPart{Text: text})
}

// MessageText extracts and concatenates the text parts of a message.
func MessageText(msg *a2a.Message) string {
	if msg == nil {
		return ""
	}
	var out string
	for _, part := range msg.Parts {
		if tp, ok := part.(a2a.TextPart); ok {
			out += tp.Text
		}
	}
	return out
}

type referencePathKey struct{}

// WithReferencePath attaches the Snapshot Bridge's materialized reference
// workspace path to ctx as a side channel. Backends with filesystem
// affinity read it back with ReferencePath.
func WithReferencePath(ctx context.Context, path string) context.Context {
	if path == "" {
		return ctx
	}
	return context.WithValue(ctx, referencePathKey{}, path)
}

// ReferencePath reads back the path set by WithReferencePath, or "" if none.
func ReferencePath(ctx context.Context) string {
	p, _ := ctx.Value(referencePathKey{}).(string)
	return p
}
