package main

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"regexp"
	"strings"
	"time"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/massgen-go/orchestrator/pkg/agent"
	"github.com/massgen-go/orchestrator/pkg/protocol"
)

// echoAgent is a trivial in-process Agent used to exercise a coordination
// call without a real LLM backend: on its first turn it proposes an answer
// built from the task text and its own name; once other answers exist it
// votes for the first one it sees.
type echoAgent struct {
	id     string
	answer func(task string) string
}

func newEchoAgent(id string, answer func(task string) string) *echoAgent {
	return &echoAgent{id: id, answer: answer}
}

func (e *echoAgent) ID() string { return e.id }

func (e *echoAgent) Cancel() {}

func (e *echoAgent) HasFilesystemAffinity() bool { return false }

var anonymousBlockPattern = regexp.MustCompile(`<(agent\d+)>`)

// Stream ignores tools/reset: the echo agent always knows which of the two
// tools to call from the shape of the user message alone.
func (e *echoAgent) Stream(ctx context.Context, messages []*a2a.Message, tools []agent.ToolSchema, reset bool) iter.Seq2[*agent.Chunk, error] {
	var task, userText string
	for _, m := range messages {
		if m.Role != a2a.MessageRoleUser {
			continue
		}
		userText += agent.MessageText(m)
	}
	if idx := strings.Index(userText, "<ORIGINAL MESSAGE>"); idx >= 0 {
		rest := userText[idx+len("<ORIGINAL MESSAGE>"):]
		if end := strings.Index(rest, "<END OF ORIGINAL MESSAGE>"); end >= 0 {
			task = strings.TrimSpace(rest[:end])
		}
	}

	return func(yield func(*agent.Chunk, error) bool) {
		if ctx.Err() != nil {
			return
		}

		existing := anonymousBlockPattern.FindAllStringSubmatch(userText, -1)

		var call protocol.RawCall
		call.ID = fmt.Sprintf("%s-call-%d", e.id, time.Now().UnixNano())

		if len(existing) == 0 {
			content := e.answer(task)
			if !yield(agent.NewContentChunk(e.id, content), nil) {
				return
			}
			args, _ := json.Marshal(protocol.NewAnswerArgs{Content: content})
			call.Name = protocol.ToolNewAnswer
			call.ArgsJSON = string(args)
		} else {
			target := existing[0][1]
			args, _ := json.Marshal(protocol.VoteArgs{AgentID: target, Reason: "first proposal addresses the task"})
			call.Name = protocol.ToolVote
			call.ArgsJSON = string(args)
		}

		if ctx.Err() != nil {
			return
		}
		delta := &agent.ToolCallDelta{ID: call.ID, Name: call.Name, ArgsJSON: call.ArgsJSON, Done: true}
		if !yield(&agent.Chunk{Type: agent.ChunkToolCall, Source: e.id, ToolCall: delta, Timestamp: time.Now()}, nil) {
			return
		}
		yield(agent.NewDoneChunk(e.id), nil)
	}
}
