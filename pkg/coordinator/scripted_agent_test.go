package coordinator

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/massgen-go/orchestrator/pkg/agent"
	"github.com/massgen-go/orchestrator/pkg/protocol"
)

// toolCallSpec is one tool call a scriptedAgent emits within a single
// Stream response.
type toolCallSpec struct {
	name     string
	argsJSON string
}

// scriptStep is one backend.Stream response, consumed in order as the
// runner retries within a round or is restarted across rounds.
type scriptStep struct {
	calls []toolCallSpec

	// block, if set, is waited on before this step's calls are yielded —
	// used to land a concurrent state change (another agent's answer)
	// partway through an attempt, the way a slow model response would.
	block <-chan struct{}
}

func answerStep(content string) scriptStep {
	return scriptStep{calls: []toolCallSpec{{name: protocol.ToolNewAnswer, argsJSON: fmt.Sprintf(`{"content":%q}`, content)}}}
}

func voteStep(anonID, reason string) scriptStep {
	return scriptStep{calls: []toolCallSpec{{name: protocol.ToolVote, argsJSON: fmt.Sprintf(`{"agent_id":%q,"reason":%q}`, anonID, reason)}}}
}

func blockedStep(ch <-chan struct{}) scriptStep {
	return scriptStep{block: ch}
}

func multiCallStep() scriptStep {
	return scriptStep{calls: []toolCallSpec{
		{name: protocol.ToolVote, argsJSON: `{"agent_id":"agent1"}`},
		{name: protocol.ToolNewAnswer, argsJSON: `{"content":"x"}`},
	}}
}

// scriptedAgent is a fake agent.Agent backend: no network, no LLM, just a
// fixed sequence of tool-call responses consumed one per Stream call. It
// drives the real Agent Runner and Stream Multiplexer exactly as a live
// backend would, instead of hand-building AgentState snapshots.
type scriptedAgent struct {
	id    string
	steps []scriptStep

	mu    sync.Mutex
	calls int

	// neverRespond blocks Stream on ctx.Done() forever, for timeout
	// scenarios where a backend simply never finishes.
	neverRespond bool
}

func (a *scriptedAgent) ID() string                  { return a.id }
func (a *scriptedAgent) Cancel()                     {}
func (a *scriptedAgent) HasFilesystemAffinity() bool { return false }

func (a *scriptedAgent) Stream(ctx context.Context, messages []*a2a.Message, tools []agent.ToolSchema, reset bool) iter.Seq2[*agent.Chunk, error] {
	return func(yield func(*agent.Chunk, error) bool) {
		if a.neverRespond {
			<-ctx.Done()
			return
		}

		a.mu.Lock()
		idx := a.calls
		a.calls++
		a.mu.Unlock()

		var step scriptStep
		if idx < len(a.steps) {
			step = a.steps[idx]
		}

		if step.block != nil {
			select {
			case <-step.block:
			case <-ctx.Done():
				return
			}
		}

		for i, c := range step.calls {
			chunk := &agent.Chunk{
				Type:   agent.ChunkToolCall,
				Source: a.id,
				ToolCall: &agent.ToolCallDelta{
					ID:       fmt.Sprintf("%s-%d-%d", a.id, idx, i),
					Name:     c.name,
					ArgsJSON: c.argsJSON,
					Done:     true,
				},
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}
