package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"go.opentelemetry.io/otel/trace"

	"github.com/massgen-go/orchestrator/pkg/agent"
	"github.com/massgen-go/orchestrator/pkg/coordination"
	"github.com/massgen-go/orchestrator/pkg/protocol"
	"github.com/massgen-go/orchestrator/pkg/template"
)

// runnerEvent is what a Runner sends to the multiplexer: either a forwarded
// chunk, or a terminal result/error for this attempt wave.
type runnerEvent struct {
	agentID string
	chunk   *agent.Chunk

	// Set exactly one of the following on a terminal event.
	answer  *string
	vote    *coordination.Vote
	killed  bool
	restart bool // agent observed restart_pending and is bailing out cleanly
}

// runner drives one agent through the attempt state machine: start →
// streaming → validate → (enforce | emit_result | emit_error).
type runner struct {
	agentID  string
	backend  agent.Agent
	store    *coordination.StateStore
	maxTries int

	agentSystemInstructions string
	task                    string
	history                 []*a2a.Message

	out chan<- runnerEvent

	// currentAnon is the answer-holder enum this attempt wave started
	// with; it only changes across attempt waves, never mid-wave.
	currentAnon *coordination.AnonymousMap

	obs *observability
}

// run executes attempts until a terminal outcome (answer, vote, killed) or
// the caller's context is cancelled. It is meant to run as one goroutine per
// active agent, started fresh by the multiplexer each time the agent begins
// a new round.
func (r *runner) run(ctx context.Context, anon *coordination.AnonymousMap) {
	r.currentAnon = anon
	attempt := 0
	var pendingEnforcement *a2a.Message
	reset := true

	for {
		if ctx.Err() != nil {
			return
		}

		// start: clear restart_pending, build messages.
		r.store.ClearRestartPending(r.agentID)

		var messages []*a2a.Message
		if pendingEnforcement != nil {
			messages = []*a2a.Message{pendingEnforcement}
		} else {
			messages = r.buildInitialMessages(anon)
		}

		attemptCtx := ctx
		var endSpan func()
		if r.obs != nil {
			var span trace.Span
			attemptCtx, span = r.obs.startRunnerAttempt(ctx, r.agentID, attempt+1)
			endSpan = span.End
		}
		calls, streamErr := r.streamOnce(attemptCtx, messages, reset)
		if endSpan != nil {
			endSpan()
		}
		reset = false // enforcement retries always append, never reset
		// A single new_answer is still accepted while restart_pending is
		// set; every other outcome re-reads the flag first.
		singleAnswer := len(calls) == 1 && calls[0].Name == protocol.ToolNewAnswer
		if !singleAnswer && r.checkRestart() {
			return
		}
		if streamErr != nil {
			r.emit(runnerEvent{chunk: agent.NewErrorChunk(r.agentID, streamErr.Error())})
			return
		}

		if len(calls) == 0 {
			attempt++
			if attempt >= r.maxTries {
				r.kill()
				return
			}
			pendingEnforcement = template.EnforcementMessage(nil)
			continue
		}

		if len(calls) > 1 {
			attempt++
			if attempt >= r.maxTries {
				r.kill()
				return
			}
			errs := make([]*protocol.ProtocolError, len(calls))
			for i, c := range calls {
				errs[i] = protocol.NewProtocolError(protocol.ErrMultipleToolCalls, c.ID, "at most one tool call is honored per response")
			}
			pendingEnforcement = template.EnforcementMessage(errs)
			continue
		}

		parsed, perr := protocol.Parse(*calls[0])
		if perr == nil {
			perr = r.validate(parsed, anon)
		}
		if perr != nil {
			if singleAnswer && r.checkRestart() {
				return
			}
			attempt++
			if attempt >= r.maxTries {
				r.kill()
				return
			}
			pendingEnforcement = template.EnforcementMessage([]*protocol.ProtocolError{perr})
			continue
		}

		if parsed.IsNewAnswer() {
			content := parsed.NewAnswer.Content
			r.emit(runnerEvent{answer: &content})
			return
		}

		// Vote: discard if this voter's restart_pending fired concurrently.
		if r.checkRestart() {
			return
		}
		v := coordination.Vote{
			TargetAnonymousID: parsed.Vote.AgentID,
			Reason:            parsed.Vote.Reason,
			Timestamp:         time.Now(),
		}
		r.emit(runnerEvent{vote: &v})
		return
	}
}

func (r *runner) buildInitialMessages(anon *coordination.AnonymousMap) []*a2a.Message {
	now := time.Now()
	sys := template.SystemMessage(r.agentSystemInstructions, now)
	snap := r.store.Snapshot()
	entries := template.BuildAnswerEntries(snap, anon)
	user := template.UserMessage(r.history, r.task, entries)
	return []*a2a.Message{sys, user}
}

// streamOnce runs one backend Stream call to completion, forwarding content
// chunks and assembling tool-call deltas. Returns every fully-assembled
// tool call the response contained, in first-seen order; the caller (run)
// is responsible for rejecting a response with more than one.
func (r *runner) streamOnce(ctx context.Context, messages []*a2a.Message, reset bool) ([]*protocol.RawCall, error) {
	tools := protocol.Schemas(nil)
	if anon := r.currentAnon; anon != nil {
		tools = protocol.Schemas(anon.AnonymousIDs())
	}

	pending := map[string]*protocol.RawCall{}
	done := map[string]bool{}
	var order []string

	for chunk, err := range r.backend.Stream(ctx, messages, tools, reset) {
		if err != nil {
			return nil, err
		}
		switch chunk.Type {
		case agent.ChunkContent, agent.ChunkReasoning, agent.ChunkDebug, agent.ChunkAgentStatus:
			r.emit(runnerEvent{chunk: chunk})

		case agent.ChunkToolCall:
			d := chunk.ToolCall
			if d == nil {
				continue
			}
			call, ok := pending[d.ID]
			if !ok {
				call = &protocol.RawCall{ID: d.ID}
				pending[d.ID] = call
				order = append(order, d.ID)
			}
			if d.Name != "" {
				call.Name = d.Name
			}
			call.ArgsJSON += d.ArgsJSON
			if d.Done {
				done[d.ID] = true
			}

		case agent.ChunkError:
			return nil, fmt.Errorf("%s", chunk.ErrorMessage)
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	var calls []*protocol.RawCall
	for _, id := range order {
		if done[id] {
			calls = append(calls, pending[id])
		}
	}
	return calls, nil
}

func (r *runner) validate(call *protocol.ToolCall, anon *coordination.AnonymousMap) *protocol.ProtocolError {
	if call.IsVote() {
		if len(anon.AnonymousIDs()) == 0 {
			return protocol.NewProtocolError(protocol.ErrNoVoteTargets, call.ID, "vote requires at least one existing answer")
		}
		if !anon.Valid(call.Vote.AgentID) {
			return protocol.NewProtocolError(protocol.ErrInvalidVoteTarget, call.ID, fmt.Sprintf("unknown agent_id %q", call.Vote.AgentID))
		}
	}
	if call.IsNewAnswer() {
		snap := r.store.Snapshot()
		for id, st := range snap {
			if id == r.agentID {
				continue
			}
			if st.HasAnswer && st.Answer == call.NewAnswer.Content {
				return protocol.NewProtocolError(protocol.ErrDuplicateAnswer, call.ID, "answer duplicates agent "+id+"'s current answer")
			}
		}
	}
	return nil
}

// checkRestart re-reads restart_pending between blocking steps. If set, it
// emits a short status chunk and a done chunk and returns true, instructing
// the caller to terminate this attempt wave immediately.
func (r *runner) checkRestart() bool {
	st, ok := r.store.Get(r.agentID)
	if !ok || !st.RestartPending {
		return false
	}
	r.emit(runnerEvent{chunk: agent.NewStatusChunk(r.agentID, "gracefully restarting")})
	r.emit(runnerEvent{chunk: agent.NewDoneChunk(r.agentID)})
	r.emit(runnerEvent{restart: true})
	return true
}

func (r *runner) kill() {
	r.store.Kill(r.agentID)
	r.emit(runnerEvent{chunk: agent.NewDoneChunk(r.agentID)})
	r.emit(runnerEvent{killed: true})
}

func (r *runner) emit(ev runnerEvent) {
	ev.agentID = r.agentID
	r.out <- ev
}
