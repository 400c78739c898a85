package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/massgen-go/orchestrator/pkg/coordination"
	"github.com/massgen-go/orchestrator/pkg/protocol"
)

// runOnce drives r.run to a terminal event (answer, vote, killed, or
// restart) and returns every event observed along the way.
func runOnce(t *testing.T, r *runner, ctx context.Context, anon *coordination.AnonymousMap) []runnerEvent {
	t.Helper()
	events := make(chan runnerEvent, 64)
	r.out = events

	go r.run(ctx, anon)

	var collected []runnerEvent
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			collected = append(collected, ev)
			if ev.answer != nil || ev.vote != nil || ev.killed || ev.restart {
				return collected
			}
		case <-deadline:
			t.Fatal("runner did not reach a terminal event in time")
			return nil
		}
	}
}

func TestRunner_EmitsNewAnswer(t *testing.T) {
	reg := newTestRegistry(t, "a")
	store := coordination.NewStateStore(reg)
	anon := coordination.BuildAnonymousMap(reg, map[string]bool{})

	backend := &scriptedAgent{id: "a", steps: []scriptStep{answerStep("hello")}}
	r := &runner{agentID: "a", backend: backend, store: store, maxTries: 3}

	events := runOnce(t, r, context.Background(), anon)
	last := events[len(events)-1]
	require.NotNil(t, last.answer)
	assert.Equal(t, "hello", *last.answer)
}

func TestRunner_VoteAccepted(t *testing.T) {
	reg := newTestRegistry(t, "a", "voter")
	store := coordination.NewStateStore(reg)
	anon := coordination.BuildAnonymousMap(reg, map[string]bool{"a": true})

	backend := &scriptedAgent{id: "voter", steps: []scriptStep{voteStep("agent1", "because")}}
	r := &runner{agentID: "voter", backend: backend, store: store, maxTries: 3}

	events := runOnce(t, r, context.Background(), anon)
	last := events[len(events)-1]
	require.NotNil(t, last.vote)
	assert.Equal(t, "agent1", last.vote.TargetAnonymousID)
}

// TestRunner_MultipleToolCallsRejectedThenRetried covers the "at most one
// tool call per response" enforcement rule: a response with two calls is
// rejected and the agent gets another attempt within the same round.
func TestRunner_MultipleToolCallsRejectedThenRetried(t *testing.T) {
	reg := newTestRegistry(t, "a")
	store := coordination.NewStateStore(reg)
	anon := coordination.BuildAnonymousMap(reg, map[string]bool{})

	backend := &scriptedAgent{id: "a", steps: []scriptStep{multiCallStep(), answerStep("ok")}}
	r := &runner{agentID: "a", backend: backend, store: store, maxTries: 3}

	events := runOnce(t, r, context.Background(), anon)
	last := events[len(events)-1]
	require.NotNil(t, last.answer)
	assert.Equal(t, "ok", *last.answer)
}

// TestRunner_KilledAfterExhaustingRetries covers the empty-response
// enforcement path: a backend producing no tool call, maxTries in a row,
// is killed rather than retried forever.
func TestRunner_KilledAfterExhaustingRetries(t *testing.T) {
	reg := newTestRegistry(t, "a")
	store := coordination.NewStateStore(reg)
	anon := coordination.BuildAnonymousMap(reg, map[string]bool{})

	backend := &scriptedAgent{id: "a"} // no steps: every attempt is empty
	r := &runner{agentID: "a", backend: backend, store: store, maxTries: 2}

	events := runOnce(t, r, context.Background(), anon)
	last := events[len(events)-1]
	assert.True(t, last.killed)

	st, ok := store.Get("a")
	require.True(t, ok)
	assert.True(t, st.Killed)
}

// TestRunner_DuplicateAnswerRejectedThenKilled is scenario S3 at the single
// runner level: b repeats a's existing answer verbatim and is rejected both
// times, exhausting its retry budget.
func TestRunner_DuplicateAnswerRejectedThenKilled(t *testing.T) {
	reg := newTestRegistry(t, "a", "b")
	store := coordination.NewStateStore(reg)
	seed := coordination.NewDelta()
	seed.Answers["a"] = "hello"
	store.Apply(seed, time.Now())

	anon := coordination.BuildAnonymousMap(reg, map[string]bool{"a": true})
	backend := &scriptedAgent{id: "b", steps: []scriptStep{answerStep("hello"), answerStep("hello")}}
	r := &runner{agentID: "b", backend: backend, store: store, maxTries: 2}

	events := runOnce(t, r, context.Background(), anon)
	last := events[len(events)-1]
	assert.True(t, last.killed)
}

// TestRunner_InvalidVoteTargetRejectedThenKilled is scenario S4 at the
// single runner level: b votes for an anonymous ID that doesn't exist and
// is rejected both times, exhausting its retry budget.
func TestRunner_InvalidVoteTargetRejectedThenKilled(t *testing.T) {
	reg := newTestRegistry(t, "a", "b")
	store := coordination.NewStateStore(reg)
	seed := coordination.NewDelta()
	seed.Answers["a"] = "X"
	store.Apply(seed, time.Now())

	anon := coordination.BuildAnonymousMap(reg, map[string]bool{"a": true})
	backend := &scriptedAgent{id: "b", steps: []scriptStep{voteStep("agent9", ""), voteStep("agent9", "")}}
	r := &runner{agentID: "b", backend: backend, store: store, maxTries: 2}

	events := runOnce(t, r, context.Background(), anon)
	last := events[len(events)-1]
	assert.True(t, last.killed)
}

// TestRunner_RestartPendingDropsVoteAtEmitTime exercises the asymmetric
// restart rule from the voter's own side: a concurrent new_answer (and its
// Reset) lands while b is mid-attempt assembling a vote, and b bails out
// gracefully instead of emitting that vote.
func TestRunner_RestartPendingDropsVoteAtEmitTime(t *testing.T) {
	reg := newTestRegistry(t, "a", "b")
	store := coordination.NewStateStore(reg)
	seed := coordination.NewDelta()
	seed.Answers["a"] = "X"
	store.Apply(seed, time.Now())
	anon := coordination.BuildAnonymousMap(reg, map[string]bool{"a": true})

	restart := make(chan struct{})
	backend := &scriptedAgent{id: "b", steps: []scriptStep{
		{block: restart, calls: []toolCallSpec{{name: protocol.ToolVote, argsJSON: `{"agent_id":"agent1"}`}}},
	}}
	r := &runner{agentID: "b", backend: backend, store: store, maxTries: 3}

	go func() {
		// Land the reset only once b's attempt has started and consumed
		// its initial restart_pending flag.
		waitUntil(t, time.Second, func() bool {
			st, ok := store.Get("b")
			return ok && !st.RestartPending
		})
		reset := coordination.NewDelta()
		reset.Answers["a"] = "X2"
		reset.Reset = true
		store.Apply(reset, time.Now())
		close(restart)
	}()

	events := runOnce(t, r, context.Background(), anon)
	last := events[len(events)-1]
	assert.True(t, last.restart)

	st, ok := store.Get("b")
	require.True(t, ok)
	assert.False(t, st.HasVoted)
}
