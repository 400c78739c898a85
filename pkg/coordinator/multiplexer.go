package coordinator

import (
	"context"
	"time"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/massgen-go/orchestrator/pkg/agent"
	"github.com/massgen-go/orchestrator/pkg/coordination"
	"github.com/massgen-go/orchestrator/pkg/logger"
)

// multiplexer fans the per-agent Runner streams into one ordered output
// stream and applies result deltas atomically at each synchronization
// point. One multiplexer instance serves exactly one coordination call.
type multiplexer struct {
	registry *coordination.Registry
	store    *coordination.StateStore
	maxTries int

	task                    string
	history                 []*a2a.Message
	agentSystemInstructions map[string]string

	// onAnswerAccepted is the Snapshot Bridge's save_snapshot hook, called
	// synchronously right after an answer delta is applied.
	onAnswerAccepted func(agentID string)

	// beforeRunnerStart is the Snapshot Bridge's materialize_reference
	// hook, called just before a fresh Runner is spawned for agentID.
	beforeRunnerStart func(agentID string, anon *coordination.AnonymousMap)

	obs *observability

	out chan *agent.Chunk
}

func newMultiplexer(reg *coordination.Registry, store *coordination.StateStore, maxTries int) *multiplexer {
	return &multiplexer{
		registry: reg,
		store:    store,
		maxTries: maxTries,
		out:      make(chan *agent.Chunk, 64),
	}
}

// run drives the synchronization loop until every agent has voted or been
// killed, or ctx is cancelled (timeout). It closes m.out when done.
func (m *multiplexer) run(ctx context.Context) {
	defer close(m.out)

	running := make(map[string]context.CancelFunc)
	events := make(chan runnerEvent, 64)

	m.startIdleRunners(ctx, running, events)

	for !m.store.AllDone() {
		select {
		case <-ctx.Done():
			for _, cancel := range running {
				cancel()
			}
			m.drain(events, running)
			return

		case ev := <-events:
			m.applyEvent(ctx, ev, running)
			m.startIdleRunners(ctx, running, events)
		}
	}

	for _, cancel := range running {
		cancel()
	}
}

// drain lets already-started Runners observe ctx cancellation and forward
// any trailing content before the multiplexer returns.
func (m *multiplexer) drain(events chan runnerEvent, running map[string]context.CancelFunc) {
	deadline := time.After(2 * time.Second)
	for len(running) > 0 {
		select {
		case ev := <-events:
			if ev.chunk != nil {
				m.forward(ev.chunk)
			}
			if ev.answer != nil || ev.vote != nil || ev.killed || ev.restart {
				delete(running, ev.agentID)
			}
		case <-deadline:
			return
		}
	}
}

// startIdleRunners starts a fresh Runner for every registered agent that is
// not already running, has not voted, and is not killed.
func (m *multiplexer) startIdleRunners(ctx context.Context, running map[string]context.CancelFunc, events chan runnerEvent) {
	holders := m.store.AnswerHolders()
	anon := coordination.BuildAnonymousMap(m.registry, holders)

	for _, id := range m.registry.IDs() {
		if _, active := running[id]; active {
			continue
		}
		st, ok := m.store.Get(id)
		if !ok || st.HasVoted || st.Killed {
			continue
		}

		if m.beforeRunnerStart != nil {
			m.beforeRunnerStart(id, anon)
		}

		rctx, cancel := context.WithCancel(ctx)
		running[id] = cancel

		r := &runner{
			agentID:                 id,
			backend:                 m.registry.Get(id),
			store:                   m.store,
			maxTries:                m.maxTries,
			agentSystemInstructions: m.agentSystemInstructions[id],
			task:                    m.task,
			history:                 m.history,
			out:                     events,
			obs:                     m.obs,
		}
		go r.run(rctx, anon)
	}
}

// applyEvent forwards a chunk or applies a terminal result for one runner
// wave: a single observed event becomes one atomic StateStore.Apply call.
func (m *multiplexer) applyEvent(ctx context.Context, ev runnerEvent, running map[string]context.CancelFunc) {
	if ev.chunk != nil {
		m.forward(ev.chunk)
	}

	switch {
	case ev.answer != nil:
		delete(running, ev.agentID)
		delta := coordination.NewDelta()
		delta.Answers[ev.agentID] = *ev.answer
		delta.Reset = true
		applyRes := m.store.Apply(delta, time.Now())
		m.forward(agent.NewStatusChunk(ev.agentID, "answer provided"))
		if st, ok := m.store.Get(ev.agentID); ok {
			logger.LogAnswerAccepted(ctx, ev.agentID, st.UpdateCount)
		}
		for _, dropped := range applyRes.DroppedVotes {
			logger.LogVoteDropped(ctx, dropped, "reset by concurrent new_answer")
		}
		if m.onAnswerAccepted != nil {
			m.onAnswerAccepted(ev.agentID)
		}

	case ev.vote != nil:
		delete(running, ev.agentID)
		delta := coordination.NewDelta()
		delta.Votes[ev.agentID] = *ev.vote
		res := m.store.Apply(delta, time.Now())
		if len(res.AcceptedVotes) > 0 {
			logger.LogVoteAccepted(ctx, ev.agentID, ev.vote.TargetAnonymousID)
		}
		for _, dropped := range res.DroppedVotes {
			logger.LogVoteDropped(ctx, dropped, "restart_pending at apply time")
		}

	case ev.killed:
		delete(running, ev.agentID)
		logger.LogAgentKilled(ctx, ev.agentID, m.maxTries)

	case ev.restart:
		delete(running, ev.agentID)
	}
}

func (m *multiplexer) forward(c *agent.Chunk) {
	if c == nil {
		return
	}
	m.out <- c
}
