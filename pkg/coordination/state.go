package coordination

import (
	"sync"
	"time"
)

// Vote is the record an agent casts: a vote for one answer currently on the
// table.
type Vote struct {
	TargetAnonymousID string
	Reason            string
	Timestamp         time.Time
}

// AgentState is the per-agent state the Coordination State Machine owns.
// Answer, Vote and HasVoted change only in StateStore.Apply, which also sets
// RestartPending. Outside Apply, the owning Runner clears RestartPending at
// the start of an attempt (ClearRestartPending) and sets Killed when its
// retry budget runs out (Kill).
type AgentState struct {
	AgentID string

	Answer        string
	HasAnswer     bool
	AnswerHistory []string

	Vote     *Vote
	HasVoted bool

	// RestartPending is set when another agent produces a new answer;
	// consumed (cleared) at the start of this agent's next attempt.
	RestartPending bool

	// Killed is terminal: the agent contributes no further answers or
	// votes. Its last answer, if any, remains visible to others.
	Killed bool

	VotingWeight float64

	UpdateCount int

	FirstExecutionStart time.Time
	LastExecutionStart  time.Time
}

// NewAgentState returns a fresh AgentState, starting restart_pending=true so
// the first round runs for every agent.
func NewAgentState(agentID string, votingWeight float64) *AgentState {
	return &AgentState{
		AgentID:        agentID,
		RestartPending: true,
		VotingWeight:   votingWeight,
	}
}

// SetAnswer records a new accepted answer, keeping history (invariant:
// replacements allowed, history kept).
func (s *AgentState) SetAnswer(content string, at time.Time) {
	if s.HasAnswer {
		s.AnswerHistory = append(s.AnswerHistory, s.Answer)
	}
	s.Answer = content
	s.HasAnswer = true
	s.UpdateCount++
	if s.FirstExecutionStart.IsZero() {
		s.FirstExecutionStart = at
	}
	s.LastExecutionStart = at
}

// VoteRecord is an append-only log entry for session export. It
// is never consulted by the Vote Resolver, which reads live AgentState.Vote
// fields; it exists purely for audit/export.
type VoteRecord struct {
	VoterID  string
	TargetID string
	Reason   string
	Time     time.Time
	Phase    Phase
}

// Phase is the Session's workflow phase.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseCoordinating Phase = "coordinating"
	PhasePresenting   Phase = "presenting"
	PhaseCompleted    Phase = "completed"
	PhaseTimeout      Phase = "timeout"
)

// StateStore is the State Machine's shared per-agent state, guarded by a
// single lock so deltas acquire it once per tick.
type StateStore struct {
	mu     sync.Mutex
	states map[string]*AgentState
	votes  []VoteRecord
}

// NewStateStore seeds one AgentState per registered agent.
func NewStateStore(reg *Registry) *StateStore {
	s := &StateStore{states: make(map[string]*AgentState)}
	for _, id := range reg.IDs() {
		s.states[id] = NewAgentState(id, reg.Weight(id))
	}
	return s
}

// Snapshot returns a shallow copy of every AgentState, safe to read without
// holding the lock afterwards (the copy is a value, not a pointer into the
// live map).
func (s *StateStore) Snapshot() map[string]AgentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]AgentState, len(s.states))
	for id, st := range s.states {
		out[id] = *st
	}
	return out
}

// Get returns a copy of one agent's state.
func (s *StateStore) Get(id string) (AgentState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[id]
	if !ok {
		return AgentState{}, false
	}
	return *st, true
}

// Delta accumulates the results of one multiplexer tick before they are
// applied atomically.
type Delta struct {
	Answers map[string]string // agentID -> new answer content
	Votes   map[string]Vote   // agentID -> cast vote
	Reset   bool
}

// NewDelta returns an empty Delta.
func NewDelta() *Delta {
	return &Delta{Answers: make(map[string]string), Votes: make(map[string]Vote)}
}

// ApplyResult is what StateStore.Apply reports back, used for logging and
// for driving Snapshot Bridge calls.
type ApplyResult struct {
	AcceptedAnswers []string // agentIDs whose answer was applied this tick
	AcceptedVotes   []string // agentIDs whose vote was applied this tick
	DroppedVotes    []string // agentIDs whose vote was discarded (Reset tick, or voter still RestartPending)
}

// Apply applies one tick's Delta atomically. If d.Reset is
// true, every agent is flagged RestartPending and all votes (including any
// accumulated in this same tick) are wiped before the tick's own votes are
// considered — so votes in a Reset tick are always dropped. Without a Reset,
// a vote whose voter still has RestartPending set is dropped as well. at is
// the timestamp used for SetAnswer/Vote bookkeeping.
func (s *StateStore) Apply(d *Delta, at time.Time) ApplyResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result ApplyResult

	if d.Reset {
		for _, st := range s.states {
			st.HasVoted = false
			st.Vote = nil
			st.RestartPending = true
		}
		for id := range d.Votes {
			result.DroppedVotes = append(result.DroppedVotes, id)
		}
	} else {
		for id, v := range d.Votes {
			st, ok := s.states[id]
			if !ok {
				continue
			}
			if st.RestartPending {
				// A concurrent new_answer flipped this voter's restart
				// flag between its own checkRestart and this apply: the
				// voting set it voted against is already stale.
				result.DroppedVotes = append(result.DroppedVotes, id)
				continue
			}
			vote := v
			st.HasVoted = true
			st.Vote = &vote
			result.AcceptedVotes = append(result.AcceptedVotes, id)
			s.votes = append(s.votes, VoteRecord{
				VoterID:  id,
				TargetID: vote.TargetAnonymousID,
				Reason:   vote.Reason,
				Time:     vote.Timestamp,
				Phase:    PhaseCoordinating,
			})
		}
	}

	for id, content := range d.Answers {
		st, ok := s.states[id]
		if !ok {
			continue
		}
		st.SetAnswer(content, at)
		result.AcceptedAnswers = append(result.AcceptedAnswers, id)
	}

	return result
}

// Kill marks an agent terminal. Called by the owning Runner at
// result-emission time, not by the delta-apply critical section.
func (s *StateStore) Kill(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[id]; ok {
		st.Killed = true
	}
}

// ClearRestartPending consumes the restart flag at the start of an agent's
// next attempt.
func (s *StateStore) ClearRestartPending(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[id]; ok {
		st.RestartPending = false
	}
}

// AllDone reports whether every agent is has_voted or killed — the
// multiplexer's completion condition.
func (s *StateStore) AllDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.states {
		if !st.HasVoted && !st.Killed {
			return false
		}
	}
	return true
}

// AnswerHolders returns the set of agent IDs that currently have an answer.
func (s *StateStore) AnswerHolders() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool)
	for id, st := range s.states {
		if st.HasAnswer {
			out[id] = true
		}
	}
	return out
}

// VoteRecords returns the append-only vote log for session export.
func (s *StateStore) VoteRecords() []VoteRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]VoteRecord, len(s.votes))
	copy(out, s.votes)
	return out
}
