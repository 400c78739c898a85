// Package coordination holds the orchestrator's data model: the Session, the
// Agent Registry, per-agent state, vote records and the anonymous-identity
// mapping agents see during voting.
package coordination

import (
	"fmt"
	"sort"

	"github.com/massgen-go/orchestrator/pkg/agent"
)

// Registry is a mapping from agent identifier to Agent handle. Insertion
// order defines registration rank, used for tie-breaking and for numbering
// in anonymous IDs. A Registry is immutable during a single coordination
// call: build it once before calling Coordinate.
type Registry struct {
	order   []string
	agents  map[string]agent.Agent
	weights map[string]float64
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		agents:  make(map[string]agent.Agent),
		weights: make(map[string]float64),
	}
}

// Register adds an agent with the given voting weight (default 1.0 if <= 0
// is passed). Registration order is preserved and defines rank.
func (r *Registry) Register(a agent.Agent, votingWeight float64) error {
	id := a.ID()
	if id == "" {
		return fmt.Errorf("agent registration requires a non-empty ID")
	}
	if _, exists := r.agents[id]; exists {
		return fmt.Errorf("agent %q already registered", id)
	}
	if votingWeight <= 0 {
		votingWeight = 1.0
	}
	r.order = append(r.order, id)
	r.agents[id] = a
	r.weights[id] = votingWeight
	return nil
}

// SetWeight overrides the voting weight for an already-registered agent.
// Returns an error if the agent is unknown.
func (r *Registry) SetWeight(id string, weight float64) error {
	if _, ok := r.agents[id]; !ok {
		return fmt.Errorf("agent_weights: unknown agent %q", id)
	}
	r.weights[id] = weight
	return nil
}

// Get returns the agent handle for id, or nil if unregistered.
func (r *Registry) Get(id string) agent.Agent {
	return r.agents[id]
}

// Weight returns the voting weight for id (1.0 if unregistered, which
// should not happen given Registry is closed before coordination starts).
func (r *Registry) Weight(id string) float64 {
	if w, ok := r.weights[id]; ok {
		return w
	}
	return 1.0
}

// IDs returns registered agent IDs in registration order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Rank returns the registration rank of id (0-based), or -1 if unknown.
func (r *Registry) Rank(id string) int {
	for i, rid := range r.order {
		if rid == id {
			return i
		}
	}
	return -1
}

// Len returns the number of registered agents.
func (r *Registry) Len() int { return len(r.order) }

// AnonymousMap is the deterministic agentN numbering built from the current
// set of answer-holders, sorted by registration rank. It is rebuilt whenever the set of answer-holders changes.
type AnonymousMap struct {
	toAnon map[string]string // real ID -> "agentN"
	toReal map[string]string // "agentN" -> real ID
	order  []string          // real IDs in anonymous-ID order
}

// BuildAnonymousMap numbers answerHolders (real agent IDs) in registration
// rank order as agent1, agent2, ....
func BuildAnonymousMap(reg *Registry, answerHolders map[string]bool) *AnonymousMap {
	var holders []string
	for id := range answerHolders {
		if answerHolders[id] {
			holders = append(holders, id)
		}
	}
	sort.Slice(holders, func(i, j int) bool {
		return reg.Rank(holders[i]) < reg.Rank(holders[j])
	})

	m := &AnonymousMap{
		toAnon: make(map[string]string, len(holders)),
		toReal: make(map[string]string, len(holders)),
		order:  holders,
	}
	for i, id := range holders {
		anon := fmt.Sprintf("agent%d", i+1)
		m.toAnon[id] = anon
		m.toReal[anon] = id
	}
	return m
}

// Anonymous returns the anonymous ID for a real agent ID, or "" if the agent
// currently holds no answer.
func (m *AnonymousMap) Anonymous(realID string) string { return m.toAnon[realID] }

// Real returns the real agent ID for an anonymous ID, or "" if unknown.
func (m *AnonymousMap) Real(anonymousID string) string { return m.toReal[anonymousID] }

// AnonymousIDs returns the current round's enum in agent1, agent2, ... order.
func (m *AnonymousMap) AnonymousIDs() []string {
	ids := make([]string, len(m.order))
	for i := range m.order {
		ids[i] = fmt.Sprintf("agent%d", i+1)
	}
	return ids
}

// RealIDsInOrder returns the real IDs backing AnonymousIDs, in the same order.
func (m *AnonymousMap) RealIDsInOrder() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Valid reports whether anonymousID is in the current enum.
func (m *AnonymousMap) Valid(anonymousID string) bool {
	_, ok := m.toReal[anonymousID]
	return ok
}
