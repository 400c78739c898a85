package coordinator

import (
	"context"
	"iter"
	"testing"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/massgen-go/orchestrator/pkg/agent"
	"github.com/massgen-go/orchestrator/pkg/config"
	"github.com/massgen-go/orchestrator/pkg/coordination"
)

func newTestRegistry(t *testing.T, ids ...string) *coordination.Registry {
	t.Helper()
	reg := coordination.NewRegistry()
	for _, id := range ids {
		require.NoError(t, reg.Register(&fakeAgent{id: id}, 1.0))
	}
	return reg
}

type fakeAgent struct{ id string }

func (f *fakeAgent) ID() string                  { return f.id }
func (f *fakeAgent) Cancel()                     {}
func (f *fakeAgent) HasFilesystemAffinity() bool { return false }

func (f *fakeAgent) Stream(ctx context.Context, messages []*a2a.Message, tools []agent.ToolSchema, reset bool) iter.Seq2[*agent.Chunk, error] {
	return func(yield func(*agent.Chunk, error) bool) {}
}

func TestResolver_SimpleMajority(t *testing.T) {
	reg := newTestRegistry(t, "a", "b", "c")
	anon := coordination.BuildAnonymousMap(reg, map[string]bool{"a": true, "b": true})

	snap := map[string]coordination.AgentState{
		"a": {AgentID: "a", HasAnswer: true, Answer: "x"},
		"b": {AgentID: "b", HasAnswer: true, Answer: "y"},
		"c": {
			AgentID: "c", HasVoted: true,
			Vote: &coordination.Vote{TargetAnonymousID: anon.Anonymous("a")},
		},
	}

	r := NewResolver(config.StrategySimpleMajority, config.TieRegistrationOrder, 1)
	res, err := r.Resolve(ResolveInput{Snapshot: snap, Anon: anon, Registry: reg})
	require.NoError(t, err)
	assert.Equal(t, "a", res.WinnerID)
	assert.False(t, res.TieBroken)
	assert.Equal(t, 1, res.Counts["a"])
}

func TestResolver_WeightedVoteScoresByWeight(t *testing.T) {
	reg := coordination.NewRegistry()
	require.NoError(t, reg.Register(&fakeAgent{id: "a"}, 1.0))
	require.NoError(t, reg.Register(&fakeAgent{id: "b"}, 1.0))
	require.NoError(t, reg.Register(&fakeAgent{id: "heavy"}, 5.0))

	anon := coordination.BuildAnonymousMap(reg, map[string]bool{"a": true, "b": true})

	snap := map[string]coordination.AgentState{
		"a": {AgentID: "a", HasAnswer: true, Answer: "x", VotingWeight: 1.0},
		"b": {AgentID: "b", HasAnswer: true, Answer: "y", VotingWeight: 1.0},
		"heavy": {
			AgentID: "heavy", VotingWeight: 5.0, HasVoted: true,
			Vote: &coordination.Vote{TargetAnonymousID: anon.Anonymous("b")},
		},
	}

	r := NewResolver(config.StrategyWeightedVote, config.TieRegistrationOrder, 1)
	res, err := r.Resolve(ResolveInput{Snapshot: snap, Anon: anon, Registry: reg})
	require.NoError(t, err)
	assert.Equal(t, "b", res.WinnerID)
	assert.Equal(t, 5.0, res.Scores["b"])
}

func TestResolver_TieBreakRegistrationOrder(t *testing.T) {
	reg := newTestRegistry(t, "first", "second")
	anon := coordination.BuildAnonymousMap(reg, map[string]bool{"first": true, "second": true})

	snap := map[string]coordination.AgentState{
		"first":  {AgentID: "first", HasAnswer: true, Answer: "x"},
		"second": {AgentID: "second", HasAnswer: true, Answer: "y"},
		"first2": {
			AgentID: "voter", HasVoted: true,
			Vote: &coordination.Vote{TargetAnonymousID: anon.Anonymous("first")},
		},
		"second2": {
			AgentID: "voter2", HasVoted: true,
			Vote: &coordination.Vote{TargetAnonymousID: anon.Anonymous("second")},
		},
	}

	r := NewResolver(config.StrategySimpleMajority, config.TieRegistrationOrder, 1)
	res, err := r.Resolve(ResolveInput{Snapshot: snap, Anon: anon, Registry: reg})
	require.NoError(t, err)
	assert.Equal(t, "first", res.WinnerID)
	assert.True(t, res.TieBroken)
}

func TestResolver_TieBreakLongestAnswerUsesRuneLength(t *testing.T) {
	reg := newTestRegistry(t, "short", "long")
	anon := coordination.BuildAnonymousMap(reg, map[string]bool{"short": true, "long": true})

	snap := map[string]coordination.AgentState{
		// "short" has more bytes (9) but fewer runes (3) than "long" (6/6).
		"short": {AgentID: "short", HasAnswer: true, Answer: "日本語"},
		"long":  {AgentID: "long", HasAnswer: true, Answer: "abcdef"},
		"v1": {
			AgentID: "v1", HasVoted: true,
			Vote: &coordination.Vote{TargetAnonymousID: anon.Anonymous("short")},
		},
		"v2": {
			AgentID: "v2", HasVoted: true,
			Vote: &coordination.Vote{TargetAnonymousID: anon.Anonymous("long")},
		},
	}

	r := NewResolver(config.StrategySimpleMajority, config.TieLongestAnswer, 1)
	res, err := r.Resolve(ResolveInput{Snapshot: snap, Anon: anon, Registry: reg})
	require.NoError(t, err)
	assert.Equal(t, "long", res.WinnerID)
}

func TestResolver_FallbackToEarliestAnswerWhenNoVotes(t *testing.T) {
	reg := newTestRegistry(t, "a", "b")
	anon := coordination.BuildAnonymousMap(reg, map[string]bool{"a": true, "b": true})

	snap := map[string]coordination.AgentState{
		"a": {AgentID: "a", HasAnswer: true, Answer: "x"},
		"b": {AgentID: "b", HasAnswer: true, Answer: "y"},
	}

	r := NewResolver(config.StrategySimpleMajority, config.TieRegistrationOrder, 1)
	res, err := r.Resolve(ResolveInput{Snapshot: snap, Anon: anon, Registry: reg})
	require.NoError(t, err)
	assert.Equal(t, "a", res.WinnerID)
	assert.False(t, res.TieBroken)
}

func TestResolver_NoAnswersAvailable(t *testing.T) {
	reg := newTestRegistry(t, "a", "b")
	anon := coordination.BuildAnonymousMap(reg, map[string]bool{})

	snap := map[string]coordination.AgentState{
		"a": {AgentID: "a"},
		"b": {AgentID: "b"},
	}

	r := NewResolver(config.StrategySimpleMajority, config.TieRegistrationOrder, 1)
	_, err := r.Resolve(ResolveInput{Snapshot: snap, Anon: anon, Registry: reg})
	assert.ErrorIs(t, err, ErrNoAnswersAvailable)
}

func TestResolver_TieBreakOldestAndNewestAnswer(t *testing.T) {
	reg := newTestRegistry(t, "a", "b")
	anon := coordination.BuildAnonymousMap(reg, map[string]bool{"a": true, "b": true})

	now := time.Now()
	base := map[string]coordination.AgentState{
		"a": {AgentID: "a", HasAnswer: true, Answer: "x", FirstExecutionStart: now},
		"b": {AgentID: "b", HasAnswer: true, Answer: "y", FirstExecutionStart: now.Add(time.Minute)},
		"v1": {
			AgentID: "v1", HasVoted: true,
			Vote: &coordination.Vote{TargetAnonymousID: anon.Anonymous("a")},
		},
		"v2": {
			AgentID: "v2", HasVoted: true,
			Vote: &coordination.Vote{TargetAnonymousID: anon.Anonymous("b")},
		},
	}

	oldest := NewResolver(config.StrategySimpleMajority, config.TieOldestAnswer, 1)
	res, err := oldest.Resolve(ResolveInput{Snapshot: base, Anon: anon, Registry: reg})
	require.NoError(t, err)
	assert.Equal(t, "a", res.WinnerID)

	newest := NewResolver(config.StrategySimpleMajority, config.TieNewestAnswer, 1)
	res, err = newest.Resolve(ResolveInput{Snapshot: base, Anon: anon, Registry: reg})
	require.NoError(t, err)
	assert.Equal(t, "b", res.WinnerID)
}
