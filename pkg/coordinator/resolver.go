package coordinator

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/massgen-go/orchestrator/pkg/config"
	"github.com/massgen-go/orchestrator/pkg/coordination"
)

// ResolveInput bundles everything the Vote Resolver needs. It is
// a pure function of this input plus the configured strategy and seed.
type ResolveInput struct {
	// Snapshot is the final per-agent state.
	Snapshot map[string]coordination.AgentState
	// Anon maps the accepted votes' target anonymous IDs back to real IDs.
	Anon *coordination.AnonymousMap
	// Registry gives registration rank for registration_order tie-breaks.
	Registry *coordination.Registry
}

// Resolution is the Vote Resolver's output.
type Resolution struct {
	WinnerID  string
	TieBroken bool
	// Scores maps real agent ID to its computed score, for the voting
	// summary the Final Presenter renders.
	Scores map[string]float64
	// Counts maps real agent ID to raw vote count (always computed,
	// regardless of strategy, since include_vote_counts may ask for it
	// even under weighted_vote).
	Counts map[string]int
}

// Resolver implements simple_majority / weighted_vote scoring with
// configurable tie-breaking.
type Resolver struct {
	strategy    config.Strategy
	tieBreaking config.TieBreaking
	rng         *rand.Rand
}

// NewResolver builds a Resolver. seed seeds the "random" tie-breaking
// strategy only; all other strategies are deterministic regardless of seed.
func NewResolver(strategy config.Strategy, tieBreaking config.TieBreaking, seed int64) *Resolver {
	return &Resolver{
		strategy:    strategy,
		tieBreaking: tieBreaking,
		rng:         rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>1|1)),
	}
}

// Resolve picks the winning agent. Two calls to the same Resolver with
// the same ResolveInput produce the same output, except when
// tie_breaking=random, which consumes the Resolver's own rng state and so
// is only reproducible by rebuilding the Resolver with the same seed.
func (r *Resolver) Resolve(in ResolveInput) (*Resolution, error) {
	scores := make(map[string]float64)
	counts := make(map[string]int)

	for voterID, st := range in.Snapshot {
		if !st.HasVoted || st.Vote == nil {
			continue
		}
		targetReal := in.Anon.Real(st.Vote.TargetAnonymousID)
		if targetReal == "" {
			continue
		}
		counts[targetReal]++
		switch r.strategy {
		case config.StrategyWeightedVote:
			scores[targetReal] += in.Snapshot[voterID].VotingWeight
		default:
			scores[targetReal]++
		}
	}

	if len(scores) == 0 {
		return r.fallback(in)
	}

	best, tied := topScorers(scores)
	sort.Slice(tied, func(i, j int) bool {
		return in.Registry.Rank(tied[i]) < in.Registry.Rank(tied[j])
	})
	if len(tied) == 1 {
		return &Resolution{WinnerID: tied[0], Scores: scores, Counts: counts}, nil
	}

	winner, err := r.breakTie(tied, in)
	if err != nil {
		return nil, err
	}
	_ = best
	return &Resolution{WinnerID: winner, TieBroken: true, Scores: scores, Counts: counts}, nil
}

// fallback implements "if no votes were cast but answers exist, return the
// earliest-registered answer-holder; if neither, return none".
func (r *Resolver) fallback(in ResolveInput) (*Resolution, error) {
	var earliest string
	earliestRank := -1
	for id, st := range in.Snapshot {
		if !st.HasAnswer {
			continue
		}
		rank := in.Registry.Rank(id)
		if earliestRank == -1 || rank < earliestRank {
			earliestRank = rank
			earliest = id
		}
	}
	if earliest == "" {
		return nil, ErrNoAnswersAvailable
	}
	return &Resolution{WinnerID: earliest, Scores: map[string]float64{}, Counts: map[string]int{}}, nil
}

func topScorers(scores map[string]float64) (float64, []string) {
	var best float64
	first := true
	for _, s := range scores {
		if first || s > best {
			best = s
			first = false
		}
	}
	var tied []string
	for id, s := range scores {
		if s == best {
			tied = append(tied, id)
		}
	}
	return best, tied
}

func (r *Resolver) breakTie(tied []string, in ResolveInput) (string, error) {
	switch r.tieBreaking {
	case config.TieRegistrationOrder:
		return earliestByRank(tied, in.Registry), nil

	case config.TieRandom:
		return tied[r.rng.IntN(len(tied))], nil

	case config.TieOldestAnswer:
		return extremeByExecutionStart(tied, in.Snapshot, true), nil

	case config.TieNewestAnswer:
		return extremeByExecutionStart(tied, in.Snapshot, false), nil

	case config.TieLongestAnswer:
		return longestAnswer(tied, in.Snapshot), nil

	case config.TieHighestWeight:
		return highestWeight(tied, in.Snapshot), nil

	default:
		return "", fmt.Errorf("resolver: unknown tie_breaking %q", r.tieBreaking)
	}
}

func earliestByRank(ids []string, reg *coordination.Registry) string {
	best := ids[0]
	bestRank := reg.Rank(best)
	for _, id := range ids[1:] {
		if rank := reg.Rank(id); rank < bestRank {
			best, bestRank = id, rank
		}
	}
	return best
}

func extremeByExecutionStart(ids []string, snap map[string]coordination.AgentState, oldest bool) string {
	best := ids[0]
	bestTime := snap[best].FirstExecutionStart
	for _, id := range ids[1:] {
		t := snap[id].FirstExecutionStart
		if (oldest && t.Before(bestTime)) || (!oldest && t.After(bestTime)) {
			best, bestTime = id, t
		}
	}
	return best
}

// longestAnswer picks the greatest character length: runes, not bytes or
// grapheme clusters.
func longestAnswer(ids []string, snap map[string]coordination.AgentState) string {
	best := ids[0]
	bestLen := len([]rune(snap[best].Answer))
	for _, id := range ids[1:] {
		if l := len([]rune(snap[id].Answer)); l > bestLen {
			best, bestLen = id, l
		}
	}
	return best
}

func highestWeight(ids []string, snap map[string]coordination.AgentState) string {
	best := ids[0]
	bestWeight := snap[best].VotingWeight
	for _, id := range ids[1:] {
		if w := snap[id].VotingWeight; w > bestWeight {
			best, bestWeight = id, w
		}
	}
	return best
}
