// Package orchestrator presents a single chat interface to a caller while
// running N independently-streaming sub-agents against the same user task
// under the hood.
//
// Each agent proposes an answer or votes for one already on the table
// through a constrained two-tool protocol (new_answer, vote). Whenever any
// agent proposes a new answer, every agent restarts its evaluation against
// the updated set of answers. Once every agent has voted or been killed for
// protocol violations, a Vote Resolver picks a winner and a Final Presenter
// asks that agent to stream the synthesized response.
//
// # Quick Start
//
//	reg := coordination.NewRegistry()
//	reg.Register(myAgentA, 1.0)
//	reg.Register(myAgentB, 1.0)
//
//	orch, err := coordinator.New(coordinator.Config{
//	    Registry: reg,
//	    Voting:   config.VotingConfig{Strategy: config.StrategySimpleMajority},
//	})
//
//	var result coordinator.Result
//	for chunk, err := range orch.Coordinate(ctx, task, nil, &result) {
//	    ...
//	}
//
// # Architecture
//
//	caller → Coordinator → Stream Multiplexer → Agent Runner(s) → Agent Interface
//	                             ↓
//	                    Coordination State Machine → Vote Resolver → Final Presenter
//
// # Scope
//
// This module implements only the orchestrator core: state machine, stream
// multiplexer, tool protocol, restart semantics, voting, timeout handling,
// and final-answer presentation. LLM backends, config loading for whole
// applications, UI display, and persistent memory are external
// collaborators consumed through small interfaces.
package orchestrator
