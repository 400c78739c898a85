// Package coordinator implements the orchestrator core: the Coordination
// State Machine, Stream Multiplexer, Vote Resolver, Final Presenter and the
// Snapshot Bridge glue that ties them to one Coordinate call.
package coordinator

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/massgen-go/orchestrator/pkg/agent"
	"github.com/massgen-go/orchestrator/pkg/config"
	"github.com/massgen-go/orchestrator/pkg/coordination"
	"github.com/massgen-go/orchestrator/pkg/logger"
)

// Config wires a Coordinator's dependencies.
type Config struct {
	// Registry holds the agents this Coordinator drives. Required.
	Registry *coordination.Registry

	// Voting configures the Vote Resolver strategy.
	Voting config.VotingConfig

	// MaxDuration is the wall-clock coordination budget. Zero
	// uses the package default of 600s.
	MaxDuration time.Duration

	// MaxAttemptsPerRound bounds each Agent Runner's retry budget. Zero
	// uses the package default of 3.
	MaxAttemptsPerRound int

	// AgentSystemInstructions optionally supplies each agent's own system
	// prompt, prepended ahead of the coordination instruction.
	AgentSystemInstructions map[string]string

	// SnapshotBridge is consulted after answers and before Runner starts /
	// final presentation. Defaults to NoopSnapshotBridge when nil.
	SnapshotBridge SnapshotBridge

	// RandomSeed seeds the "random" tie-breaking strategy only.
	RandomSeed int64

	// Tracing configures the ambient otel instrumentation. Disabled by
	// default; when disabled, spans are dropped by a local noop provider
	// rather than the process-wide global one.
	Tracing TracerConfig
}

const (
	defaultMaxDuration      = 600 * time.Second
	defaultMaxAttemptsRound = 3
)

// Coordinator runs one coordination call per Coordinate invocation. A
// Coordinator is safe to reuse across sequential calls (never concurrent
// ones — each call owns the shared per-agent state exclusively).
type Coordinator struct {
	cfg Config
	obs *observability
}

// New validates cfg and returns a Coordinator. Invalid weights or an
// unknown tie-breaking method are ConfigErrors raised here, never during
// Coordinate.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Registry == nil || cfg.Registry.Len() == 0 {
		return nil, &ConfigError{Err: fmt.Errorf("registry must contain at least one agent")}
	}
	cfg.Voting.SetDefaults()
	if err := cfg.Voting.Validate(); err != nil {
		return nil, &ConfigError{Err: err}
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = defaultMaxDuration
	}
	if cfg.MaxAttemptsPerRound <= 0 {
		cfg.MaxAttemptsPerRound = defaultMaxAttemptsRound
	}
	if cfg.SnapshotBridge == nil {
		cfg.SnapshotBridge = NoopSnapshotBridge{}
	}
	return &Coordinator{cfg: cfg, obs: newObservability(cfg.Tracing)}, nil
}

// Result is what Coordinate returns once the output stream is exhausted:
// the session export and any terminal error (NoAnswersAvailable, etc).
type Result struct {
	Export *coordination.Export
	Err    error
}

// Coordinate runs one full coordination call: seeds every agent as
// restart_pending, drives the multiplexer until every agent has voted or
// been killed or the deadline fires, resolves the winner, and streams its
// final presentation. It returns a lazy chunk stream; ranging over it to
// completion is required to observe the final Result via res.
//
// task is the caller's latest message; history is everything before it.
func (c *Coordinator) Coordinate(ctx context.Context, task string, history []*a2a.Message, res *Result) iter.Seq2[*agent.Chunk, error] {
	return func(yield func(*agent.Chunk, error) bool) {
		sess := coordination.NewSession(task, history, c.cfg.MaxDuration)
		sess.Phase = coordination.PhaseCoordinating
		store := coordination.NewStateStore(c.cfg.Registry)

		start := time.Now()
		ctx, span := c.obs.startCoordination(ctx, sess.ID)
		outcome := "completed"
		defer func() {
			elapsed := time.Since(start).Seconds()
			c.obs.recordOutcome(ctx, outcome, elapsed)
			logger.LogCoordinationOutcome(ctx, sess.ID, outcome, elapsed)
			span.End()
		}()

		deadlineCtx, cancel := context.WithTimeout(ctx, c.cfg.MaxDuration)
		defer cancel()

		mux := newMultiplexer(c.cfg.Registry, store, c.cfg.MaxAttemptsPerRound)
		mux.obs = c.obs
		mux.task = task
		mux.history = history
		mux.agentSystemInstructions = c.cfg.AgentSystemInstructions
		mux.onAnswerAccepted = func(agentID string) {
			bridge := snapshotBridgeFor(c.cfg.SnapshotBridge, c.cfg.Registry.Get(agentID))
			_ = bridge.SaveSnapshot(agentID)
		}
		mux.beforeRunnerStart = func(agentID string, anon *coordination.AnonymousMap) {
			bridge := snapshotBridgeFor(c.cfg.SnapshotBridge, c.cfg.Registry.Get(agentID))
			_, _ = bridge.MaterializeReference(agentID, anon)
		}

		go mux.run(deadlineCtx)

		for chunk := range mux.out {
			if !yield(chunk, nil) {
				cancel()
				return
			}
		}

		timedOut := deadlineCtx.Err() != nil

		snap := store.Snapshot()
		holders := store.AnswerHolders()
		anon := coordination.BuildAnonymousMap(c.cfg.Registry, holders)

		resolver := NewResolver(c.cfg.Voting.Strategy, c.cfg.Voting.TieBreaking, c.resolveSeed())
		resolution, err := resolver.Resolve(ResolveInput{Snapshot: snap, Anon: anon, Registry: c.cfg.Registry})
		if err != nil {
			sess.Phase = coordination.PhaseTimeout
			outcome = "no_answers"
			yield(nil, err)
			if res != nil {
				res.Err = err
				res.Export = coordination.BuildExport(sess, store, "", "")
			}
			return
		}

		sess.Phase = coordination.PhasePresenting
		presentOut, presentDone := pipeToYield(yield)
		p := &presenter{
			registry:                c.cfg.Registry,
			bridge:                  c.cfg.SnapshotBridge,
			voting:                  c.cfg.Voting,
			agentSystemInstructions: c.cfg.AgentSystemInstructions,
			out:                     presentOut,
		}
		presentCtx := ctx
		if timedOut {
			// Presentation always gets a fresh budget: the coordination
			// deadline must not also starve the final turn.
			var presentCancel context.CancelFunc
			presentCtx, presentCancel = context.WithTimeout(ctx, defaultMaxDuration)
			defer presentCancel()
		}
		presentErr := p.present(presentCtx, task, history, resolution, snap, anon)
		close(presentOut)
		<-presentDone
		if presentErr != nil {
			outcome = "present_error"
			yield(nil, presentErr)
			if res != nil {
				res.Err = presentErr
			}
			return
		}
		if timedOut {
			outcome = "timeout"
		}

		sess.Phase = coordination.PhaseCompleted
		if res != nil {
			finalAnswer := snap[resolution.WinnerID].Answer
			res.Export = coordination.BuildExport(sess, store, resolution.WinnerID, finalAnswer)
		}
	}
}

func (c *Coordinator) resolveSeed() int64 {
	if c.cfg.RandomSeed != 0 {
		return c.cfg.RandomSeed
	}
	if c.cfg.Voting.RandomSeed != 0 {
		return c.cfg.Voting.RandomSeed
	}
	return time.Now().UnixNano()
}

// pipeToYield lets the presenter push chunks through the same yield
// function Coordinate's caller is ranging over. The caller must close the
// returned channel and wait on done once the presenter finishes.
func pipeToYield(yield func(*agent.Chunk, error) bool) (chan *agent.Chunk, <-chan struct{}) {
	ch := make(chan *agent.Chunk)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for c := range ch {
			if !yield(c, nil) {
				for range ch {
				}
				return
			}
		}
	}()
	return ch, done
}
