// Package config defines the orchestrator's configuration surface
// and its yaml loading/validation.
package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Strategy is the vote-scoring strategy.
type Strategy string

const (
	StrategySimpleMajority Strategy = "simple_majority"
	StrategyWeightedVote   Strategy = "weighted_vote"
)

// TieBreaking selects how the Vote Resolver breaks score ties.
type TieBreaking string

const (
	TieRegistrationOrder TieBreaking = "registration_order"
	TieRandom            TieBreaking = "random"
	TieOldestAnswer      TieBreaking = "oldest_answer"
	TieNewestAnswer      TieBreaking = "newest_answer"
	TieLongestAnswer     TieBreaking = "longest_answer"
	TieHighestWeight     TieBreaking = "highest_weight"
)

// VotingConfig configures the Vote Resolver.
type VotingConfig struct {
	Strategy    Strategy    `yaml:"strategy"`
	TieBreaking TieBreaking `yaml:"tie_breaking"`

	IncludeVoteCounts  bool `yaml:"include_vote_counts"`
	IncludeVoteReasons bool `yaml:"include_vote_reasons"`
	AnonymousVoting    bool `yaml:"anonymous_voting"`

	// RandomSeed seeds the "random" tie-breaking strategy. Zero means
	// derive a seed from the current time at Resolver construction.
	RandomSeed int64 `yaml:"random_seed,omitempty"`
}

// SetDefaults fills unset VotingConfig fields with sensible defaults.
func (c *VotingConfig) SetDefaults() {
	if c.Strategy == "" {
		c.Strategy = StrategySimpleMajority
	}
	if c.TieBreaking == "" {
		c.TieBreaking = TieRegistrationOrder
	}
}

// Validate checks VotingConfig for internally consistent values.
func (c *VotingConfig) Validate() error {
	switch c.Strategy {
	case StrategySimpleMajority, StrategyWeightedVote:
	default:
		return fmt.Errorf("voting.strategy: unknown strategy %q", c.Strategy)
	}
	switch c.TieBreaking {
	case TieRegistrationOrder, TieRandom, TieOldestAnswer, TieNewestAnswer, TieLongestAnswer, TieHighestWeight:
	default:
		return fmt.Errorf("voting.tie_breaking: unknown strategy %q", c.TieBreaking)
	}
	if c.TieBreaking == TieHighestWeight && c.Strategy != StrategyWeightedVote {
		return fmt.Errorf("voting.tie_breaking: highest_weight requires voting.strategy=weighted_vote")
	}
	return nil
}

// Config is the full orchestrator configuration.
type Config struct {
	MaxDurationSeconds  int `yaml:"max_duration_seconds"`
	MaxAttemptsPerRound int `yaml:"max_attempts_per_round"`

	Voting VotingConfig `yaml:"voting"`

	// AgentWeights maps agent ID to a positive voting weight. Only
	// meaningful when Voting.Strategy == weighted_vote; referencing an
	// unregistered agent is a ConfigError, raised at construction.
	AgentWeights map[string]float64 `yaml:"agent_weights,omitempty"`

	// SnapshotStoragePath and AgentTemporaryWorkspacePath, when both set,
	// enable the Snapshot Bridge. When either is empty, the bridge is
	// disabled and materialize_reference/save_snapshot become no-ops.
	SnapshotStoragePath         string `yaml:"snapshot_storage_path,omitempty"`
	AgentTemporaryWorkspacePath string `yaml:"agent_temporary_workspace_path,omitempty"`
}

const (
	defaultMaxDurationSeconds  = 600
	defaultMaxAttemptsPerRound = 3
)

// SetDefaults fills unset fields with sensible defaults.
func (c *Config) SetDefaults() {
	if c.MaxDurationSeconds <= 0 {
		c.MaxDurationSeconds = defaultMaxDurationSeconds
	}
	if c.MaxAttemptsPerRound <= 0 {
		c.MaxAttemptsPerRound = defaultMaxAttemptsPerRound
	}
	c.Voting.SetDefaults()
}

// Validate checks the config for invalid weights or an unknown tie-break
// method. knownAgentIDs, if non-nil, is used to reject agent_weights
// entries for unregistered agents.
func (c *Config) Validate(knownAgentIDs map[string]bool) error {
	if c.MaxDurationSeconds <= 0 {
		return fmt.Errorf("max_duration_seconds must be positive")
	}
	if c.MaxAttemptsPerRound <= 0 {
		return fmt.Errorf("max_attempts_per_round must be positive")
	}
	if err := c.Voting.Validate(); err != nil {
		return err
	}
	for id, w := range c.AgentWeights {
		if w <= 0 {
			return fmt.Errorf("agent_weights[%s]: weight must be positive, got %v", id, w)
		}
		if knownAgentIDs != nil && !knownAgentIDs[id] {
			return fmt.Errorf("agent_weights[%s]: unknown agent", id)
		}
	}
	if (c.SnapshotStoragePath == "") != (c.AgentTemporaryWorkspacePath == "") {
		return fmt.Errorf("snapshot_storage_path and agent_temporary_workspace_path must be set together")
	}
	return nil
}

// SnapshotEnabled reports whether the Snapshot Bridge should be active.
func (c *Config) SnapshotEnabled() bool {
	return c.SnapshotStoragePath != "" && c.AgentTemporaryWorkspacePath != ""
}

// Load parses yaml config bytes, applies defaults, and validates the
// result. knownAgentIDs follows Validate's semantics.
func Load(data []byte, knownAgentIDs map[string]bool) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	c.SetDefaults()
	if err := c.Validate(knownAgentIDs); err != nil {
		return nil, err
	}
	return &c, nil
}
