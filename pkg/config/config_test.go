package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load([]byte(`{}`), nil)
	require.NoError(t, err)
	assert.Equal(t, defaultMaxDurationSeconds, cfg.MaxDurationSeconds)
	assert.Equal(t, defaultMaxAttemptsPerRound, cfg.MaxAttemptsPerRound)
	assert.Equal(t, StrategySimpleMajority, cfg.Voting.Strategy)
	assert.Equal(t, TieRegistrationOrder, cfg.Voting.TieBreaking)
}

func TestLoad_RejectsUnknownAgentWeight(t *testing.T) {
	yaml := []byte(`
agent_weights:
  ghost: 2.0
`)
	_, err := Load(yaml, map[string]bool{"real": true})
	assert.Error(t, err)
}

func TestLoad_RejectsNonPositiveWeight(t *testing.T) {
	yaml := []byte(`
agent_weights:
  a: 0
`)
	_, err := Load(yaml, map[string]bool{"a": true})
	assert.Error(t, err)
}

func TestVotingConfig_HighestWeightRequiresWeightedVote(t *testing.T) {
	vc := VotingConfig{Strategy: StrategySimpleMajority, TieBreaking: TieHighestWeight}
	assert.Error(t, vc.Validate())

	vc.Strategy = StrategyWeightedVote
	assert.NoError(t, vc.Validate())
}

func TestVotingConfig_RejectsUnknownStrategyAndTieBreaking(t *testing.T) {
	vc := VotingConfig{Strategy: "bogus", TieBreaking: TieRegistrationOrder}
	assert.Error(t, vc.Validate())

	vc2 := VotingConfig{Strategy: StrategySimpleMajority, TieBreaking: "bogus"}
	assert.Error(t, vc2.Validate())
}

func TestConfig_SnapshotPathsMustBeSetTogether(t *testing.T) {
	c := Config{MaxDurationSeconds: 10, MaxAttemptsPerRound: 1, SnapshotStoragePath: "/tmp/snap"}
	c.Voting.SetDefaults()
	assert.Error(t, c.Validate(nil))

	c.AgentTemporaryWorkspacePath = "/tmp/work"
	assert.NoError(t, c.Validate(nil))
	assert.True(t, c.SnapshotEnabled())
}
