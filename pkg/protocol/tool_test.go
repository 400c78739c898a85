package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_NewAnswer(t *testing.T) {
	call, err := Parse(RawCall{ID: "c1", Name: ToolNewAnswer, ArgsJSON: `{"content":"42"}`})
	require.NoError(t, err)
	require.True(t, call.IsNewAnswer())
	assert.False(t, call.IsVote())
	assert.Equal(t, ToolNewAnswer, call.Name())
	assert.Equal(t, "42", call.NewAnswer.Content)
}

func TestParse_NewAnswerRejectsEmptyContent(t *testing.T) {
	_, err := Parse(RawCall{ID: "c1", Name: ToolNewAnswer, ArgsJSON: `{"content":""}`})
	require.Error(t, err)
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrEmptyAnswer, perr.Code)
}

func TestParse_MalformedArgs(t *testing.T) {
	_, err := Parse(RawCall{ID: "c1", Name: ToolNewAnswer, ArgsJSON: `not json`})
	require.Error(t, err)
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrMalformedArgs, perr.Code)
}

func TestParse_Vote(t *testing.T) {
	call, err := Parse(RawCall{ID: "c2", Name: ToolVote, ArgsJSON: `{"agent_id":"agent1","reason":"best"}`})
	require.NoError(t, err)
	require.True(t, call.IsVote())
	assert.Equal(t, "agent1", call.Vote.AgentID)
	assert.Equal(t, "best", call.Vote.Reason)
}

func TestParse_VoteEmptyArgsDefaultsToZeroValue(t *testing.T) {
	call, err := Parse(RawCall{ID: "c3", Name: ToolVote, ArgsJSON: ""})
	require.NoError(t, err)
	assert.Equal(t, "", call.Vote.AgentID)
}

func TestParse_UnknownTool(t *testing.T) {
	_, err := Parse(RawCall{ID: "c4", Name: "delete_everything"})
	require.Error(t, err)
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrUnknownTool, perr.Code)
}

func TestSchemas_VoteEnumReflectsCurrentAnonymousIDs(t *testing.T) {
	schemas := Schemas([]string{"agent1", "agent2"})
	require.Len(t, schemas, 2)

	var vote *struct{}
	for _, s := range schemas {
		if s.Name == ToolVote {
			props, ok := s.Parameters["properties"].(map[string]any)
			require.True(t, ok)
			agentIDProp, ok := props["agent_id"].(map[string]any)
			require.True(t, ok)
			enum, ok := agentIDProp["enum"].([]any)
			require.True(t, ok)
			assert.ElementsMatch(t, []any{"agent1", "agent2"}, enum)
			vote = &struct{}{}
		}
	}
	require.NotNil(t, vote)
}

func TestSchemas_NewAnswerRequiresContent(t *testing.T) {
	schemas := Schemas(nil)
	for _, s := range schemas {
		if s.Name == ToolNewAnswer {
			required, ok := s.Parameters["required"].([]string)
			require.True(t, ok)
			assert.Contains(t, required, "content")
		}
	}
}
