package coordination

import (
	"time"

	"github.com/google/uuid"

	"github.com/a2aproject/a2a-go/a2a"
)

// Session is the top-level record of one coordination call.
type Session struct {
	ID   string
	Task string

	// ConversationHistory is prior-turn context supplied by the caller,
	// rendered into the user message template.
	ConversationHistory []*a2a.Message

	StartedAt time.Time
	Phase     Phase

	// MaxDuration is the wall-clock coordination budget. Zero
	// means no timeout.
	MaxDuration time.Duration

	// TokenCount is a best-effort running total the caller may report via
	// chunk metadata; the orchestrator itself does not count tokens.
	TokenCount int
}

// NewSession starts a Session in PhaseIdle.
func NewSession(task string, history []*a2a.Message, maxDuration time.Duration) *Session {
	return &Session{
		ID:                  uuid.NewString(),
		Task:                task,
		ConversationHistory: history,
		StartedAt:           time.Now(),
		Phase:               PhaseIdle,
		MaxDuration:         maxDuration,
	}
}

// Deadline returns the wall-clock deadline for this session, or the zero
// Time if MaxDuration is unset.
func (s *Session) Deadline() time.Time {
	if s.MaxDuration <= 0 {
		return time.Time{}
	}
	return s.StartedAt.Add(s.MaxDuration)
}

// Elapsed returns time since the session started.
func (s *Session) Elapsed() time.Duration {
	return time.Since(s.StartedAt)
}

// Export is the JSON-serializable session record.
type Export struct {
	SessionID   string             `json:"session_id"`
	Task        string             `json:"task"`
	Phase       Phase              `json:"phase"`
	StartedAt   time.Time          `json:"started_at"`
	DurationMS  int64              `json:"duration_ms"`
	Agents      []AgentExport      `json:"agents"`
	Votes       []VoteRecordExport `json:"votes"`
	WinnerID    string             `json:"winner_id,omitempty"`
	FinalAnswer string             `json:"final_answer,omitempty"`
}

// AgentExport is one agent's final state for session export.
type AgentExport struct {
	AgentID       string   `json:"agent_id"`
	Answer        string   `json:"answer,omitempty"`
	AnswerHistory []string `json:"answer_history,omitempty"`
	Killed        bool     `json:"killed"`
	VotingWeight  float64  `json:"voting_weight"`
	UpdateCount   int      `json:"update_count"`
}

// VoteRecordExport mirrors VoteRecord in a stable JSON shape.
type VoteRecordExport struct {
	VoterID  string    `json:"voter_id"`
	TargetID string    `json:"target_id"`
	Reason   string    `json:"reason,omitempty"`
	Time     time.Time `json:"time"`
	Phase    Phase     `json:"phase"`
}

// BuildExport assembles a Session export from its final state.
func BuildExport(sess *Session, store *StateStore, winnerID, finalAnswer string) *Export {
	snap := store.Snapshot()
	out := &Export{
		SessionID:   sess.ID,
		Task:        sess.Task,
		Phase:       sess.Phase,
		StartedAt:   sess.StartedAt,
		DurationMS:  sess.Elapsed().Milliseconds(),
		WinnerID:    winnerID,
		FinalAnswer: finalAnswer,
	}
	for _, id := range sortedKeys(snap) {
		st := snap[id]
		out.Agents = append(out.Agents, AgentExport{
			AgentID:       st.AgentID,
			Answer:        st.Answer,
			AnswerHistory: st.AnswerHistory,
			Killed:        st.Killed,
			VotingWeight:  st.VotingWeight,
			UpdateCount:   st.UpdateCount,
		})
	}
	for _, v := range store.VoteRecords() {
		out.Votes = append(out.Votes, VoteRecordExport{
			VoterID:  v.VoterID,
			TargetID: v.TargetID,
			Reason:   v.Reason,
			Time:     v.Time,
			Phase:    v.Phase,
		})
	}
	return out
}

func sortedKeys(m map[string]AgentState) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
