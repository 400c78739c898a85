// Package template builds the system and user messages an agent sees at the
// start of each coordination attempt, and the enforcement messages sent back
// when a tool call is rejected.
package template

import (
	"fmt"
	"strings"
	"time"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/massgen-go/orchestrator/pkg/agent"
	"github.com/massgen-go/orchestrator/pkg/coordination"
	"github.com/massgen-go/orchestrator/pkg/protocol"
)

const coordinationInstruction = `You are one of several agents independently working on the same task.

At the end of your response you must call exactly one tool:
- call vote if the best current answer below already addresses the original
  task well;
- otherwise call new_answer with your own improved answer.

Current UTC time: %s`

// SystemMessage builds the system message for one attempt. agentInstructions
// is the agent's own system prompt, if any; when non-empty it is prepended
// and the coordination instruction is appended last, so the model always
// sees the coordination directive most recently.
func SystemMessage(agentInstructions string, now time.Time) *a2a.Message {
	instruction := fmt.Sprintf(coordinationInstruction, now.UTC().Format(time.RFC3339))
	text := instruction
	if agentInstructions != "" {
		text = agentInstructions + "\n\n" + instruction
	}
	return agent.TextMessage(a2a.MessageRoleUser, text)
}

const noAnswersPlaceholder = "(no answers have been proposed yet)"

// AnswerEntry is one agent's current answer, already resolved to its
// anonymous ID for this round.
type AnswerEntry struct {
	AnonymousID string
	Content     string
}

// UserMessage builds the per-attempt user message: optional conversation
// history, the original task, then the current answers block. Ordering is
// fixed: history, task, answers.
func UserMessage(history []*a2a.Message, task string, answers []AnswerEntry) *a2a.Message {
	var b strings.Builder

	if len(history) > 0 {
		b.WriteString("<CONVERSATION_HISTORY>\n")
		for _, m := range history {
			b.WriteString(string(m.Role))
			b.WriteString(": ")
			b.WriteString(agent.MessageText(m))
			b.WriteString("\n")
		}
		b.WriteString("</CONVERSATION_HISTORY>\n\n")
	}

	b.WriteString("<ORIGINAL MESSAGE>\n")
	b.WriteString(task)
	b.WriteString("\n<END OF ORIGINAL MESSAGE>\n\n")

	b.WriteString("<CURRENT ANSWERS>\n")
	if len(answers) == 0 {
		b.WriteString(noAnswersPlaceholder)
		b.WriteString("\n")
	} else {
		for _, a := range answers {
			fmt.Fprintf(&b, "<%s>\n%s\n<end of %s>\n", a.AnonymousID, a.Content, a.AnonymousID)
		}
	}
	b.WriteString("</CURRENT ANSWERS>\n")

	return agent.TextMessage(a2a.MessageRoleUser, b.String())
}

// BuildAnswerEntries converts the current StateStore snapshot into the
// ordered AnswerEntry list UserMessage expects, using anon for the
// anonymous-ID mapping of the current round.
func BuildAnswerEntries(snap map[string]coordination.AgentState, anon *coordination.AnonymousMap) []AnswerEntry {
	var out []AnswerEntry
	for _, realID := range anon.RealIDsInOrder() {
		st, ok := snap[realID]
		if !ok || !st.HasAnswer {
			continue
		}
		out = append(out, AnswerEntry{AnonymousID: anon.Anonymous(realID), Content: st.Answer})
	}
	return out
}

const plainEnforcementInstruction = "Finish your response by calling vote or new_answer."

// EnforcementMessage builds the retry message sent after a rejected or
// missing tool call. When callErrs is non-empty, one tool-result-shaped
// error block is emitted per offending call, keyed by tool-call ID so the
// backend can route it as a tool result; otherwise a plain text instruction
// is sent (the "no tool call at all" case).
func EnforcementMessage(callErrs []*protocol.ProtocolError) *a2a.Message {
	if len(callErrs) == 0 {
		return agent.TextMessage(a2a.MessageRoleUser, plainEnforcementInstruction)
	}
	var b strings.Builder
	for _, e := range callErrs {
		fmt.Fprintf(&b, "tool_call %s rejected: %s\n", e.ToolCallID, e.Error())
	}
	b.WriteString(plainEnforcementInstruction)
	return agent.TextMessage(a2a.MessageRoleUser, b.String())
}
