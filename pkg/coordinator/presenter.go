package coordinator

import (
	"context"
	"fmt"
	"strings"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/massgen-go/orchestrator/pkg/agent"
	"github.com/massgen-go/orchestrator/pkg/config"
	"github.com/massgen-go/orchestrator/pkg/coordination"
)

// presenter implements the Final Presenter: compose the
// final-presentation prompt, restore reference workspace context for the
// winner, and stream its response as the orchestrator's output.
type presenter struct {
	registry *coordination.Registry
	bridge   SnapshotBridge
	voting   config.VotingConfig

	agentSystemInstructions map[string]string

	out chan<- *agent.Chunk
}

// present runs the winner's final streaming turn. task is the original
// user task; history is conversation context; res is the Vote Resolver's
// output; snap is the final AgentState snapshot; anon is the last
// answer-holder mapping (used to label reference sub-directories and the
// voting summary consistently).
func (p *presenter) present(ctx context.Context, task string, history []*a2a.Message, res *Resolution, snap map[string]coordination.AgentState, anon *coordination.AnonymousMap) error {
	winner := p.registry.Get(res.WinnerID)
	if winner == nil {
		return fmt.Errorf("presenter: unknown winner %q", res.WinnerID)
	}

	var referencePath string
	if bridge := snapshotBridgeFor(p.bridge, winner); bridge != nil {
		path, err := bridge.MaterializeReference(res.WinnerID, anon)
		if err == nil {
			referencePath = path
		}
	}

	userMsg := p.buildFinalUserMessage(task, res, snap, anon)
	sysMsg := p.buildFinalSystemMessage(res.WinnerID, referencePath)

	messages := []*a2a.Message{sysMsg, userMsg}
	if len(history) > 0 {
		messages = append(append([]*a2a.Message{}, history...), messages...)
	}

	streamCtx := agent.WithReferencePath(ctx, referencePath)

	var produced bool
	for chunk, err := range winner.Stream(streamCtx, messages, nil, true) {
		if err != nil {
			return fmt.Errorf("presenter: winner stream failed: %w", err)
		}
		switch chunk.Type {
		case agent.ChunkContent, agent.ChunkReasoning, agent.ChunkDone:
			produced = produced || chunk.Type == agent.ChunkContent
			relabeled := *chunk
			relabeled.Source = res.WinnerID
			p.out <- &relabeled
		}
	}

	if !produced {
		// Empty response: fall back to the winner's stored answer.
		if st, ok := snap[res.WinnerID]; ok && st.HasAnswer {
			p.out <- agent.NewContentChunk(res.WinnerID, st.Answer)
			p.out <- agent.NewDoneChunk(res.WinnerID)
		}
	}
	return nil
}

func (p *presenter) buildFinalUserMessage(task string, res *Resolution, snap map[string]coordination.AgentState, anon *coordination.AnonymousMap) *a2a.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "<ORIGINAL MESSAGE>\n%s\n<END OF ORIGINAL MESSAGE>\n\n", task)

	b.WriteString("<VOTING SUMMARY>\n")
	for _, realID := range anon.RealIDsInOrder() {
		anonID := anon.Anonymous(realID)
		marker := ""
		if realID == res.WinnerID {
			marker = " (selected)"
		}
		fmt.Fprintf(&b, "%s%s", anonID, marker)
		if p.voting.IncludeVoteCounts {
			fmt.Fprintf(&b, " — votes: %d, score: %.2f", res.Counts[realID], res.Scores[realID])
		}
		b.WriteString("\n")
		if p.voting.IncludeVoteReasons {
			for voterID, st := range snap {
				if st.HasVoted && st.Vote != nil && anon.Real(st.Vote.TargetAnonymousID) == realID {
					voterLabel := voterID
					if p.voting.AnonymousVoting {
						voterLabel = anon.Anonymous(voterID)
					}
					fmt.Fprintf(&b, "  - %s: %s\n", voterLabel, st.Vote.Reason)
				}
			}
		}
	}
	if res.TieBroken {
		b.WriteString("(tie-broken)\n")
	}
	b.WriteString("</VOTING SUMMARY>\n\n")

	b.WriteString("<CURRENT ANSWERS>\n")
	for _, realID := range anon.RealIDsInOrder() {
		st := snap[realID]
		anonID := anon.Anonymous(realID)
		marker := ""
		if realID == res.WinnerID {
			marker = " (your answer, selected)"
		}
		fmt.Fprintf(&b, "<%s%s>\n%s\n<end of %s>\n", anonID, marker, st.Answer, anonID)
	}
	b.WriteString("</CURRENT ANSWERS>\n")

	return agent.TextMessage(a2a.MessageRoleUser, b.String())
}

const finalPresentationDirective = "You were selected to present the final answer. Synthesize the best possible response for the original task, drawing on the other answers above as you see fit."

const referenceWorkspaceNotice = "A read-only reference workspace containing the other agents' work has been made available to you. Treat it strictly as reference material; do not modify it."

// buildFinalSystemMessage never embeds the reference path itself in the
// message payload — only a read-only notice that one exists. The path
// reaches the winner through agent.WithReferencePath.
func (p *presenter) buildFinalSystemMessage(winnerID, referencePath string) *a2a.Message {
	var b strings.Builder
	if instr := p.agentSystemInstructions[winnerID]; instr != "" {
		b.WriteString(instr)
		b.WriteString("\n\n")
	}
	b.WriteString(finalPresentationDirective)
	if referencePath != "" {
		b.WriteString("\n\n")
		b.WriteString(referenceWorkspaceNotice)
	}
	return agent.TextMessage(a2a.MessageRoleUser, b.String())
}
