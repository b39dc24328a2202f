package engine

import (
	"fmt"
	"strings"
)

// proposePrompt frames the query for the propose phase. Task type and option
// hints go above the query so every candidate sees the same framing.
func proposePrompt(req Request) string {
	var b strings.Builder

	if req.TaskType != "" {
		fmt.Fprintf(&b, "Task type: %s\n", req.TaskType)
	}
	if req.Options.Verbosity != "" {
		fmt.Fprintf(&b, "Verbosity: %s\n", req.Options.Verbosity)
	}
	if req.Options.Effort != "" {
		fmt.Fprintf(&b, "Effort: %s\n", req.Options.Effort)
	}
	if req.Options.Reasoning != "" {
		fmt.Fprintf(&b, "Reasoning: %s\n", req.Options.Reasoning)
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}

	b.WriteString(req.Query)
	return b.String()
}

// critiquePrompt embeds the original query and the proposed answer for the
// critic model.
func critiquePrompt(query, proposal string) string {
	return fmt.Sprintf("You are reviewing another model's answer.\n\n"+
		"Original query:\n%s\n\n"+
		"Proposed answer:\n%s\n\n"+
		"Critique the proposed answer: point out anything incorrect, missing or misleading, "+
		"call out risky assumptions, and note unclear reasoning. Be specific. "+
		"If the answer is sound, say so briefly.", query, proposal)
}

// revisePrompt embeds the original query, the proposed answer and the
// critique for the revise phase.
func revisePrompt(query, proposal, critique string) string {
	return fmt.Sprintf("Original query:\n%s\n\n"+
		"Your earlier answer:\n%s\n\n"+
		"Reviewer critique:\n%s\n\n"+
		"Revise the answer to address the critique. Keep what the critique confirmed, "+
		"fix what it challenged, and return only the revised answer.", query, proposal, critique)
}
