package horizon

import (
	"fmt"
	"strings"
	"time"

	"github.com/stratamem/strata/internal/memory"
	"github.com/stratamem/strata/internal/vecmath"
)

// maxPromptTokens caps each chunk's contribution to the prompt.
const maxPromptTokens = 200

func buildPrompt(chunks []*memory.Chunk) string {
	var b strings.Builder

	b.WriteString(`You estimate how long stored memories stay relevant.

For each memory below, predict its relevance horizon. Reply with ONLY a JSON array, one object per memory:

[{"id": "<memory id>", "horizon": "<RFC 3339 timestamp or \"permanent\">", "reasoning": "<one sentence>", "confidence": <0.0-1.0>, "category": "<one of: ephemeral, situational, project_scoped, relational, identity, policy>"}]

Category guide:
- ephemeral: relevant for hours to days (logistics, reminders)
- situational: relevant for weeks (current tasks, short-lived context)
- project_scoped: relevant until a project ends
- relational: facts about people, relevant while the relationship lasts
- identity: stable facts about the user, effectively permanent
- policy: standing instructions and preferences, effectively permanent

Current time: ` + time.Now().UTC().Format(time.RFC3339) + "\n\nMemories:\n")

	for _, c := range chunks {
		text := c.Summary
		if text == "" {
			text = vecmath.TruncateTokens(c.Content, maxPromptTokens)
		}
		fmt.Fprintf(&b, "- id: %s\n  created: %s\n  category: %s\n  text: %s\n",
			c.ID, c.CreatedAt.Format(time.RFC3339), c.Category, text)
	}

	return b.String()
}
