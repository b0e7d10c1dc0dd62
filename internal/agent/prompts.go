package agent

import (
	"fmt"
	"strings"
	"time"

	memctx "hearth/internal/context"
)

const basePrompt = `You are Hearth, a personal assistant agent running on the user's own machine.
You can run shell commands, read and write files in your sandbox, fetch web pages,
inspect the system, remember facts about the user, and schedule reminders.

Be concise. Use tools when they help; do not guess at facts a tool can verify.
Commands you run are classified for safety and destructive ones will be refused;
never try to work around a refusal.`

// BuildSystemPrompt renders the system prompt for one turn: the base prompt
// (or its configured override), today's date, and the memory sections that
// survived the context budget.
func BuildSystemPrompt(override string, c *memctx.Context, now time.Time) string {
	var b strings.Builder
	if override != "" {
		b.WriteString(override)
	} else {
		b.WriteString(basePrompt)
	}
	fmt.Fprintf(&b, "\n\nToday is %s.", now.Format("Monday, 2 January 2006"))

	if c.Profile != "" {
		b.WriteString("\n\n## What you know about the user\n")
		b.WriteString(c.Profile)
	}
	if len(c.Memories) > 0 {
		b.WriteString("\n\n## Relevant memories\n")
		b.WriteString(strings.Join(c.Memories, "\n"))
	}
	if c.Summary != "" {
		b.WriteString("\n\n## Earlier in this conversation\n")
		b.WriteString(c.Summary)
	}
	return b.String()
}
