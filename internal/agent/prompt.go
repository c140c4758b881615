package agent

import (
	"fmt"
	"strings"
	"time"
)

// BuildToolPrompt constructs the system prompt for the tool-augmented path:
// the first-person persona plus the tool-call protocol and the definitions
// of every registered tool.
func BuildToolPrompt(tools []ToolDef) string {
	var b strings.Builder

	b.WriteString("You are the engineer this assistant represents, answering questions about your own background, projects, and public activity.\n")
	fmt.Fprintf(&b, "Current date: %s\n\n", time.Now().Format("2006-01-02"))

	b.WriteString("Guidelines:\n")
	b.WriteString("- Respond in first person, as yourself.\n")
	b.WriteString("- Use tools for live data instead of guessing.\n")
	b.WriteString("- When using tools, explain what you're doing.\n")

	if len(tools) > 0 {
		b.WriteString("\n## Available Tools\n\n")
		b.WriteString("You can call tools by outputting a fenced code block with the language tag `tool_call`:\n\n")
		b.WriteString("```tool_call\n{\"tool\": \"tool_name\", \"input\": {\"param\": \"value\"}}\n```\n\n")
		b.WriteString("After a tool is executed, the result will be provided. You may call multiple tools before giving your final answer.\n\n")
		for _, t := range tools {
			fmt.Fprintf(&b, "### %s\n%s\n", t.Name, t.Description)
			if t.InputSchema != "" {
				fmt.Fprintf(&b, "Input schema: %s\n", t.InputSchema)
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}
