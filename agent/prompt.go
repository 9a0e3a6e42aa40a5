package agent

import (
	"fmt"
	"strings"

	"github.com/hupe1980/missionmesh/core"
)

// instructions renders the system prompt: agent identity, tool inventory and
// the response contract the loop parses.
func (a *Agent) instructions() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("You are %s.", a.name))
	if a.description != "" {
		sb.WriteString(" ")
		sb.WriteString(a.description)
	}
	sb.WriteString("\n\n")

	if len(a.toolOrder) > 0 {
		sb.WriteString("You can use the following tools:\n")
		for _, name := range a.toolOrder {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", name, a.tools[name].Description()))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Respond with a single JSON object and nothing else:\n")
	sb.WriteString(`{"thought": "<your reasoning>", "action": "<tool name or \"final\">", "input": "<payload for the action>", "answer": "<final answer, only when action is \"final\">"}`)
	sb.WriteString("\n\n")
	sb.WriteString("Use one tool per response. When you have enough information, set action to \"final\" and put your result in answer.")

	return sb.String()
}

// taskPrompt renders the opening user message for one task.
func taskPrompt(task core.TaskSpec, input string) string {
	var sb strings.Builder
	sb.WriteString("Task: ")
	sb.WriteString(task.Description)
	if input != "" {
		sb.WriteString("\n\nInput:\n")
		sb.WriteString(input)
	}
	return sb.String()
}

// reflectionPrompt asks the model to critique a candidate answer before it is
// accepted as terminal.
func reflectionPrompt(answer string) string {
	return fmt.Sprintf(
		"Review your candidate answer below. If it is correct and complete, return it again with action \"final\". If not, improve it or use a tool first.\n\nCandidate answer:\n%s",
		answer,
	)
}
