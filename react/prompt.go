package react

import (
	"fmt"
	"strings"

	"github.com/martinemde/reactor/llm"
)

const responseFormat = `Respond with exactly one JSON object and nothing after it:
{"thought": "<your reasoning>", "tool": "<tool name>", "toolInput": {<arguments>}}
When you have enough evidence, use the tool "final_answer" with {"answer": "<complete answer>"}.`

// BuildSystemPrompt renders the role, tool catalog and response format.
func BuildSystemPrompt(descriptors []ToolDescriptor, workingDir string) string {
	var sb strings.Builder
	sb.WriteString("You are a coding assistant that investigates a software project with tools before answering.\n")
	sb.WriteString("Explore first: list directories, read the files that matter, then answer from evidence.\n")
	sb.WriteString("Never repeat a call that already returned its result.\n\n")
	if workingDir != "" {
		fmt.Fprintf(&sb, "<environment>\nWorking directory: %s\n</environment>\n\n", workingDir)
	}
	sb.WriteString("<tools>\n")
	for _, d := range descriptors {
		fmt.Fprintf(&sb, "- %s (%s): %s\n", d.Name, d.Class, d.Description)
		for _, p := range d.Params {
			req := "optional"
			if p.Required {
				req = "required"
			}
			fmt.Fprintf(&sb, "    %s %s, %s", p.Name, p.Type, req)
			if len(p.Enum) > 0 {
				fmt.Fprintf(&sb, ", one of %s", strings.Join(p.Enum, "|"))
			}
			if p.Description != "" {
				fmt.Fprintf(&sb, ": %s", p.Description)
			}
			sb.WriteString("\n")
		}
	}
	sb.WriteString("</tools>\n\n")
	sb.WriteString(responseFormat)
	return sb.String()
}

// PromptInput is everything the per-iteration prompt is built from.
type PromptInput struct {
	Task        string
	Iteration   int
	Budget      int
	Progress    ProgressMetrics
	History     []Message
	TokenBudget int
	Counter     *llm.TokenCounter
}

// BuildPrompt renders the per-iteration prompt. History is trimmed from the
// oldest end until it fits the token budget; the newest message is always
// kept.
func BuildPrompt(in PromptInput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Task: %s\n\n", in.Task)
	fmt.Fprintf(&sb, "Iteration %d of %d. Workflow state: %s.\n", in.Iteration+1, in.Budget, in.Progress.State)
	fmt.Fprintf(&sb, "Progress: %s\n", in.Progress.Summary())
	if len(in.Progress.FilesExplored) > 0 {
		fmt.Fprintf(&sb, "Files already read: %s\n", strings.Join(in.Progress.FilesExplored, ", "))
	}
	if len(in.Progress.DirectoriesListed) > 0 {
		fmt.Fprintf(&sb, "Directories already listed: %s\n", strings.Join(in.Progress.DirectoriesListed, ", "))
	}
	if remaining := in.Budget - in.Iteration; remaining <= 2 {
		fmt.Fprintf(&sb, "Only %d iteration(s) left: answer with final_answer as soon as the evidence allows.\n", remaining)
	}

	history := TrimToTokenBudget(in.History, in.TokenBudget, in.Counter)
	if len(history) > 0 {
		sb.WriteString("\nConversation so far:\n")
		sb.WriteString(RenderTranscript(history))
		sb.WriteString("\n")
	}
	sb.WriteString("\nWhat is your next step?")
	return sb.String()
}

// TrimToTokenBudget drops the oldest messages until the rendered transcript
// fits within budget tokens. A non-positive budget disables trimming.
func TrimToTokenBudget(messages []Message, budget int, counter *llm.TokenCounter) []Message {
	if budget <= 0 || len(messages) == 0 {
		return messages
	}
	costs := make([]int, len(messages))
	total := 0
	for i, m := range messages {
		costs[i] = counter.Count(fmt.Sprintf("[%s] %s", m.Role, m.Content)) + 1
		total += costs[i]
	}
	start := 0
	for total > budget && start < len(messages)-1 {
		total -= costs[start]
		start++
	}
	return messages[start:]
}
