package react

import (
	"fmt"
	"strings"

	"github.com/martinemde/reactor/llm"
)

const (
	observationPrefix = "Observation from "
	maxFindings       = 8
	maxFindingChars   = 160
)

// ExtractFindings pulls a one-line gist from each tool observation in
// messages, newest last.
func ExtractFindings(messages []Message) []string {
	var findings []string
	for _, m := range messages {
		if m.Role != llm.RoleTool || !strings.HasPrefix(m.Content, observationPrefix) {
			continue
		}
		header, body, _ := strings.Cut(m.Content, "\n")
		header = strings.TrimSuffix(strings.TrimPrefix(header, observationPrefix), ":")
		gist := firstLine(body)
		if gist == "" {
			gist = "(empty output)"
		}
		findings = append(findings, clip(header+": "+gist, maxFindingChars))
	}
	if len(findings) > maxFindings {
		findings = findings[len(findings)-maxFindings:]
	}
	return findings
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return headBytes(s, n) + "..."
}

func evidenceLine(m ProgressMetrics, iterations int) string {
	return fmt.Sprintf("Explored %d files, listed %d directories, read %d critical files and used %d distinct tools over %d iterations.",
		len(m.FilesExplored), len(m.DirectoriesListed), m.CriticalFilesRead, len(m.ToolsUsed), iterations)
}

func writeEvidence(sb *strings.Builder, m ProgressMetrics, findings []string) {
	if len(m.CriticalFiles) > 0 {
		fmt.Fprintf(sb, "\nKey files read: %s\n", strings.Join(m.CriticalFiles, ", "))
	}
	if len(m.DirectoriesListed) > 0 {
		fmt.Fprintf(sb, "Directories listed: %s\n", strings.Join(m.DirectoriesListed, ", "))
	}
	if len(findings) > 0 {
		sb.WriteString("\nFindings:\n")
		for _, f := range findings {
			fmt.Fprintf(sb, "- %s\n", f)
		}
	}
	if len(m.IssuesFound) > 0 {
		sb.WriteString("\nPotential issues spotted:\n")
		for i, issue := range m.IssuesFound {
			if i == maxFindings {
				fmt.Fprintf(sb, "- ... and %d more\n", len(m.IssuesFound)-maxFindings)
				break
			}
			fmt.Fprintf(sb, "- %s\n", clip(issue, maxFindingChars))
		}
	}
}

// SynthesizeConclusion builds the answer given when the loop concludes early
// on sufficient evidence.
func SynthesizeConclusion(task string, m ProgressMetrics, findings []string, iterations int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Based on the investigation so far for %q:\n", task)
	sb.WriteString(evidenceLine(m, iterations))
	sb.WriteString("\n")
	writeEvidence(&sb, m, findings)
	return strings.TrimSpace(sb.String())
}

// SynthesizeFallback builds the forced summary given when the budget runs
// out or the run is cancelled.
func SynthesizeFallback(task string, m ProgressMetrics, findings []string, iterations, budget int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "I could not reach a final answer for %q within %d of %d iterations. Here is what I found.\n", task, iterations, budget)
	sb.WriteString(evidenceLine(m, iterations))
	sb.WriteString("\n")
	writeEvidence(&sb, m, findings)
	if len(m.FilesExplored) == 0 {
		sb.WriteString("\nNo files were read; try a narrower question or name the files to look at.")
	}
	return strings.TrimSpace(sb.String())
}

const directFallback = "Hello! I'm a coding assistant. Ask me about this project and I'll explore its files to answer."
