package react

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// TruncationMode specifies how output is truncated.
type TruncationMode string

const (
	TruncateHeadTail TruncationMode = "head_tail"
	TruncateTail     TruncationMode = "tail"
)

// Observation limits per tool class. Observations go back into the prompt,
// so they are far tighter than what a tool may return.
var (
	DefaultClassCharLimits = map[ToolClass]int{
		ClassRead:      12000,
		ClassEnumerate: 6000,
		ClassSearch:    6000,
		ClassAnalyze:   8000,
		ClassVCS:       8000,
		ClassWrite:     1000,
		ClassOther:     8000,
	}
	DefaultClassModes = map[ToolClass]TruncationMode{
		ClassRead:      TruncateHeadTail,
		ClassEnumerate: TruncateHeadTail,
		ClassSearch:    TruncateTail,
		ClassAnalyze:   TruncateHeadTail,
		ClassVCS:       TruncateHeadTail,
		ClassWrite:     TruncateTail,
	}
	DefaultClassLineLimits = map[ToolClass]int{
		ClassEnumerate: 300,
		ClassSearch:    200,
	}
)

// TruncateOutput applies character-based truncation to output.
func TruncateOutput(output string, maxChars int, mode TruncationMode) string {
	if maxChars <= 0 || len(output) <= maxChars {
		return output
	}
	removed := len(output) - maxChars
	if mode == TruncateTail {
		return fmt.Sprintf("[output truncated: first %d characters removed]\n\n", removed) +
			tailBytes(output, maxChars)
	}
	half := maxChars / 2
	return headBytes(output, half) +
		fmt.Sprintf("\n\n[output truncated: %d characters removed from the middle; "+
			"re-run the tool with narrower parameters to see more]\n\n", removed) +
		tailBytes(output, half)
}

// headBytes returns at most the first n bytes of s, cut on a rune boundary.
func headBytes(s string, n int) string {
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// tailBytes returns at most the last n bytes of s, cut on a rune boundary.
func tailBytes(s string, n int) string {
	if n >= len(s) {
		return s
	}
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return s[i:]
}

// TruncateLines keeps the head and tail of output up to maxLines lines.
func TruncateLines(output string, maxLines int) string {
	lines := strings.Split(output, "\n")
	if maxLines <= 0 || len(lines) <= maxLines {
		return output
	}
	headCount := maxLines / 2
	tailCount := maxLines - headCount
	omitted := len(lines) - headCount - tailCount
	return strings.Join(lines[:headCount], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tailCount:], "\n")
}

// TruncateObservation applies character then line truncation for a class.
// A positive override replaces the class character limit.
func TruncateObservation(output string, class ToolClass, override int) string {
	maxChars := override
	if maxChars <= 0 {
		var ok bool
		if maxChars, ok = DefaultClassCharLimits[class]; !ok {
			maxChars = DefaultClassCharLimits[ClassOther]
		}
	}
	mode, ok := DefaultClassModes[class]
	if !ok {
		mode = TruncateHeadTail
	}
	return TruncateLines(TruncateOutput(output, maxChars, mode), DefaultClassLineLimits[class])
}
