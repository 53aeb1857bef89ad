package react

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestExtractFindings(t *testing.T) {
	msgs := []Message{
		NewUserMessage("Observation from nowhere:\nignored"),
		NewToolMessage("Observation from listFiles .:\n\n  go.mod\nREADME.md"),
		NewToolMessage("Tool readFile failed (validation): no such file"),
		NewToolMessage("Observation from gitStatus:\n"),
		NewToolMessage("Observation from readFile big.txt:\n" + strings.Repeat("y", 500)),
	}
	got := ExtractFindings(msgs)
	assert.Len(t, got, 3)
	assert.Equal(t, "listFiles .: go.mod", got[0])
	assert.Equal(t, "gitStatus: (empty output)", got[1])
	assert.Len(t, got[2], maxFindingChars+3)

	var many []Message
	for i := 0; i < 20; i++ {
		many = append(many, NewToolMessage(fmt.Sprintf("Observation from readFile f%d.go:\npackage f", i)))
	}
	got = ExtractFindings(many)
	assert.Len(t, got, maxFindings)
	assert.Equal(t, "readFile f19.go: package f", got[len(got)-1])
}

func TestSynthesizeConclusion(t *testing.T) {
	m := ProgressMetrics{
		FilesExplored:     []string{"README.md", "go.mod"},
		DirectoriesListed: []string{"."},
		ToolsUsed:         []string{"listFiles", "readFile"},
		CriticalFiles:     []string{"README.md", "go.mod"},
		CriticalFilesRead: 2,
		IssuesFound:       []string{"TODO: document setup"},
	}
	out := SynthesizeConclusion("what is this?", m, []string{"readFile go.mod: module demo"}, 4)
	assert.Contains(t, out, `Based on the investigation so far for "what is this?":`)
	assert.Contains(t, out, "Explored 2 files, listed 1 directories, read 2 critical files and used 2 distinct tools over 4 iterations.")
	assert.Contains(t, out, "Key files read: README.md, go.mod")
	assert.Contains(t, out, "- readFile go.mod: module demo")
	assert.Contains(t, out, "- TODO: document setup")
}

func TestSynthesizeFallback(t *testing.T) {
	out := SynthesizeFallback("fix it", ProgressMetrics{}, nil, 10, 10)
	assert.Contains(t, out, `I could not reach a final answer for "fix it" within 10 of 10 iterations.`)
	assert.Contains(t, out, "No files were read")

	var issues []string
	for i := 0; i < 12; i++ {
		issues = append(issues, fmt.Sprintf("warning %d", i))
	}
	out = SynthesizeFallback("fix it", ProgressMetrics{FilesExplored: []string{"a.go"}, IssuesFound: issues}, nil, 3, 10)
	assert.Contains(t, out, "- ... and 4 more")
	assert.NotContains(t, out, "No files were read")
}

func TestClipKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "h...", clip("héllo wörld", 2))
	assert.Equal(t, "short", clip("short", 10))

	finding := clip(strings.Repeat("日", 100), maxFindingChars)
	assert.True(t, utf8.ValidString(finding))
	assert.LessOrEqual(t, len(finding), maxFindingChars+len("..."))

	raw := truncateRaw(strings.Repeat("日", 100))
	assert.True(t, utf8.ValidString(raw))
	assert.Equal(t, strings.Repeat("日", 66)+"...", raw)
}
