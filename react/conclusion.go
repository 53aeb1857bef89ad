package react

import "fmt"

// Conclusion is the validator's decision on a proposed final answer.
type Conclusion struct {
	Ready     bool
	Reason    string
	NextSteps []string
}

// ConclusionValidator rejects final answers the evidence cannot support.
type ConclusionValidator struct {
	patterns *Patterns
}

// NewConclusionValidator creates a validator over the given tables.
func NewConclusionValidator(patterns *Patterns) *ConclusionValidator {
	return &ConclusionValidator{patterns: patterns}
}

// Validate applies the rules in order and returns the first rejection.
func (v *ConclusionValidator) Validate(userInput string, m ProgressMetrics) Conclusion {
	if mentioned := v.patterns.MentionedFiles(userInput); len(mentioned) > 0 && m.CriticalFilesRead == 0 {
		var steps []string
		for _, c := range mentioned {
			if c.File == "" {
				steps = append(steps, "listFiles .", "readFile <the project manifest from the listing>")
				continue
			}
			steps = append(steps, "readFile "+c.File)
		}
		return Conclusion{
			Reason:    "the question names specific files but none of them has been read",
			NextSteps: dedupe(steps),
		}
	}
	if len(m.ToolsUsed) == 0 {
		return Conclusion{
			Reason:    "no tools have been used; an answer needs evidence from the workspace",
			NextSteps: []string{"listFiles ."},
		}
	}
	if len(m.DirectoriesListed) == 0 && len(m.FilesExplored) == 0 {
		return Conclusion{
			Reason:    "nothing has been explored yet",
			NextSteps: []string{"listFiles .", "readFile <a relevant file>"},
		}
	}
	if v.patterns.HasAnalysisIntent(userInput) && m.CriticalFilesRead == 0 {
		return Conclusion{
			Reason:    fmt.Sprintf("analysis was requested but no key project files were read (explored %d files)", len(m.FilesExplored)),
			NextSteps: []string{"readFile <a manifest, entry point or README>"},
		}
	}
	return Conclusion{Ready: true}
}

func dedupe(in []string) []string {
	seen := make(stringSet, len(in))
	out := in[:0]
	for _, s := range in {
		if seen.add(s) {
			out = append(out, s)
		}
	}
	return out
}
