package react

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// FileCategory maps a mention in the user's text to the file that should be
// read before answering.
type FileCategory struct {
	Pattern string `yaml:"pattern"`
	File    string `yaml:"file"`
}

// PatternConfig holds the classification tables as plain regular
// expressions so they can be overridden from YAML.
type PatternConfig struct {
	DirectAnswer   []string       `yaml:"direct_answer"`
	CriticalFiles  []string       `yaml:"critical_files"`
	AnalysisIntent []string       `yaml:"analysis_intent"`
	FileCategories []FileCategory `yaml:"file_categories"`
	IssueMarkers   []string       `yaml:"issue_markers"`
	DeniedPaths    []string       `yaml:"denied_paths"`
}

// DefaultPatternConfig returns the built-in tables.
func DefaultPatternConfig() PatternConfig {
	return PatternConfig{
		DirectAnswer: []string{
			`(?i)^\s*(hi|hello|hey|yo|howdy|greetings)[\s!.,]*$`,
			`(?i)^\s*good (morning|afternoon|evening)[\s!.,]*$`,
			`(?i)^\s*(thanks|thank you|thx|cheers)\b`,
			`(?i)^\s*how are you\b`,
			`(?i)^\s*who are you\??\s*$`,
			`(?i)^\s*what can you do\??\s*$`,
			`(?i)^\s*(bye|goodbye|see you)[\s!.,]*$`,
		},
		CriticalFiles: []string{
			`(^|/)(package\.json|go\.mod|Cargo\.toml|pyproject\.toml|requirements\.txt|pom\.xml|Gemfile|composer\.json|setup\.py|setup\.cfg)$`,
			`(^|/)build\.gradle(\.kts)?$`,
			`(^|/)(tsconfig\.json|docker-compose\.ya?ml|Dockerfile|Makefile)$`,
			`(^|/)(\.eslintrc(\.\w+)?|eslint\.config\.\w+|\.golangci\.ya?ml|\.flake8|\.pylintrc|ruff\.toml|\.prettierrc(\.\w+)?)$`,
			`(?i)(^|/)readme(\.\w+)?$`,
			`(^|/)(main|index|app|server|lib)\.(go|js|mjs|ts|py|rs|java|rb)$`,
			`(^|/)cmd/[^/]+/main\.go$`,
			`(^|/)(webpack|vite|rollup)\.config\.\w+$`,
		},
		AnalysisIntent: []string{
			`(?i)\b(analy[sz]e|analysis|review|explain|debug|diagnose|error|errors|issue|issues|bug|bugs|problem)\b`,
		},
		FileCategories: []FileCategory{
			{Pattern: `(?i)\bpackage\.json\b`, File: "package.json"},
			{Pattern: `(?i)\bgo\.mod\b`, File: "go.mod"},
			{Pattern: `(?i)\bcargo\.toml\b`, File: "Cargo.toml"},
			{Pattern: `(?i)\bpyproject\.toml\b`, File: "pyproject.toml"},
			{Pattern: `(?i)\brequirements\.txt\b`, File: "requirements.txt"},
			{Pattern: `(?i)\btsconfig\.json\b`, File: "tsconfig.json"},
			{Pattern: `(?i)\breadme\b`, File: "README.md"},
			{Pattern: `(?i)\bmakefile\b`, File: "Makefile"},
			{Pattern: `(?i)\bdockerfile\b`, File: "Dockerfile"},
			{Pattern: `(?i)\b(config|configuration|manifest) files?\b`, File: ""},
		},
		IssueMarkers: []string{
			`(?i)\b(error|warning|warn|fail|failed|failure|panic|exception|deprecated|vulnerab\w*)\b`,
			`\b(TODO|FIXME|XXX|HACK)\b`,
		},
		DeniedPaths: []string{
			`(?i)^/?path/to(/|$)`,
			`^<[^>]*>$`,
			`(?i)^(example|sample|your[_-]?file|filename|somefile)\.\w+$`,
			`(?i)^/?(your|my)[_-]?(project|dir|directory|file|repo)(/|$)`,
			`^\.\.\.$`,
			`(?i)^placeholder`,
		},
	}
}

type compiledCategory struct {
	re   *regexp.Regexp
	file string
}

// Patterns is the compiled form of PatternConfig. It is immutable and safe
// for concurrent use.
type Patterns struct {
	directAnswer   []*regexp.Regexp
	criticalFiles  []*regexp.Regexp
	analysisIntent []*regexp.Regexp
	fileCategories []compiledCategory
	issueMarkers   []*regexp.Regexp
	deniedPaths    []*regexp.Regexp
}

// CompilePatterns compiles every table, reporting the first bad expression.
func CompilePatterns(pc PatternConfig) (*Patterns, error) {
	p := &Patterns{}
	tables := []struct {
		name string
		src  []string
		dst  *[]*regexp.Regexp
	}{
		{"direct_answer", pc.DirectAnswer, &p.directAnswer},
		{"critical_files", pc.CriticalFiles, &p.criticalFiles},
		{"analysis_intent", pc.AnalysisIntent, &p.analysisIntent},
		{"issue_markers", pc.IssueMarkers, &p.issueMarkers},
		{"denied_paths", pc.DeniedPaths, &p.deniedPaths},
	}
	for _, table := range tables {
		for _, expr := range table.src {
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("patterns.%s: %w", table.name, err)
			}
			*table.dst = append(*table.dst, re)
		}
	}
	for _, fc := range pc.FileCategories {
		re, err := regexp.Compile(fc.Pattern)
		if err != nil {
			return nil, fmt.Errorf("patterns.file_categories: %w", err)
		}
		p.fileCategories = append(p.fileCategories, compiledCategory{re: re, file: fc.File})
	}
	return p, nil
}

// MustCompilePatterns is CompilePatterns for tables known to be valid.
func MustCompilePatterns(pc PatternConfig) *Patterns {
	p, err := CompilePatterns(pc)
	if err != nil {
		panic(err)
	}
	return p
}

func matchAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// IsDirectAnswer reports whether input is conversational chat that needs no
// tools.
func (p *Patterns) IsDirectAnswer(input string) bool {
	return matchAny(p.directAnswer, strings.TrimSpace(input))
}

// IsCriticalFile reports whether a path is high-value for analysis.
func (p *Patterns) IsCriticalFile(filePath string) bool {
	cleaned := path.Clean(strings.ReplaceAll(filePath, "\\", "/"))
	return matchAny(p.criticalFiles, cleaned)
}

// HasAnalysisIntent reports whether the user asks for analysis or debugging.
func (p *Patterns) HasAnalysisIntent(input string) bool {
	return matchAny(p.analysisIntent, input)
}

// MentionedFiles returns the file categories named in input, in table
// order. A category with an empty File is a generic mention.
func (p *Patterns) MentionedFiles(input string) []FileCategory {
	var found []FileCategory
	for _, c := range p.fileCategories {
		if c.re.MatchString(input) {
			found = append(found, FileCategory{Pattern: c.re.String(), File: c.file})
		}
	}
	return found
}

// IssueLines returns the trimmed lines of text that carry an issue marker.
func (p *Patterns) IssueLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if matchAny(p.issueMarkers, line) {
			lines = append(lines, line)
		}
	}
	return lines
}

// IsDeniedPath reports whether a path is a conventional placeholder that
// cannot exist.
func (p *Patterns) IsDeniedPath(filePath string) bool {
	return matchAny(p.deniedPaths, strings.TrimSpace(filePath))
}
