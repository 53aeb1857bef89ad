package react

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// WorkflowState is the coarse phase of a session. States only move forward
// until Reset.
type WorkflowState int

const (
	StateInitial WorkflowState = iota
	StateExploring
	StateAnalyzing
	StateDiagnosing
	StateConcluding
	StateCompleted
)

var workflowStateNames = [...]string{"initial", "exploring", "analyzing", "diagnosing", "concluding", "completed"}

func (s WorkflowState) String() string {
	if s < 0 || int(s) >= len(workflowStateNames) {
		return fmt.Sprintf("WorkflowState(%d)", int(s))
	}
	return workflowStateNames[s]
}

// ProgressMetrics is a point-in-time copy of what a session has done.
type ProgressMetrics struct {
	FilesExplored     []string      `json:"files_explored"`
	DirectoriesListed []string      `json:"directories_listed"`
	ToolsUsed         []string      `json:"tools_used"`
	CriticalFiles     []string      `json:"critical_files"`
	CriticalFilesRead int           `json:"critical_files_read"`
	IssuesFound       []string      `json:"issues_found,omitempty"`
	CompletionSignals []string      `json:"completion_signals,omitempty"`
	State             WorkflowState `json:"state"`
}

// Summary renders the counts on one line for prompts and fallbacks.
func (m ProgressMetrics) Summary() string {
	return fmt.Sprintf("state=%s files=%d directories=%d critical_files=%d tools=%d issues=%d",
		m.State, len(m.FilesExplored), len(m.DirectoriesListed), m.CriticalFilesRead, len(m.ToolsUsed), len(m.IssuesFound))
}

type stringSet map[string]struct{}

func (s stringSet) add(v string) bool {
	if _, ok := s[v]; ok {
		return false
	}
	s[v] = struct{}{}
	return true
}

func (s stringSet) sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// ProgressTracker accumulates evidence of useful work and decides when the
// session has enough to conclude.
type ProgressTracker struct {
	cfg      ProgressConfig
	patterns *Patterns

	files       stringSet
	directories stringSet
	tools       stringSet
	critical    stringSet
	seen        []string // critical files seen in listings, in order
	issues      []string
	issueSet    stringSet
	signals     []string
	state       WorkflowState
}

// NewProgressTracker creates an empty tracker.
func NewProgressTracker(cfg ProgressConfig, patterns *Patterns) *ProgressTracker {
	t := &ProgressTracker{cfg: cfg, patterns: patterns}
	t.Reset()
	return t
}

// Reset empties every set and returns to the initial state.
func (t *ProgressTracker) Reset() {
	t.files = stringSet{}
	t.directories = stringSet{}
	t.tools = stringSet{}
	t.critical = stringSet{}
	t.issueSet = stringSet{}
	t.seen = nil
	t.issues = nil
	t.signals = nil
	t.state = StateInitial
}

// Update records an executed call.
func (t *ProgressTracker) Update(desc ToolDescriptor, args map[string]any) {
	t.tools.add(desc.Name)
	target := CallTarget(desc, args)

	switch desc.Class {
	case ClassEnumerate:
		t.directories.add(target)
		t.Advance(StateExploring)
	case ClassRead:
		if target == "" {
			return
		}
		t.files.add(target)
		if t.patterns != nil && t.patterns.IsCriticalFile(target) {
			t.critical.add(target)
			t.Advance(StateAnalyzing)
		}
	case ClassAnalyze:
		t.Advance(StateDiagnosing)
	case ClassVCS:
		t.signals = append(t.signals, desc.Name)
	}
}

// Observe mines a successful observation: critical files named in a listing
// become substitution candidates, and issue lines are collected.
func (t *ProgressTracker) Observe(desc ToolDescriptor, args map[string]any, output string) {
	if t.patterns == nil {
		return
	}
	if desc.Class == ClassEnumerate {
		dir := CallTarget(desc, args)
		for _, line := range strings.Split(output, "\n") {
			entry := strings.TrimSpace(line)
			if entry == "" || strings.HasSuffix(entry, "/") {
				continue
			}
			candidate := path.Join(dir, entry)
			if t.patterns.IsCriticalFile(candidate) && !containsString(t.seen, candidate) {
				t.seen = append(t.seen, candidate)
			}
		}
		return
	}
	for _, line := range t.patterns.IssueLines(output) {
		if t.cfg.MaxIssues > 0 && len(t.issues) >= t.cfg.MaxIssues {
			return
		}
		if t.issueSet.add(line) {
			t.issues = append(t.issues, line)
		}
	}
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// UnreadCriticalFiles returns critical files seen in listings but not yet
// read, in discovery order.
func (t *ProgressTracker) UnreadCriticalFiles() []string {
	var out []string
	for _, f := range t.seen {
		if _, read := t.files[f]; !read {
			out = append(out, f)
		}
	}
	return out
}

// Advance moves the state forward to target; earlier targets are ignored.
func (t *ProgressTracker) Advance(target WorkflowState) {
	t.state = max(t.state, target)
}

// WorkflowState returns the current state.
func (t *ProgressTracker) WorkflowState() WorkflowState { return t.state }

// HasMinimumProgress reports whether enough was explored to say something
// grounded.
func (t *ProgressTracker) HasMinimumProgress() bool {
	return len(t.directories) >= t.cfg.MinDirectories &&
		len(t.files) >= t.cfg.MinFilesExplored &&
		len(t.tools) >= t.cfg.MinDistinctTools
}

// ShouldConclude reports whether the loop should stop and synthesize an
// answer before asking the model again.
func (t *ProgressTracker) ShouldConclude(iteration, budget int) bool {
	critical := len(t.critical)
	if len(t.directories) >= t.cfg.ConcludeDirectories &&
		critical >= t.cfg.ConcludeCriticalFiles &&
		len(t.tools) >= t.cfg.ConcludeDistinctTools {
		return true
	}
	if t.state == StateDiagnosing && critical >= t.cfg.DiagnosingCriticalFiles {
		return true
	}
	return budget > 0 &&
		float64(iteration) >= t.cfg.TimePressureRatio*float64(budget) &&
		t.HasMinimumProgress()
}

// Metrics returns a snapshot.
func (t *ProgressTracker) Metrics() ProgressMetrics {
	return ProgressMetrics{
		FilesExplored:     t.files.sorted(),
		DirectoriesListed: t.directories.sorted(),
		ToolsUsed:         t.tools.sorted(),
		CriticalFiles:     t.critical.sorted(),
		CriticalFilesRead: len(t.critical),
		IssuesFound:       append([]string(nil), t.issues...),
		CompletionSignals: append([]string(nil), t.signals...),
		State:             t.state,
	}
}
