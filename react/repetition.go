package react

import (
	"encoding/json"
	"fmt"
	"path"
	"time"
)

// RepetitionRule names the rule that blocked a call.
type RepetitionRule string

const (
	RuleExactRepeat           RepetitionRule = "exact_repeat"
	RuleRepeatListing         RepetitionRule = "repeat_listing"
	RuleListingWithoutReading RepetitionRule = "listing_without_reading"
	RuleRepeatRead            RepetitionRule = "repeat_read"
	RuleRepeatAnalysis        RepetitionRule = "repeat_analysis"
)

// CorrectiveAction tells the orchestrator how to respond to a block.
type CorrectiveAction string

const (
	ActionDiversify  CorrectiveAction = "diversify"
	ActionSubstitute CorrectiveAction = "substitute"
)

// ToolCallRecord is one executed call in the guard's history.
type ToolCallRecord struct {
	ToolName    string
	Class       ToolClass
	Target      string
	Fingerprint string
	Timestamp   time.Time
}

// Verdict is the guard's decision on a proposed call. A blocked verdict is
// not an error; the loop turns it into guidance.
type Verdict struct {
	Blocked bool
	Rule    RepetitionRule
	Reason  string
	Action  CorrectiveAction
	Count   int // prior matching executions
}

// RepetitionGuard remembers the most recent executed calls in a fixed-size
// ring and flags proposals that would repeat unproductive work.
type RepetitionGuard struct {
	cfg     RepetitionConfig
	records []ToolCallRecord
	head    int // index of the oldest record once the ring is full
}

// NewRepetitionGuard creates a guard.
func NewRepetitionGuard(cfg RepetitionConfig) *RepetitionGuard {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultConfig().Repetition.Capacity
	}
	return &RepetitionGuard{cfg: cfg, records: make([]ToolCallRecord, 0, cfg.Capacity)}
}

// Fingerprint returns the canonical form of a call. Map keys marshal in
// sorted order, so equal inputs produce equal fingerprints.
func Fingerprint(toolName string, args map[string]any) string {
	if args == nil {
		args = map[string]any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return toolName + ":" + fmt.Sprint(args)
	}
	return toolName + ":" + string(data)
}

// CallTarget returns the normalized object of a call: its path argument,
// "." for listings without one, or the search pattern.
func CallTarget(desc ToolDescriptor, args map[string]any) string {
	if p, ok := GetStringArg(args, "path"); ok && p != "" {
		return path.Clean(p)
	}
	if desc.Class == ClassEnumerate {
		return "."
	}
	if p, ok := GetStringArg(args, "pattern"); ok {
		return p
	}
	return ""
}

// Check evaluates a proposed call against the history without recording it.
func (g *RepetitionGuard) Check(desc ToolDescriptor, args map[string]any, now time.Time) Verdict {
	fp := Fingerprint(desc.Name, args)
	target := CallTarget(desc, args)
	history := g.History()

	exact := 0
	for _, r := range history {
		if r.Fingerprint == fp && within(r.Timestamp, now, g.cfg.ExactRepeatWindow) {
			exact++
		}
	}
	if exact >= g.cfg.ExactRepeatLimit {
		return Verdict{
			Blocked: true, Rule: RuleExactRepeat, Action: ActionDiversify, Count: exact,
			Reason: fmt.Sprintf("%s was already called with identical input %d times; the result will not change", desc.Name, exact),
		}
	}

	switch desc.Class {
	case ClassEnumerate:
		same := 0
		for _, r := range history {
			if r.Class == ClassEnumerate && r.Target == target && within(r.Timestamp, now, g.cfg.ListingRepeatWindow) {
				same++
			}
		}
		if same >= g.cfg.ListingRepeatLimit {
			return Verdict{
				Blocked: true, Rule: RuleRepeatListing, Action: ActionSubstitute, Count: same,
				Reason: fmt.Sprintf("directory %q was already listed %d times", target, same),
			}
		}
		sinceRead := 0
		for i := len(history) - 1; i >= 0 && history[i].Class != ClassRead; i-- {
			if history[i].Class == ClassEnumerate {
				sinceRead++
			}
		}
		if g.cfg.ListingsWithoutReadLimit > 0 && sinceRead >= g.cfg.ListingsWithoutReadLimit {
			return Verdict{
				Blocked: true, Rule: RuleListingWithoutReading, Action: ActionSubstitute, Count: sinceRead,
				Reason: fmt.Sprintf("%d directories were listed without reading any file", sinceRead),
			}
		}
	case ClassRead:
		if n := g.countTarget(history, ClassRead, target); n >= g.cfg.ReadRepeatLimit {
			return Verdict{
				Blocked: true, Rule: RuleRepeatRead, Action: ActionDiversify, Count: n,
				Reason: fmt.Sprintf("file %q was already read %d times", target, n),
			}
		}
	case ClassAnalyze:
		if n := g.countTarget(history, ClassAnalyze, target); n >= g.cfg.AnalysisRepeatLimit {
			return Verdict{
				Blocked: true, Rule: RuleRepeatAnalysis, Action: ActionDiversify, Count: n,
				Reason: fmt.Sprintf("%q was already analyzed", target),
			}
		}
	}
	return Verdict{}
}

func (g *RepetitionGuard) countTarget(history []ToolCallRecord, class ToolClass, target string) int {
	n := 0
	for _, r := range history {
		if r.Class == class && r.Target == target {
			n++
		}
	}
	return n
}

func within(ts, now time.Time, window time.Duration) bool {
	return window <= 0 || now.Sub(ts) <= window
}

// Record appends an executed call, evicting the oldest at capacity.
func (g *RepetitionGuard) Record(desc ToolDescriptor, args map[string]any, now time.Time) {
	rec := ToolCallRecord{
		ToolName:    desc.Name,
		Class:       desc.Class,
		Target:      CallTarget(desc, args),
		Fingerprint: Fingerprint(desc.Name, args),
		Timestamp:   now,
	}
	if len(g.records) < g.cfg.Capacity {
		g.records = append(g.records, rec)
		return
	}
	g.records[g.head] = rec
	g.head = (g.head + 1) % g.cfg.Capacity
}

// History returns the records oldest first.
func (g *RepetitionGuard) History() []ToolCallRecord {
	out := make([]ToolCallRecord, 0, len(g.records))
	out = append(out, g.records[g.head:]...)
	return append(out, g.records[:g.head]...)
}

// Len returns the number of records held.
func (g *RepetitionGuard) Len() int { return len(g.records) }

// Clear drops every record and returns how many were removed.
func (g *RepetitionGuard) Clear() int {
	n := len(g.records)
	g.records = g.records[:0]
	g.head = 0
	return n
}
