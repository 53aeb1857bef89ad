package react

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/martinemde/reactor/llm"
)

// scriptedModel replays responses in order and repeats the last one.
type scriptedModel struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     int
	prompts   []string
	models    []string
}

func (m *scriptedModel) Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.calls
	m.calls++
	m.prompts = append(m.prompts, prompt)
	m.models = append(m.models, opts.Model)
	if i < len(m.errs) && m.errs[i] != nil {
		return "", m.errs[i]
	}
	if len(m.responses) == 0 {
		return "", fmt.Errorf("no scripted response")
	}
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}
	return m.responses[i], nil
}

func (m *scriptedModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// fakeClock advances only when told to; Sleep records and returns at once.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	return ctx.Err()
}

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// stubFS is an in-memory project used by the test tools.
var stubFS = map[string]string{
	"package.json": `{"name": "demo", "scripts": {"test": "jest"}}`,
	"README.md":    "# demo\nTODO: document setup",
	"src/index.js": "console.log('hi')\n// FIXME handle errors",
	"go.mod":       "module demo",
}

var stubListings = map[string]string{
	".":   "package.json\nREADME.md\ngo.mod\nsrc/\n",
	"src": "index.js\n",
}

func newTestRegistry(t *testing.T) *ToolRegistry {
	t.Helper()
	reg := NewToolRegistry()
	tools := []RegisteredTool{
		{
			Descriptor: ToolDescriptor{Name: "listFiles", Description: "List a directory.", Class: ClassEnumerate,
				Params: []ParamSpec{{Name: "path", Type: ParamString, Default: "."}}},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				path, _ := GetStringArg(args, "path")
				if out, ok := stubListings[path]; ok {
					return out, nil
				}
				return "", NewToolError(KindValidation, fmt.Errorf("no such directory %s", path))
			},
		},
		{
			Descriptor: ToolDescriptor{Name: "readFile", Description: "Read a file.", Class: ClassRead,
				Params: []ParamSpec{{Name: "path", Type: ParamString, Required: true, NonEmpty: true}}},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				path, _ := GetStringArg(args, "path")
				if out, ok := stubFS[path]; ok {
					return out, nil
				}
				return "", NewToolError(KindValidation, fmt.Errorf("no such file %s", path))
			},
		},
		{
			Descriptor: ToolDescriptor{Name: "searchCode", Description: "Search.", Class: ClassSearch,
				Params: []ParamSpec{{Name: "pattern", Type: ParamString, Required: true, NonEmpty: true}}},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				pattern, _ := GetStringArg(args, "pattern")
				return "src/index.js:1:" + pattern, nil
			},
		},
		{
			Descriptor: ToolDescriptor{Name: "analyzeStructure", Description: "Analyze.", Class: ClassAnalyze,
				Params: []ParamSpec{{Name: "path", Type: ParamString, Required: true, NonEmpty: true}}},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				return "File: 2 functions", nil
			},
		},
		{
			Descriptor: ToolDescriptor{Name: "gitStatus", Description: "Status.", Class: ClassVCS},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				return "## main\n M src/index.js", nil
			},
		},
	}
	for _, tool := range tools {
		require.NoError(t, reg.Register(tool))
	}
	return reg
}

func call(tool string, input string) string {
	return fmt.Sprintf(`{"thought": "next step", "tool": %q, "toolInput": %s}`, tool, input)
}

func testPatterns(t *testing.T) *Patterns {
	t.Helper()
	p, err := CompilePatterns(DefaultPatternConfig())
	require.NoError(t, err)
	return p
}

func newTestOrchestrator(t *testing.T, model ModelClient, cfg Config, opts ...Option) (*Orchestrator, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	opts = append([]Option{WithClock(clock)}, opts...)
	o, err := NewOrchestrator(model, newTestRegistry(t), cfg, opts...)
	require.NoError(t, err)
	return o, clock
}
