package react

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martinemde/reactor/llm"
)

func countMessages(msgs []Message, role llm.Role, substr string) int {
	n := 0
	for _, m := range msgs {
		if m.Role == role && strings.Contains(m.Content, substr) {
			n++
		}
	}
	return n
}

func TestRunBlocksThirdIdenticalListing(t *testing.T) {
	model := &scriptedModel{responses: []string{
		call("listFiles", `{"path": "."}`),
		call("listFiles", `{"path": "."}`),
		call("listFiles", `{"path": "."}`),
		call("final_answer", `{"answer": "src contains index.js"}`),
	}}
	metrics := NewMetrics(prometheus.NewRegistry())
	o, _ := newTestOrchestrator(t, model, DefaultConfig(), WithMetrics(metrics))

	answer, err := o.Run(context.Background(), "list files in src")
	require.NoError(t, err)

	assert.Equal(t, TerminationAnswered, answer.Reason)
	assert.Equal(t, "src contains index.js", answer.Content)
	assert.Equal(t, 4, answer.ModelCalls)

	msgs := o.Session().Memory.Messages()
	assert.Equal(t, 2, countMessages(msgs, llm.RoleTool, "Observation from listFiles ."))
	assert.Equal(t, 1, countMessages(msgs, llm.RoleTool, "Blocked listFiles (exact_repeat)"))
	assert.Equal(t, 2, o.Session().Guard.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.blocks.WithLabelValues(string(RuleExactRepeat))))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.terminations.WithLabelValues(string(TerminationAnswered))))
}

func TestRunRejectsUnsupportedFinalAnswer(t *testing.T) {
	model := &scriptedModel{responses: []string{
		call("final_answer", `{"answer": "It is a Node project."}`),
		call("readFile", `{"path": "package.json"}`),
		call("final_answer", `{"answer": "package.json names the demo project."}`),
	}}
	metrics := NewMetrics(nil)
	o, _ := newTestOrchestrator(t, model, DefaultConfig(), WithMetrics(metrics))

	answer, err := o.Run(context.Background(), "what's in package.json?")
	require.NoError(t, err)

	msgs := o.Session().Memory.Messages()
	require.Equal(t, 1, countMessages(msgs, llm.RoleTool, "Final answer rejected"))
	assert.Equal(t, 1, countMessages(msgs, llm.RoleTool, "Next steps: readFile package.json"))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.rejections))

	assert.Equal(t, TerminationAnswered, answer.Reason)
	assert.Equal(t, "package.json names the demo project.", answer.Content)
	assert.Equal(t, 3, answer.Iterations)
	assert.Equal(t, StateCompleted, o.Session().State())
}

func TestRunBudgetExhaustedReturnsFallback(t *testing.T) {
	model := &scriptedModel{responses: []string{
		call("searchCode", `{"pattern": "alpha"}`),
		call("searchCode", `{"pattern": "beta"}`),
		call("searchCode", `{"pattern": "gamma"}`),
		call("searchCode", `{"pattern": "delta"}`),
		call("searchCode", `{"pattern": "epsilon"}`),
	}}
	cfg := DefaultConfig()
	cfg.Loop.IterationBudget = 5
	o, _ := newTestOrchestrator(t, model, cfg)

	answer, err := o.Run(context.Background(), "find the greek letters")
	require.NoError(t, err)

	assert.Equal(t, TerminationBudgetExhausted, answer.Reason)
	assert.Equal(t, 5, answer.Iterations)
	assert.Equal(t, 5, model.callCount())
	assert.Contains(t, answer.Content, "Explored 0 files, listed 0 directories, read 0 critical files and used 1 distinct tools over 5 iterations.")
	assert.Contains(t, answer.Content, "searchCode alpha")
	assert.Equal(t, 5, o.Session().Guard.Len())
}

func TestRunContinuesAfterParseError(t *testing.T) {
	model := &scriptedModel{responses: []string{
		"I think I should look around first.",
		call("listFiles", `{"path": "."}`),
		call("final_answer", `{"answer": "The project has package.json, README.md, go.mod and src."}`),
	}}
	metrics := NewMetrics(nil)
	o, _ := newTestOrchestrator(t, model, DefaultConfig(), WithMetrics(metrics))

	answer, err := o.Run(context.Background(), "show me the layout")
	require.NoError(t, err)

	msgs := o.Session().Memory.Messages()
	assert.Equal(t, 1, countMessages(msgs, llm.RoleTool, "Parse error"))
	assert.Equal(t, 1, countMessages(msgs, llm.RoleTool, "Observation from listFiles ."))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.parseErrors))
	assert.Equal(t, TerminationAnswered, answer.Reason)
	assert.Equal(t, 3, answer.ModelCalls)

	// The diagnostic comes before the observation.
	var order []string
	for _, m := range msgs {
		switch {
		case strings.Contains(m.Content, "Parse error"):
			order = append(order, "parse")
		case strings.HasPrefix(m.Content, observationPrefix):
			order = append(order, "observation")
		}
	}
	assert.Equal(t, []string{"parse", "observation"}, order)
}

func TestRunTerminatesWithinBudget(t *testing.T) {
	model := &scriptedModel{responses: []string{"no json here"}}
	cfg := DefaultConfig()
	cfg.Loop.IterationBudget = 10
	o, _ := newTestOrchestrator(t, model, cfg)

	answer, err := o.Run(context.Background(), "explain the build")
	require.NoError(t, err)
	assert.Equal(t, TerminationBudgetExhausted, answer.Reason)
	assert.LessOrEqual(t, model.callCount(), cfg.Loop.IterationBudget+1)
	assert.Equal(t, 10, answer.Iterations)
}

func TestRunDirectAnswer(t *testing.T) {
	model := &scriptedModel{responses: []string{"Hi there!"}}
	o, _ := newTestOrchestrator(t, model, DefaultConfig())

	answer, err := o.Run(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, TerminationDirect, answer.Reason)
	assert.Equal(t, "Hi there!", answer.Content)
	assert.Equal(t, 1, answer.ModelCalls)
	assert.Equal(t, 0, answer.Iterations)
}

func TestRunDirectAnswerFallsBackToCannedReply(t *testing.T) {
	model := &scriptedModel{errs: []error{assert.AnError}}
	o, _ := newTestOrchestrator(t, model, DefaultConfig())

	answer, err := o.Run(context.Background(), "thanks!")
	require.NoError(t, err)
	assert.Equal(t, TerminationDirect, answer.Reason)
	assert.Equal(t, directFallback, answer.Content)
}

func TestRunResetClearsSession(t *testing.T) {
	model := &scriptedModel{responses: []string{
		call("listFiles", `{"path": "."}`),
		call("final_answer", `{"answer": "done"}`),
	}}
	o, _ := newTestOrchestrator(t, model, DefaultConfig())

	_, err := o.Run(context.Background(), "list the files")
	require.NoError(t, err)
	require.Positive(t, o.Session().Memory.Len())

	before := o.Session().Memory.Len() + 1
	answer, err := o.Run(context.Background(), "/reset")
	require.NoError(t, err)
	assert.Equal(t, TerminationReset, answer.Reason)
	assert.Contains(t, answer.Content, "cleared "+strconv.Itoa(before)+" messages and 1 tool-call records")
	assert.Equal(t, 0, o.Session().Memory.Len())
	assert.Equal(t, 0, o.Session().Guard.Len())
	assert.Equal(t, StateInitial, o.Session().State())
	assert.Empty(t, o.Session().Progress.Metrics().ToolsUsed)
}

func TestRunConcludesEarlyWhenDiagnosing(t *testing.T) {
	model := &scriptedModel{responses: []string{
		call("listFiles", `{"path": "."}`),
		call("listFiles", `{"path": "src"}`),
		call("readFile", `{"path": "package.json"}`),
		call("readFile", `{"path": "README.md"}`),
		call("readFile", `{"path": "go.mod"}`),
		call("analyzeStructure", `{"path": "src/index.js"}`),
		call("gitStatus", `{}`),
	}}
	o, _ := newTestOrchestrator(t, model, DefaultConfig())

	answer, err := o.Run(context.Background(), "review this project")
	require.NoError(t, err)
	assert.Equal(t, TerminationEarlyConclusion, answer.Reason)
	assert.Equal(t, 6, answer.ModelCalls)
	assert.Contains(t, answer.Content, "Key files read: README.md, go.mod, package.json")
	assert.Contains(t, answer.Content, "TODO: document setup")
	assert.Equal(t, StateCompleted, o.Session().State())
}

func TestRunFollowUpAfterEarlyConclusionAsksModel(t *testing.T) {
	model := &scriptedModel{responses: []string{
		call("listFiles", `{"path": "."}`),
		call("listFiles", `{"path": "src"}`),
		call("readFile", `{"path": "package.json"}`),
		call("readFile", `{"path": "README.md"}`),
		call("readFile", `{"path": "go.mod"}`),
		call("analyzeStructure", `{"path": "src/index.js"}`),
		call("readFile", `{"path": "src/index.js"}`),
		call("gitStatus", `{}`),
	}}
	o, _ := newTestOrchestrator(t, model, DefaultConfig())

	first, err := o.Run(context.Background(), "review this project")
	require.NoError(t, err)
	require.Equal(t, TerminationEarlyConclusion, first.Reason)
	require.Equal(t, 6, model.callCount())

	second, err := o.Run(context.Background(), "now explain how src/index.js handles errors")
	require.NoError(t, err)
	assert.Equal(t, 2, second.ModelCalls)
	assert.Equal(t, 8, model.callCount())
	assert.Contains(t, model.prompts[6], "now explain how src/index.js handles errors")
	assert.Equal(t, TerminationEarlyConclusion, second.Reason)
	assert.Equal(t, 2, second.Iterations)
	assert.Contains(t, second.Metrics.FilesExplored, "src/index.js")
	assert.NotEqual(t, first.Content, second.Content)
}

func TestRunBlockedWithMinimumProgressConcludes(t *testing.T) {
	model := &scriptedModel{responses: []string{
		call("listFiles", `{"path": "."}`),
		call("readFile", `{"path": "package.json"}`),
		call("readFile", `{"path": "README.md"}`),
		call("searchCode", `{"pattern": "console"}`),
		call("listFiles", `{"path": "."}`),
		call("listFiles", `{"path": "."}`),
	}}
	o, _ := newTestOrchestrator(t, model, DefaultConfig())

	answer, err := o.Run(context.Background(), "what does this do")
	require.NoError(t, err)
	assert.Equal(t, TerminationEarlyConclusion, answer.Reason)
	assert.Equal(t, 6, answer.ModelCalls)
	assert.Equal(t, 6, answer.Iterations)
}

func TestRunAutoSubstitutesAfterRepeatedListing(t *testing.T) {
	script := []string{
		call("listFiles", `{"path": "."}`),
		call("listFiles", `{"path": ".", "depth": 2}`),
		call("listFiles", `{"path": ".", "depth": 3}`),
		call("final_answer", `{"answer": "done"}`),
	}

	t.Run("auto", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Loop.AutoSubstitute = true
		o, _ := newTestOrchestrator(t, &scriptedModel{responses: script}, cfg)
		_, err := o.Run(context.Background(), "describe the layout")
		require.NoError(t, err)

		msgs := o.Session().Memory.Messages()
		assert.Equal(t, 1, countMessages(msgs, llm.RoleTool, "(repeat_listing)"))
		assert.Equal(t, 1, countMessages(msgs, llm.RoleTool, "Observation from readFile package.json"))
		assert.Contains(t, o.Session().Progress.Metrics().FilesExplored, "package.json")
	})

	t.Run("suggest", func(t *testing.T) {
		o, _ := newTestOrchestrator(t, &scriptedModel{responses: script}, DefaultConfig())
		_, err := o.Run(context.Background(), "describe the layout")
		require.NoError(t, err)

		msgs := o.Session().Memory.Messages()
		assert.Equal(t, 1, countMessages(msgs, llm.RoleTool, `Call readFile {"path":"package.json"} next.`))
		assert.Equal(t, 0, countMessages(msgs, llm.RoleTool, "Observation from readFile"))
	})
}

func TestRunCorrectsAndRejectsToolNames(t *testing.T) {
	model := &scriptedModel{responses: []string{
		call("deleteEverything", `{}`),
		call("read_file", `{"file": "package.json"}`),
		call("final_answer", `{"answer": "demo"}`),
	}}
	events := NewEventEmitter("test", 64)
	o, _ := newTestOrchestrator(t, model, DefaultConfig(), WithEvents(events))

	_, err := o.Run(context.Background(), "what's in package.json?")
	require.NoError(t, err)

	msgs := o.Session().Memory.Messages()
	assert.Equal(t, 1, countMessages(msgs, llm.RoleTool, `unknown tool "deleteEverything"`))
	assert.Equal(t, 1, countMessages(msgs, llm.RoleTool, `tool "read_file" was interpreted as "readFile"`))

	events.Close()
	var corrected bool
	for e := range events.Events() {
		if e.Kind == EventToolCorrected {
			corrected = true
			assert.Equal(t, "readFile", e.Data["resolved"])
		}
	}
	assert.True(t, corrected)
}

func TestRunSwitchesModelOnNextIteration(t *testing.T) {
	netErr := &llm.NetworkError{SDKError: llm.SDKError{Message: "connection reset by peer"}}
	model := &scriptedModel{
		errs: []error{netErr, netErr},
		responses: []string{
			"", "",
			call("final_answer", `{"answer": "hi"}`),
		},
	}
	cfg := DefaultConfig()
	cfg.Loop.Model = "primary"
	cfg.Loop.FallbackModels = []string{"primary", "backup"}
	cfg.Retry.Jitter = false
	cfg.Loop.IterationBudget = 3
	events := NewEventEmitter("test", 64)
	o, clock := newTestOrchestrator(t, model, cfg, WithEvents(events))

	answer, err := o.Run(context.Background(), "summarize the repo")
	require.NoError(t, err)
	assert.Equal(t, 3, answer.ModelCalls)
	assert.Equal(t, model.callCount(), answer.ModelCalls)

	// One call per iteration; the switch lands on the third.
	assert.Equal(t, []string{"primary", "primary", "backup"}, model.models)
	assert.Equal(t, "backup", o.Session().Model)
	assert.Equal(t, 2, countMessages(o.Session().Memory.Messages(), llm.RoleTool, "Model call failed"))
	require.Len(t, clock.sleeps, 2)
	assert.Equal(t, cfg.Retry.BaseDelay, clock.sleeps[0])
	assert.Equal(t, 2*cfg.Retry.BaseDelay, clock.sleeps[1])

	events.Close()
	var switched int
	for e := range events.Events() {
		if e.Kind == EventModelSwitched {
			switched++
		}
	}
	assert.Equal(t, 1, switched)
}

func TestRunFailingModelStaysWithinBudget(t *testing.T) {
	netErr := &llm.NetworkError{SDKError: llm.SDKError{Message: "connection reset by peer"}}
	errs := make([]error, 50)
	for i := range errs {
		errs[i] = netErr
	}
	for _, budget := range []int{1, 2, 5} {
		t.Run(strconv.Itoa(budget), func(t *testing.T) {
			model := &scriptedModel{errs: errs}
			cfg := DefaultConfig()
			cfg.Loop.Model = "primary"
			cfg.Loop.FallbackModels = []string{"primary", "backup"}
			cfg.Loop.IterationBudget = budget
			o, _ := newTestOrchestrator(t, model, cfg)

			answer, err := o.Run(context.Background(), "explain the build")
			require.NoError(t, err)
			assert.Equal(t, TerminationBudgetExhausted, answer.Reason)
			assert.LessOrEqual(t, model.callCount(), budget+1)
			assert.Equal(t, model.callCount(), answer.ModelCalls)
			assert.Equal(t, budget, answer.Iterations)
		})
	}
}

func TestRunModelFailureBecomesDiagnostic(t *testing.T) {
	authErr := &llm.AuthenticationError{ProviderError: llm.ProviderError{SDKError: llm.SDKError{Message: "bad key"}}}
	model := &scriptedModel{
		errs:      []error{authErr},
		responses: []string{"", call("listFiles", `{}`), call("final_answer", `{"answer": "ok"}`)},
	}
	o, clock := newTestOrchestrator(t, model, DefaultConfig())

	answer, err := o.Run(context.Background(), "list things")
	require.NoError(t, err)
	assert.Equal(t, TerminationAnswered, answer.Reason)
	assert.Empty(t, clock.sleeps)
	assert.Equal(t, 1, countMessages(o.Session().Memory.Messages(), llm.RoleTool, "Model call failed (permission)"))
}

func TestRunCancelled(t *testing.T) {
	model := &scriptedModel{responses: []string{call("listFiles", `{}`)}}
	o, _ := newTestOrchestrator(t, model, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	answer, err := o.Run(ctx, "list things")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, TerminationCancelled, answer.Reason)
	assert.NotEmpty(t, answer.Content)
	assert.Equal(t, 0, model.callCount())
}

func TestRunWorkflowStateNeverRegresses(t *testing.T) {
	model := &scriptedModel{responses: []string{
		call("listFiles", `{"path": "."}`),
		call("readFile", `{"path": "package.json"}`),
		call("analyzeStructure", `{"path": "src/index.js"}`),
		call("listFiles", `{"path": "src"}`),
		call("searchCode", `{"pattern": "log"}`),
		call("final_answer", `{"answer": "done"}`),
	}}
	events := NewEventEmitter("test", 256)
	o, _ := newTestOrchestrator(t, model, DefaultConfig(), WithEvents(events))

	_, err := o.Run(context.Background(), "look around")
	require.NoError(t, err)
	events.Close()

	var states []WorkflowState
	for e := range events.Events() {
		if e.Kind != EventIteration {
			continue
		}
		name := e.Data["state"].(string)
		for s := StateInitial; s <= StateCompleted; s++ {
			if s.String() == name {
				states = append(states, s)
			}
		}
	}
	require.NotEmpty(t, states)
	for i := 1; i < len(states); i++ {
		assert.GreaterOrEqual(t, states[i], states[i-1])
	}
	assert.Equal(t, StateDiagnosing, states[len(states)-1])
}

func TestNewOrchestratorNilOptionsKeepDefaults(t *testing.T) {
	model := &scriptedModel{responses: []string{
		call("listFiles", `{"path": "."}`),
		call("final_answer", `{"answer": "done"}`),
	}}
	var o *Orchestrator
	require.NotPanics(t, func() {
		var err error
		o, err = NewOrchestrator(model, newTestRegistry(t), DefaultConfig(),
			WithLogger(nil), WithClock(nil), WithEvents(nil))
		require.NoError(t, err)
	})
	require.NotNil(t, o.logger)

	require.NotPanics(t, func() {
		_, err := o.Run(context.Background(), "list the files")
		require.NoError(t, err)
	})
	assert.Positive(t, model.callCount())
}

func TestNewOrchestratorRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Loop.IterationBudget = 0
	_, err := NewOrchestrator(&scriptedModel{}, NewToolRegistry(), cfg)
	require.Error(t, err)

	_, err = NewOrchestrator(nil, NewToolRegistry(), DefaultConfig())
	require.Error(t, err)
}
