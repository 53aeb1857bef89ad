package react

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/martinemde/reactor/llm"
)

// ModelClient is the port to the language model. *llm.Client satisfies it.
type ModelClient interface {
	Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error)
}

// TerminationReason says why Run returned.
type TerminationReason string

const (
	TerminationAnswered        TerminationReason = "answered"
	TerminationEarlyConclusion TerminationReason = "early_conclusion"
	TerminationBudgetExhausted TerminationReason = "budget_exhausted"
	TerminationDirect          TerminationReason = "direct"
	TerminationReset           TerminationReason = "reset"
	TerminationCancelled       TerminationReason = "cancelled"
)

// FinalAnswer is the result of one Run.
type FinalAnswer struct {
	Content    string
	Reason     TerminationReason
	Iterations int
	ModelCalls int
	Metrics    ProgressMetrics
}

const (
	maxRecoveryAttempts = 10
	directSystemPrompt  = "You are a friendly coding assistant. Reply briefly and conversationally. " +
		"You can explore the user's project with tools when they ask about it."
)

// Orchestrator drives the reason/act/observe loop for one session.
type Orchestrator struct {
	cfg        Config
	client     ModelClient
	registry   *ToolRegistry
	dispatcher *ToolDispatcher
	patterns   *Patterns
	validator  *ConclusionValidator
	session    *AgentSession
	summarizer Summarizer
	recovery   RecoveryPort
	metrics    *Metrics
	events     *EventEmitter
	logger     *slog.Logger
	clock      Clock
	counter    *llm.TokenCounter
	tracer     trace.Tracer
	mu         sync.Mutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. The default is slog.Default(); nil keeps it.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRecoveryPort replaces the default RecoveryPolicy.
func WithRecoveryPort(p RecoveryPort) Option {
	return func(o *Orchestrator) { o.recovery = p }
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithSummarizer sets the memory summarizer. The default summarizes with the
// orchestrator's model client.
func WithSummarizer(s Summarizer) Option {
	return func(o *Orchestrator) { o.summarizer = s }
}

// WithEvents attaches an event emitter.
func WithEvents(e *EventEmitter) Option {
	return func(o *Orchestrator) { o.events = e }
}

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithTokenCounter sets the counter used to trim the prompt history.
func WithTokenCounter(c *llm.TokenCounter) Option {
	return func(o *Orchestrator) { o.counter = c }
}

// WithSession runs the orchestrator on an existing session.
func WithSession(s *AgentSession) Option {
	return func(o *Orchestrator) { o.session = s }
}

// NewOrchestrator validates cfg and wires the loop's components.
func NewOrchestrator(client ModelClient, registry *ToolRegistry, cfg Config, opts ...Option) (*Orchestrator, error) {
	if client == nil {
		return nil, fmt.Errorf("new orchestrator: nil model client")
	}
	if registry == nil {
		return nil, fmt.Errorf("new orchestrator: nil tool registry")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("new orchestrator: %w", err)
	}
	patterns, err := CompilePatterns(cfg.Patterns)
	if err != nil {
		return nil, fmt.Errorf("new orchestrator: %w", err)
	}

	o := &Orchestrator{
		cfg:       cfg,
		client:    client,
		registry:  registry,
		patterns:  patterns,
		validator: NewConclusionValidator(patterns),
		logger:    slog.Default(),
		clock:     realClock{},
		tracer:    otel.Tracer("github.com/martinemde/reactor/react"),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.clock == nil {
		o.clock = realClock{}
	}
	o.dispatcher = NewToolDispatcher(registry, patterns, nil)
	if o.recovery == nil {
		o.recovery = NewRecoveryPolicy(cfg.Retry, cfg.Loop.FallbackModels)
	}
	if o.summarizer == nil {
		o.summarizer = ModelSummarizer{Client: client, Model: cfg.Loop.Model}
	}
	if o.session == nil {
		o.session = NewAgentSession(cfg, patterns, o.summarizer, o.logger)
	}
	o.logger = o.logger.With("session_id", o.session.ID)
	o.session.Memory.onRotate = func(before, after int, summarized bool) {
		o.metrics.rotated(summarized)
		o.events.Emit(EventMemoryRotated, map[string]any{"before": before, "after": after, "summarized": summarized})
	}
	return o, nil
}

// Session returns the orchestrator's session.
func (o *Orchestrator) Session() *AgentSession { return o.session }

// run carries per-Run bookkeeping.
type run struct {
	task       string
	modelCalls int
	observed   int // successful tool executions
}

// Run processes one user input to a final answer. It always returns an
// answer; the error is non-nil only when ctx ends first.
func (o *Orchestrator) Run(ctx context.Context, userInput string) (FinalAnswer, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cfg.Loop.SessionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.Loop.SessionTimeout)
		defer cancel()
	}
	ctx, span := o.tracer.Start(ctx, "react.run", trace.WithAttributes(
		attribute.String("session.id", o.session.ID),
		attribute.Int("loop.budget", o.session.Budget),
	))
	defer span.End()

	r := &run{task: strings.TrimSpace(userInput)}
	o.events.Emit(EventUserInput, map[string]any{"content": r.task})
	o.logger.InfoContext(ctx, "run started", "input_len", len(r.task), "budget", o.session.Budget)

	answer, err := o.run(ctx, r)
	answer.ModelCalls = r.modelCalls
	answer.Metrics = o.session.Progress.Metrics()

	span.SetAttributes(
		attribute.String("run.termination", string(answer.Reason)),
		attribute.Int("run.iterations", answer.Iterations),
		attribute.Int("run.model_calls", answer.ModelCalls),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	o.metrics.terminated(answer.Reason)
	o.events.Emit(EventSessionEnd, map[string]any{
		"reason":      string(answer.Reason),
		"iterations":  answer.Iterations,
		"model_calls": answer.ModelCalls,
	})
	o.logger.InfoContext(ctx, "run finished",
		"reason", answer.Reason, "iterations", answer.Iterations, "model_calls", answer.ModelCalls)
	return answer, err
}

func (o *Orchestrator) run(ctx context.Context, r *run) (FinalAnswer, error) {
	s := o.session
	s.Memory.Append(ctx, NewUserMessage(r.task))

	if isResetCommand(r.task) {
		messages, records := s.Reset()
		return FinalAnswer{
			Content: fmt.Sprintf("Session reset: cleared %d messages and %d tool-call records.", messages, records),
			Reason:  TerminationReset,
		}, nil
	}

	if o.patterns.IsDirectAnswer(r.task) {
		return o.directAnswer(ctx, r), nil
	}

	s.Iteration = 0
	for s.Iteration < s.Budget {
		if err := ctx.Err(); err != nil {
			return o.cancelled(ctx, r, err)
		}
		// Evidence from an earlier Run alone does not answer this one.
		if r.observed > 0 && s.Progress.ShouldConclude(s.Iteration, s.Budget) {
			return o.conclude(ctx, r), nil
		}

		o.metrics.iteration()
		o.events.Emit(EventIteration, map[string]any{"iteration": s.Iteration, "state": s.State().String()})
		answer, done := o.iterate(ctx, r)
		s.Iteration++
		if done {
			answer.Iterations = s.Iteration
			return answer, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return o.cancelled(ctx, r, err)
	}

	content := SynthesizeFallback(r.task, s.Progress.Metrics(), ExtractFindings(s.Memory.Messages()), s.Iteration, s.Budget)
	s.Memory.Append(ctx, NewAssistantMessage(content))
	o.logger.WarnContext(ctx, "iteration budget exhausted", "budget", s.Budget)
	return FinalAnswer{Content: content, Reason: TerminationBudgetExhausted, Iterations: s.Iteration}, nil
}

func isResetCommand(input string) bool {
	switch strings.ToLower(input) {
	case "/reset", "/clear":
		return true
	}
	return false
}

func (o *Orchestrator) directAnswer(ctx context.Context, r *run) FinalAnswer {
	r.modelCalls++
	text, err := o.client.Generate(ctx, RenderTranscript(o.session.Memory.Tail(4)), llm.GenerateOptions{
		Model:  o.session.Model,
		System: directSystemPrompt,
	})
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		o.logger.WarnContext(ctx, "direct answer failed, using canned reply", "error", err)
		text = directFallback
	}
	o.session.Memory.Append(ctx, NewAssistantMessage(text))
	return FinalAnswer{Content: text, Reason: TerminationDirect}
}

func (o *Orchestrator) conclude(ctx context.Context, r *run) FinalAnswer {
	s := o.session
	s.Progress.Advance(StateConcluding)
	content := SynthesizeConclusion(r.task, s.Progress.Metrics(), ExtractFindings(s.Memory.Messages()), s.Iteration)
	s.Memory.Append(ctx, NewAssistantMessage(content))
	s.Progress.Advance(StateCompleted)
	o.logger.InfoContext(ctx, "concluding early on sufficient evidence", "iteration", s.Iteration)
	return FinalAnswer{Content: content, Reason: TerminationEarlyConclusion, Iterations: s.Iteration}
}

func (o *Orchestrator) cancelled(ctx context.Context, r *run, err error) (FinalAnswer, error) {
	s := o.session
	content := SynthesizeFallback(r.task, s.Progress.Metrics(), ExtractFindings(s.Memory.Messages()), s.Iteration, s.Budget)
	// ctx is done; rotation would only fail over to truncation.
	s.Memory.Append(context.WithoutCancel(ctx), NewAssistantMessage(content))
	o.logger.WarnContext(ctx, "run cancelled", "error", err, "iteration", s.Iteration)
	return FinalAnswer{Content: content, Reason: TerminationCancelled, Iterations: s.Iteration}, err
}

// iterate runs one loop body. done reports a terminal answer.
func (o *Orchestrator) iterate(ctx context.Context, r *run) (FinalAnswer, bool) {
	s := o.session
	ctx, span := o.tracer.Start(ctx, "react.iteration", trace.WithAttributes(
		attribute.Int("loop.iteration", s.Iteration),
		attribute.String("loop.state", s.State().String()),
	))
	defer span.End()

	prompt := BuildPrompt(PromptInput{
		Task:        r.task,
		Iteration:   s.Iteration,
		Budget:      s.Budget,
		Progress:    s.Progress.Metrics(),
		History:     s.Memory.Tail(o.cfg.Loop.PromptTailMessages),
		TokenBudget: o.cfg.Loop.PromptTokenBudget,
		Counter:     o.counter,
	})
	system := BuildSystemPrompt(o.registry.Descriptors(), s.WorkingDirectory)

	r.modelCalls++
	text, err := o.generate(ctx, prompt, system)
	if err != nil {
		if ctx.Err() != nil {
			return FinalAnswer{}, false
		}
		o.diagnose(ctx, fmt.Sprintf("Model call failed (%s): %v", ClassifyError(err), err))
		return FinalAnswer{}, false
	}

	thought, err := ParseThought(text)
	if err != nil {
		o.metrics.parseError()
		o.events.Emit(EventParseError, map[string]any{"error": err.Error()})
		s.Memory.Append(ctx, NewAssistantMessage(clip(strings.TrimSpace(text), maxRawInError)))
		o.diagnose(ctx, fmt.Sprintf("Parse error: %v. %s", err, responseFormat))
		return FinalAnswer{}, false
	}
	s.Memory.Append(ctx, NewAssistantMessage(thought.JSON()))
	o.events.Emit(EventThought, map[string]any{"thought": thought.Reasoning, "tool": thought.ToolName})

	desc, res, err := o.dispatcher.Resolve(thought.ToolName)
	if err != nil {
		o.diagnose(ctx, fmt.Sprintf("%v. Available tools: %s.", err, strings.Join(o.registry.Names(), ", ")))
		return FinalAnswer{}, false
	}
	if res.Corrected {
		o.events.Emit(EventToolCorrected, map[string]any{"requested": res.Requested, "resolved": res.Resolved})
	}

	if desc.Class == ClassFinal {
		return o.finalAnswer(ctx, r, desc, thought)
	}

	args, err := o.dispatcher.Validate(desc, thought.ToolInput)
	if err != nil {
		o.diagnose(ctx, err.Error())
		return FinalAnswer{}, false
	}

	if verdict := s.Guard.Check(desc, args, o.clock.Now()); verdict.Blocked {
		return o.blocked(ctx, r, desc, args, verdict)
	}
	o.execute(ctx, r, desc, args, res)
	return FinalAnswer{}, false
}

func (o *Orchestrator) finalAnswer(ctx context.Context, r *run, desc ToolDescriptor, thought Thought) (FinalAnswer, bool) {
	s := o.session
	content := thought.Reasoning
	if args, err := o.dispatcher.Validate(desc, thought.ToolInput); err == nil {
		if answer, ok := GetStringArg(args, "answer"); ok && answer != "" {
			content = answer
		}
	}

	verdict := o.validator.Validate(r.task, s.Progress.Metrics())
	if !verdict.Ready {
		o.metrics.rejected()
		o.events.Emit(EventConclusionRejected, map[string]any{"reason": verdict.Reason, "next_steps": verdict.NextSteps})
		o.diagnose(ctx, fmt.Sprintf("Final answer rejected: %s. Next steps: %s.", verdict.Reason, strings.Join(verdict.NextSteps, "; ")))
		return FinalAnswer{}, false
	}

	s.Memory.Append(ctx, NewAssistantMessage(content))
	s.Progress.Advance(StateCompleted)
	return FinalAnswer{Content: content, Reason: TerminationAnswered}, true
}

func (o *Orchestrator) blocked(ctx context.Context, r *run, desc ToolDescriptor, args map[string]any, v Verdict) (FinalAnswer, bool) {
	s := o.session
	o.metrics.blocked(v.Rule)
	o.events.Emit(EventRepetitionBlocked, map[string]any{"tool": desc.Name, "rule": string(v.Rule), "reason": v.Reason})
	o.logger.InfoContext(ctx, "repetition blocked", "tool", desc.Name, "rule", v.Rule, "count", v.Count)

	if r.observed > 0 && s.Progress.HasMinimumProgress() {
		answer := o.conclude(ctx, r)
		return answer, true
	}

	if v.Action == ActionSubstitute {
		if sub, subArgs, ok := o.substitute(); ok {
			call := formatCall(sub.Name, subArgs)
			if o.cfg.Loop.AutoSubstitute {
				o.diagnose(ctx, fmt.Sprintf("Blocked %s (%s): %s. Running %s instead.", desc.Name, v.Rule, v.Reason, call))
				o.execute(ctx, r, sub, subArgs, Resolution{Requested: sub.Name, Resolved: sub.Name})
				return FinalAnswer{}, false
			}
			o.diagnose(ctx, fmt.Sprintf("Blocked %s (%s): %s. Call %s next.", desc.Name, v.Rule, v.Reason, call))
			return FinalAnswer{}, false
		}
	}

	m := s.Progress.Metrics()
	hint := "Use a different tool or target."
	if len(m.FilesExplored) > 0 {
		hint += " Already read: " + strings.Join(m.FilesExplored, ", ") + "."
	}
	o.diagnose(ctx, fmt.Sprintf("Blocked %s (%s): %s. %s", desc.Name, v.Rule, v.Reason, hint))
	return FinalAnswer{}, false
}

// substitute picks a call that moves the session forward after a blocked
// listing: read the first unread critical file seen in a listing.
func (o *Orchestrator) substitute() (ToolDescriptor, map[string]any, bool) {
	reader, ok := o.registry.FirstOfClass(ClassRead)
	if !ok {
		return ToolDescriptor{}, nil, false
	}
	now := o.clock.Now()
	for _, file := range o.session.Progress.UnreadCriticalFiles() {
		args, err := o.dispatcher.Validate(reader, map[string]any{"path": file})
		if err != nil {
			continue
		}
		if !o.session.Guard.Check(reader, args, now).Blocked {
			return reader, args, true
		}
	}
	return ToolDescriptor{}, nil, false
}

func formatCall(name string, args map[string]any) string {
	data, err := json.Marshal(args)
	if err != nil {
		return name
	}
	return name + " " + string(data)
}

// execute runs a validated call and folds the observation into memory.
func (o *Orchestrator) execute(ctx context.Context, r *run, desc ToolDescriptor, args map[string]any, res Resolution) {
	s := o.session
	target := CallTarget(desc, args)
	ctx, span := o.tracer.Start(ctx, "react.tool", trace.WithAttributes(
		attribute.String("tool.name", desc.Name),
		attribute.String("tool.class", string(desc.Class)),
		attribute.String("tool.target", target),
	))
	defer span.End()

	o.events.Emit(EventToolCallStart, map[string]any{"tool": desc.Name, "args": args})
	output, err := o.withRecovery(ctx, ErrorContext{Source: SourceTool, Tool: desc.Name}, func(ctx context.Context) (string, error) {
		return o.dispatcher.Execute(ctx, desc, args)
	})
	s.Guard.Record(desc, args, o.clock.Now())
	o.metrics.toolCall(desc.Name, desc.Class, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.events.Emit(EventToolCallEnd, map[string]any{"tool": desc.Name, "error": err.Error()})
		o.diagnose(ctx, fmt.Sprintf("Tool %s failed (%s): %v", desc.Name, ClassifyError(err), err))
		return
	}

	r.observed++
	s.Progress.Update(desc, args)
	s.Progress.Observe(desc, args, output)
	o.events.Emit(EventToolCallEnd, map[string]any{"tool": desc.Name, "output_len": len(output)})

	header := desc.Name
	if target != "" {
		header += " " + target
	}
	content := observationPrefix + header + ":\n" + TruncateObservation(output, desc.Class, o.cfg.Loop.ObservationCharLimit)
	if res.Corrected {
		content += fmt.Sprintf("\n(note: tool %q was interpreted as %q)", res.Requested, res.Resolved)
	}
	s.Memory.Append(ctx, NewToolMessage(content))
}

// generate makes one model call. A failure ends the iteration: the recovery
// port may switch the model for the next iteration's call, and a retry delay
// becomes a pause before it.
func (o *Orchestrator) generate(ctx context.Context, prompt, system string) (string, error) {
	s := o.session
	ctx, span := o.tracer.Start(ctx, "react.model_call", trace.WithAttributes(attribute.String("llm.model", s.Model)))
	defer span.End()

	text, err := o.client.Generate(ctx, prompt, llm.GenerateOptions{Model: s.Model, System: system})
	if err == nil {
		s.modelFailures = 0
		return text, nil
	}
	s.modelFailures++
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if ctx.Err() != nil {
		return "", err
	}

	ec := ErrorContext{
		Source:   SourceModel,
		Model:    s.Model,
		Kind:     ClassifyError(err),
		Attempt:  s.modelFailures,
		Failures: s.modelFailures,
		Err:      err,
	}
	for _, action := range o.recovery.AnalyzeAndRecover(ctx, ec) {
		switch action.Kind {
		case RecoverSwitchModel:
			o.switchModel(ctx, action.Target)
		case RecoverRetry:
			if s.Iteration+1 >= s.Budget {
				continue
			}
			o.logger.DebugContext(ctx, "backing off before next model call", "delay", action.Delay, "failures", ec.Failures, "error", err)
			if sleepErr := o.clock.Sleep(ctx, action.Delay); sleepErr != nil {
				return "", err
			}
		}
	}
	return "", err
}

// withRecovery retries fn within the current iteration as the recovery port
// directs. Only tool execution goes through it.
func (o *Orchestrator) withRecovery(ctx context.Context, ec ErrorContext, fn func(context.Context) (string, error)) (string, error) {
	for attempt := 1; ; attempt++ {
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil || attempt >= maxRecoveryAttempts {
			return "", err
		}

		ec.Attempt = attempt
		ec.Err = err
		ec.Kind = ClassifyError(err)
		ec.Model = o.session.Model

		retry := false
	plan:
		for _, action := range o.recovery.AnalyzeAndRecover(ctx, ec) {
			switch action.Kind {
			case RecoverSwitchModel:
				o.switchModel(ctx, action.Target)
			case RecoverRetry:
				o.logger.DebugContext(ctx, "retrying", "source", ec.Source, "tool", ec.Tool, "attempt", attempt, "delay", action.Delay, "error", err)
				if sleepErr := o.clock.Sleep(ctx, action.Delay); sleepErr != nil {
					return "", err
				}
				retry = true
			case RecoverAbort:
				retry = false
				break plan
			}
		}
		if !retry {
			return "", err
		}
	}
}

type modelChecker interface {
	HasModel(model string) bool
}

func (o *Orchestrator) switchModel(ctx context.Context, target string) {
	if target == "" || target == o.session.Model {
		return
	}
	if mc, ok := o.client.(modelChecker); ok && !mc.HasModel(target) {
		o.logger.WarnContext(ctx, "switch target has no provider, keeping current model", "target", target)
		return
	}
	from := o.session.Model
	o.session.Model = target
	o.session.modelFailures = 0
	o.events.Emit(EventModelSwitched, map[string]any{"from": from, "to": target})
	o.logger.WarnContext(ctx, "switching model", "from", from, "to", target)
}

// diagnose appends a tool-role message the model sees next iteration.
func (o *Orchestrator) diagnose(ctx context.Context, text string) {
	o.events.Emit(EventWarning, map[string]any{"message": text})
	o.logger.DebugContext(ctx, "diagnostic", "message", text)
	o.session.Memory.Append(ctx, NewToolMessage(text))
}
