package react

import (
	"log/slog"

	"github.com/google/uuid"
)

// AgentSession is the mutable state of one conversation: memory, progress,
// repetition history and the model in use. Sessions are independent values;
// nothing is shared between them.
type AgentSession struct {
	ID               string
	WorkingDirectory string
	Memory           *ConversationMemory
	Progress         *ProgressTracker
	Guard            *RepetitionGuard
	Iteration        int
	Budget           int
	Model            string

	modelFailures int
}

// NewAgentSession creates a fresh session from cfg.
func NewAgentSession(cfg Config, patterns *Patterns, summarizer Summarizer, logger *slog.Logger) *AgentSession {
	return &AgentSession{
		ID:               uuid.NewString(),
		WorkingDirectory: cfg.Loop.WorkingDirectory,
		Memory:           NewConversationMemory(cfg.Memory, summarizer, logger),
		Progress:         NewProgressTracker(cfg.Progress, patterns),
		Guard:            NewRepetitionGuard(cfg.Repetition),
		Budget:           cfg.Loop.IterationBudget,
		Model:            cfg.Loop.Model,
	}
}

// State returns the workflow state.
func (s *AgentSession) State() WorkflowState { return s.Progress.WorkflowState() }

// Reset clears memory, repetition history and progress. It returns the
// number of messages and tool-call records removed.
func (s *AgentSession) Reset() (messages, records int) {
	messages = s.Memory.Clear()
	records = s.Guard.Clear()
	s.Progress.Reset()
	s.Iteration = 0
	s.modelFailures = 0
	return messages, records
}
