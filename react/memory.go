package react

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/martinemde/reactor/llm"
)

// Summarizer condenses a run of messages into a short text.
type Summarizer interface {
	Summarize(ctx context.Context, messages []Message) (string, error)
}

// ModelSummarizer summarizes with one model call.
type ModelSummarizer struct {
	Client ModelClient
	Model  string
}

const summarizeInstruction = "Summarize the following conversation between a user and a coding assistant. " +
	"Preserve the main topics and important context (files, findings, open questions) in 2-3 sentences."

// Summarize implements Summarizer.
func (s ModelSummarizer) Summarize(ctx context.Context, messages []Message) (string, error) {
	if s.Client == nil {
		return "", fmt.Errorf("summarize: no model client")
	}
	text, err := s.Client.Generate(ctx, RenderTranscript(messages), llm.GenerateOptions{
		Model:  s.Model,
		System: summarizeInstruction,
	})
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// ConversationMemory is the append-only message log of one session, kept
// bounded by rotating old messages into a summary.
type ConversationMemory struct {
	messages   []Message
	cfg        MemoryConfig
	summarizer Summarizer
	logger     *slog.Logger
	onRotate   func(before, after int, summarized bool)
}

// NewConversationMemory creates an empty memory. A nil summarizer makes every
// rotation fall back to truncation.
func NewConversationMemory(cfg MemoryConfig, summarizer Summarizer, logger *slog.Logger) *ConversationMemory {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversationMemory{cfg: cfg, summarizer: summarizer, logger: logger}
}

// Append adds a message and rotates if the log grew past the threshold.
func (m *ConversationMemory) Append(ctx context.Context, msg Message) {
	m.messages = append(m.messages, msg)
	m.RotateIfNeeded(ctx)
}

// RotateIfNeeded replaces everything but the retained tail with a single
// system summary once the log exceeds the rotation threshold. When
// summarization fails the log is truncated to the fallback tail instead.
// It never fails.
func (m *ConversationMemory) RotateIfNeeded(ctx context.Context) {
	before := len(m.messages)
	if before <= m.cfg.RotationThreshold {
		return
	}

	split := before - m.cfg.RetainedTail
	prefix, tail := m.messages[:split], m.messages[split:]

	summary, err := m.summarize(ctx, prefix)
	if err != nil || summary == "" {
		m.logger.WarnContext(ctx, "memory: summarization failed, truncating", "error", err, "messages", before)
		m.messages = cloneMessages(m.messages[before-m.cfg.FallbackTail:])
		m.notifyRotate(before, false)
		return
	}

	rotated := make([]Message, 0, len(tail)+1)
	rotated = append(rotated, NewSystemMessage("Summary of earlier conversation: "+summary))
	rotated = append(rotated, tail...)
	m.messages = rotated
	m.logger.DebugContext(ctx, "memory: rotated", "before", before, "after", len(m.messages))
	m.notifyRotate(before, true)
}

func (m *ConversationMemory) summarize(ctx context.Context, prefix []Message) (summary string, err error) {
	if m.summarizer == nil {
		return "", fmt.Errorf("no summarizer configured")
	}
	defer func() {
		if r := recover(); r != nil {
			summary, err = "", fmt.Errorf("summarizer panic: %v", r)
		}
	}()
	return m.summarizer.Summarize(ctx, prefix)
}

func (m *ConversationMemory) notifyRotate(before int, summarized bool) {
	if m.onRotate != nil {
		m.onRotate(before, len(m.messages), summarized)
	}
}

// Tail returns a copy of the last n messages.
func (m *ConversationMemory) Tail(n int) []Message {
	if n <= 0 {
		return nil
	}
	if n > len(m.messages) {
		n = len(m.messages)
	}
	return cloneMessages(m.messages[len(m.messages)-n:])
}

// Messages returns a copy of the whole log.
func (m *ConversationMemory) Messages() []Message {
	return cloneMessages(m.messages)
}

// Len returns the number of messages.
func (m *ConversationMemory) Len() int { return len(m.messages) }

// Clear drops every message and returns how many were removed.
func (m *ConversationMemory) Clear() int {
	n := len(m.messages)
	m.messages = nil
	return n
}

func cloneMessages(src []Message) []Message {
	out := make([]Message, len(src))
	copy(out, src)
	return out
}
