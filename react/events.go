package react

import (
	"sync"
	"time"
)

// EventKind identifies the type of session event.
type EventKind string

const (
	EventSessionStart       EventKind = "session_start"
	EventSessionEnd         EventKind = "session_end"
	EventUserInput          EventKind = "user_input"
	EventIteration          EventKind = "iteration"
	EventThought            EventKind = "thought"
	EventToolCallStart      EventKind = "tool_call_start"
	EventToolCallEnd        EventKind = "tool_call_end"
	EventToolCorrected      EventKind = "tool_corrected"
	EventRepetitionBlocked  EventKind = "repetition_blocked"
	EventConclusionRejected EventKind = "conclusion_rejected"
	EventParseError         EventKind = "parse_error"
	EventMemoryRotated      EventKind = "memory_rotated"
	EventModelSwitched      EventKind = "model_switched"
	EventWarning            EventKind = "warning"
	EventError              EventKind = "error"
)

// SessionEvent is a typed event emitted by the loop.
type SessionEvent struct {
	Kind      EventKind      `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"session_id"`
	Data      map[string]any `json:"data,omitempty"`
}

// EventEmitter delivers events to the host application via a channel. A nil
// emitter discards everything.
type EventEmitter struct {
	sessionID string
	ch        chan SessionEvent
	closed    bool
	mu        sync.Mutex
}

// NewEventEmitter creates an emitter with a buffered channel.
func NewEventEmitter(sessionID string, bufferSize int) *EventEmitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &EventEmitter{
		sessionID: sessionID,
		ch:        make(chan SessionEvent, bufferSize),
	}
}

// Emit sends an event without blocking. Events are dropped when the buffer
// is full or the emitter is closed.
func (e *EventEmitter) Emit(kind EventKind, data map[string]any) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	select {
	case e.ch <- SessionEvent{Kind: kind, Timestamp: time.Now(), SessionID: e.sessionID, Data: data}:
	default:
	}
}

// Events returns the read-only event channel. A nil emitter returns a
// closed channel.
func (e *EventEmitter) Events() <-chan SessionEvent {
	if e == nil {
		return closedEvents
	}
	return e.ch
}

var closedEvents = func() chan SessionEvent {
	ch := make(chan SessionEvent)
	close(ch)
	return ch
}()

// Close closes the channel. Safe to call multiple times.
func (e *EventEmitter) Close() {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}
