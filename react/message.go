package react

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/martinemde/reactor/llm"
)

// Message is a single entry in the conversation memory.
type Message struct {
	ID        string    `json:"id"`
	Role      llm.Role  `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

func newMessage(role llm.Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a message wrapping user input.
func NewUserMessage(content string) Message { return newMessage(llm.RoleUser, content) }

// NewAssistantMessage creates a message wrapping model output.
func NewAssistantMessage(content string) Message { return newMessage(llm.RoleAssistant, content) }

// NewToolMessage creates a message wrapping an observation or diagnostic.
func NewToolMessage(content string) Message { return newMessage(llm.RoleTool, content) }

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) Message { return newMessage(llm.RoleSystem, content) }

// RenderTranscript formats messages as "[role] content" blocks for a prompt.
func RenderTranscript(messages []Message) string {
	var sb strings.Builder
	for i, m := range messages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[%s] %s", m.Role, m.Content)
	}
	return sb.String()
}
