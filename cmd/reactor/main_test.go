package main

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martinemde/reactor/llm"
	"github.com/martinemde/reactor/react"
)

type cannedModel struct{ reply string }

func (m cannedModel) Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error) {
	return m.reply, nil
}

func TestREPL(t *testing.T) {
	orch, err := react.NewOrchestrator(cannedModel{reply: "Hi there!"}, react.NewToolRegistry(), react.DefaultConfig())
	require.NoError(t, err)

	in := bufio.NewScanner(strings.NewReader("hello\n\n/reset\n/exit\nnever reached\n"))
	var out bytes.Buffer
	require.NoError(t, repl(context.Background(), orch, in, &out))

	text := out.String()
	assert.Contains(t, text, "Hi there!")
	assert.Contains(t, text, "Session reset: cleared 3 messages and 0 tool-call records.")
	assert.Equal(t, 0, orch.Session().Memory.Len())
}

func TestREPLEndOfInput(t *testing.T) {
	orch, err := react.NewOrchestrator(cannedModel{reply: "hey"}, react.NewToolRegistry(), react.DefaultConfig())
	require.NoError(t, err)
	var out bytes.Buffer
	assert.NoError(t, repl(context.Background(), orch, bufio.NewScanner(strings.NewReader("")), &out))
}

func TestRootCommandFlags(t *testing.T) {
	cmd := rootCmd()
	for _, name := range []string{"dir", "provider", "model", "budget", "config", "log-level", "auto-substitute", "lint", "read-only"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"run", "chat", "models"})
}

func TestModelsCommand(t *testing.T) {
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"models", "--provider", "anthropic"})
	require.NoError(t, cmd.Execute())
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		assert.Contains(t, line, "anthropic")
	}
}
