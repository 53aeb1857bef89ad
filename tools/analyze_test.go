package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goSource = `package store

import (
	"context"
	"sync"
)

type Store struct {
	mu sync.Mutex
}

type Getter interface {
	Get(ctx context.Context, key string) (string, error)
}

type List[T any] struct{ items []T }

func New() *Store { return &Store{} }

func (s *Store) Get(ctx context.Context, key string) (string, error) { return "", nil }

func (l List[T]) Len() int { return len(l.items) }
`

func TestAnalyzeGoFile(t *testing.T) {
	ws := NewWorkspace(writeTree(t, map[string]string{"store.go": goSource, "broken.go": "package x\nfunc {"}))

	out, err := ws.AnalyzeStructure("store.go")
	require.NoError(t, err)
	assert.Contains(t, out, "File store.go: package store")
	assert.Contains(t, out, `  "context"`)
	assert.Contains(t, out, "struct Store (line 8)")
	assert.Contains(t, out, "interface Getter (line 12)")
	assert.Contains(t, out, "struct List (line 16)")
	assert.Contains(t, out, "New (line 18)")
	assert.Contains(t, out, "*Store.Get (line 20)")
	assert.Contains(t, out, "List.Len (line 22)")

	out, err = ws.AnalyzeStructure("broken.go")
	require.NoError(t, err)
	assert.Contains(t, out, "Go parse error")
}

func TestAnalyzeOtherFiles(t *testing.T) {
	ws := NewWorkspace(writeTree(t, map[string]string{
		"app.py":       "import os\n\nclass App:\n    def run(self):\n        pass\n\ndef main():\n    App().run()\n",
		"web/index.ts": "export async function start() {}\nexport interface Options {}\n",
		"web/util.ts":  "",
		"Makefile":     "all:\n",
	}))

	out, err := ws.AnalyzeStructure("app.py")
	require.NoError(t, err)
	assert.Contains(t, out, "class App (line 3)")
	assert.Contains(t, out, "def run (line 4)")
	assert.Contains(t, out, "def main (line 7)")

	out, err = ws.AnalyzeStructure("web/index.ts")
	require.NoError(t, err)
	assert.Contains(t, out, "function start (line 1)")
	assert.Contains(t, out, "interface Options (line 2)")

	out, err = ws.AnalyzeStructure(".")
	require.NoError(t, err)
	assert.Contains(t, out, "Directory .: 4 files, 1 subdirectories")
	assert.Contains(t, out, "  .ts: 2\n")
	assert.Contains(t, out, "  (none): 1\n")

	_, err = ws.AnalyzeStructure("missing.rs")
	assert.Error(t, err)
}
