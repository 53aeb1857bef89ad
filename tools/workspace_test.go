package tools

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martinemde/reactor/react"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

var sampleTree = map[string]string{
	"go.mod":                   "module demo\n\ngo 1.24\n",
	"README.md":                "# demo\n",
	"main.go":                  "package main\n\nfunc main() {}\n",
	"internal/store/store.go":  "package store\n\n// TODO: add eviction\ntype Store struct{}\n",
	"node_modules/pkg/index.js": "module.exports = {}\n",
	"empty.txt":                "",
}

func TestWorkspaceReadFile(t *testing.T) {
	ws := NewWorkspace(writeTree(t, sampleTree))

	out, err := ws.ReadFile("go.mod", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "1 | module demo\n2 | \n3 | go 1.24\n", out)

	out, err = ws.ReadFile("go.mod", 3, 1)
	require.NoError(t, err)
	assert.Equal(t, "3 | go 1.24\n", out)

	out, err = ws.ReadFile("go.mod", 99, 0)
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = ws.ReadFile("empty.txt", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = ws.ReadFile("internal", 0, 0)
	assert.Equal(t, react.KindValidation, react.ClassifyError(err))

	_, err = ws.ReadFile("missing.go", 0, 0)
	assert.Equal(t, react.KindValidation, react.ClassifyError(err))
}

func TestWorkspaceRejectsEscapes(t *testing.T) {
	ws := NewWorkspace(writeTree(t, sampleTree))
	for _, p := range []string{"../secret", "internal/../../x", "/etc/passwd"} {
		_, err := ws.ReadFile(p, 0, 0)
		require.Error(t, err, p)
		assert.Equal(t, react.KindPermission, react.ClassifyError(err), p)
	}

	// Absolute paths inside the root are fine.
	_, err := ws.ReadFile(filepath.Join(ws.Root(), "go.mod"), 0, 0)
	assert.NoError(t, err)
}

func TestWorkspaceWriteFile(t *testing.T) {
	ws := NewWorkspace(t.TempDir())
	require.NoError(t, ws.WriteFile("a/b/c.txt", "hello"))
	data, err := os.ReadFile(filepath.Join(ws.Root(), "a", "b", "c.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	assert.Error(t, ws.WriteFile("../outside.txt", "x"))
}

func TestWorkspaceListDirectory(t *testing.T) {
	ws := NewWorkspace(writeTree(t, sampleTree))

	entries, err := ws.ListDirectory(".", 1)
	require.NoError(t, err)
	var paths []string
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	assert.Equal(t, []string{"README.md", "empty.txt", "go.mod", "internal", "main.go", "node_modules"}, paths)

	entries, err = ws.ListDirectory(".", 3)
	require.NoError(t, err)
	paths = nil
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	assert.Contains(t, paths, "internal/store/store.go")
	assert.NotContains(t, paths, "node_modules/pkg", "skipped directories are not descended")

	_, err = ws.ListDirectory("go.mod", 1)
	assert.Equal(t, react.KindValidation, react.ClassifyError(err))
}

func TestWorkspaceGrep(t *testing.T) {
	ws := NewWorkspace(writeTree(t, sampleTree))
	ctx := context.Background()

	out, err := ws.Grep(ctx, `package \w+`, ".", GrepOptions{})
	require.NoError(t, err)
	assert.Contains(t, out, "main.go:1:package main")
	assert.Contains(t, out, "internal/store/store.go:1:package store")

	out, err = ws.Grep(ctx, "todo", "internal", GrepOptions{CaseInsensitive: true})
	require.NoError(t, err)
	assert.Equal(t, "internal/store/store.go:3:// TODO: add eviction\n", out)

	out, err = ws.Grep(ctx, "exports", ".", GrepOptions{})
	require.NoError(t, err)
	assert.Equal(t, `No matches for "exports".`, out)

	out, err = ws.Grep(ctx, "package", ".", GrepOptions{Glob: "store.go"})
	require.NoError(t, err)
	assert.Equal(t, "internal/store/store.go:1:package store\n", out)

	out, err = ws.Grep(ctx, ".", ".", GrepOptions{MaxResults: 2})
	require.NoError(t, err)
	assert.Len(t, splitLines(out), 2)

	_, err = ws.Grep(ctx, "(", ".", GrepOptions{})
	assert.Equal(t, react.KindValidation, react.ClassifyError(err))
}

func TestWorkspaceExec(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	ws := NewWorkspace(t.TempDir())
	ctx := context.Background()

	res, err := ws.Exec(ctx, time.Minute, "sh", "-c", "echo out; echo err >&2; exit 3")
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "out\n\nerr\n", res.Output())

	t.Setenv("REACTOR_TEST_API_KEY", "secret")
	res, err = ws.Exec(ctx, time.Minute, "sh", "-c", "echo ${REACTOR_TEST_API_KEY:-withheld}")
	require.NoError(t, err)
	assert.Equal(t, "withheld\n", res.Stdout)

	res, err = ws.Exec(ctx, 50*time.Millisecond, "sh", "-c", "sleep 5")
	assert.Equal(t, react.KindTimeout, react.ClassifyError(err))
	require.NotNil(t, res)
	assert.True(t, res.TimedOut)

	_, err = ws.Exec(ctx, time.Minute, "definitely-not-a-real-binary-xyz")
	assert.Equal(t, react.KindValidation, react.ClassifyError(err))
}
