package tools

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/martinemde/reactor/react"
)

// ExecResult holds the result of a command execution.
type ExecResult struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   int    `json:"exit_code"`
	TimedOut   bool   `json:"timed_out"`
	DurationMs int64  `json:"duration_ms"`
}

// Output returns combined stdout and stderr.
func (r ExecResult) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// DirEntry is one entry of a directory listing, relative to the listed
// directory.
type DirEntry struct {
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size,omitempty"`
}

// skipDirs are never descended into.
var skipDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true, ".venv": true,
	"__pycache__": true, "dist": true, "build": true, "target": true,
}

// sensitiveEnvPatterns are suffixes of environment variables withheld from
// child processes.
var sensitiveEnvPatterns = []string{"_API_KEY", "_SECRET", "_TOKEN", "_PASSWORD", "_CREDENTIAL"}

func filterEnvironment() []string {
	var filtered []string
	for _, kv := range os.Environ() {
		name, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		upper := strings.ToUpper(name)
		sensitive := false
		for _, suffix := range sensitiveEnvPatterns {
			if strings.HasSuffix(upper, suffix) {
				sensitive = true
				break
			}
		}
		if !sensitive {
			filtered = append(filtered, kv)
		}
	}
	return filtered
}

// Workspace runs tool operations against one project directory. Paths are
// relative to the root and may not leave it.
type Workspace struct {
	root string
}

// NewWorkspace creates a workspace rooted at dir (the current directory when
// empty).
func NewWorkspace(dir string) *Workspace {
	if dir == "" {
		dir, _ = os.Getwd()
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return &Workspace{root: dir}
}

// Root returns the absolute workspace directory.
func (w *Workspace) Root() string { return w.root }

func (w *Workspace) resolve(path string) (string, error) {
	if path == "" {
		path = "."
	}
	var resolved string
	if filepath.IsAbs(path) {
		resolved = filepath.Clean(path)
	} else {
		resolved = filepath.Join(w.root, path)
	}
	rel, err := filepath.Rel(w.root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", react.NewToolError(react.KindPermission, fmt.Errorf("path %q is outside the workspace", path))
	}
	return resolved, nil
}

func (w *Workspace) relative(abs string) string {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil {
		return abs
	}
	return filepath.ToSlash(rel)
}

// ReadFile returns line-numbered content. offset is 1-based; limit 0 means
// to the end.
func (w *Workspace) ReadFile(path string, offset, limit int) (string, error) {
	resolved, err := w.resolve(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if info.IsDir() {
		return "", react.NewToolError(react.KindValidation, fmt.Errorf("%s is a directory; list it instead", path))
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	if len(data) == 0 {
		return "", nil
	}
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	start := 0
	if offset > 0 {
		start = offset - 1
	}
	if start >= len(lines) {
		return "", nil
	}
	end := len(lines)
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	var sb strings.Builder
	for i := start; i < end; i++ {
		fmt.Fprintf(&sb, "%d | %s\n", i+1, lines[i])
	}
	return sb.String(), nil
}

// WriteFile writes content, creating parent directories.
func (w *Workspace) WriteFile(path, content string) error {
	resolved, err := w.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("write %s: create directory: %w", path, err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ListDirectory lists entries up to depth levels deep (1 = direct children),
// sorted by path.
func (w *Workspace) ListDirectory(path string, depth int) ([]DirEntry, error) {
	resolved, err := w.resolve(path)
	if err != nil {
		return nil, err
	}
	if depth <= 0 {
		depth = 1
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	if !info.IsDir() {
		return nil, react.NewToolError(react.KindValidation, fmt.Errorf("%s is not a directory; read it instead", path))
	}

	var result []DirEntry
	err = filepath.WalkDir(resolved, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == resolved {
				return err
			}
			return nil
		}
		if p == resolved {
			return nil
		}
		rel, _ := filepath.Rel(resolved, p)
		level := strings.Count(rel, string(filepath.Separator)) + 1
		entry := DirEntry{Path: filepath.ToSlash(rel), IsDir: d.IsDir()}
		if fi, err := d.Info(); err == nil && !d.IsDir() {
			entry.Size = fi.Size()
		}
		result = append(result, entry)
		if d.IsDir() && (level >= depth || skipDirs[d.Name()]) {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Path < result[j].Path })
	return result, nil
}

// Exec runs a program with arguments (no shell) in the workspace root.
func (w *Workspace) Exec(ctx context.Context, timeout time.Duration, name string, args ...string) (*ExecResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = w.root
	cmd.Env = filterEnvironment()
	// Run in its own process group so a timeout kills children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result := &ExecResult{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			result.TimedOut = true
			result.ExitCode = -1
			return result, react.NewToolError(react.KindTimeout, fmt.Errorf("%s timed out after %s", name, timeout))
		case errors.As(err, &exitErr):
			result.ExitCode = exitErr.ExitCode()
		case errors.Is(err, exec.ErrNotFound):
			return nil, react.NewToolError(react.KindValidation, fmt.Errorf("%s is not installed", name))
		default:
			return nil, fmt.Errorf("exec %s: %w", name, err)
		}
	}
	return result, nil
}

// GrepOptions configures Grep.
type GrepOptions struct {
	Glob            string
	CaseInsensitive bool
	MaxResults      int
}

// Grep searches files under path for a regular expression and returns
// "path:line:text" lines relative to the workspace root.
func (w *Workspace) Grep(ctx context.Context, pattern, path string, opts GrepOptions) (string, error) {
	resolved, err := w.resolve(path)
	if err != nil {
		return "", err
	}
	expr := pattern
	if opts.CaseInsensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return "", react.NewToolError(react.KindValidation, fmt.Errorf("invalid pattern %q: %w", pattern, err))
	}
	limit := opts.MaxResults
	if limit <= 0 {
		limit = 200
	}

	var sb strings.Builder
	matches := 0
	errLimit := errors.New("limit reached")
	err = filepath.WalkDir(resolved, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == resolved {
				return err
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if p != resolved && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if opts.Glob != "" {
			if ok, _ := filepath.Match(opts.Glob, d.Name()); !ok {
				return nil
			}
		}
		f, err := os.Open(p)
		if err != nil {
			return nil
		}
		defer f.Close()
		scanner := bufio.NewScanner(f)
		line := 0
		for scanner.Scan() {
			line++
			text := scanner.Text()
			if strings.IndexByte(text, 0) >= 0 {
				return nil // binary
			}
			if re.MatchString(text) {
				fmt.Fprintf(&sb, "%s:%d:%s\n", w.relative(p), line, strings.TrimSpace(text))
				matches++
				if matches >= limit {
					return errLimit
				}
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errLimit) {
		return "", fmt.Errorf("search %s: %w", path, err)
	}
	if matches == 0 {
		return fmt.Sprintf("No matches for %q.", pattern), nil
	}
	return sb.String(), nil
}
