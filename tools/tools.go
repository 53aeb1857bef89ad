package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"

	"github.com/martinemde/reactor/react"
)

// Options configures the default tools.
type Options struct {
	LintCommand    string        // parsed with shell quoting rules; default "go vet ./..."
	CommandTimeout time.Duration // default 60s
	MaxReadLines   int           // default 2000
	ReadOnly       bool          // skip writeFile
}

func (o Options) withDefaults() Options {
	if o.LintCommand == "" {
		o.LintCommand = "go vet ./..."
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = 60 * time.Second
	}
	if o.MaxReadLines <= 0 {
		o.MaxReadLines = 2000
	}
	return o
}

// RegisterDefaults registers the workspace tools on reg.
func RegisterDefaults(reg *react.ToolRegistry, ws *Workspace, opts Options) error {
	opts = opts.withDefaults()
	lintArgs, err := shellwords.Parse(opts.LintCommand)
	if err != nil {
		return fmt.Errorf("parse lint command %q: %w", opts.LintCommand, err)
	}
	if len(lintArgs) == 0 {
		return fmt.Errorf("parse lint command %q: empty", opts.LintCommand)
	}

	tools := []react.RegisteredTool{
		listFilesTool(ws),
		readFileTool(ws, opts.MaxReadLines),
		searchCodeTool(ws),
		gitStatusTool(ws, opts.CommandTimeout),
		gitDiffTool(ws, opts.CommandTimeout),
		runLintTool(ws, lintArgs, opts.CommandTimeout),
		analyzeStructureTool(ws),
	}
	if !opts.ReadOnly {
		tools = append(tools, writeFileTool(ws))
	}
	for _, t := range tools {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func listFilesTool(ws *Workspace) react.RegisteredTool {
	return react.RegisteredTool{
		Descriptor: react.ToolDescriptor{
			Name:        "listFiles",
			Description: "List a directory. Directories end with '/'.",
			Class:       react.ClassEnumerate,
			Params: []react.ParamSpec{
				{Name: "path", Type: react.ParamString, Description: "Directory relative to the project root.", Default: "."},
				{Name: "depth", Type: react.ParamInteger, Description: "Levels to descend, 1-3.", Default: 1},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			path, _ := react.GetStringArg(args, "path")
			depth, _ := react.GetIntArg(args, "depth")
			entries, err := ws.ListDirectory(path, min(max(depth, 1), 3))
			if err != nil {
				return "", err
			}
			if len(entries) == 0 {
				return "(empty directory)", nil
			}
			var sb strings.Builder
			for _, e := range entries {
				sb.WriteString(e.Path)
				if e.IsDir {
					sb.WriteString("/")
				}
				sb.WriteString("\n")
			}
			return sb.String(), nil
		},
	}
}

func readFileTool(ws *Workspace, maxLines int) react.RegisteredTool {
	return react.RegisteredTool{
		Descriptor: react.ToolDescriptor{
			Name:        "readFile",
			Description: "Read a file. Returns line-numbered content.",
			Class:       react.ClassRead,
			Params: []react.ParamSpec{
				{Name: "path", Type: react.ParamString, Description: "File relative to the project root.", Required: true, NonEmpty: true},
				{Name: "offset", Type: react.ParamInteger, Description: "1-based first line."},
				{Name: "limit", Type: react.ParamInteger, Description: fmt.Sprintf("Maximum lines. Default: %d.", maxLines)},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			path, _ := react.GetStringArg(args, "path")
			offset, _ := react.GetIntArg(args, "offset")
			limit, _ := react.GetIntArg(args, "limit")
			if limit <= 0 || limit > maxLines {
				limit = maxLines
			}
			out, err := ws.ReadFile(path, offset, limit)
			if err != nil {
				return "", err
			}
			if out == "" {
				return "(empty file)", nil
			}
			return out, nil
		},
	}
}

func writeFileTool(ws *Workspace) react.RegisteredTool {
	return react.RegisteredTool{
		Descriptor: react.ToolDescriptor{
			Name:        "writeFile",
			Description: "Write content to a file, creating parent directories.",
			Class:       react.ClassWrite,
			Params: []react.ParamSpec{
				{Name: "path", Type: react.ParamString, Required: true, NonEmpty: true},
				{Name: "content", Type: react.ParamString, Description: "The full file content.", Required: true},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			path, _ := react.GetStringArg(args, "path")
			content, _ := react.GetStringArg(args, "content")
			if err := ws.WriteFile(path, content); err != nil {
				return "", err
			}
			return fmt.Sprintf("Wrote %d bytes to %s", len(content), path), nil
		},
	}
}

func searchCodeTool(ws *Workspace) react.RegisteredTool {
	return react.RegisteredTool{
		Descriptor: react.ToolDescriptor{
			Name:        "searchCode",
			Description: "Search file contents with a regular expression. Returns path:line:text.",
			Class:       react.ClassSearch,
			Params: []react.ParamSpec{
				{Name: "pattern", Type: react.ParamString, Required: true, NonEmpty: true},
				{Name: "path", Type: react.ParamString, Description: "Directory to search.", Default: "."},
				{Name: "glob", Type: react.ParamString, Description: "File name filter, e.g. *.go."},
				{Name: "caseInsensitive", Type: react.ParamBoolean, Default: false},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			pattern, _ := react.GetStringArg(args, "pattern")
			path, _ := react.GetStringArg(args, "path")
			glob, _ := react.GetStringArg(args, "glob")
			ci, _ := react.GetBoolArg(args, "caseInsensitive")
			return ws.Grep(ctx, pattern, path, GrepOptions{Glob: glob, CaseInsensitive: ci})
		},
	}
}

func gitStatusTool(ws *Workspace, timeout time.Duration) react.RegisteredTool {
	return react.RegisteredTool{
		Descriptor: react.ToolDescriptor{
			Name:        "gitStatus",
			Description: "Show the git branch and changed files.",
			Class:       react.ClassVCS,
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return runGit(ctx, ws, timeout, "status", "--short", "--branch")
		},
	}
}

func gitDiffTool(ws *Workspace, timeout time.Duration) react.RegisteredTool {
	return react.RegisteredTool{
		Descriptor: react.ToolDescriptor{
			Name:        "gitDiff",
			Description: "Show uncommitted changes, optionally for one path.",
			Class:       react.ClassVCS,
			Params: []react.ParamSpec{
				{Name: "path", Type: react.ParamString},
				{Name: "staged", Type: react.ParamBoolean, Default: false},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			gitArgs := []string{"diff", "--stat", "--patch"}
			if staged, _ := react.GetBoolArg(args, "staged"); staged {
				gitArgs = append(gitArgs, "--cached")
			}
			if path, _ := react.GetStringArg(args, "path"); path != "" {
				if _, err := ws.resolve(path); err != nil {
					return "", err
				}
				gitArgs = append(gitArgs, "--", path)
			}
			out, err := runGit(ctx, ws, timeout, gitArgs...)
			if err == nil && strings.TrimSpace(out) == "" {
				return "No changes.", nil
			}
			return out, err
		},
	}
}

func runGit(ctx context.Context, ws *Workspace, timeout time.Duration, args ...string) (string, error) {
	res, err := ws.Exec(ctx, timeout, "git", args...)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		msg := strings.TrimSpace(res.Stderr)
		if strings.Contains(msg, "not a git repository") {
			return "", react.NewToolError(react.KindValidation, fmt.Errorf("%s is not a git repository", ws.Root()))
		}
		return "", fmt.Errorf("git %s exited %d: %s", args[0], res.ExitCode, msg)
	}
	return res.Stdout, nil
}

func runLintTool(ws *Workspace, command []string, timeout time.Duration) react.RegisteredTool {
	return react.RegisteredTool{
		Descriptor: react.ToolDescriptor{
			Name:        "runLint",
			Description: fmt.Sprintf("Run the project linter (%s) and report findings.", strings.Join(command, " ")),
			Class:       react.ClassAnalyze,
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			res, err := ws.Exec(ctx, timeout, command[0], command[1:]...)
			if err != nil {
				return "", err
			}
			out := strings.TrimSpace(res.Output())
			if res.ExitCode == 0 && out == "" {
				return "Lint passed with no findings.", nil
			}
			return fmt.Sprintf("exit code %d\n%s", res.ExitCode, out), nil
		},
	}
}
