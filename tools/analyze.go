package tools

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/martinemde/reactor/react"
)

// definitionPattern finds top-level definitions in languages without a
// parser here.
var definitionPattern = regexp.MustCompile(`^\s*(export\s+)?(async\s+)?(def|class|function|fn|pub fn|interface|struct|enum|type)\s+([A-Za-z_][A-Za-z0-9_]*)`)

func analyzeStructureTool(ws *Workspace) react.RegisteredTool {
	return react.RegisteredTool{
		Descriptor: react.ToolDescriptor{
			Name:        "analyzeStructure",
			Description: "Summarize the structure of a file (imports, types, functions) or a directory (files per language).",
			Class:       react.ClassAnalyze,
			Params: []react.ParamSpec{
				{Name: "path", Type: react.ParamString, Required: true, NonEmpty: true},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			path, _ := react.GetStringArg(args, "path")
			return ws.AnalyzeStructure(path)
		},
	}
}

// AnalyzeStructure summarizes a file or directory.
func (w *Workspace) AnalyzeStructure(path string) (string, error) {
	resolved, err := w.resolve(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("analyze %s: %w", path, err)
	}
	if info.IsDir() {
		return w.analyzeDirectory(path)
	}
	if strings.HasSuffix(resolved, ".go") {
		return analyzeGoFile(resolved, path)
	}
	return analyzeGenericFile(resolved, path)
}

func (w *Workspace) analyzeDirectory(path string) (string, error) {
	entries, err := w.ListDirectory(path, 3)
	if err != nil {
		return "", err
	}
	byExt := map[string]int{}
	dirs := 0
	for _, e := range entries {
		if e.IsDir {
			dirs++
			continue
		}
		ext := filepath.Ext(e.Path)
		if ext == "" {
			ext = "(none)"
		}
		byExt[ext]++
	}
	exts := make([]string, 0, len(byExt))
	for ext := range byExt {
		exts = append(exts, ext)
	}
	sort.Slice(exts, func(i, j int) bool {
		if byExt[exts[i]] != byExt[exts[j]] {
			return byExt[exts[i]] > byExt[exts[j]]
		}
		return exts[i] < exts[j]
	})

	var sb strings.Builder
	fmt.Fprintf(&sb, "Directory %s: %d files, %d subdirectories (3 levels)\n", path, len(entries)-dirs, dirs)
	for _, ext := range exts {
		fmt.Fprintf(&sb, "  %s: %d\n", ext, byExt[ext])
	}
	return sb.String(), nil
}

func analyzeGoFile(resolved, path string) (string, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, resolved, nil, parser.SkipObjectResolution)
	if err != nil {
		// Parse errors are findings, not tool failures.
		return fmt.Sprintf("File %s: Go parse error: %v", path, err), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "File %s: package %s\n", path, file.Name.Name)
	if len(file.Imports) > 0 {
		sb.WriteString("Imports:\n")
		for _, imp := range file.Imports {
			fmt.Fprintf(&sb, "  %s\n", imp.Path.Value)
		}
	}

	var types, funcs []string
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.GenDecl:
			if d.Tok != token.TYPE {
				continue
			}
			for _, spec := range d.Specs {
				ts := spec.(*ast.TypeSpec)
				kind := "type"
				switch ts.Type.(type) {
				case *ast.StructType:
					kind = "struct"
				case *ast.InterfaceType:
					kind = "interface"
				}
				types = append(types, fmt.Sprintf("%s %s (line %d)", kind, ts.Name.Name, fset.Position(ts.Pos()).Line))
			}
		case *ast.FuncDecl:
			name := d.Name.Name
			if d.Recv != nil && len(d.Recv.List) > 0 {
				name = receiverName(d.Recv.List[0].Type) + "." + name
			}
			funcs = append(funcs, fmt.Sprintf("%s (line %d)", name, fset.Position(d.Pos()).Line))
		}
	}
	writeList(&sb, "Types", types)
	writeList(&sb, "Functions", funcs)
	return sb.String(), nil
}

func receiverName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return "*" + receiverName(t.X)
	case *ast.Ident:
		return t.Name
	case *ast.IndexExpr:
		return receiverName(t.X)
	case *ast.IndexListExpr:
		return receiverName(t.X)
	default:
		return "?"
	}
}

func analyzeGenericFile(resolved, path string) (string, error) {
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("analyze %s: %w", path, err)
	}
	lines := strings.Split(string(data), "\n")
	var defs []string
	for i, line := range lines {
		if m := definitionPattern.FindStringSubmatch(line); m != nil {
			defs = append(defs, fmt.Sprintf("%s %s (line %d)", m[3], m[4], i+1))
		}
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "File %s: %d lines\n", path, len(lines))
	writeList(&sb, "Definitions", defs)
	return sb.String(), nil
}

func writeList(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(sb, "  %s\n", item)
	}
}
