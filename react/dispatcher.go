package react

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultAliases maps common shorthand to registered tool names.
var DefaultAliases = map[string]string{
	"read":      "readFile",
	"cat":       "readFile",
	"open":      "readFile",
	"list":      "listFiles",
	"ls":        "listFiles",
	"dir":       "listFiles",
	"files":     "listFiles",
	"git":       "gitStatus",
	"status":    "gitStatus",
	"diff":      "gitDiff",
	"grep":      "searchCode",
	"search":    "searchCode",
	"find":      "searchCode",
	"write":     "writeFile",
	"save":      "writeFile",
	"lint":      "runLint",
	"analyze":   "analyzeStructure",
	"structure": "analyzeStructure",
	"outline":   "analyzeStructure",
	"final":     FinalAnswerTool,
	"answer":    FinalAnswerTool,
	"done":      FinalAnswerTool,
	"finish":    FinalAnswerTool,
}

// argAliases maps alternative argument keys to canonical ones.
var argAliases = map[string]string{
	"file":      "path",
	"file_path": "path",
	"filepath":  "path",
	"filename":  "path",
	"filePath":  "path",
	"dir":       "path",
	"directory": "path",
	"folder":    "path",
	"target":    "path",
	"query":     "pattern",
	"regex":     "pattern",
	"text":      "content",
	"result":    "answer",
	"response":  "answer",
}

// Resolution reports how a proposed name was mapped to a tool.
type Resolution struct {
	Requested string
	Resolved  string
	Corrected bool
}

// ToolDispatcher resolves, validates and executes tool calls against a
// registry.
type ToolDispatcher struct {
	registry *ToolRegistry
	aliases  map[string]string
	patterns *Patterns

	cache        *lru.Cache[string, string]
	cacheVersion uint64 // registry version the cache was filled against
	cacheMu      sync.Mutex
}

// NewToolDispatcher creates a dispatcher. A nil aliases map uses
// DefaultAliases.
func NewToolDispatcher(registry *ToolRegistry, patterns *Patterns, aliases map[string]string) *ToolDispatcher {
	if aliases == nil {
		aliases = DefaultAliases
	}
	cache, _ := lru.New[string, string](128)
	return &ToolDispatcher{
		registry:     registry,
		aliases:      aliases,
		patterns:     patterns,
		cache:        cache,
		cacheVersion: registry.Version(),
	}
}

// syncCache drops cached corrections made against an older tool set.
func (d *ToolDispatcher) syncCache() {
	v := d.registry.Version()
	d.cacheMu.Lock()
	defer d.cacheMu.Unlock()
	if v != d.cacheVersion {
		d.cache.Purge()
		d.cacheVersion = v
	}
}

// Resolve maps a proposed tool name to a registered descriptor: exact match,
// case-insensitive match, unique substring containment in either direction,
// then the alias table. An unresolved name yields an UnknownToolError with the
// nearest registered name as suggestion.
func (d *ToolDispatcher) Resolve(name string) (ToolDescriptor, Resolution, error) {
	requested := strings.TrimSpace(name)
	res := Resolution{Requested: requested}
	if requested == "" {
		return ToolDescriptor{}, res, &UnknownToolError{Name: name, Suggestion: d.nearest(name)}
	}

	if t := d.registry.Get(requested); t != nil {
		res.Resolved = requested
		return t.Descriptor, res, nil
	}

	d.syncCache()
	resolved, ok := d.cache.Get(requested)
	if !ok {
		resolved = d.correct(requested)
		if resolved != "" {
			d.cache.Add(requested, resolved)
		}
	}
	if t := d.registry.Get(resolved); resolved != "" && t != nil {
		res.Resolved = resolved
		res.Corrected = true
		return t.Descriptor, res, nil
	}
	return ToolDescriptor{}, res, &UnknownToolError{Name: requested, Suggestion: d.nearest(requested)}
}

func (d *ToolDispatcher) correct(requested string) string {
	names := d.registry.Names()
	lower := strings.ToLower(requested)

	for _, n := range names {
		if strings.ToLower(n) == lower {
			return n
		}
	}

	normalized := normalizeToolName(requested)
	if normalized == "" {
		return ""
	}
	var contained []string
	for _, n := range names {
		ln := normalizeToolName(n)
		if strings.Contains(ln, normalized) || strings.Contains(normalized, ln) {
			contained = append(contained, n)
		}
	}
	if len(contained) == 1 {
		return contained[0]
	}

	if alias, ok := d.aliases[lower]; ok && d.registry.Get(alias) != nil {
		return alias
	}
	if alias, ok := d.aliases[normalized]; ok && d.registry.Get(alias) != nil {
		return alias
	}
	return ""
}

// normalizeToolName lowercases and strips separators so read_file,
// read-file and readFile compare equal.
func normalizeToolName(s string) string {
	s = strings.ToLower(s)
	return strings.NewReplacer("_", "", "-", "", " ", "", ".", "").Replace(s)
}

// nearest returns the registered name with the smallest edit distance.
func (d *ToolDispatcher) nearest(name string) string {
	target := normalizeToolName(name)
	best, bestDist := "", -1
	for _, n := range d.registry.Names() {
		dist := levenshtein(target, normalizeToolName(n))
		if bestDist < 0 || dist < bestDist {
			best, bestDist = n, dist
		}
	}
	return best
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

// Validate normalizes argument keys and values against the descriptor and
// rejects inputs that cannot succeed. It returns a new map.
func (d *ToolDispatcher) Validate(desc ToolDescriptor, input map[string]any) (map[string]any, error) {
	args := make(map[string]any, len(input))
	for k, v := range input {
		if canonical, ok := argAliases[k]; ok {
			if _, known := desc.Param(k); !known {
				if _, taken := input[canonical]; !taken {
					k = canonical
				}
			}
		}
		if s, ok := v.(string); ok {
			v = strings.TrimSpace(s)
		}
		args[k] = v
	}
	// A lone bare string from the parser becomes the first required param.
	if bare, ok := args["input"]; ok {
		if _, known := desc.Param("input"); !known {
			delete(args, "input")
			for _, p := range desc.Params {
				if _, set := args[p.Name]; !set && p.Required {
					args[p.Name] = bare
					break
				}
			}
		}
	}

	for _, p := range desc.Params {
		v, present := args[p.Name]
		if !present || v == nil {
			switch {
			case p.Default != nil:
				args[p.Name] = p.Default
				continue
			case p.Name == "path" && desc.Class == ClassEnumerate:
				args[p.Name] = "."
				continue
			case p.Required:
				return nil, &ToolInputValidationError{Tool: desc.Name, Field: p.Name, Message: "is required"}
			default:
				continue
			}
		}
		normalized, err := normalizeParam(desc, p, v)
		if err != nil {
			return nil, err
		}
		args[p.Name] = normalized
	}

	if path, ok := GetStringArg(args, "path"); ok && d.patterns != nil && d.patterns.IsDeniedPath(path) {
		return nil, &ToolInputValidationError{
			Tool: desc.Name, Field: "path",
			Message: fmt.Sprintf("%q is a placeholder, not a real path; list the directory to find actual files", path),
		}
	}
	return args, nil
}

func normalizeParam(desc ToolDescriptor, p ParamSpec, v any) (any, error) {
	fail := func(msg string) error {
		return &ToolInputValidationError{Tool: desc.Name, Field: p.Name, Message: msg}
	}
	switch p.Type {
	case ParamString:
		s, ok := v.(string)
		if !ok {
			return nil, fail(fmt.Sprintf("must be a string, got %T", v))
		}
		nonEmpty := p.NonEmpty || (p.Name == "path" && (desc.Class == ClassRead || desc.Class == ClassAnalyze))
		if nonEmpty && s == "" {
			return nil, fail("must be a non-empty string")
		}
		if len(p.Enum) > 0 && !slices.Contains(p.Enum, s) {
			return nil, fail(fmt.Sprintf("must be one of %s", strings.Join(p.Enum, ", ")))
		}
		if p.Name == "path" && s != "" {
			s = filepath.ToSlash(filepath.Clean(s))
		}
		return s, nil
	case ParamInteger:
		n, ok := GetIntArg(map[string]any{p.Name: v}, p.Name)
		if !ok {
			return nil, fail(fmt.Sprintf("must be an integer, got %v", v))
		}
		return n, nil
	case ParamBoolean:
		b, ok := GetBoolArg(map[string]any{p.Name: v}, p.Name)
		if !ok {
			return nil, fail(fmt.Sprintf("must be a boolean, got %v", v))
		}
		return b, nil
	default:
		return v, nil
	}
}

// Execute runs a resolved tool. Failures come back as *ToolError with a
// kind; panics inside tools are converted to errors.
func (d *ToolDispatcher) Execute(ctx context.Context, desc ToolDescriptor, args map[string]any) (output string, err error) {
	tool := d.registry.Get(desc.Name)
	if tool == nil || tool.Execute == nil {
		return "", &ToolError{Tool: desc.Name, Kind: KindValidation, Err: fmt.Errorf("tool is not executable")}
	}
	defer func() {
		if r := recover(); r != nil {
			output, err = "", &ToolError{Tool: desc.Name, Kind: KindUnknown, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	output, err = tool.Execute(ctx, args)
	if err != nil {
		var te *ToolError
		if errors.As(err, &te) {
			if te.Tool == "" {
				te.Tool = desc.Name
			}
			return "", te
		}
		return "", &ToolError{Tool: desc.Name, Kind: ClassifyError(err), Err: err}
	}
	return output, nil
}
