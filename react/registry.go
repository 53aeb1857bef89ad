package react

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// FinalAnswerTool is the pseudo-tool a model names to finish.
const FinalAnswerTool = "final_answer"

// ToolClass groups tools by idempotence. The repetition guard and the
// progress tracker key off the class, never the tool name.
type ToolClass string

const (
	ClassEnumerate ToolClass = "enumerate" // directory listings
	ClassRead      ToolClass = "read"      // file reads
	ClassWrite     ToolClass = "write"
	ClassSearch    ToolClass = "search"
	ClassAnalyze   ToolClass = "analyze" // structural analysis, lint
	ClassVCS       ToolClass = "vcs"     // status, diff
	ClassFinal     ToolClass = "final"
	ClassOther     ToolClass = "other"
)

// ParamType is the JSON type of a tool parameter.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamInteger ParamType = "integer"
	ParamBoolean ParamType = "boolean"
)

// ParamSpec describes one tool parameter.
type ParamSpec struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Description string    `json:"description,omitempty"`
	Required    bool      `json:"required,omitempty"`
	NonEmpty    bool      `json:"non_empty,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
	Default     any       `json:"default,omitempty"`
}

// ToolDescriptor is the static, serializable description of a tool.
type ToolDescriptor struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Class       ToolClass   `json:"class"`
	Params      []ParamSpec `json:"params,omitempty"`
}

// Param returns the spec for a named parameter.
func (d ToolDescriptor) Param(name string) (ParamSpec, bool) {
	for _, p := range d.Params {
		if p.Name == name {
			return p, true
		}
	}
	return ParamSpec{}, false
}

// Schema renders the parameters as a JSON Schema object.
func (d ToolDescriptor) Schema() map[string]any {
	props := make(map[string]any, len(d.Params))
	var required []string
	for _, p := range d.Params {
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// ToolExecutor runs a tool with validated, normalized arguments.
type ToolExecutor func(ctx context.Context, args map[string]any) (string, error)

// RegisteredTool pairs a descriptor with its executor.
type RegisteredTool struct {
	Descriptor ToolDescriptor
	Execute    ToolExecutor
}

// finalAnswerDescriptor is always resolvable even though nothing executes it.
var finalAnswerDescriptor = ToolDescriptor{
	Name:        FinalAnswerTool,
	Description: "Finish the task and give the answer to the user.",
	Class:       ClassFinal,
	Params: []ParamSpec{
		{Name: "answer", Type: ParamString, Description: "The complete answer for the user.", Required: true},
	},
}

// ToolRegistry manages tool registration and lookup. It is built once at
// startup and is safe for concurrent use by many sessions.
type ToolRegistry struct {
	tools   map[string]*RegisteredTool
	version uint64 // bumped on every Register
	mu      sync.RWMutex
}

// NewToolRegistry creates a registry holding only final_answer.
func NewToolRegistry() *ToolRegistry {
	r := &ToolRegistry{tools: make(map[string]*RegisteredTool)}
	r.tools[FinalAnswerTool] = &RegisteredTool{Descriptor: finalAnswerDescriptor}
	return r
}

// Register adds or replaces a tool.
func (r *ToolRegistry) Register(tool RegisteredTool) error {
	if tool.Descriptor.Name == "" {
		return fmt.Errorf("register tool: empty name")
	}
	if tool.Descriptor.Name == FinalAnswerTool {
		return fmt.Errorf("register tool: %q is reserved", FinalAnswerTool)
	}
	if tool.Execute == nil {
		return fmt.Errorf("register tool %q: nil executor", tool.Descriptor.Name)
	}
	if tool.Descriptor.Class == "" {
		tool.Descriptor.Class = ClassOther
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Descriptor.Name] = &tool
	r.version++
	return nil
}

// Version changes whenever the set of tools changes.
func (r *ToolRegistry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Get returns a registered tool by exact name, or nil.
func (r *ToolRegistry) Get(name string) *RegisteredTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Names returns all registered tool names, sorted.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptors returns all descriptors sorted by name.
func (r *ToolRegistry) Descriptors() []ToolDescriptor {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ToolDescriptor, 0, len(names))
	for _, name := range names {
		defs = append(defs, r.tools[name].Descriptor)
	}
	return defs
}

// FirstOfClass returns the alphabetically first tool of a class.
func (r *ToolRegistry) FirstOfClass(class ToolClass) (ToolDescriptor, bool) {
	for _, d := range r.Descriptors() {
		if d.Class == class {
			return d, true
		}
	}
	return ToolDescriptor{}, false
}

// Count returns the number of registered tools, final_answer included.
func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// GetStringArg extracts a string argument.
func GetStringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetIntArg extracts an integer argument, accepting JSON numbers and
// numeric strings.
func GetIntArg(args map[string]any, key string) (int, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

// GetBoolArg extracts a boolean argument.
func GetBoolArg(args map[string]any, key string) (bool, bool) {
	v, ok := args[key]
	if !ok {
		return false, false
	}
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		return parsed, err == nil
	default:
		return false, false
	}
}
