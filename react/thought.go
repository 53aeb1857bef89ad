package react

import (
	"encoding/json"
	"strings"

	"github.com/titanous/json5"
)

// Thought is one iteration's parsed proposal.
type Thought struct {
	Reasoning string         `json:"thought"`
	ToolName  string         `json:"tool"`
	ToolInput map[string]any `json:"toolInput"`
}

// JSON returns the canonical JSON form stored in memory for audit.
func (t Thought) JSON() string {
	input := t.ToolInput
	if input == nil {
		input = map[string]any{}
	}
	data, err := json.Marshal(Thought{Reasoning: t.Reasoning, ToolName: t.ToolName, ToolInput: input})
	if err != nil {
		return `{"thought":` + quoteJSON(t.Reasoning) + `,"tool":` + quoteJSON(t.ToolName) + `,"toolInput":{}}`
	}
	return string(data)
}

func quoteJSON(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}

// Accepted spellings of each field, in priority order.
var (
	thoughtKeys = []string{"thought", "reasoning", "thinking", "reason"}
	toolKeys    = []string{"tool", "action", "tool_name", "toolName", "name"}
	inputKeys   = []string{"toolInput", "tool_input", "input", "action_input", "args", "arguments", "parameters"}
)

const maxRawInError = 200

// ParseThought extracts the first balanced JSON object from model output.
// Prose before the object becomes the reasoning when the object carries
// none. Strict JSON is tried first, then JSON5 for trailing commas, single
// quotes and comments.
func ParseThought(text string) (Thought, error) {
	start, end, ok := firstBalancedObject(text)
	if !ok {
		return Thought{}, &ParseError{Reason: "no JSON object found", Raw: truncateRaw(text)}
	}
	block := text[start:end]

	var raw map[string]any
	if err := json.Unmarshal([]byte(block), &raw); err != nil {
		if err5 := json5.Unmarshal([]byte(block), &raw); err5 != nil {
			return Thought{}, &ParseError{Reason: "malformed JSON: " + err.Error(), Raw: truncateRaw(block)}
		}
	}

	t := Thought{
		Reasoning: strings.TrimSpace(firstString(raw, thoughtKeys)),
		ToolName:  strings.TrimSpace(firstString(raw, toolKeys)),
	}
	if t.ToolName == "" {
		return Thought{}, &ParseError{Reason: `missing "tool" field`, Raw: truncateRaw(block)}
	}
	input, err := toolInput(raw)
	if err != nil {
		return Thought{}, &ParseError{Reason: err.Error(), Raw: truncateRaw(block)}
	}
	t.ToolInput = input

	if t.Reasoning == "" {
		t.Reasoning = strings.TrimSpace(text[:start])
		t.Reasoning = strings.TrimSuffix(t.Reasoning, "```json")
		t.Reasoning = strings.TrimSpace(strings.TrimSuffix(t.Reasoning, "```"))
	}
	if t.Reasoning == "" {
		t.Reasoning = "(no reasoning given)"
	}
	return t, nil
}

func firstString(raw map[string]any, keys []string) string {
	for _, k := range keys {
		if s, ok := raw[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// toolInput accepts an object, a JSON-encoded object in a string, or a bare
// string (wrapped as {"input": s}).
func toolInput(raw map[string]any) (map[string]any, error) {
	for _, k := range inputKeys {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		switch in := v.(type) {
		case map[string]any:
			return in, nil
		case string:
			trimmed := strings.TrimSpace(in)
			if strings.HasPrefix(trimmed, "{") {
				var obj map[string]any
				if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
					return obj, nil
				}
				if err := json5.Unmarshal([]byte(trimmed), &obj); err == nil {
					return obj, nil
				}
			}
			if trimmed == "" {
				return map[string]any{}, nil
			}
			return map[string]any{"input": in}, nil
		default:
			return map[string]any{"input": in}, nil
		}
	}
	return map[string]any{}, nil
}

// firstBalancedObject finds the first '{' and its matching '}', skipping
// braces inside string literals.
func firstBalancedObject(text string) (start, end int, ok bool) {
	start = strings.IndexByte(text, '{')
	for start >= 0 {
		depth := 0
		var quote byte
		escaped := false
		for i := start; i < len(text); i++ {
			c := text[i]
			if quote != 0 {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == quote:
					quote = 0
				}
				continue
			}
			switch c {
			case '"', '\'':
				quote = c
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return start, i + 1, true
				}
			}
		}
		// Unbalanced from this brace; try the next one.
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return 0, 0, false
}

func truncateRaw(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxRawInError {
		return s
	}
	return headBytes(s, maxRawInError) + "..."
}
