package llm

// Role identifies who produced a piece of conversation text.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// GenerateOptions are the per-call knobs callers may set. Zero values mean
// "use the provider default".
type GenerateOptions struct {
	Provider    string   `json:"provider,omitempty"`
	Model       string   `json:"model,omitempty"`
	System      string   `json:"system,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// Request is what a Provider receives.
type Request struct {
	Provider    string   `json:"provider,omitempty"`
	Model       string   `json:"model"`
	System      string   `json:"system,omitempty"`
	Prompt      string   `json:"prompt"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// NewRequest builds a Request from a prompt and options.
func NewRequest(prompt string, opts GenerateOptions) Request {
	req := Request{
		Provider:    opts.Provider,
		Model:       opts.Model,
		System:      opts.System,
		Prompt:      prompt,
		Temperature: opts.Temperature,
	}
	if opts.MaxTokens > 0 {
		n := opts.MaxTokens
		req.MaxTokens = &n
	}
	return req
}

// Float64 returns a pointer to v, for optional request fields.
func Float64(v float64) *float64 { return &v }
