package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/teilomillet/gollm"
)

// GollmAdapter wraps a gollm.LLM instance and implements Provider.
type GollmAdapter struct {
	provider string
	llm      gollm.LLM
	model    string
	// gollm applies per-request options by mutating the LLM, so calls on one
	// adapter are serialized.
	mu sync.Mutex
}

// GollmAdapterOption configures a GollmAdapter.
type GollmAdapterOption func(*gollmAdapterConfig)

type gollmAdapterConfig struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	extraOpts   []gollm.ConfigOption
}

// WithAPIKey sets the API key for the adapter.
func WithAPIKey(key string) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.apiKey = key
	}
}

// WithModel sets the default model for the adapter.
func WithModel(model string) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.model = model
	}
}

// WithMaxTokens sets the default max tokens.
func WithMaxTokens(n int) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.maxTokens = n
	}
}

// WithTemperature sets the default temperature.
func WithTemperature(t float64) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.temperature = t
	}
}

// WithGollmOptions adds extra gollm configuration options.
func WithGollmOptions(opts ...gollm.ConfigOption) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.extraOpts = append(c.extraOpts, opts...)
	}
}

// NewGollmAdapter creates a new GollmAdapter for the given provider.
// If apiKey is empty, gollm will attempt to read it from environment variables.
func NewGollmAdapter(provider string, apiKey string, opts ...GollmAdapterOption) (*GollmAdapter, error) {
	cfg := &gollmAdapterConfig{
		apiKey:      apiKey,
		maxTokens:   4096,
		temperature: 0.2,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	model := cfg.model
	if model == "" {
		if info := GetLatestModel(provider, "tools"); info != nil {
			model = info.ID
		} else {
			model = "gpt-4o-mini"
		}
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // the agent loop owns retries
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(cfg.apiKey))
	}
	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	llm, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gollm LLM for provider %s: %w", provider, err)
	}

	return &GollmAdapter{
		provider: provider,
		llm:      llm,
		model:    model,
	}, nil
}

// NewGollmAdapterFromLLM wraps an existing gollm.LLM instance.
func NewGollmAdapterFromLLM(provider string, llm gollm.LLM) *GollmAdapter {
	return &GollmAdapter{
		provider: provider,
		llm:      llm,
	}
}

// Name returns the provider identifier.
func (a *GollmAdapter) Name() string {
	return a.provider
}

// Generate sends a blocking request and returns the response text.
func (a *GollmAdapter) Generate(ctx context.Context, req Request) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.applyRequestOptions(req)
	text, err := a.llm.Generate(ctx, a.translateRequest(req))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", a.translateError(err)
	}
	return text, nil
}

// translateRequest converts a Request into a gollm Prompt.
func (a *GollmAdapter) translateRequest(req Request) *gollm.Prompt {
	promptText := req.Prompt
	if strings.TrimSpace(promptText) == "" {
		promptText = "Hello"
	}

	var promptOpts []gollm.PromptOption
	if req.System != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(strings.TrimSpace(req.System), gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens != nil {
		promptOpts = append(promptOpts, gollm.WithMaxLength(*req.MaxTokens))
	}
	return gollm.NewPrompt(promptText, promptOpts...)
}

// applyRequestOptions applies request-level parameters to the gollm LLM.
func (a *GollmAdapter) applyRequestOptions(req Request) {
	model := req.Model
	if model == "" {
		model = a.model
	}
	if model != "" {
		a.llm.SetOption("model", model)
	}
	if req.Temperature != nil {
		a.llm.SetOption("temperature", *req.Temperature)
	}
	if req.MaxTokens != nil {
		a.llm.SetOption("max_tokens", *req.MaxTokens)
	}
}

// translateError converts a gollm error into the typed error hierarchy.
func (a *GollmAdapter) translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &RequestTimeoutError{SDKError: SDKError{Message: err.Error(), Cause: err}}
	}
	msg := err.Error()
	base := ProviderError{SDKError: SDKError{Message: msg, Cause: err}, Provider: a.provider}

	msgLower := strings.ToLower(msg)
	switch {
	case containsAny(msgLower, "401", "unauthorized", "invalid key", "invalid api key"):
		base.StatusCode = 401
		return &AuthenticationError{ProviderError: base}
	case containsAny(msgLower, "403", "forbidden"):
		base.StatusCode = 403
		return &AccessDeniedError{ProviderError: base}
	case containsAny(msgLower, "404", "not found"):
		base.StatusCode = 404
		return &NotFoundError{ProviderError: base}
	case containsAny(msgLower, "429", "rate limit"):
		base.StatusCode = 429
		base.Retryable = true
		return &RateLimitError{ProviderError: base}
	case containsAny(msgLower, "context length", "too many tokens"):
		base.StatusCode = 413
		return &ContextLengthError{ProviderError: base}
	case containsAny(msgLower, "500", "502", "503", "internal server", "bad gateway", "unavailable"):
		base.StatusCode = 500
		base.Retryable = true
		return &ServerError{ProviderError: base}
	case containsAny(msgLower, "timeout", "deadline exceeded"):
		return &RequestTimeoutError{SDKError: SDKError{Message: msg, Cause: err}}
	case containsAny(msgLower, "connection refused", "connection reset", "no such host", "eof"):
		return &NetworkError{SDKError: SDKError{Message: msg, Cause: err}}
	case containsAny(msgLower, "content filter", "safety"):
		return &ContentFilterError{ProviderError: base}
	default:
		base.Retryable = true
		return &base
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
