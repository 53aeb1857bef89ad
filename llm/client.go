package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Middleware wraps a provider call. It receives the request and a next
// function that calls the downstream handler.
type Middleware func(ctx context.Context, req Request, next func(context.Context, Request) (string, error)) (string, error)

// Client routes requests to registered providers and applies middleware.
// It is safe for concurrent use by multiple sessions.
type Client struct {
	providers       map[string]Provider
	defaultProvider string
	defaultModel    string
	middleware      []Middleware
	mu              sync.RWMutex
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithProvider registers a provider.
func WithProvider(name string, p Provider) ClientOption {
	return func(c *Client) {
		c.providers[name] = p
	}
}

// WithDefaultProvider sets the default provider name.
func WithDefaultProvider(name string) ClientOption {
	return func(c *Client) {
		c.defaultProvider = name
	}
}

// WithDefaultModel sets the model used when a call does not name one.
func WithDefaultModel(model string) ClientOption {
	return func(c *Client) {
		c.defaultModel = model
	}
}

// WithMiddleware adds middleware to the client.
func WithMiddleware(mw ...Middleware) ClientOption {
	return func(c *Client) {
		c.middleware = append(c.middleware, mw...)
	}
}

// NewClient creates a new Client with the given options.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		providers: make(map[string]Provider),
	}
	for _, opt := range opts {
		opt(c)
	}
	// If no default and exactly one provider, use it.
	if c.defaultProvider == "" && len(c.providers) == 1 {
		for name := range c.providers {
			c.defaultProvider = name
		}
	}
	return c
}

// RegisterProvider adds a provider to the client.
func (c *Client) RegisterProvider(name string, p Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[name] = p
	if c.defaultProvider == "" {
		c.defaultProvider = name
	}
}

// HasModel reports whether a request for model could be routed.
func (c *Client) HasModel(model string) bool {
	_, err := c.resolveProvider(Request{Model: model})
	return err == nil
}

// resolveProvider picks the provider for a request: explicit name first,
// then the catalog entry for the model, then the default.
func (c *Client) resolveProvider(req Request) (Provider, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	name := req.Provider
	if name == "" && req.Model != "" {
		if info := GetModelInfo(req.Model); info != nil {
			if _, ok := c.providers[info.Provider]; ok {
				name = info.Provider
			}
		}
	}
	if name == "" {
		name = c.defaultProvider
	}
	if name == "" {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: "no provider specified and no default provider configured",
		}}
	}

	p, ok := c.providers[name]
	if !ok {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: fmt.Sprintf("provider %q is not registered", name),
		}}
	}
	return p, nil
}

// Generate sends prompt through the middleware chain to the resolved
// provider and returns the response text.
func (c *Client) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	req := NewRequest(prompt, opts)
	if req.Model == "" {
		req.Model = c.defaultModel
	}
	return c.Complete(ctx, req)
}

// Complete sends a prepared request through middleware to the resolved provider.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	p, err := c.resolveProvider(req)
	if err != nil {
		return "", err
	}
	if req.Provider == "" {
		req.Provider = p.Name()
	}

	handler := func(ctx context.Context, r Request) (string, error) {
		return p.Generate(ctx, r)
	}

	// Apply middleware in reverse order so first registered runs first.
	c.mu.RLock()
	chain := make([]Middleware, len(c.middleware))
	copy(chain, c.middleware)
	c.mu.RUnlock()
	for i := len(chain) - 1; i >= 0; i-- {
		mw := chain[i]
		next := handler
		handler = func(ctx context.Context, r Request) (string, error) {
			return mw(ctx, r, next)
		}
	}

	return handler(ctx, req)
}

// Close releases resources held by all registered providers.
func (c *Client) Close() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var firstErr error
	for _, p := range c.providers {
		if closer, ok := p.(Closer); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// LoggingMiddleware logs every model call at debug level and failures at warn.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req Request, next func(context.Context, Request) (string, error)) (string, error) {
		start := time.Now()
		text, err := next(ctx, req)
		attrs := []any{
			"provider", req.Provider,
			"model", req.Model,
			"prompt_len", len(req.Prompt),
			"duration", time.Since(start),
		}
		if err != nil {
			logger.WarnContext(ctx, "llm: generate failed", append(attrs, "error", err, "retryable", IsRetryable(err))...)
			return "", err
		}
		logger.DebugContext(ctx, "llm: generate", append(attrs, "response_len", len(text))...)
		return text, nil
	}
}

// NewClientFromEnv creates a Client by creating GollmAdapters for each
// provider whose API key is present in the environment.
func NewClientFromEnv(opts ...ClientOption) *Client {
	c := NewClient(opts...)
	for _, provider := range []string{"openai", "anthropic"} {
		adapter, err := NewGollmAdapter(provider, "")
		if err == nil {
			c.RegisterProvider(provider, adapter)
		}
	}
	return c
}
