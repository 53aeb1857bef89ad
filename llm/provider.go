package llm

import "context"

// Provider is the interface every model backend implements.
type Provider interface {
	// Name returns the provider identifier (e.g. "openai", "anthropic").
	Name() string

	// Generate sends a blocking request and returns the full response text.
	Generate(ctx context.Context, req Request) (string, error)
}

// Closer is implemented by providers that hold resources.
type Closer interface {
	Close() error
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc struct {
	ProviderName string
	Fn           func(ctx context.Context, req Request) (string, error)
}

func (p ProviderFunc) Name() string { return p.ProviderName }

func (p ProviderFunc) Generate(ctx context.Context, req Request) (string, error) {
	return p.Fn(ctx, req)
}
