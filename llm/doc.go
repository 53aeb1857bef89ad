// Package llm is the model-client transport used by the reactor agent loop.
// It wraps the gollm library (github.com/teilomillet/gollm) behind a small
// text-in/text-out Provider interface and adds provider routing, a middleware
// chain and a retry-aware error taxonomy.
//
// # Architecture
//
//   - Provider: one backend (GollmAdapter for openai, anthropic, ollama, ...)
//   - Client: routes a Request to a provider, by explicit name, by the model
//     catalog or by the default provider, through the middleware chain
//   - Middleware: cross-cutting concerns (LoggingMiddleware, MetricsMiddleware)
//   - Errors: provider failures translated into typed errors; IsRetryable
//     tells callers whether a backoff retry is worthwhile
//
// # Quick Start
//
//	adapter, err := llm.NewGollmAdapter("anthropic", os.Getenv("ANTHROPIC_API_KEY"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client := llm.NewClient(llm.WithProvider("anthropic", adapter))
//
//	text, err := client.Generate(ctx, "Say hello", llm.GenerateOptions{
//	    System: "You are terse.",
//	})
//
// The Client satisfies react.ModelClient, so it plugs straight into the
// orchestrator.
package llm
