// Package llm sends chat requests to model providers and routes them across a
// primary/fallback model chain.
//
// Model names are "provider/model" (e.g. "anthropic/claude-sonnet-4"). The
// Router tries the requested model, then every fallback in order. Each
// candidate gets up to RouterConfig.MaxAttempts attempts; only rate-limit and
// transient failures are retried on the same candidate, with exponential
// backoff. When every candidate fails, Complete returns a *ModelExhaustedError
// naming every model and every per-attempt error.
//
// Usage:
//
//	router := llm.NewRouter(llm.RouterConfig{
//		DefaultModel: "openai/gpt-4o-mini",
//		Providers: map[string]llm.Provider{
//			"openai": llm.NewOpenAIProvider(os.Getenv("OPENAI_API_KEY")),
//		},
//	})
//	resp, err := router.Complete(ctx, llm.CompletionRequest{Messages: msgs})
package llm
