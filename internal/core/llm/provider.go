// Package llm provides the completion client used by the analysis worker and
// the semantic rule evaluator: a provider chain with a local OpenAI-compatible
// endpoint first, an optional hosted fallback, and a deterministic mock when
// nothing is configured.
package llm

import "context"

// ProviderName identifies an LLM provider.
type ProviderName string

// Provider name constants.
const (
	ProviderLocal  ProviderName = "local"
	ProviderHosted ProviderName = "hosted"
	ProviderMock   ProviderName = "mock"
)

// Priority constants for provider ordering.
const (
	PriorityPrimary  = 100
	PriorityFallback = 50
	PriorityMock     = 0
)

// Provider is one completion backend.
type Provider interface {
	// Name returns the provider identifier.
	Name() ProviderName

	// IsAvailable returns true if the provider is configured and usable.
	IsAvailable() bool

	// Priority returns the provider priority (higher = preferred).
	Priority() int

	// Complete sends a system+user prompt pair and returns the raw response
	// text.
	Complete(ctx context.Context, system, user string, temperature float32, maxTokens int) (string, error)
}

// Completion is a provider response together with its origin.
type Completion struct {
	Text     string
	Provider ProviderName
}

// Client is the interface analysis consumers depend on.
type Client interface {
	Complete(ctx context.Context, system, user string, temperature float32, maxTokens int) (Completion, error)
}
