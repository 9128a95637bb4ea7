// Package embeddings provides the embedding clients for the two semantic
// spaces the service uses: retrieval (classifier input, semantic search) and
// paraphrase (cross-source dedup). The spaces come from different models and
// are never interchangeable; each has its own endpoint and provider chain.
package embeddings

import (
	"context"
	"time"
)

// ProviderName identifies an embedding provider.
type ProviderName string

// Provider name constants.
const (
	ProviderOpenAICompatible ProviderName = "openai_compatible"
	ProviderMock             ProviderName = "mock"
)

// Priority constants for provider ordering.
const (
	PriorityPrimary  = 100
	PriorityFallback = 50
	PriorityMock     = 0
)

// Dimensions is the vector size of both semantic spaces.
const Dimensions = 768

// Result contains the embedding vector and metadata.
type Result struct {
	Vector   []float32
	Provider ProviderName
}

// Provider is one embedding backend.
type Provider interface {
	// Name returns the provider identifier.
	Name() ProviderName

	// Embed generates an embedding for the given text.
	Embed(ctx context.Context, text string) (Result, error)

	// IsAvailable returns true if the provider is configured and usable.
	IsAvailable() bool

	// Priority returns the provider priority (higher = preferred).
	Priority() int
}

// CircuitBreakerConfig defines circuit breaker settings.
type CircuitBreakerConfig struct {
	Threshold  int
	ResetAfter time.Duration
}

// DefaultCircuitBreakerConfig returns the reference circuit settings.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{Threshold: 5, ResetAfter: time.Minute}
}

// PadOrTruncate normalizes a vector to Dimensions, zero-padding short vectors
// and truncating long ones. Providers with non-native dimensions go through
// this before the vector reaches an index.
func PadOrTruncate(vec []float32) []float32 {
	if len(vec) == Dimensions {
		return vec
	}

	out := make([]float32, Dimensions)
	copy(out, vec)

	return out
}
