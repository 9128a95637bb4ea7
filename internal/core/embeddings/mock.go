package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// MockProvider produces deterministic pseudo-embeddings derived from the
// input text. It keeps the pipeline runnable without any embedding service;
// identical texts map to identical vectors, so dedup stage C still catches
// exact paraphrases of itself in tests.
type MockProvider struct{}

// NewMock creates a mock embedding provider.
func NewMock() *MockProvider {
	return &MockProvider{}
}

// Name returns the provider identifier.
func (p *MockProvider) Name() ProviderName {
	return ProviderMock
}

// IsAvailable always reports true.
func (p *MockProvider) IsAvailable() bool {
	return true
}

// Priority returns the lowest priority; the mock is always the last resort.
func (p *MockProvider) Priority() int {
	return PriorityMock
}

// Embed derives a unit-norm vector from the SHA-256 stream of the text.
func (p *MockProvider) Embed(_ context.Context, text string) (Result, error) {
	vec := make([]float32, Dimensions)
	seed := sha256.Sum256([]byte(text))

	var norm float64

	state := seed
	for i := 0; i < Dimensions; i++ {
		if i%8 == 0 && i > 0 {
			state = sha256.Sum256(state[:])
		}

		bits := binary.BigEndian.Uint32(state[(i%8)*4 : (i%8)*4+4])
		v := float32(int32(bits)) / float32(math.MaxInt32)
		vec[i] = v
		norm += float64(v) * float64(v)
	}

	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}

	return Result{Vector: vec, Provider: p.Name()}, nil
}
