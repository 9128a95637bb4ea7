package llm

import (
	"context"
	"encoding/json"
	"strings"
)

// MockProvider returns canned analysis responses keyed on prompt content. It
// keeps the worker loop testable and the pipeline runnable without a model
// server.
type MockProvider struct{}

// NewMock creates a mock LLM provider.
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

// Complete returns a deterministic JSON response matching the prompt's
// schema. Items mentioning welfare terms come back as relevant so integration
// paths past the relevance gate stay exercisable.
func (p *MockProvider) Complete(_ context.Context, system, user string, _ float32, _ int) (string, error) {
	lower := strings.ToLower(user)

	relevant := strings.Contains(lower, "sozial") ||
		strings.Contains(lower, "pflege") ||
		strings.Contains(lower, "wohlfahrt")

	// Semantic rule verdicts ask for {"match": bool}.
	if strings.Contains(system, `"match"`) {
		return marshal(map[string]any{"match": relevant})
	}

	resp := map[string]any{
		"summary":           "Automatisch erzeugte Zusammenfassung.",
		"detailed_analysis": "Automatisch erzeugte Einordnung.",
		"priority":          "low",
		"assigned_groups":   []string{},
		"tags":              []string{},
		"reasoning":         "mock response",
	}
	if relevant {
		resp["priority"] = "medium"
		resp["assigned_groups"] = []string{"AK2"}
	}

	return marshal(resp)
}

func marshal(v map[string]any) (string, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	return string(out), nil
}
