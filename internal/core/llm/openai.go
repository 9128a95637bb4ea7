package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	apperrors "github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/errors"
)

// OpenAICompatibleProvider talks to any OpenAI-compatible chat completion
// endpoint. The primary deployment points it at a local model server; the
// hosted fallback reuses the same shape with a different base URL and key.
type OpenAICompatibleProvider struct {
	name     ProviderName
	client   *openai.Client
	model    string
	limiter  *rate.Limiter
	priority int
}

// NewOpenAICompatible creates a provider against the given base URL and model.
func NewOpenAICompatible(name ProviderName, baseURL, apiKey, model string, rps float64, priority int) *OpenAICompatibleProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	if rps <= 0 {
		rps = 1
	}

	return &OpenAICompatibleProvider{
		name:     name,
		client:   openai.NewClientWithConfig(cfg),
		model:    model,
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
		priority: priority,
	}
}

// Name returns the provider identifier.
func (p *OpenAICompatibleProvider) Name() ProviderName {
	return p.name
}

// IsAvailable reports whether the provider is configured.
func (p *OpenAICompatibleProvider) IsAvailable() bool {
	return p.model != ""
}

// Priority returns the provider priority.
func (p *OpenAICompatibleProvider) Priority() int {
	return p.priority
}

// Complete sends the prompt pair and returns the first choice text.
func (p *OpenAICompatibleProvider) Complete(ctx context.Context, system, user string, temperature float32, maxTokens int) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", apperrors.ErrEmptyResponse
	}

	return resp.Choices[0].Message.Content, nil
}
