package embeddings

import (
	"context"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	apperrors "github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/errors"
)

// OpenAICompatibleProvider talks to any OpenAI-compatible embeddings endpoint
// (local text-embeddings-inference, Ollama, or a hosted API).
type OpenAICompatibleProvider struct {
	client   *openai.Client
	model    string
	limiter  *rate.Limiter
	priority int
}

// NewOpenAICompatible creates a provider against the given base URL and model.
// timeout bounds one HTTP round trip; zero leaves it to the caller's context.
func NewOpenAICompatible(baseURL, apiKey, model string, rps float64, timeout time.Duration, priority int) *OpenAICompatibleProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	if timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}

	if rps <= 0 {
		rps = 1
	}

	return &OpenAICompatibleProvider{
		client:   openai.NewClientWithConfig(cfg),
		model:    model,
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
		priority: priority,
	}
}

// Name returns the provider identifier.
func (p *OpenAICompatibleProvider) Name() ProviderName {
	return ProviderOpenAICompatible
}

// IsAvailable reports whether the provider is configured.
func (p *OpenAICompatibleProvider) IsAvailable() bool {
	return p.model != ""
}

// Priority returns the provider priority.
func (p *OpenAICompatibleProvider) Priority() int {
	return p.priority
}

// Embed generates an embedding for the given text.
func (p *OpenAICompatibleProvider) Embed(ctx context.Context, text string) (Result, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("rate limiter: %w", err)
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: []string{text},
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return Result{}, fmt.Errorf("create embedding: %w", err)
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return Result{}, apperrors.ErrEmptyResponse
	}

	return Result{
		Vector:   PadOrTruncate(resp.Data[0].Embedding),
		Provider: p.Name(),
	}, nil
}
