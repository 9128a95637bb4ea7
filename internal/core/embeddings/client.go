package embeddings

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	apperrors "github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/errors"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/platform/observability"
)

// Client is the interface the pipeline consumes: one call per semantic space.
type Client interface {
	// EmbedRetrieval computes a retrieval-space vector (classifier input,
	// semantic search).
	EmbedRetrieval(ctx context.Context, title, content string) (Result, error)

	// EmbedParaphrase computes a paraphrase-space vector (dedup stage C).
	EmbedParaphrase(ctx context.Context, title, content string) (Result, error)
}

// Endpoint is a provider chain with circuit breaking for one semantic space.
type Endpoint struct {
	space     string
	providers []Provider
	circuits  map[ProviderName]*CircuitBreaker
	logger    *zerolog.Logger
}

// NewEndpoint builds an endpoint from the given providers, ordered by
// priority descending. Unavailable providers are skipped at call time.
func NewEndpoint(space string, providers []Provider, cbCfg CircuitBreakerConfig, logger *zerolog.Logger) *Endpoint {
	sorted := make([]Provider, len(providers))
	copy(sorted, providers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() > sorted[j].Priority()
	})

	circuits := make(map[ProviderName]*CircuitBreaker, len(sorted))
	for _, p := range sorted {
		circuits[p.Name()] = NewCircuitBreaker(cbCfg, logger)
	}

	return &Endpoint{space: space, providers: sorted, circuits: circuits, logger: logger}
}

// Embed tries each provider in priority order until one succeeds.
func (e *Endpoint) Embed(ctx context.Context, text string) (Result, error) {
	var lastErr error

	for _, p := range e.providers {
		if !p.IsAvailable() {
			continue
		}

		cb := e.circuits[p.Name()]
		if err := cb.CheckCircuit(); err != nil {
			lastErr = err

			continue
		}

		res, err := p.Embed(ctx, text)
		if err != nil {
			cb.RecordFailure(p.Name())
			observability.EmbeddingRequests.WithLabelValues(e.space, "error").Inc()
			e.logger.Warn().Err(err).
				Str("space", e.space).
				Str("provider", string(p.Name())).
				Msg("embedding provider failed")

			lastErr = err

			continue
		}

		cb.RecordSuccess()
		observability.EmbeddingRequests.WithLabelValues(e.space, "ok").Inc()

		return res, nil
	}

	if lastErr == nil {
		lastErr = apperrors.ErrNoProviderAvailable
	}

	return Result{}, fmt.Errorf("%s embedding: %w", e.space, lastErr)
}

// TwoSpaceClient implements Client over two independent endpoints.
type TwoSpaceClient struct {
	retrieval  *Endpoint
	paraphrase *Endpoint
}

// NewTwoSpaceClient wires the retrieval and paraphrase endpoints.
func NewTwoSpaceClient(retrieval, paraphrase *Endpoint) *TwoSpaceClient {
	return &TwoSpaceClient{retrieval: retrieval, paraphrase: paraphrase}
}

// EmbedRetrieval computes a retrieval-space vector.
func (c *TwoSpaceClient) EmbedRetrieval(ctx context.Context, title, content string) (Result, error) {
	return c.retrieval.Embed(ctx, EmbedInput(title, content, retrievalMaxContentChars))
}

// EmbedParaphrase computes a paraphrase-space vector.
func (c *TwoSpaceClient) EmbedParaphrase(ctx context.Context, title, content string) (Result, error) {
	return c.paraphrase.Embed(ctx, EmbedInput(title, content, paraphraseMaxContentChars))
}

const (
	// paraphraseMaxContentChars caps the content slice hashed into the
	// paraphrase vector: title plus the first 2000 characters.
	paraphraseMaxContentChars = 2000

	// retrievalMaxContentChars approximates 512 tokens of content.
	retrievalMaxContentChars = 2048
)

// EmbedInput builds the canonical text fed to an embedding endpoint:
// title + " " + content truncated to maxContent characters.
func EmbedInput(title, content string, maxContent int) string {
	runes := []rune(content)
	if len(runes) > maxContent {
		content = string(runes[:maxContent])
	}

	if title == "" {
		return content
	}

	return title + " " + content
}
