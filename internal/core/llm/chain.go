package llm

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	apperrors "github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/errors"
)

// Chain tries providers in priority order with per-provider circuit breaking.
// The winning provider's name travels with the completion so the analysis
// record can state which model produced it.
type Chain struct {
	providers []Provider
	circuits  map[ProviderName]*CircuitBreaker
	logger    *zerolog.Logger
}

// NewChain builds a chain from the given providers, ordered by priority
// descending.
func NewChain(providers []Provider, cbCfg CircuitBreakerConfig, logger *zerolog.Logger) *Chain {
	sorted := make([]Provider, len(providers))
	copy(sorted, providers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() > sorted[j].Priority()
	})

	circuits := make(map[ProviderName]*CircuitBreaker, len(sorted))
	for _, p := range sorted {
		circuits[p.Name()] = NewCircuitBreaker(cbCfg, logger)
	}

	return &Chain{providers: sorted, circuits: circuits, logger: logger}
}

// Complete tries each available provider until one returns a usable response.
func (c *Chain) Complete(ctx context.Context, system, user string, temperature float32, maxTokens int) (Completion, error) {
	var lastErr error

	for _, p := range c.providers {
		if !p.IsAvailable() {
			continue
		}

		cb := c.circuits[p.Name()]
		if err := cb.CheckCircuit(); err != nil {
			lastErr = err

			continue
		}

		text, err := p.Complete(ctx, system, user, temperature, maxTokens)
		if err != nil {
			cb.RecordFailure(p.Name())
			c.logger.Warn().Err(err).
				Str("provider", string(p.Name())).
				Msg("llm provider failed")

			lastErr = err

			continue
		}

		cb.RecordSuccess()

		return Completion{Text: text, Provider: p.Name()}, nil
	}

	if lastErr == nil {
		lastErr = apperrors.ErrNoProviderAvailable
	}

	return Completion{}, fmt.Errorf("llm completion: %w", lastErr)
}
