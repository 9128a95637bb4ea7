package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/errors"
)

type stubProvider struct {
	name      ProviderName
	priority  int
	available bool
	text      string
	err       error
	calls     int
}

func (s *stubProvider) Name() ProviderName { return s.name }
func (s *stubProvider) IsAvailable() bool  { return s.available }
func (s *stubProvider) Priority() int      { return s.priority }

func (s *stubProvider) Complete(context.Context, string, string, float32, int) (string, error) {
	s.calls++

	return s.text, s.err
}

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()

	return &l
}

func TestChainPrefersHigherPriority(t *testing.T) {
	primary := &stubProvider{name: ProviderLocal, priority: PriorityPrimary, available: true, text: "primary"}
	fallback := &stubProvider{name: ProviderHosted, priority: PriorityFallback, available: true, text: "fallback"}

	chain := NewChain([]Provider{fallback, primary}, DefaultCircuitBreakerConfig(), testLogger())

	got, err := chain.Complete(context.Background(), "s", "u", 0.1, 100)
	require.NoError(t, err)
	assert.Equal(t, "primary", got.Text)
	assert.Equal(t, ProviderLocal, got.Provider)
	assert.Zero(t, fallback.calls)
}

func TestChainFallsBackOnError(t *testing.T) {
	primary := &stubProvider{name: ProviderLocal, priority: PriorityPrimary, available: true, err: errors.New("connection refused")}
	fallback := &stubProvider{name: ProviderHosted, priority: PriorityFallback, available: true, text: "fallback"}

	chain := NewChain([]Provider{primary, fallback}, DefaultCircuitBreakerConfig(), testLogger())

	got, err := chain.Complete(context.Background(), "s", "u", 0.1, 100)
	require.NoError(t, err)
	assert.Equal(t, "fallback", got.Text)
	assert.Equal(t, ProviderHosted, got.Provider)
}

func TestChainSkipsUnavailable(t *testing.T) {
	primary := &stubProvider{name: ProviderLocal, priority: PriorityPrimary, available: false, text: "never"}
	mock := &stubProvider{name: ProviderMock, priority: PriorityMock, available: true, text: "mock"}

	chain := NewChain([]Provider{primary, mock}, DefaultCircuitBreakerConfig(), testLogger())

	got, err := chain.Complete(context.Background(), "s", "u", 0.1, 100)
	require.NoError(t, err)
	assert.Equal(t, "mock", got.Text)
	assert.Zero(t, primary.calls)
}

func TestChainNoProviderAvailable(t *testing.T) {
	chain := NewChain([]Provider{
		&stubProvider{name: ProviderLocal, priority: PriorityPrimary, available: false},
	}, DefaultCircuitBreakerConfig(), testLogger())

	_, err := chain.Complete(context.Background(), "s", "u", 0.1, 100)
	assert.ErrorIs(t, err, apperrors.ErrNoProviderAvailable)
}

func TestChainCircuitOpensAfterThreshold(t *testing.T) {
	failing := &stubProvider{name: ProviderLocal, priority: PriorityPrimary, available: true, err: errors.New("boom")}

	cfg := CircuitBreakerConfig{Threshold: 2, ResetAfter: time.Minute}
	chain := NewChain([]Provider{failing}, cfg, testLogger())

	for i := 0; i < 2; i++ {
		_, err := chain.Complete(context.Background(), "s", "u", 0.1, 100)
		require.Error(t, err)
	}

	_, err := chain.Complete(context.Background(), "s", "u", 0.1, 100)
	assert.ErrorIs(t, err, apperrors.ErrCircuitBreakerOpen)
	assert.Equal(t, 2, failing.calls)
}
