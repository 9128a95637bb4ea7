package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/errors"
)

func TestLoopReadyGateBlocksWhilePaused(t *testing.T) {
	c := NewController("gate", 3, nil)

	ctx, err := c.Start(context.Background())
	require.NoError(t, err)

	c.Pause()

	processed := make(chan struct{}, 1)
	done := make(chan error, 1)

	go func() {
		done <- Loop(ctx, Config{
			Name:         "gate",
			PollInterval: time.Millisecond,
			Ready:        c.AwaitRunnable,
			Process: func(context.Context) error {
				select {
				case processed <- struct{}{}:
				default:
				}

				return nil
			},
		})
	}()

	select {
	case <-processed:
		t.Fatal("process ran while paused")
	case <-time.After(50 * time.Millisecond):
	}

	c.Resume()

	select {
	case <-processed:
	case <-time.After(time.Second):
		t.Fatal("process did not run after resume")
	}

	c.Stop()
	assert.Error(t, <-done)
}

func TestLoopReadyErrorStopsLoop(t *testing.T) {
	ran := false

	err := Loop(context.Background(), Config{
		Name:         "gate",
		PollInterval: time.Millisecond,
		Ready: func(context.Context) error {
			return apperrors.ErrWorkerStopped
		},
		Process: func(context.Context) error {
			ran = true

			return nil
		},
	})

	assert.ErrorIs(t, err, apperrors.ErrWorkerStopped)
	assert.False(t, ran, "process must not run once the gate rejects")
}
