package worker

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	apperrors "github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/errors"
)

// State describes the lifecycle state of a controlled worker.
type State string

// Worker states surfaced to operators.
const (
	StateRunning State = "running"
	StatePaused  State = "paused"
	StateStopped State = "stopped"
	StateLatched State = "stopped_due_to_errors"
)

// DefaultErrorLatch is the reference number of consecutive failures after
// which a worker latches and requires a manual restart.
const DefaultErrorLatch = 10

// Controller implements the operational contract every long-lived worker
// exposes: start, stop, pause, resume, and a latch that trips after N
// consecutive processing failures and must be cleared manually.
type Controller struct {
	name       string
	errorLatch int
	logger     *zerolog.Logger

	mu          sync.Mutex
	state       State
	consecutive int
	lastErr     error
	cancel      context.CancelFunc
	resume      chan struct{}
}

// NewController creates a Controller in the stopped state. errorLatch <= 0
// falls back to DefaultErrorLatch.
func NewController(name string, errorLatch int, logger *zerolog.Logger) *Controller {
	if errorLatch <= 0 {
		errorLatch = DefaultErrorLatch
	}

	return &Controller{
		name:       name,
		errorLatch: errorLatch,
		logger:     getLogger(logger),
		state:      StateStopped,
	}
}

// State returns the current worker state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// LastError returns the error that tripped the latch, if any.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lastErr
}

// Start transitions the worker into the running state and returns a context
// that is canceled when Stop is called. Starting a latched worker clears the
// latch (this is the manual restart the contract requires).
func (c *Controller) Start(parent context.Context) (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateRunning || c.state == StatePaused {
		return nil, apperrors.ErrWorkerStopped
	}

	ctx, cancel := context.WithCancel(parent)
	c.cancel = cancel
	c.state = StateRunning
	c.consecutive = 0
	c.lastErr = nil
	c.resume = make(chan struct{})
	close(c.resume)

	c.logger.Info().Str(logFieldWorker, c.name).Msg("worker started")

	return ctx, nil
}

// Stop cancels the worker context and marks the worker stopped.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked(StateStopped)
}

func (c *Controller) stopLocked(next State) {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}

	if c.state == StatePaused {
		// Unblock anything waiting in AwaitRunnable.
		close(c.resume)
	}

	c.state = next
	c.logger.Info().Str(logFieldWorker, c.name).Str("state", string(next)).Msg("worker stopped")
}

// Pause suspends processing without canceling in-flight work contexts.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRunning {
		return
	}

	c.state = StatePaused
	c.resume = make(chan struct{})
	c.logger.Info().Str(logFieldWorker, c.name).Msg("worker paused")
}

// Resume continues a paused worker.
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StatePaused {
		return
	}

	c.state = StateRunning
	close(c.resume)
	c.logger.Info().Str(logFieldWorker, c.name).Msg("worker resumed")
}

// AwaitRunnable blocks while the worker is paused. It returns ctx.Err() on
// cancellation and ErrWorkerLatched when the worker latched meanwhile.
func (c *Controller) AwaitRunnable(ctx context.Context) error {
	for {
		c.mu.Lock()
		state := c.state
		resume := c.resume
		c.mu.Unlock()

		switch state {
		case StateRunning:
			return nil
		case StateLatched:
			return apperrors.ErrWorkerLatched
		case StateStopped:
			return apperrors.ErrWorkerStopped
		case StatePaused:
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-resume:
		}
	}
}

// RecordSuccess resets the consecutive-failure counter.
func (c *Controller) RecordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutive = 0
}

// RecordFailure bumps the consecutive-failure counter and latches the worker
// once the threshold is reached. It reports whether the worker latched.
func (c *Controller) RecordFailure(err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutive++
	c.lastErr = err

	if c.consecutive < c.errorLatch {
		return false
	}

	c.logger.Error().
		Err(err).
		Str(logFieldWorker, c.name).
		Int("consecutive_failures", c.consecutive).
		Msg("worker latched after repeated failures")

	c.stopLocked(StateLatched)

	return true
}
