// Package scheduler decides when channels are polled and dispatches fetches
// with per-kind concurrency caps and deadlines.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/domain"
	apperrors "github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/errors"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/platform/observability"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/platform/worker"
)

// Category groups connector kinds that share a concurrency budget and fetch
// deadline.
type Category string

// Dispatch categories.
const (
	CategoryFeed     Category = "feed"
	CategoryHTML     Category = "html"
	CategorySocial   Category = "social"
	CategoryDocument Category = "document"
)

// CategoryOf maps a connector kind to its dispatch category. Search alerts
// are feed-shaped; every timeline variant shares the social budget.
func CategoryOf(kind domain.ConnectorKind) Category {
	switch {
	case kind == domain.KindHTML:
		return CategoryHTML
	case kind == domain.KindDocument:
		return CategoryDocument
	case kind.IsSocial():
		return CategorySocial
	default:
		return CategoryFeed
	}
}

// Config carries the tick period and per-category caps and deadlines. Zero
// values select the reference defaults.
type Config struct {
	Tick      time.Duration
	Caps      map[Category]int
	Deadlines map[Category]time.Duration
}

func (c Config) withDefaults() Config {
	if c.Tick <= 0 {
		c.Tick = time.Minute
	}

	defCaps := map[Category]int{CategoryFeed: 8, CategoryHTML: 4, CategorySocial: 2, CategoryDocument: 2}
	defDeadlines := map[Category]time.Duration{
		CategoryFeed:     60 * time.Second,
		CategoryHTML:     60 * time.Second,
		CategorySocial:   300 * time.Second,
		CategoryDocument: 120 * time.Second,
	}

	if c.Caps == nil {
		c.Caps = map[Category]int{}
	}

	if c.Deadlines == nil {
		c.Deadlines = map[Category]time.Duration{}
	}

	for cat, v := range defCaps {
		if c.Caps[cat] <= 0 {
			c.Caps[cat] = v
		}
	}

	for cat, v := range defDeadlines {
		if c.Deadlines[cat] <= 0 {
			c.Deadlines[cat] = v
		}
	}

	return c
}

// Store is the storage surface the scheduler uses.
type Store interface {
	ListEnabledChannels(ctx context.Context) ([]domain.Channel, error)
	GetChannel(ctx context.Context, id string) (*domain.Channel, error)
	UpdateChannelPollResult(ctx context.Context, id string, polledAt time.Time, lastError string) error
}

// Fetcher is the connector registry surface.
type Fetcher interface {
	Fetch(ctx context.Context, ch domain.Channel) ([]domain.RawItem, error)
}

// Ingester is the pipeline surface; items are handed over one by one in
// driver-yield order.
type Ingester interface {
	Ingest(ctx context.Context, ch domain.Channel, raw domain.RawItem) (string, error)
}

// Scheduler runs the fetch tick loop.
type Scheduler struct {
	store    Store
	fetcher  Fetcher
	ingester Ingester
	cfg      Config
	logger   *zerolog.Logger
	now      func() time.Time

	sems map[Category]chan struct{}

	mu       sync.Mutex
	inflight map[string]bool

	wg sync.WaitGroup
}

// New creates the scheduler.
func New(store Store, fetcher Fetcher, ingester Ingester, cfg Config, logger *zerolog.Logger) *Scheduler {
	cfg = cfg.withDefaults()

	sems := make(map[Category]chan struct{}, len(cfg.Caps))
	for cat, slots := range cfg.Caps {
		sems[cat] = make(chan struct{}, slots)
	}

	return &Scheduler{
		store:    store,
		fetcher:  fetcher,
		ingester: ingester,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		sems:     sems,
		inflight: map[string]bool{},
	}
}

// Run ticks until the context is canceled, then waits for in-flight fetches.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.wg.Wait()

	return worker.Loop(ctx, worker.Config{
		Name:         "scheduler",
		PollInterval: s.cfg.Tick,
		Process:      s.tick,
		Logger:       s.logger,
	})
}

// tick dispatches every due channel that is not already in flight.
func (s *Scheduler) tick(ctx context.Context) error {
	channels, err := s.store.ListEnabledChannels(ctx)
	if err != nil {
		return fmt.Errorf("list channels: %w", err)
	}

	now := s.now()

	for _, ch := range channels {
		if !ch.Due(now) {
			continue
		}

		s.dispatch(ctx, ch)
	}

	return nil
}

// TriggerChannel fetches one channel immediately, bypassing the schedule but
// obeying the concurrency caps.
func (s *Scheduler) TriggerChannel(ctx context.Context, channelID string) error {
	ch, err := s.store.GetChannel(ctx, channelID)
	if err != nil {
		return fmt.Errorf("load channel: %w", err)
	}

	if !ch.Enabled {
		return fmt.Errorf("%w: channel disabled", apperrors.ErrInvalidConfig)
	}

	s.dispatch(ctx, *ch)

	return nil
}

// TriggerAll fetches every enabled channel immediately.
func (s *Scheduler) TriggerAll(ctx context.Context) error {
	channels, err := s.store.ListEnabledChannels(ctx)
	if err != nil {
		return fmt.Errorf("list channels: %w", err)
	}

	for _, ch := range channels {
		s.dispatch(ctx, ch)
	}

	return nil
}

// dispatch starts the fetch task unless the channel is already in flight.
func (s *Scheduler) dispatch(ctx context.Context, ch domain.Channel) {
	s.mu.Lock()
	if s.inflight[ch.ID] {
		s.mu.Unlock()

		return
	}

	s.inflight[ch.ID] = true
	s.mu.Unlock()

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.inflight, ch.ID)
			s.mu.Unlock()
		}()

		s.runFetch(ctx, ch)
	}()
}

// runFetch acquires the category slot, runs the driver under its deadline and
// streams the yielded items into the pipeline.
func (s *Scheduler) runFetch(ctx context.Context, ch domain.Channel) {
	defer worker.RecoverPanic(s.logger, "fetch "+ch.ID)

	cat := CategoryOf(ch.Kind)

	select {
	case s.sems[cat] <- struct{}{}:
		defer func() { <-s.sems[cat] }()
	case <-ctx.Done():
		return
	}

	start := s.now()

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.Deadlines[cat])
	items, err := s.fetcher.Fetch(fetchCtx, ch)

	cancel()
	observability.FetchDuration.WithLabelValues(string(ch.Kind)).Observe(time.Since(start).Seconds())

	if err != nil {
		observability.FetchesTotal.WithLabelValues(string(ch.Kind), "error").Inc()
		s.logger.Warn().Err(err).Str("channel_id", ch.ID).Str("kind", string(ch.Kind)).Msg("fetch failed")

		if upErr := s.store.UpdateChannelPollResult(ctx, ch.ID, s.now(), err.Error()); upErr != nil {
			s.logger.Error().Err(upErr).Str("channel_id", ch.ID).Msg("record fetch failure")
		}

		return
	}

	observability.FetchesTotal.WithLabelValues(string(ch.Kind), "ok").Inc()

	if upErr := s.store.UpdateChannelPollResult(ctx, ch.ID, s.now(), ""); upErr != nil {
		s.logger.Error().Err(upErr).Str("channel_id", ch.ID).Msg("record poll result")
	}

	// Ingestion runs under the scheduler context, not the fetch deadline: a
	// slow pipeline back-pressures, it does not corrupt a completed fetch.
	for _, raw := range items {
		if _, err := s.ingester.Ingest(ctx, ch, raw); err != nil {
			s.logger.Error().Err(err).Str("channel_id", ch.ID).Str("external_id", raw.ExternalID).
				Msg("ingest failed")

			return
		}
	}
}

// WaitIdle blocks until every dispatched fetch has finished. One-shot callers
// use it after TriggerAll.
func (s *Scheduler) WaitIdle() {
	s.wg.Wait()
}

// Inflight reports whether a channel fetch is currently running, for tests
// and the operational surface.
func (s *Scheduler) Inflight(channelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inflight[channelID]
}
