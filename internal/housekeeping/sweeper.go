// Package housekeeping runs the daily retention sweep: expired items are
// purged transactionally and logged, and the purge log itself is pruned.
package housekeeping

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/domain"
	apperrors "github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/errors"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/platform/observability"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/platform/worker"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/storage"
)

// DefaultSweepHour is the local hour of the daily sweep.
const DefaultSweepHour = 3

// Store is the storage surface of the sweeper.
type Store interface {
	GetHousekeepingConfig(ctx context.Context) (domain.HousekeepingConfig, error)
	ListExpiredItems(ctx context.Context, cfg domain.HousekeepingConfig, now time.Time) ([]storage.ExpiredItem, error)
	PurgeItem(ctx context.Context, item storage.ExpiredItem) error
	PrunePurgeLog(ctx context.Context, olderThan time.Time) error
}

// Config tunes the sweeper.
type Config struct {
	// SweepHour is the local hour (0-23) of the daily run.
	SweepHour int
	// Location resolves "local"; nil means time.Local.
	Location *time.Location
	// Defaults are the bootstrap retention settings, applied as long as no
	// config row has been persisted.
	Defaults domain.HousekeepingConfig
}

func (c Config) withDefaults() Config {
	if c.SweepHour <= 0 || c.SweepHour > 23 {
		c.SweepHour = DefaultSweepHour
	}

	if c.Location == nil {
		c.Location = time.Local
	}

	if len(c.Defaults.RetentionDays) == 0 {
		c.Defaults = domain.DefaultHousekeepingConfig()
	}

	return c
}

// Sweeper purges expired items once a day.
type Sweeper struct {
	store  Store
	cfg    Config
	logger *zerolog.Logger
	now    func() time.Time
}

// New creates the sweeper.
func New(store Store, cfg Config, logger *zerolog.Logger) *Sweeper {
	return &Sweeper{store: store, cfg: cfg.withDefaults(), logger: logger, now: time.Now}
}

// Run blocks, sweeping at the configured hour until the context is canceled.
func (s *Sweeper) Run(ctx context.Context) error {
	for {
		next := s.nextSweep(s.now())
		s.logger.Info().Time("next_sweep", next).Msg("housekeeping scheduled")

		if err := worker.WaitUntil(ctx, next); err != nil {
			return err
		}

		if _, err := s.Sweep(ctx, false); err != nil {
			s.logger.Error().Err(err).Msg("housekeeping sweep failed")
		}
	}
}

// nextSweep returns the next occurrence of the sweep hour in the configured
// location.
func (s *Sweeper) nextSweep(now time.Time) time.Time {
	local := now.In(s.cfg.Location)
	next := time.Date(local.Year(), local.Month(), local.Day(), s.cfg.SweepHour, 0, 0, 0, s.cfg.Location)

	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}

	return next
}

// Sweep runs one retention pass and returns the number of purged items. The
// scheduled run respects the auto-purge gate; a forced (operator-triggered)
// sweep ignores it. Per-item failures are logged and skipped so one bad row
// does not block the rest of the sweep.
func (s *Sweeper) Sweep(ctx context.Context, force bool) (int, error) {
	cfg, err := s.store.GetHousekeepingConfig(ctx)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		cfg = s.cfg.Defaults
	} else if err != nil {
		return 0, fmt.Errorf("load housekeeping config: %w", err)
	}

	if !cfg.AutoPurge && !force {
		s.logger.Info().Msg("auto purge disabled, sweep skipped")

		return 0, nil
	}

	now := s.now()

	expired, err := s.store.ListExpiredItems(ctx, cfg, now)
	if err != nil {
		return 0, fmt.Errorf("list expired items: %w", err)
	}

	purged := 0

	for _, item := range expired {
		if err := s.store.PurgeItem(ctx, item); err != nil {
			s.logger.Error().Err(err).Str("item_id", item.ID).Msg("purge failed, item kept")

			continue
		}

		observability.ItemsPurged.WithLabelValues(string(item.Priority)).Inc()
		purged++
	}

	// The purge log outlives every item bucket, pruned against the longest
	// retention window.
	if err := s.store.PrunePurgeLog(ctx, now.AddDate(0, 0, -longestRetention(cfg))); err != nil {
		s.logger.Error().Err(err).Msg("purge log prune failed")
	}

	s.logger.Info().Int("purged", purged).Int("expired", len(expired)).Msg("housekeeping sweep done")

	return purged, nil
}

func longestRetention(cfg domain.HousekeepingConfig) int {
	longest := 0

	for _, days := range cfg.RetentionDays {
		if days > longest {
			longest = days
		}
	}

	return longest
}
