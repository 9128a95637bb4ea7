package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/domain"
	apperrors "github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/errors"
)

// GetHousekeepingConfig loads the persisted retention settings. ErrNotFound
// signals that no row exists yet; the sweeper then applies its bootstrap
// defaults.
func (db *DB) GetHousekeepingConfig(ctx context.Context) (domain.HousekeepingConfig, error) {
	var (
		retentionJSON  []byte
		autoPurge      bool
		excludeStarred bool
	)

	err := db.Pool.QueryRow(ctx, `
		SELECT retention_days, auto_purge, exclude_starred FROM housekeeping_config WHERE id = 1
	`).Scan(&retentionJSON, &autoPurge, &excludeStarred)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.HousekeepingConfig{}, apperrors.ErrNotFound
		}

		return domain.HousekeepingConfig{}, fmt.Errorf("get housekeeping config: %w", err)
	}

	retention := map[domain.Priority]int{}
	if err := json.Unmarshal(retentionJSON, &retention); err != nil {
		return domain.HousekeepingConfig{}, fmt.Errorf("decode retention days: %w", err)
	}

	return domain.HousekeepingConfig{
		RetentionDays:  retention,
		AutoPurge:      autoPurge,
		ExcludeStarred: excludeStarred,
	}, nil
}

// SetHousekeepingConfig persists the retention settings.
func (db *DB) SetHousekeepingConfig(ctx context.Context, cfg domain.HousekeepingConfig) error {
	retentionJSON, err := json.Marshal(cfg.RetentionDays)
	if err != nil {
		return fmt.Errorf("encode retention days: %w", err)
	}

	_, err = db.Pool.Exec(ctx, `
		INSERT INTO housekeeping_config (id, retention_days, auto_purge, exclude_starred)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			retention_days = EXCLUDED.retention_days,
			auto_purge = EXCLUDED.auto_purge,
			exclude_starred = EXCLUDED.exclude_starred
	`, retentionJSON, cfg.AutoPurge, cfg.ExcludeStarred)
	if err != nil {
		return fmt.Errorf("set housekeeping config: %w", err)
	}

	return nil
}

// ExpiredItem is one row selected by the retention sweep.
type ExpiredItem struct {
	ID       string
	Title    string
	Priority domain.Priority
}

// ListExpiredItems selects items whose retention has lapsed at the given
// instant under the supplied config. Starred items are excluded when the
// config exempts them.
func (db *DB) ListExpiredItems(ctx context.Context, cfg domain.HousekeepingConfig, now time.Time) ([]ExpiredItem, error) {
	var expired []ExpiredItem

	for priority, days := range cfg.RetentionDays {
		cutoff := now.AddDate(0, 0, -days)

		rows, err := db.Pool.Query(ctx, `
			SELECT id, title FROM items
			WHERE priority = $1
			  AND first_seen_at < $2
			  AND (NOT is_starred OR NOT $3)
			ORDER BY first_seen_at
		`, string(priority), toTimestamptz(cutoff), cfg.ExcludeStarred)
		if err != nil {
			return nil, fmt.Errorf("list expired items: %w", err)
		}

		for rows.Next() {
			var (
				id    pgtype.UUID
				title pgtype.Text
			)

			if err := rows.Scan(&id, &title); err != nil {
				rows.Close()

				return nil, fmt.Errorf("scan expired item: %w", err)
			}

			expired = append(expired, ExpiredItem{ID: fromUUID(id), Title: fromText(title), Priority: priority})
		}

		rowsErr := rows.Err()
		rows.Close()

		if rowsErr != nil {
			return nil, fmt.Errorf("expired item rows: %w", rowsErr)
		}
	}

	return expired, nil
}

// PurgeItem deletes one item transactionally. The items row, its audit
// events and both embedding rows go in a single transaction (events and
// embeddings cascade on the FK), and the purge is logged to the purge_log
// table, which survives the deletion. A failure leaves the item in place.
func (db *DB) PurgeItem(ctx context.Context, item ExpiredItem) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin purge tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM items WHERE id = $1`, toUUID(item.ID)); err != nil {
		return fmt.Errorf("purge item delete: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO purge_log (id, item_id, priority, title)
		VALUES ($1, $2, $3, $4)
	`, toUUID(uuid.NewString()), toUUID(item.ID), string(item.Priority), toText(item.Title)); err != nil {
		return fmt.Errorf("purge item log: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit purge tx: %w", err)
	}

	return nil
}

// PrunePurgeLog drops purge records older than the retention window.
func (db *DB) PrunePurgeLog(ctx context.Context, olderThan time.Time) error {
	_, err := db.Pool.Exec(ctx, `DELETE FROM purge_log WHERE purged_at < $1`, toTimestamptz(olderThan))
	if err != nil {
		return fmt.Errorf("prune purge log: %w", err)
	}

	return nil
}
