package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/domain"
	apperrors "github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/errors"
)

const channelColumns = `id, source_id, kind, config, enabled, interval_minutes, last_poll_at, last_error, created_at`

// CreateChannel persists a new channel and fills in its id.
func (db *DB) CreateChannel(ctx context.Context, ch *domain.Channel) error {
	if ch.ID == "" {
		ch.ID = uuid.NewString()
	}

	if ch.Config == nil {
		ch.Config = map[string]string{}
	}

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO channels (id, source_id, kind, config, enabled, interval_minutes)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, toUUID(ch.ID), toUUID(ch.SourceID), string(ch.Kind), ch.Config, ch.Enabled, ch.IntervalMinutes)
	if err != nil {
		return fmt.Errorf("create channel: %w", err)
	}

	return nil
}

// GetChannel fetches a channel by id.
func (db *DB) GetChannel(ctx context.Context, id string) (*domain.Channel, error) {
	row := db.Pool.QueryRow(ctx, `SELECT `+channelColumns+` FROM channels WHERE id = $1`, toUUID(id))

	ch, err := scanChannel(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}

		return nil, fmt.Errorf("get channel: %w", err)
	}

	return ch, nil
}

// ListEnabledChannels returns every enabled channel, the scheduler's registry.
func (db *DB) ListEnabledChannels(ctx context.Context) ([]domain.Channel, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+channelColumns+` FROM channels WHERE enabled ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list enabled channels: %w", err)
	}
	defer rows.Close()

	return collectChannels(rows)
}

// ListChannelsByKind returns enabled channels of one connector kind.
func (db *DB) ListChannelsByKind(ctx context.Context, kind domain.ConnectorKind) ([]domain.Channel, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+channelColumns+` FROM channels WHERE enabled AND kind = $1 ORDER BY created_at
	`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list channels by kind: %w", err)
	}
	defer rows.Close()

	return collectChannels(rows)
}

// UpdateChannelPollResult records the outcome of a fetch: the poll timestamp
// and the last error ("" on success).
func (db *DB) UpdateChannelPollResult(ctx context.Context, id string, polledAt time.Time, lastError string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE channels SET last_poll_at = $2, last_error = $3 WHERE id = $1
	`, toUUID(id), toTimestamptz(polledAt), toText(truncateError(lastError)))
	if err != nil {
		return fmt.Errorf("update channel poll result: %w", err)
	}

	return nil
}

// SetChannelEnabled toggles a channel.
func (db *DB) SetChannelEnabled(ctx context.Context, id string, enabled bool) error {
	_, err := db.Pool.Exec(ctx, `UPDATE channels SET enabled = $2 WHERE id = $1`, toUUID(id), enabled)
	if err != nil {
		return fmt.Errorf("set channel enabled: %w", err)
	}

	return nil
}

const maxStoredErrorLen = 500

func truncateError(msg string) string {
	if len(msg) > maxStoredErrorLen {
		return msg[:maxStoredErrorLen]
	}

	return msg
}

func collectChannels(rows pgx.Rows) ([]domain.Channel, error) {
	var channels []domain.Channel

	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}

		channels = append(channels, *ch)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("channel rows: %w", err)
	}

	return channels, nil
}

func scanChannel(row pgx.Row) (*domain.Channel, error) {
	var (
		ch         domain.Channel
		id, srcID  pgtype.UUID
		kind       string
		lastPoll   pgtype.Timestamptz
		lastError  pgtype.Text
		createdAt  pgtype.Timestamptz
	)

	if err := row.Scan(&id, &srcID, &kind, &ch.Config, &ch.Enabled, &ch.IntervalMinutes,
		&lastPoll, &lastError, &createdAt); err != nil {
		return nil, err
	}

	ch.ID = fromUUID(id)
	ch.SourceID = fromUUID(srcID)
	ch.Kind = domain.ConnectorKind(kind)
	ch.LastPollAt = fromTimestamptzPtr(lastPoll)
	ch.LastError = fromText(lastError)
	ch.CreatedAt = fromTimestamptz(createdAt)

	return &ch, nil
}
