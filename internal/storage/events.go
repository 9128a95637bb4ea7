package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/domain"
)

// AppendEvent writes one append-only audit entry for an item. Event appends
// are additive and never conflict with item updates.
func (db *DB) AppendEvent(ctx context.Context, itemID string, kind domain.EventKind, payload map[string]any) error {
	if payload == nil {
		payload = map[string]any{}
	}

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO item_events (id, item_id, kind, payload)
		VALUES ($1, $2, $3, $4)
	`, toUUID(uuid.NewString()), toUUID(itemID), string(kind), payload)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	return nil
}

// ListEvents returns the audit trail of an item in temporal order.
func (db *DB) ListEvents(ctx context.Context, itemID string) ([]domain.ItemEvent, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, item_id, kind, payload, created_at
		FROM item_events
		WHERE item_id = $1
		ORDER BY created_at, id
	`, toUUID(itemID))
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []domain.ItemEvent

	for rows.Next() {
		var (
			ev         domain.ItemEvent
			id, itemID pgtype.UUID
			kind       string
			createdAt  pgtype.Timestamptz
		)

		if err := rows.Scan(&id, &itemID, &kind, &ev.Payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}

		ev.ID = fromUUID(id)
		ev.ItemID = fromUUID(itemID)
		ev.Kind = domain.EventKind(kind)
		ev.CreatedAt = fromTimestamptz(createdAt)
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("event rows: %w", err)
	}

	return events, nil
}
