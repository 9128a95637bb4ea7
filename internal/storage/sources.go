package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/domain"
	apperrors "github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/errors"
)

// CreateSource persists a new source and fills in its id.
func (db *DB) CreateSource(ctx context.Context, src *domain.Source) error {
	if src.ID == "" {
		src.ID = uuid.NewString()
	}

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO sources (id, name, enabled, is_stakeholder)
		VALUES ($1, $2, $3, $4)
	`, toUUID(src.ID), SanitizeUTF8(src.Name), src.Enabled, src.IsStakeholder)
	if err != nil {
		return fmt.Errorf("create source: %w", err)
	}

	return nil
}

// GetSource fetches a source by id.
func (db *DB) GetSource(ctx context.Context, id string) (*domain.Source, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT id, name, enabled, is_stakeholder, created_at
		FROM sources WHERE id = $1
	`, toUUID(id))

	src, err := scanSource(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}

		return nil, fmt.Errorf("get source: %w", err)
	}

	return src, nil
}

// ListSources returns all sources ordered by name.
func (db *DB) ListSources(ctx context.Context) ([]domain.Source, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, name, enabled, is_stakeholder, created_at
		FROM sources ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var sources []domain.Source

	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}

		sources = append(sources, *src)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sources rows: %w", err)
	}

	return sources, nil
}

func scanSource(row pgx.Row) (*domain.Source, error) {
	var (
		src       domain.Source
		id        pgtype.UUID
		createdAt pgtype.Timestamptz
	)

	if err := row.Scan(&id, &src.Name, &src.Enabled, &src.IsStakeholder, &createdAt); err != nil {
		return nil, err
	}

	src.ID = fromUUID(id)
	src.CreatedAt = fromTimestamptz(createdAt)

	return &src, nil
}
