package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"
)

// EmbeddingSpace names one of the two vector stores. The paraphrase and
// retrieval spaces come from different models; similarity values across them
// are meaningless, so every call names its space explicitly.
type EmbeddingSpace string

// The two embedding spaces.
const (
	SpaceParaphrase EmbeddingSpace = "paraphrase"
	SpaceRetrieval  EmbeddingSpace = "retrieval"
)

func (s EmbeddingSpace) table() string {
	if s == SpaceRetrieval {
		return "retrieval_embeddings"
	}

	return "paraphrase_embeddings"
}

// UpsertEmbedding stores an item's vector in the named space.
func (db *DB) UpsertEmbedding(ctx context.Context, space EmbeddingSpace, itemID string, embedding []float32) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO `+space.table()+` (item_id, embedding)
		VALUES ($1, $2)
		ON CONFLICT (item_id) DO UPDATE SET embedding = EXCLUDED.embedding, created_at = now()
	`, toUUID(itemID), pgvector.NewVector(embedding))
	if err != nil {
		return fmt.Errorf("upsert %s embedding: %w", space, err)
	}

	return nil
}

// NearestNeighbor finds the closest stored vector in the named space. An
// empty excludeItemID binds as NULL and excludes nothing; the NULL guard in
// the WHERE clause keeps the comparison out of three-valued logic, which
// would otherwise reject every row. Returns ("", 0) when the index is empty.
func (db *DB) NearestNeighbor(ctx context.Context, space EmbeddingSpace, embedding []float32, excludeItemID string) (string, float32, error) {
	var (
		id         pgtype.UUID
		similarity float64
	)

	err := db.Pool.QueryRow(ctx, `
		SELECT item_id, 1 - (embedding <=> $1::vector) AS similarity
		FROM `+space.table()+`
		WHERE $2::uuid IS NULL OR item_id <> $2
		ORDER BY embedding <=> $1::vector
		LIMIT 1
	`, pgvector.NewVector(embedding), nullableUUID(excludeItemID)).Scan(&id, &similarity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", 0, nil
		}

		return "", 0, fmt.Errorf("nearest neighbor in %s: %w", space, err)
	}

	return fromUUID(id), float32(similarity), nil
}

// SearchSimilar returns up to limit item ids from the named space ordered by
// cosine similarity to the query vector. The retrieval space backs semantic
// search; dedup never calls this on it.
func (db *DB) SearchSimilar(ctx context.Context, space EmbeddingSpace, embedding []float32, limit int) ([]string, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT item_id FROM `+space.table()+`
		ORDER BY embedding <=> $1::vector
		LIMIT $2
	`, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("search %s embeddings: %w", space, err)
	}
	defer rows.Close()

	var ids []string

	for rows.Next() {
		var id pgtype.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s neighbor: %w", space, err)
		}

		ids = append(ids, fromUUID(id))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s neighbor rows: %w", space, err)
	}

	return ids, nil
}

// DeleteEmbedding removes an item's vector from the named space.
func (db *DB) DeleteEmbedding(ctx context.Context, space EmbeddingSpace, itemID string) error {
	_, err := db.Pool.Exec(ctx, `DELETE FROM `+space.table()+` WHERE item_id = $1`, toUUID(itemID))
	if err != nil {
		return fmt.Errorf("delete %s embedding: %w", space, err)
	}

	return nil
}

// ListIndexedItemIDs returns every item id present in the named space.
// Index-coherence checks compare this against the items table.
func (db *DB) ListIndexedItemIDs(ctx context.Context, space EmbeddingSpace) ([]string, error) {
	rows, err := db.Pool.Query(ctx, `SELECT item_id FROM `+space.table()+` ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list %s index ids: %w", space, err)
	}
	defer rows.Close()

	var ids []string

	for rows.Next() {
		var id pgtype.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s index id: %w", space, err)
		}

		ids = append(ids, fromUUID(id))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s index rows: %w", space, err)
	}

	return ids, nil
}
