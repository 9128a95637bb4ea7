package storage

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
)

// Prototype is one labeled centroid of the embedding classifier.
type Prototype struct {
	Kind  string
	Label string
	Vec   []float32
}

// Prototype kinds stored in classifier_prototypes.
const (
	PrototypeRelevance = "relevance"
	PrototypeGroup     = "group"
	PrototypePriority  = "priority"
)

// UpsertPrototype stores a classifier centroid.
func (db *DB) UpsertPrototype(ctx context.Context, p Prototype) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO classifier_prototypes (kind, label, embedding)
		VALUES ($1, $2, $3)
		ON CONFLICT (kind, label) DO UPDATE SET embedding = EXCLUDED.embedding, updated_at = now()
	`, p.Kind, p.Label, pgvector.NewVector(p.Vec))
	if err != nil {
		return fmt.Errorf("upsert prototype: %w", err)
	}

	return nil
}

// ListPrototypes loads every classifier centroid.
func (db *DB) ListPrototypes(ctx context.Context) ([]Prototype, error) {
	rows, err := db.Pool.Query(ctx, `SELECT kind, label, embedding FROM classifier_prototypes`)
	if err != nil {
		return nil, fmt.Errorf("list prototypes: %w", err)
	}
	defer rows.Close()

	var prototypes []Prototype

	for rows.Next() {
		var (
			p   Prototype
			vec pgvector.Vector
		)

		if err := rows.Scan(&p.Kind, &p.Label, &vec); err != nil {
			return nil, fmt.Errorf("scan prototype: %w", err)
		}

		p.Vec = vec.Slice()
		prototypes = append(prototypes, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("prototype rows: %w", err)
	}

	return prototypes, nil
}
