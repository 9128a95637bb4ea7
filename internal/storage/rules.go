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

// CreateRule persists a user-authored classification rule.
func (db *DB) CreateRule(ctx context.Context, rule *domain.Rule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO rules (id, name, kind, pattern, priority_delta, forced_priority, enabled, order_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, toUUID(rule.ID), SanitizeUTF8(rule.Name), string(rule.Kind), SanitizeUTF8(rule.Pattern),
		rule.PriorityDelta, string(rule.ForcedPriority), rule.Enabled, rule.OrderKey)
	if err != nil {
		return fmt.Errorf("create rule: %w", err)
	}

	return nil
}

// ListEnabledRules returns enabled rules in ascending order-key order, the
// evaluation order of the rule engine.
func (db *DB) ListEnabledRules(ctx context.Context) ([]domain.Rule, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, name, kind, pattern, priority_delta, forced_priority, enabled, order_key, created_at
		FROM rules
		WHERE enabled
		ORDER BY order_key, created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list enabled rules: %w", err)
	}
	defer rows.Close()

	var rules []domain.Rule

	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}

		rules = append(rules, *rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rule rows: %w", err)
	}

	return rules, nil
}

// GetRule fetches a rule by id.
func (db *DB) GetRule(ctx context.Context, id string) (*domain.Rule, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT id, name, kind, pattern, priority_delta, forced_priority, enabled, order_key, created_at
		FROM rules WHERE id = $1
	`, toUUID(id))

	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}

		return nil, fmt.Errorf("get rule: %w", err)
	}

	return rule, nil
}

// SetRuleEnabled toggles a rule.
func (db *DB) SetRuleEnabled(ctx context.Context, id string, enabled bool) error {
	_, err := db.Pool.Exec(ctx, `UPDATE rules SET enabled = $2 WHERE id = $1`, toUUID(id), enabled)
	if err != nil {
		return fmt.Errorf("set rule enabled: %w", err)
	}

	return nil
}

func scanRule(row pgx.Row) (*domain.Rule, error) {
	var (
		rule           domain.Rule
		id             pgtype.UUID
		kind, forced   string
		createdAt      pgtype.Timestamptz
	)

	if err := row.Scan(&id, &rule.Name, &kind, &rule.Pattern, &rule.PriorityDelta,
		&forced, &rule.Enabled, &rule.OrderKey, &createdAt); err != nil {
		return nil, err
	}

	rule.ID = fromUUID(id)
	rule.Kind = domain.RuleKind(kind)
	rule.ForcedPriority = domain.Priority(forced)
	rule.CreatedAt = fromTimestamptz(createdAt)

	return &rule, nil
}
