package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/domain"
	apperrors "github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/errors"
)

// UpsertStakeholder writes one entry of the stakeholder directory.
func (db *DB) UpsertStakeholder(ctx context.Context, s domain.Stakeholder) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO stakeholders (handle, organization, category, party, is_member_org)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (handle) DO UPDATE SET
			organization = EXCLUDED.organization,
			category = EXCLUDED.category,
			party = EXCLUDED.party,
			is_member_org = EXCLUDED.is_member_org
	`, normalizeHandle(s.Handle), SanitizeUTF8(s.Organization), SanitizeUTF8(s.Category),
		SanitizeUTF8(s.Party), s.IsMemberOrg)
	if err != nil {
		return fmt.Errorf("upsert stakeholder: %w", err)
	}

	return nil
}

// LookupStakeholder resolves a social handle to its directory entry.
// Returns ErrNotFound for untracked handles.
func (db *DB) LookupStakeholder(ctx context.Context, handle string) (*domain.Stakeholder, error) {
	var s domain.Stakeholder

	err := db.Pool.QueryRow(ctx, `
		SELECT handle, organization, category, party, is_member_org
		FROM stakeholders WHERE handle = $1
	`, normalizeHandle(handle)).Scan(&s.Handle, &s.Organization, &s.Category, &s.Party, &s.IsMemberOrg)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}

		return nil, fmt.Errorf("lookup stakeholder: %w", err)
	}

	return &s, nil
}

func normalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
}
