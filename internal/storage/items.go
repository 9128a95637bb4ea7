package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/domain"
	apperrors "github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/errors"
)

const itemColumns = `id, channel_id, external_id, title, content, url, author, published_at,
	first_seen_at, content_hash, summary, analysis, priority, priority_score, groups, tags,
	is_read, is_starred, is_archived, needs_llm, similar_to, metadata, revision`

const pgUniqueViolation = "23505"

// InsertItem persists a new item. A unique-constraint collision on
// (channel_id, external_id) is reported as ErrDuplicateItem; the caller
// treats it as an identity duplicate.
func (db *DB) InsertItem(ctx context.Context, item *domain.Item) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}

	if item.FirstSeenAt.IsZero() {
		item.FirstSeenAt = time.Now()
	}

	if item.Priority == "" {
		item.Priority = domain.PriorityNone
	}

	if item.Metadata == nil {
		item.Metadata = map[string]any{}
	}

	item.Revision = 1

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO items (id, channel_id, external_id, title, content, url, author,
			published_at, first_seen_at, content_hash, priority, priority_score,
			groups, tags, needs_llm, similar_to, metadata, revision)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, toUUID(item.ID), toUUID(item.ChannelID), SanitizeUTF8(item.ExternalID),
		toText(item.Title), toText(item.Content), toText(item.URL), toText(item.Author),
		toTimestamptz(item.PublishedAt), toTimestamptz(item.FirstSeenAt), item.ContentHash,
		string(item.Priority), item.PriorityScore, emptyIfNil(item.Groups), emptyIfNil(item.Tags),
		item.NeedsLLM, nullableUUID(item.SimilarTo), item.Metadata, item.Revision)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return apperrors.ErrDuplicateItem
		}

		return fmt.Errorf("insert item: %w", err)
	}

	return nil
}

// GetItem fetches an item by id.
func (db *DB) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	row := db.Pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, toUUID(id))

	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}

		return nil, fmt.Errorf("get item: %w", err)
	}

	return item, nil
}

// FindItemIDByIdentity resolves (channel id, external id) to an item id.
// Returns "" when no such item exists.
func (db *DB) FindItemIDByIdentity(ctx context.Context, channelID, externalID string) (string, error) {
	var id pgtype.UUID

	err := db.Pool.QueryRow(ctx, `
		SELECT id FROM items WHERE channel_id = $1 AND external_id = $2
	`, toUUID(channelID), SanitizeUTF8(externalID)).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}

		return "", fmt.Errorf("find item by identity: %w", err)
	}

	return fromUUID(id), nil
}

// FindCanonicalByContentHash finds the earliest non-duplicate item carrying
// the given content hash, excluding the named channel. Returns "" when none.
func (db *DB) FindCanonicalByContentHash(ctx context.Context, hash, excludeChannelID string) (string, error) {
	var id pgtype.UUID

	err := db.Pool.QueryRow(ctx, `
		SELECT id FROM items
		WHERE content_hash = $1 AND channel_id <> $2 AND similar_to IS NULL
		ORDER BY first_seen_at
		LIMIT 1
	`, hash, toUUID(excludeChannelID)).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}

		return "", fmt.Errorf("find canonical by content hash: %w", err)
	}

	return fromUUID(id), nil
}

// TitleCandidate is a same-channel item considered by title-similarity dedup.
type TitleCandidate struct {
	ID          string
	Title       string
	PublishedAt time.Time
	SimilarTo   string
}

// FindTitleCandidates returns same-channel items published after the window
// start whose case-folded 50-char title prefix matches the given prefix,
// earliest first. Matching is prefix containment in either direction so a
// short title still pairs with its extended re-publication.
func (db *DB) FindTitleCandidates(ctx context.Context, channelID, titlePrefix string, since time.Time) ([]TitleCandidate, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, title, published_at, similar_to
		FROM items
		WHERE channel_id = $1
		  AND (strpos(lower(left(title, 50)), $2) = 1 OR strpos($2, lower(left(title, 50))) = 1)
		  AND (published_at IS NULL OR published_at >= $3)
		ORDER BY first_seen_at
	`, toUUID(channelID), strings.ToLower(titlePrefix), toTimestamptz(since))
	if err != nil {
		return nil, fmt.Errorf("find title candidates: %w", err)
	}
	defer rows.Close()

	var candidates []TitleCandidate

	for rows.Next() {
		var (
			id, similarTo pgtype.UUID
			title         pgtype.Text
			publishedAt   pgtype.Timestamptz
		)

		if err := rows.Scan(&id, &title, &publishedAt, &similarTo); err != nil {
			return nil, fmt.Errorf("scan title candidate: %w", err)
		}

		candidates = append(candidates, TitleCandidate{
			ID:          fromUUID(id),
			Title:       fromText(title),
			PublishedAt: fromTimestamptz(publishedAt),
			SimilarTo:   fromUUID(similarTo),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("title candidate rows: %w", err)
	}

	return candidates, nil
}

// UpdateItem writes the mutable fields of an item conditionally on its
// revision, implementing the per-item write serialization contract. The
// in-memory revision is bumped on success; ErrRevisionConflict signals a
// lost race, the caller re-reads and retries.
func (db *DB) UpdateItem(ctx context.Context, item *domain.Item) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE items SET
			title = $2, content = $3, summary = $4, analysis = $5,
			priority = $6, priority_score = $7, groups = $8, tags = $9,
			is_read = $10, is_starred = $11, is_archived = $12,
			needs_llm = $13, similar_to = $14, metadata = $15,
			revision = revision + 1
		WHERE id = $1 AND revision = $16
	`, toUUID(item.ID), toText(item.Title), toText(item.Content), toText(item.Summary),
		toText(item.Analysis), string(item.Priority), item.PriorityScore,
		emptyIfNil(item.Groups), emptyIfNil(item.Tags), item.IsRead, item.IsStarred,
		item.IsArchived, item.NeedsLLM, nullableUUID(item.SimilarTo), item.Metadata,
		item.Revision)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return apperrors.ErrRevisionConflict
	}

	item.Revision++

	return nil
}

// MutateItem applies fn to the latest copy of the item under the optimistic
// revision protocol, retrying on conflict.
func (db *DB) MutateItem(ctx context.Context, id string, fn func(*domain.Item) error) (*domain.Item, error) {
	const maxAttempts = 5

	for attempt := 0; attempt < maxAttempts; attempt++ {
		item, err := db.GetItem(ctx, id)
		if err != nil {
			return nil, err
		}

		if err := fn(item); err != nil {
			return nil, err
		}

		err = db.UpdateItem(ctx, item)
		if err == nil {
			return item, nil
		}

		if !errors.Is(err, apperrors.ErrRevisionConflict) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("mutate item %s: %w", id, apperrors.ErrRevisionConflict)
}

// SetItemRead flips the read flag. The audit event records the unread→read
// transition only; clearing the flag and repeated calls stay silent.
func (db *DB) SetItemRead(ctx context.Context, id string, read bool) error {
	return db.setItemFlag(ctx, id, domain.EventMarkedRead, func(it *domain.Item) bool {
		return it.MarkRead(read)
	})
}

// SetItemStarred flips the starred flag, which exempts the item from the
// retention sweep. The audit event records the starring transition.
func (db *DB) SetItemStarred(ctx context.Context, id string, starred bool) error {
	return db.setItemFlag(ctx, id, domain.EventStarred, func(it *domain.Item) bool {
		return it.MarkStarred(starred)
	})
}

// SetItemArchived flips the archived flag, hiding the item from briefing
// selection. The audit event records the archiving transition.
func (db *DB) SetItemArchived(ctx context.Context, id string, archived bool) error {
	return db.setItemFlag(ctx, id, domain.EventArchived, func(it *domain.Item) bool {
		return it.MarkArchived(archived)
	})
}

func (db *DB) setItemFlag(ctx context.Context, id string, event domain.EventKind, apply func(*domain.Item) bool) error {
	record := false

	_, err := db.MutateItem(ctx, id, func(it *domain.Item) error {
		record = apply(it)

		return nil
	})
	if err != nil {
		return err
	}

	if record {
		return db.AppendEvent(ctx, id, event, nil)
	}

	return nil
}

// ListUnclassifiedItems returns items that have no classifier result yet and
// are not duplicates, oldest first. Fed to the classifier when its queue is
// drained.
func (db *DB) ListUnclassifiedItems(ctx context.Context, limit int) ([]domain.Item, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+itemColumns+` FROM items
		WHERE similar_to IS NULL AND NOT (metadata ? 'retry_priority')
		ORDER BY first_seen_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unclassified items: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

// ListLLMBacklog selects items pending LLM analysis whose retry-priority is
// not low, ordered by bucket (high, unknown, edge_case) then first-seen
// ascending. Items with no classifier result yet are excluded; the classifier
// owns them first.
func (db *DB) ListLLMBacklog(ctx context.Context, limit int) ([]domain.Item, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+itemColumns+` FROM items
		WHERE needs_llm
		  AND similar_to IS NULL
		  AND metadata->>'retry_priority' IN ('high', 'unknown', 'edge_case')
		ORDER BY CASE metadata->>'retry_priority'
			WHEN 'high' THEN 0
			WHEN 'unknown' THEN 1
			ELSE 2
		END, first_seen_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list llm backlog: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

// CountLLMBacklog reports the backlog size for metrics.
func (db *DB) CountLLMBacklog(ctx context.Context) (int64, error) {
	var n int64

	err := db.Pool.QueryRow(ctx, `
		SELECT count(*) FROM items
		WHERE needs_llm
		  AND similar_to IS NULL
		  AND metadata->>'retry_priority' IN ('high', 'unknown', 'edge_case')
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count llm backlog: %w", err)
	}

	return n, nil
}

// ListDuplicateSiblings returns the short projections of items marked as
// paraphrases of the given canonical item.
func (db *DB) ListDuplicateSiblings(ctx context.Context, canonicalID string) ([]domain.DuplicateSibling, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT i.id, i.title, i.url, i.priority, s.name
		FROM items i
		JOIN channels c ON c.id = i.channel_id
		JOIN sources s ON s.id = c.source_id
		WHERE i.similar_to = $1
		ORDER BY i.first_seen_at
	`, toUUID(canonicalID))
	if err != nil {
		return nil, fmt.Errorf("list duplicate siblings: %w", err)
	}
	defer rows.Close()

	var siblings []domain.DuplicateSibling

	for rows.Next() {
		var (
			sib      domain.DuplicateSibling
			id       pgtype.UUID
			title    pgtype.Text
			url      pgtype.Text
			priority string
		)

		if err := rows.Scan(&id, &title, &url, &priority, &sib.SourceName); err != nil {
			return nil, fmt.Errorf("scan sibling: %w", err)
		}

		sib.ID = fromUUID(id)
		sib.Title = fromText(title)
		sib.URL = fromText(url)
		sib.Priority = domain.Priority(priority)
		siblings = append(siblings, sib)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sibling rows: %w", err)
	}

	return siblings, nil
}

// GetItemDetail assembles the item record exchanged with UI and export
// consumers: the item plus display source name, connector kind and duplicate
// siblings.
func (db *DB) GetItemDetail(ctx context.Context, id string) (*domain.ItemDetail, error) {
	item, err := db.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &domain.ItemDetail{Item: *item}

	err = db.Pool.QueryRow(ctx, `
		SELECT s.name, c.kind
		FROM channels c JOIN sources s ON s.id = c.source_id
		WHERE c.id = $1
	`, toUUID(item.ChannelID)).Scan(&detail.SourceName, &detail.Kind)
	if err != nil {
		return nil, fmt.Errorf("get item detail channel: %w", err)
	}

	detail.Siblings, err = db.ListDuplicateSiblings(ctx, id)
	if err != nil {
		return nil, err
	}

	return detail, nil
}

// BriefingQuery selects items for the daily briefing export.
type BriefingQuery struct {
	MinPriority domain.Priority
	Since       time.Time
	IncludeRead bool
}

// ListBriefingItems returns item details matching the briefing query, grouped
// by priority descending then first-seen descending.
func (db *DB) ListBriefingItems(ctx context.Context, q BriefingQuery) ([]domain.ItemDetail, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT i.id, i.title, i.url, i.summary, i.priority, i.priority_score,
			i.groups, i.first_seen_at, i.is_read, s.name, c.kind
		FROM items i
		JOIN channels c ON c.id = i.channel_id
		JOIN sources s ON s.id = c.source_id
		WHERE i.first_seen_at >= $1
		  AND i.similar_to IS NULL
		  AND NOT i.is_archived
		  AND ($2 OR NOT i.is_read)
		  AND CASE i.priority
			WHEN 'high' THEN 3 WHEN 'medium' THEN 2 WHEN 'low' THEN 1 ELSE 0
		  END >= $3
		ORDER BY CASE i.priority
			WHEN 'high' THEN 3 WHEN 'medium' THEN 2 WHEN 'low' THEN 1 ELSE 0
		END DESC, i.first_seen_at DESC
	`, toTimestamptz(q.Since), q.IncludeRead, q.MinPriority.Rank())
	if err != nil {
		return nil, fmt.Errorf("list briefing items: %w", err)
	}
	defer rows.Close()

	var details []domain.ItemDetail

	for rows.Next() {
		var (
			d           domain.ItemDetail
			id          pgtype.UUID
			title, url  pgtype.Text
			summary     pgtype.Text
			priority    string
			firstSeen   pgtype.Timestamptz
			kind        string
		)

		if err := rows.Scan(&id, &title, &url, &summary, &priority, &d.PriorityScore,
			&d.Groups, &firstSeen, &d.IsRead, &d.SourceName, &kind); err != nil {
			return nil, fmt.Errorf("scan briefing item: %w", err)
		}

		d.ID = fromUUID(id)
		d.Title = fromText(title)
		d.URL = fromText(url)
		d.Summary = fromText(summary)
		d.Priority = domain.Priority(priority)
		d.FirstSeenAt = fromTimestamptz(firstSeen)
		d.Kind = domain.ConnectorKind(kind)
		details = append(details, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("briefing rows: %w", err)
	}

	return details, nil
}

// ListItemIDs returns every item id in the store. Used by index-coherence
// checks and index rebuilds.
func (db *DB) ListItemIDs(ctx context.Context) ([]string, error) {
	rows, err := db.Pool.Query(ctx, `SELECT id FROM items ORDER BY first_seen_at`)
	if err != nil {
		return nil, fmt.Errorf("list item ids: %w", err)
	}
	defer rows.Close()

	var ids []string

	for rows.Next() {
		var id pgtype.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan item id: %w", err)
		}

		ids = append(ids, fromUUID(id))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("item id rows: %w", err)
	}

	return ids, nil
}

func collectItems(rows pgx.Rows) ([]domain.Item, error) {
	var items []domain.Item

	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}

		items = append(items, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("item rows: %w", err)
	}

	return items, nil
}

func scanItem(row pgx.Row) (*domain.Item, error) {
	var (
		item                  domain.Item
		id, channelID         pgtype.UUID
		similarTo             pgtype.UUID
		title, content, url   pgtype.Text
		author                pgtype.Text
		summary, analysis     pgtype.Text
		publishedAt, firstSeen pgtype.Timestamptz
		priority              string
	)

	if err := row.Scan(&id, &channelID, &item.ExternalID, &title, &content, &url, &author,
		&publishedAt, &firstSeen, &item.ContentHash, &summary, &analysis, &priority,
		&item.PriorityScore, &item.Groups, &item.Tags, &item.IsRead, &item.IsStarred,
		&item.IsArchived, &item.NeedsLLM, &similarTo, &item.Metadata, &item.Revision); err != nil {
		return nil, err
	}

	item.ID = fromUUID(id)
	item.ChannelID = fromUUID(channelID)
	item.SimilarTo = fromUUID(similarTo)
	item.Title = fromText(title)
	item.Content = fromText(content)
	item.URL = fromText(url)
	item.Author = fromText(author)
	item.Summary = fromText(summary)
	item.Analysis = fromText(analysis)
	item.PublishedAt = fromTimestamptz(publishedAt)
	item.FirstSeenAt = fromTimestamptz(firstSeen)
	item.Priority = domain.Priority(priority)

	return &item, nil
}

func nullableUUID(id string) pgtype.UUID {
	if id == "" {
		return pgtype.UUID{Valid: false}
	}

	return toUUID(id)
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}

	return s
}
