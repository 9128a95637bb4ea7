// Package ingest turns normalized connector output into persisted items:
// dedup stages, the authoritative insert, audit events and the classifier
// queue handoff.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/domain"
	apperrors "github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/errors"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/textutil"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/dedup"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/platform/observability"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/storage"
)

// DefaultQueueSize bounds the classifier queue; a full queue blocks ingestion
// and back-pressures the dispatching fetch.
const DefaultQueueSize = 10000

// Store is the storage surface the pipeline writes through.
type Store interface {
	InsertItem(ctx context.Context, item *domain.Item) error
	AppendEvent(ctx context.Context, itemID string, kind domain.EventKind, payload map[string]any) error
	FindCanonicalByContentHash(ctx context.Context, hash, excludeChannelID string) (string, error)
	UpsertEmbedding(ctx context.Context, space storage.EmbeddingSpace, itemID string, embedding []float32) error
}

// Pipeline ingests raw items for one deployment. Multiple fetches may call
// Ingest concurrently; the store's unique constraint arbitrates races.
type Pipeline struct {
	store    Store
	detector *dedup.Detector
	queue    chan string
	logger   *zerolog.Logger
	now      func() time.Time
}

// New creates the pipeline. queueSize <= 0 selects the default.
func New(store Store, detector *dedup.Detector, queueSize int, logger *zerolog.Logger) *Pipeline {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	return &Pipeline{
		store:    store,
		detector: detector,
		queue:    make(chan string, queueSize),
		logger:   logger,
		now:      time.Now,
	}
}

// Queue exposes the classifier input queue of item ids.
func (p *Pipeline) Queue() <-chan string {
	return p.queue
}

// Ingest runs one raw item through the dedup stages and persists it. The
// returned id is empty when the item was dropped as an identity duplicate.
func (p *Pipeline) Ingest(ctx context.Context, ch domain.Channel, raw domain.RawItem) (string, error) {
	// Stage A: identity.
	existingID, err := p.detector.FindByIdentity(ctx, ch.ID, raw.ExternalID)
	if err != nil {
		return "", fmt.Errorf("identity lookup: %w", err)
	}

	if existingID != "" {
		observability.DedupeDrops.WithLabelValues("identity").Inc()

		if err := p.store.AppendEvent(ctx, existingID, domain.EventDuplicateIdentity, map[string]any{
			"channel_id":  ch.ID,
			"external_id": raw.ExternalID,
		}); err != nil {
			return "", fmt.Errorf("identity duplicate event: %w", err)
		}

		return "", nil
	}

	contentHash := raw.HashOverride
	if contentHash == "" {
		contentHash = textutil.ContentHash(raw.Content)
	}

	item := &domain.Item{
		ID:          uuid.NewString(),
		ChannelID:   ch.ID,
		ExternalID:  raw.ExternalID,
		Title:       raw.Title,
		Content:     textutil.Normalize(raw.Content),
		URL:         raw.URL,
		Author:      raw.Author,
		PublishedAt: raw.PublishedAt,
		FirstSeenAt: p.now(),
		ContentHash: contentHash,
		Priority:    domain.PriorityNone,
		NeedsLLM:    true,
		Metadata:    raw.Metadata,
	}

	if alert, _ := raw.Metadata["search_alert"].(bool); alert {
		item.Tags = append(item.Tags, "search-alert")
	}

	// Stage "exact content": same hash on another channel.
	match, paraVector, err := p.findDuplicate(ctx, ch, item)
	if err != nil {
		return "", err
	}

	if match != nil {
		item.SimilarTo = match.CanonicalID
		item.NeedsLLM = false
	}

	inserted, err := p.insert(ctx, item, match)
	if err != nil {
		return "", err
	}

	if !inserted {
		return "", nil
	}

	if match != nil {
		observability.ItemsIngested.WithLabelValues("duplicate").Inc()

		return item.ID, nil
	}

	if len(paraVector) > 0 {
		if err := p.store.UpsertEmbedding(ctx, storage.SpaceParaphrase, item.ID, paraVector); err != nil {
			return "", fmt.Errorf("index paraphrase embedding: %w", err)
		}
	}

	observability.ItemsIngested.WithLabelValues("new").Inc()

	// Classifier handoff; blocks when the queue is full.
	select {
	case p.queue <- item.ID:
		observability.ClassifierQueueDepth.Set(float64(len(p.queue)))
	case <-ctx.Done():
		return item.ID, ctx.Err()
	}

	return item.ID, nil
}

// findDuplicate runs the content-hash, title and paraphrase stages in order
// and returns the first hit plus the paraphrase vector when computed.
func (p *Pipeline) findDuplicate(ctx context.Context, ch domain.Channel, item *domain.Item) (*dedup.Match, []float32, error) {
	if item.ContentHash != textutil.EmptyContentHash {
		canonicalID, err := p.store.FindCanonicalByContentHash(ctx, item.ContentHash, ch.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("content hash lookup: %w", err)
		}

		if canonicalID != "" {
			observability.DedupeDrops.WithLabelValues("content").Inc()

			return &dedup.Match{CanonicalID: canonicalID, Event: domain.EventDuplicateContent, Similarity: 1}, nil, nil
		}
	}

	titleMatch, err := p.detector.FindByTitle(ctx, ch.ID, item.Title, item.FirstSeenAt)
	if err != nil {
		return nil, nil, fmt.Errorf("title dedup: %w", err)
	}

	if titleMatch != nil {
		observability.DedupeDrops.WithLabelValues("title").Inc()

		return titleMatch, nil, nil
	}

	para, err := p.detector.FindByParaphrase(ctx, item.Title, item.Content)
	if err != nil {
		return nil, nil, fmt.Errorf("paraphrase dedup: %w", err)
	}

	if para.Skipped {
		item.Metadata = setMeta(item.Metadata, "paraphrase_skipped", true)
	}

	if para.Match != nil {
		observability.DedupeDrops.WithLabelValues("paraphrase").Inc()

		return para.Match, para.Vector, nil
	}

	return nil, para.Vector, nil
}

// insert writes the item and its audit events. A unique-constraint race is
// treated as an identity duplicate per the store-conflict contract; the false
// return tells the caller to stop.
func (p *Pipeline) insert(ctx context.Context, item *domain.Item, match *dedup.Match) (bool, error) {
	if err := p.store.InsertItem(ctx, item); err != nil {
		if apperrors.Is(err, apperrors.ErrDuplicateItem) {
			observability.DedupeDrops.WithLabelValues("identity").Inc()
			p.logger.Debug().Str("external_id", item.ExternalID).Msg("insert lost identity race")

			return false, nil
		}

		return false, fmt.Errorf("insert item: %w", err)
	}

	if err := p.store.AppendEvent(ctx, item.ID, domain.EventFetched, nil); err != nil {
		return false, fmt.Errorf("fetched event: %w", err)
	}

	if skipped, _ := item.Metadata["paraphrase_skipped"].(bool); skipped {
		if err := p.store.AppendEvent(ctx, item.ID, domain.EventParaphraseSkipped, nil); err != nil {
			return false, fmt.Errorf("paraphrase skipped event: %w", err)
		}
	}

	if match != nil {
		if err := p.store.AppendEvent(ctx, item.ID, match.Event, map[string]any{
			"canonical_id": match.CanonicalID,
			"similarity":   match.Similarity,
		}); err != nil {
			return false, fmt.Errorf("duplicate event: %w", err)
		}
	}

	return true, nil
}

// setMeta sets a key on a possibly-nil metadata map.
func setMeta(meta map[string]any, key string, value any) map[string]any {
	if meta == nil {
		meta = map[string]any{}
	}

	meta[key] = value

	return meta
}
