package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/domain"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/embeddings"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/storage"
)

// Reference thresholds and the title-stage candidate window.
const (
	DefaultTitleThreshold      = 0.85
	DefaultParaphraseThreshold = 0.75
	DefaultTitleWindow         = 7 * 24 * time.Hour
)

// Store is the storage surface the dedup stages consume.
type Store interface {
	FindItemIDByIdentity(ctx context.Context, channelID, externalID string) (string, error)
	FindCanonicalByContentHash(ctx context.Context, hash, excludeChannelID string) (string, error)
	FindTitleCandidates(ctx context.Context, channelID, titlePrefix string, since time.Time) ([]storage.TitleCandidate, error)
	NearestNeighbor(ctx context.Context, space storage.EmbeddingSpace, embedding []float32, excludeItemID string) (string, float32, error)
}

// Match is the outcome of a dedup stage: the canonical item hit plus the
// audit event kind to record.
type Match struct {
	CanonicalID string
	Event       domain.EventKind
	Similarity  float64
}

// Config tunes the detector; out-of-range values fall back to the reference
// defaults.
type Config struct {
	TitleThreshold      float64
	ParaphraseThreshold float64
	// TitleWindow bounds how far back stage B looks for candidates.
	TitleWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.TitleThreshold <= 0 || c.TitleThreshold > 1 {
		c.TitleThreshold = DefaultTitleThreshold
	}

	if c.ParaphraseThreshold <= 0 || c.ParaphraseThreshold > 1 {
		c.ParaphraseThreshold = DefaultParaphraseThreshold
	}

	if c.TitleWindow <= 0 {
		c.TitleWindow = DefaultTitleWindow
	}

	return c
}

// Detector runs dedup stages B and C. Stage A (identity) is a plain store
// lookup exposed here for symmetry.
type Detector struct {
	store    Store
	embedder embeddings.Client
	cfg      Config
	logger   *zerolog.Logger
}

// NewDetector wires the detector.
func NewDetector(store Store, embedder embeddings.Client, cfg Config, logger *zerolog.Logger) *Detector {
	return &Detector{
		store:    store,
		embedder: embedder,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

// FindByIdentity is stage A: the exact (channel, external id) lookup.
func (d *Detector) FindByIdentity(ctx context.Context, channelID, externalID string) (string, error) {
	return d.store.FindItemIDByIdentity(ctx, channelID, externalID)
}

// FindByTitle is stage B: same-channel candidates from the last 7 days whose
// 50-char prefix matches, scored by normalized Levenshtein similarity. The
// earliest candidate at or above the threshold wins; candidates that are
// themselves duplicates are followed to their canonical.
func (d *Detector) FindByTitle(ctx context.Context, channelID, title string, now time.Time) (*Match, error) {
	if title == "" {
		return nil, nil
	}

	candidates, err := d.store.FindTitleCandidates(ctx, channelID, TitlePrefix(title), now.Add(-d.cfg.TitleWindow))
	if err != nil {
		return nil, fmt.Errorf("title candidates: %w", err)
	}

	for _, c := range candidates {
		sim := UpdateAwareSimilarity(title, c.Title)
		if sim < d.cfg.TitleThreshold {
			continue
		}

		canonical := c.ID
		if c.SimilarTo != "" {
			canonical = c.SimilarTo
		}

		return &Match{CanonicalID: canonical, Event: domain.EventDuplicateTitle, Similarity: sim}, nil
	}

	return nil, nil
}

// ParaphraseResult carries the stage C outcome. Skipped is set when the
// embedding service was unavailable and the stage did not run; Vector holds
// the computed paraphrase embedding for later indexing when the item turns
// out to be new.
type ParaphraseResult struct {
	Match   *Match
	Vector  []float32
	Skipped bool
}

// FindByParaphrase is stage C: embed title + content head in the paraphrase
// space and look up the nearest indexed neighbor. The probing item is not yet
// indexed at this point, so no exclusion is passed to the store.
func (d *Detector) FindByParaphrase(ctx context.Context, title, content string) (ParaphraseResult, error) {
	res, err := d.embedder.EmbedParaphrase(ctx, title, content)
	if err != nil {
		d.logger.Warn().Err(err).Msg("paraphrase embedding unavailable, stage skipped")

		return ParaphraseResult{Skipped: true}, nil
	}

	neighborID, sim, err := d.store.NearestNeighbor(ctx, storage.SpaceParaphrase, res.Vector, "")
	if err != nil {
		return ParaphraseResult{}, fmt.Errorf("paraphrase neighbor lookup: %w", err)
	}

	if neighborID == "" || float64(sim) < d.cfg.ParaphraseThreshold {
		return ParaphraseResult{Vector: res.Vector}, nil
	}

	return ParaphraseResult{
		Match:  &Match{CanonicalID: neighborID, Event: domain.EventDuplicateParaphrase, Similarity: float64(sim)},
		Vector: res.Vector,
	}, nil
}
