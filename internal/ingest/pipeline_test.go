package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/domain"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/embeddings"
	apperrors "github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/errors"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/dedup"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/storage"
)

// memStore is an in-memory Store + dedup.Store good enough for pipeline tests.
type memStore struct {
	mu         sync.Mutex
	items      map[string]*domain.Item
	byIdentity map[string]string
	byHash     map[string]string
	events     map[string][]domain.EventKind
	embeddings map[string][]float32
	neighborID string
	neighborCS float32
}

func newMemStore() *memStore {
	return &memStore{
		items:      map[string]*domain.Item{},
		byIdentity: map[string]string{},
		byHash:     map[string]string{},
		events:     map[string][]domain.EventKind{},
		embeddings: map[string][]float32{},
	}
}

func (m *memStore) InsertItem(_ context.Context, item *domain.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := item.ChannelID + "/" + item.ExternalID
	if _, ok := m.byIdentity[key]; ok {
		return apperrors.ErrDuplicateItem
	}

	m.byIdentity[key] = item.ID
	m.items[item.ID] = item

	if item.SimilarTo == "" {
		if _, ok := m.byHash[item.ContentHash]; !ok {
			m.byHash[item.ContentHash] = item.ID
		}
	}

	return nil
}

func (m *memStore) AppendEvent(_ context.Context, itemID string, kind domain.EventKind, _ map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events[itemID] = append(m.events[itemID], kind)

	return nil
}

func (m *memStore) FindCanonicalByContentHash(_ context.Context, hash, excludeChannelID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byHash[hash]
	if !ok {
		return "", nil
	}

	if item := m.items[id]; item != nil && item.ChannelID == excludeChannelID {
		return "", nil
	}

	return id, nil
}

func (m *memStore) UpsertEmbedding(_ context.Context, _ storage.EmbeddingSpace, itemID string, vec []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.embeddings[itemID] = vec

	return nil
}

func (m *memStore) FindItemIDByIdentity(_ context.Context, channelID, externalID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.byIdentity[channelID+"/"+externalID], nil
}

func (m *memStore) FindTitleCandidates(_ context.Context, channelID, prefix string, _ time.Time) ([]storage.TitleCandidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []storage.TitleCandidate

	for _, item := range m.items {
		if item.ChannelID != channelID {
			continue
		}

		p := dedup.TitlePrefix(item.Title)
		if len(p) > 0 && (hasPrefix(p, prefix) || hasPrefix(prefix, p)) {
			out = append(out, storage.TitleCandidate{ID: item.ID, Title: item.Title, SimilarTo: item.SimilarTo})
		}
	}

	return out, nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func (m *memStore) NearestNeighbor(_ context.Context, _ storage.EmbeddingSpace, _ []float32, excludeItemID string) (string, float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if excludeItemID != "" && excludeItemID == m.neighborID {
		return "", 0, nil
	}

	return m.neighborID, m.neighborCS, nil
}

type failingEmbedder struct{}

func (failingEmbedder) EmbedRetrieval(context.Context, string, string) (embeddings.Result, error) {
	return embeddings.Result{}, errors.New("embedding service down")
}

func (failingEmbedder) EmbedParaphrase(context.Context, string, string) (embeddings.Result, error) {
	return embeddings.Result{}, errors.New("embedding service down")
}

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()

	return &l
}

func newTestPipeline(store *memStore, embedder embeddings.Client) *Pipeline {
	detector := dedup.NewDetector(store, embedder, dedup.Config{TitleThreshold: 0.85, ParaphraseThreshold: 0.75}, nopLogger())

	return New(store, detector, 16, nopLogger())
}

func workingEmbedder() embeddings.Client {
	mock := embeddings.NewMock()

	return staticEmbedder{mock}
}

type staticEmbedder struct {
	mock *embeddings.MockProvider
}

func (s staticEmbedder) EmbedRetrieval(ctx context.Context, title, content string) (embeddings.Result, error) {
	return s.mock.Embed(ctx, title+" "+content)
}

func (s staticEmbedder) EmbedParaphrase(ctx context.Context, title, content string) (embeddings.Result, error) {
	return s.mock.Embed(ctx, title+" "+content)
}

func testChannel(id string) domain.Channel {
	return domain.Channel{ID: id, Kind: domain.KindFeed, Enabled: true}
}

func TestIngestNewItem(t *testing.T) {
	store := newMemStore()
	p := newTestPipeline(store, workingEmbedder())

	id, err := p.Ingest(context.Background(), testChannel("ch-a"), domain.RawItem{
		ExternalID: "e-1",
		Title:      "Landeshaushalt: Kürzungen bei Migrationsberatung angekündigt",
		Content:    "Die Landesregierung plant Kürzungen bei der Migrationsberatung.",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	item := store.items[id]
	require.NotNil(t, item)
	assert.True(t, item.NeedsLLM)
	assert.Equal(t, domain.PriorityNone, item.Priority)
	assert.Empty(t, item.SimilarTo)
	assert.Equal(t, []domain.EventKind{domain.EventFetched}, store.events[id])
	assert.NotEmpty(t, store.embeddings[id])

	select {
	case queued := <-p.Queue():
		assert.Equal(t, id, queued)
	default:
		t.Fatal("item not enqueued for classifier")
	}
}

func TestIngestSearchAlertTagged(t *testing.T) {
	store := newMemStore()
	p := newTestPipeline(store, workingEmbedder())

	id, err := p.Ingest(context.Background(), testChannel("ch-a"), domain.RawItem{
		ExternalID: "e-1",
		Title:      "Suchtreffer: Pflegereform",
		Content:    "Vorschau des Suchdienstes.",
		Metadata:   map[string]any{"search_alert": true},
	})
	require.NoError(t, err)
	<-p.Queue()

	assert.Contains(t, store.items[id].Tags, "search-alert")
}

func TestIngestIdentityDuplicateDropped(t *testing.T) {
	store := newMemStore()
	p := newTestPipeline(store, workingEmbedder())

	raw := domain.RawItem{ExternalID: "e-1", Title: "Titel A", Content: "Inhalt A"}

	first, err := p.Ingest(context.Background(), testChannel("ch-a"), raw)
	require.NoError(t, err)
	<-p.Queue()

	second, err := p.Ingest(context.Background(), testChannel("ch-a"), raw)
	require.NoError(t, err)
	assert.Empty(t, second)

	// Re-ingesting inserts zero new items and audits the existing one.
	assert.Len(t, store.items, 1)
	assert.Contains(t, store.events[first], domain.EventDuplicateIdentity)
}

func TestIngestCrossChannelContentDuplicate(t *testing.T) {
	store := newMemStore()
	p := newTestPipeline(store, workingEmbedder())

	content := "Wortgleicher Artikel über die Kürzungen bei der Migrationsberatung in Hessen."

	first, err := p.Ingest(context.Background(), testChannel("ch-a"), domain.RawItem{
		ExternalID: "a-1", Title: "Kürzungen angekündigt", Content: content,
	})
	require.NoError(t, err)
	<-p.Queue()

	second, err := p.Ingest(context.Background(), testChannel("ch-b"), domain.RawItem{
		ExternalID: "b-1", Title: "Kürzungen angekündigt (Agentur)", Content: content,
	})
	require.NoError(t, err)
	require.NotEmpty(t, second)

	// Two rows, second points at the first, classifier never sees it.
	assert.Len(t, store.items, 2)
	assert.Equal(t, first, store.items[second].SimilarTo)
	assert.False(t, store.items[second].NeedsLLM)
	assert.Contains(t, store.events[second], domain.EventDuplicateContent)

	select {
	case <-p.Queue():
		t.Fatal("duplicate must not be enqueued")
	default:
	}
}

func TestIngestTitleDuplicateSameChannel(t *testing.T) {
	store := newMemStore()
	p := newTestPipeline(store, workingEmbedder())

	first, err := p.Ingest(context.Background(), testChannel("ch-a"), domain.RawItem{
		ExternalID: "a-1",
		Title:      "Hessen kürzt Kita-Mittel drastisch",
		Content:    "Erste Meldung zum Thema.",
	})
	require.NoError(t, err)
	<-p.Queue()

	second, err := p.Ingest(context.Background(), testChannel("ch-a"), domain.RawItem{
		ExternalID: "a-2",
		Title:      "Hessen kürzt Kita-Mittel drastisch — Aktualisierung",
		Content:    "Aktualisierte Meldung mit neuen Details zum Thema.",
	})
	require.NoError(t, err)
	require.NotEmpty(t, second)

	assert.Equal(t, first, store.items[second].SimilarTo)
	assert.Contains(t, store.events[second], domain.EventDuplicateTitle)
}

func TestIngestParaphraseSkippedOnOutage(t *testing.T) {
	store := newMemStore()
	p := newTestPipeline(store, failingEmbedder{})

	id, err := p.Ingest(context.Background(), testChannel("ch-a"), domain.RawItem{
		ExternalID: "a-1", Title: "Titel", Content: "Inhalt der Meldung",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	// Ingestion proceeds without a paraphrase vector and audits the skip.
	assert.Contains(t, store.events[id], domain.EventParaphraseSkipped)
	assert.Empty(t, store.embeddings[id])
	<-p.Queue()
}

func TestIngestEmptyContentUsesSentinelHash(t *testing.T) {
	store := newMemStore()
	p := newTestPipeline(store, workingEmbedder())

	a, err := p.Ingest(context.Background(), testChannel("ch-a"), domain.RawItem{
		ExternalID: "a-1", Title: "Nur Titel A", Content: "",
	})
	require.NoError(t, err)
	<-p.Queue()

	b, err := p.Ingest(context.Background(), testChannel("ch-b"), domain.RawItem{
		ExternalID: "b-1", Title: "Völlig anderer Titel B", Content: "   ",
	})
	require.NoError(t, err)
	<-p.Queue()

	// Two empty-content items on different channels are not content
	// duplicates of each other.
	assert.Empty(t, store.items[a].SimilarTo)
	assert.Empty(t, store.items[b].SimilarTo)
}
