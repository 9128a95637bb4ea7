package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/domain"
	apperrors "github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/errors"
)

type schedStore struct {
	mu       sync.Mutex
	channels []domain.Channel
	polls    map[string]string
}

func newSchedStore(channels ...domain.Channel) *schedStore {
	return &schedStore{channels: channels, polls: map[string]string{}}
}

func (s *schedStore) ListEnabledChannels(context.Context) ([]domain.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Channel

	for _, ch := range s.channels {
		if ch.Enabled {
			out = append(out, ch)
		}
	}

	return out, nil
}

func (s *schedStore) GetChannel(_ context.Context, id string) (*domain.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ch := range s.channels {
		if ch.ID == id {
			cp := ch

			return &cp, nil
		}
	}

	return nil, apperrors.ErrNotFound
}

func (s *schedStore) UpdateChannelPollResult(_ context.Context, id string, _ time.Time, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.polls[id] = lastError

	return nil
}

func (s *schedStore) lastError(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.polls[id]

	return e, ok
}

type stubFetcher struct {
	mu      sync.Mutex
	items   map[string][]domain.RawItem
	err     error
	block   chan struct{}
	fetched []string

	running    atomic.Int32
	maxRunning atomic.Int32
}

func (f *stubFetcher) Fetch(ctx context.Context, ch domain.Channel) ([]domain.RawItem, error) {
	n := f.running.Add(1)
	defer f.running.Add(-1)

	for {
		prev := f.maxRunning.Load()
		if n <= prev || f.maxRunning.CompareAndSwap(prev, n) {
			break
		}
	}

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	f.fetched = append(f.fetched, ch.ID)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	return f.items[ch.ID], nil
}

func (f *stubFetcher) fetchedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.fetched...)
}

type stubIngester struct {
	mu  sync.Mutex
	got []string
}

func (i *stubIngester) Ingest(_ context.Context, _ domain.Channel, raw domain.RawItem) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.got = append(i.got, raw.ExternalID)

	return raw.ExternalID, nil
}

func (i *stubIngester) ingested() []string {
	i.mu.Lock()
	defer i.mu.Unlock()

	return append([]string(nil), i.got...)
}

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()

	return &l
}

func feedChannel(id string, lastPoll *time.Time) domain.Channel {
	return domain.Channel{ID: id, Kind: domain.KindFeed, Enabled: true, IntervalMinutes: 30, LastPollAt: lastPoll}
}

func TestCategoryOf(t *testing.T) {
	assert.Equal(t, CategoryFeed, CategoryOf(domain.KindFeed))
	assert.Equal(t, CategoryFeed, CategoryOf(domain.KindSearchAlert))
	assert.Equal(t, CategoryHTML, CategoryOf(domain.KindHTML))
	assert.Equal(t, CategoryDocument, CategoryOf(domain.KindDocument))

	for _, kind := range []domain.ConnectorKind{
		domain.KindShortPost, domain.KindLongPost, domain.KindFederated,
		domain.KindChannelPost, domain.KindParaphrasedAlert,
	} {
		assert.Equal(t, CategorySocial, CategoryOf(kind), string(kind))
	}
}

func TestTickDispatchesOnlyDueChannels(t *testing.T) {
	recent := time.Now().Add(-time.Minute)
	store := newSchedStore(
		feedChannel("due", nil),
		feedChannel("fresh", &recent),
	)
	fetcher := &stubFetcher{items: map[string][]domain.RawItem{
		"due": {{ExternalID: "a"}, {ExternalID: "b"}},
	}}
	ingester := &stubIngester{}

	s := New(store, fetcher, ingester, Config{}, nopLogger())

	require.NoError(t, s.tick(context.Background()))
	s.wg.Wait()

	assert.Equal(t, []string{"due"}, fetcher.fetchedIDs())
	assert.Equal(t, []string{"a", "b"}, ingester.ingested(), "items flow to the pipeline in yield order")

	lastErr, polled := store.lastError("due")
	require.True(t, polled)
	assert.Empty(t, lastErr)
}

func TestFetchErrorRecordedOnChannel(t *testing.T) {
	store := newSchedStore(feedChannel("c1", nil))
	fetcher := &stubFetcher{err: errors.New("upstream timeout")}
	ingester := &stubIngester{}

	s := New(store, fetcher, ingester, Config{}, nopLogger())

	require.NoError(t, s.tick(context.Background()))
	s.wg.Wait()

	lastErr, polled := store.lastError("c1")
	require.True(t, polled)
	assert.Contains(t, lastErr, "upstream timeout")
	assert.Empty(t, ingester.ingested())
}

func TestInflightChannelNotDispatchedTwice(t *testing.T) {
	store := newSchedStore(feedChannel("c1", nil))
	fetcher := &stubFetcher{block: make(chan struct{})}
	ingester := &stubIngester{}

	s := New(store, fetcher, ingester, Config{}, nopLogger())
	ctx := context.Background()

	require.NoError(t, s.tick(ctx))

	require.Eventually(t, func() bool { return s.Inflight("c1") }, time.Second, time.Millisecond)

	require.NoError(t, s.tick(ctx))

	close(fetcher.block)
	s.wg.Wait()

	assert.Equal(t, []string{"c1"}, fetcher.fetchedIDs(), "second tick must not re-dispatch")
}

func TestCategoryCapLimitsConcurrency(t *testing.T) {
	store := newSchedStore(feedChannel("c1", nil), feedChannel("c2", nil), feedChannel("c3", nil))
	block := make(chan struct{})
	fetcher := &stubFetcher{block: block}
	ingester := &stubIngester{}

	s := New(store, fetcher, ingester, Config{Caps: map[Category]int{CategoryFeed: 1}}, nopLogger())

	require.NoError(t, s.tick(context.Background()))

	require.Eventually(t, func() bool { return fetcher.running.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), fetcher.maxRunning.Load())

	close(block)
	s.wg.Wait()

	assert.Equal(t, int32(1), fetcher.maxRunning.Load(), "cap of one admits one fetch at a time")
	assert.Len(t, fetcher.fetchedIDs(), 3)
}

func TestTriggerChannelRejectsDisabled(t *testing.T) {
	ch := feedChannel("c1", nil)
	ch.Enabled = false
	store := newSchedStore(ch)

	s := New(store, &stubFetcher{}, &stubIngester{}, Config{}, nopLogger())

	err := s.TriggerChannel(context.Background(), "c1")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidConfig))
}

func TestTriggerAllFetchesEverything(t *testing.T) {
	recent := time.Now().Add(-time.Minute)
	store := newSchedStore(feedChannel("c1", &recent), feedChannel("c2", &recent))
	fetcher := &stubFetcher{}
	ingester := &stubIngester{}

	s := New(store, fetcher, ingester, Config{}, nopLogger())

	require.NoError(t, s.TriggerAll(context.Background()))
	s.wg.Wait()

	assert.ElementsMatch(t, []string{"c1", "c2"}, fetcher.fetchedIDs(), "manual trigger ignores the schedule")
}
