package briefing

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/domain"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/storage"
)

type briefingStore struct {
	query storage.BriefingQuery
	items []domain.ItemDetail
}

func (s *briefingStore) ListBriefingItems(_ context.Context, q storage.BriefingQuery) ([]domain.ItemDetail, error) {
	s.query = q

	return s.items, nil
}

type captureSender struct {
	sent *Briefing
}

func (c *captureSender) Send(_ context.Context, b *Briefing) error {
	c.sent = b

	return nil
}

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()

	return &l
}

func detail(title string, priority domain.Priority, summary string) domain.ItemDetail {
	d := domain.ItemDetail{SourceName: "Hessenschau"}
	d.Title = title
	d.Priority = priority
	d.Summary = summary
	d.URL = "https://example.org/" + strings.ToLower(title)

	return d
}

func TestBuildSubjectAndSelection(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	store := &briefingStore{}
	e := New(store, nopLogger())
	e.now = func() time.Time { return time.Date(2026, 8, 25, 6, 0, 0, 0, time.UTC) }

	b, err := e.Build(context.Background(), Options{HoursBack: 48, Location: berlin,
		FromAddress: "newsagent@liga-hessen.example"})
	require.NoError(t, err)

	assert.Equal(t, "Briefing — 25.08.2026", b.Subject)
	assert.Equal(t, "newsagent@liga-hessen.example", b.From)
	assert.Equal(t, domain.PriorityMedium, store.query.MinPriority, "default minimum priority")
	assert.Equal(t, time.Date(2026, 8, 23, 6, 0, 0, 0, time.UTC), store.query.Since)
	assert.False(t, store.query.IncludeRead)
	assert.True(t, b.Empty())
}

func TestRenderGroupsByPriority(t *testing.T) {
	store := &briefingStore{items: []domain.ItemDetail{
		detail("Kürzungen", domain.PriorityHigh, "Das Land kürzt Fördermittel."),
		detail("Pflegebericht", domain.PriorityHigh, ""),
		detail("Kita-Debatte", domain.PriorityMedium, "Debatte im Landtag."),
	}}

	e := New(store, nopLogger())

	b, err := e.Build(context.Background(), Options{})
	require.NoError(t, err)

	assert.Contains(t, b.Text, "Hohe Priorität")
	assert.Contains(t, b.Text, "Mittlere Priorität")
	assert.Less(t, strings.Index(b.Text, "Kürzungen"), strings.Index(b.Text, "Kita-Debatte"),
		"high priority section precedes medium")

	assert.Contains(t, b.HTML, "<h2>Hohe Priorität</h2>")
	assert.Contains(t, b.HTML, `<a href="https://example.org/kürzungen">Kürzungen</a>`)
	assert.Equal(t, 2, strings.Count(b.HTML, "<h2>"), "one heading per bucket")
}

func TestHTMLEscapesContent(t *testing.T) {
	store := &briefingStore{items: []domain.ItemDetail{
		detail("Bericht <script>", domain.PriorityHigh, "A & B"),
	}}

	e := New(store, nopLogger())

	b, err := e.Build(context.Background(), Options{})
	require.NoError(t, err)

	assert.NotContains(t, b.HTML, "<script>")
	assert.Contains(t, b.HTML, "Bericht &lt;script&gt;")
	assert.Contains(t, b.HTML, "A &amp; B")
}

func TestBuildAndSendSkipsEmpty(t *testing.T) {
	store := &briefingStore{}
	sender := &captureSender{}
	e := New(store, nopLogger())

	require.NoError(t, e.BuildAndSend(context.Background(), Options{}, sender))
	assert.Nil(t, sender.sent, "empty briefing is not delivered")
}

func TestBuildAndSendDelivers(t *testing.T) {
	store := &briefingStore{items: []domain.ItemDetail{detail("Kürzungen", domain.PriorityHigh, "")}}
	sender := &captureSender{}
	e := New(store, nopLogger())

	require.NoError(t, e.BuildAndSend(context.Background(), Options{}, sender))
	require.NotNil(t, sender.sent)
	assert.Len(t, sender.sent.Items, 1)
}
