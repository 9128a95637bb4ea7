package connectors

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/domain"
	apperrors "github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/errors"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()

	return &l
}

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel>
<title>Sozialpolitik Hessen</title>
<item>
  <title>Landeshaushalt: Kürzungen bei Migrationsberatung angekündigt</title>
  <link>%s/artikel/1</link>
  <guid>artikel-1</guid>
  <description>Die Landesregierung plant Kürzungen.</description>
  <pubDate>Mon, 18 Aug 2025 08:00:00 +0200</pubDate>
</item>
<item>
  <title>Zweiter Beitrag</title>
  <link>%s/artikel/2</link>
  <guid>artikel-2</guid>
  <description>Kurzbeschreibung zwei.</description>
</item>
</channel></rss>`

func feedTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	var srv *httptest.Server

	mux.HandleFunc("/feed.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, sampleRSS, srv.URL, srv.URL)
	})
	mux.HandleFunc("/artikel/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><head><title>Artikel</title></head><body><article><h1>Artikel</h1>`+
			`<p>Volltext des Artikels %s mit ausreichend Inhalt, um von der Extraktion `+
			`als Haupttext erkannt zu werden. Die Landesregierung plant erhebliche Kürzungen `+
			`bei der Migrationsberatung im kommenden Haushaltsjahr.</p></article></body></html>`, r.URL.Path)
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

func feedChannel(url string, cfg map[string]string) domain.Channel {
	if cfg == nil {
		cfg = map[string]string{}
	}

	cfg["url"] = url

	return domain.Channel{ID: "ch-1", Kind: domain.KindFeed, Config: cfg, Enabled: true}
}

func TestFeedValidate(t *testing.T) {
	f := NewFeed(http.DefaultClient, testLogger())

	assert.NoError(t, f.Validate(map[string]string{"url": "https://example.org/feed"}))
	assert.ErrorIs(t, f.Validate(map[string]string{}), apperrors.ErrInvalidConfig)
	assert.ErrorIs(t, f.Validate(map[string]string{"url": "not-a-url"}), apperrors.ErrInvalidConfig)
}

func TestFeedFetchWithoutFollowLinks(t *testing.T) {
	srv := feedTestServer(t)
	f := NewFeed(srv.Client(), testLogger())

	ch := feedChannel(srv.URL+"/feed.xml", map[string]string{"follow_links": "false"})

	items, err := f.Fetch(context.Background(), ch)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "artikel-1", items[0].ExternalID)
	assert.Equal(t, "Landeshaushalt: Kürzungen bei Migrationsberatung angekündigt", items[0].Title)
	assert.Equal(t, "Die Landesregierung plant Kürzungen.", items[0].Content)
	assert.False(t, items[0].PublishedAt.IsZero())
	assert.Equal(t, "artikel-2", items[1].ExternalID)
}

func TestFeedFetchFollowLinksReplacesContent(t *testing.T) {
	srv := feedTestServer(t)
	f := NewFeed(srv.Client(), testLogger())

	items, err := f.Fetch(context.Background(), feedChannel(srv.URL+"/feed.xml", nil))
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Contains(t, items[0].Content, "Volltext des Artikels")
	assert.NotContains(t, items[0].Content, "Kurzbeschreibung")
}

func TestFeedFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	f := NewFeed(srv.Client(), testLogger())

	_, err := f.Fetch(context.Background(), feedChannel(srv.URL+"/feed.xml", nil))
	assert.ErrorIs(t, err, apperrors.ErrHTTPStatus)
}

func TestSearchAlertNeverFollowsLinks(t *testing.T) {
	srv := feedTestServer(t)
	s := NewSearchAlert(NewFeed(srv.Client(), testLogger()))

	ch := domain.Channel{
		ID:   "ch-2",
		Kind: domain.KindSearchAlert,
		// follow_links true must be ignored for alert streams.
		Config: map[string]string{"url": srv.URL + "/feed.xml", "follow_links": "true"},
	}

	items, err := s.Fetch(context.Background(), ch)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "Die Landesregierung plant Kürzungen.", items[0].Content)
	assert.Equal(t, true, items[0].Metadata["search_alert"])
}
