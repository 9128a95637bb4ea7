package connectors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/domain"
	apperrors "github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/errors"
)

const newsListPage = `<html><body>
<div class="news-item"><h2>Pflegekammer Hessen vor Gründung</h2>
  <a href="/news/pflegekammer">weiterlesen</a>
  <p>Der Landtag berät über die Errichtung einer Pflegekammer.</p></div>
<div class="news-item"><h2>Neue Förderrichtlinie Jugendarbeit</h2>
  <a href="/news/jugend">weiterlesen</a>
  <p>Das Sozialministerium veröffentlicht eine neue Richtlinie.</p></div>
<div class="news-item"></div>
</body></html>`

func TestHTMLPageFetchBySelector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(newsListPage))
	}))
	t.Cleanup(srv.Close)

	h := NewHTMLPage(srv.Client(), testLogger())

	ch := domain.Channel{
		Kind:   domain.KindHTML,
		Config: map[string]string{"url": srv.URL + "/presse", "selector": ".news-item"},
	}

	items, err := h.Fetch(context.Background(), ch)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "Pflegekammer Hessen vor Gründung", items[0].Title)
	assert.Contains(t, items[0].Content, "Errichtung einer Pflegekammer")
	assert.Equal(t, srv.URL+"/news/pflegekammer", items[0].URL)
	assert.NotEqual(t, items[0].ExternalID, items[1].ExternalID)
}

func TestHTMLPageValidate(t *testing.T) {
	h := NewHTMLPage(http.DefaultClient, testLogger())

	assert.NoError(t, h.Validate(map[string]string{"url": "https://example.org/presse"}))
	assert.NoError(t, h.Validate(map[string]string{"url": "https://example.org", "selector": "div.news > h2"}))
	assert.ErrorIs(t, h.Validate(map[string]string{"url": "https://example.org", "selector": "p["}), apperrors.ErrInvalidConfig)
	assert.ErrorIs(t, h.Validate(map[string]string{}), apperrors.ErrInvalidConfig)
}

func TestHTMLPageHeuristicSingleArticle(t *testing.T) {
	page := `<html><head><title>Haushaltsdebatte</title></head><body><nav>Menü</nav>
	<article><h1>Haushaltsdebatte im Landtag</h1>
	<p>Der hessische Landtag debattiert über den Sozialetat. Die Opposition kritisiert
	die geplanten Kürzungen bei Beratungsstellen scharf und fordert Nachbesserungen
	im parlamentarischen Verfahren. Die Verbände der Freien Wohlfahrtspflege warnen
	vor Leistungseinschränkungen für Betroffene.</p></article></body></html>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(page))
	}))
	t.Cleanup(srv.Close)

	h := NewHTMLPage(srv.Client(), testLogger())

	ch := domain.Channel{
		Kind:   domain.KindHTML,
		Config: map[string]string{"url": srv.URL + "/artikel"},
	}

	items, err := h.Fetch(context.Background(), ch)
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Contains(t, items[0].Content, "Sozialetat")
	assert.NotContains(t, items[0].Content, "Menü")
}
