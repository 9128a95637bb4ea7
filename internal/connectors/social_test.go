package connectors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/domain"
	apperrors "github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/errors"
)

func testTime() time.Time {
	return time.Date(2025, 8, 18, 9, 0, 0, 0, time.UTC)
}

func TestMentionedHandles(t *testing.T) {
	handles := mentionedHandles("Frage an @SozialMin_Hessen und @ligahessen: warum? @ligahessen nochmal")
	assert.Equal(t, []string{"sozialmin_hessen", "ligahessen"}, handles)

	assert.Nil(t, mentionedHandles("kein Handle hier"))
}

func TestNormalizePostTitleTruncation(t *testing.T) {
	long := make([]rune, 0, 160)
	for i := 0; i < 160; i++ {
		long = append(long, 'ä')
	}

	item := normalizePost("ligahessen", "42", string(long), "https://social.example/42", testTime())
	assert.Equal(t, "ligahessen", item.Author)
	assert.Len(t, []rune(item.Title), socialTitleChars)
	assert.Equal(t, string(long), item.Content)
}

func TestTimelineAPIFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users/ligahessen/statuses", r.URL.Path)

		_ = json.NewEncoder(w).Encode([]statusPost{
			{ID: "100", Text: "Neuer Bericht zur Pflege in Hessen, Frage an @SozialMin_Hessen", URL: "https://social.example/100", CreatedAt: "2025-08-18T09:00:00Z"},
			{ID: "", Text: "wird verworfen"},
			{ID: "101", Text: "Zweiter Post"},
		})
	}))
	t.Cleanup(srv.Close)

	c := NewShortPost(srv.Client(), testLogger())

	ch := domain.Channel{
		Kind:   domain.KindShortPost,
		Config: map[string]string{"handle": "@ligahessen", "api_url": srv.URL},
	}

	items, err := c.Fetch(context.Background(), ch)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "100", items[0].ExternalID)
	assert.Equal(t, "ligahessen", items[0].Author)
	assert.Equal(t, []string{"sozialmin_hessen"}, items[0].Metadata[domain.MetaMentionedHandles])
	assert.False(t, items[0].PublishedAt.IsZero())
}

func TestTimelineAPIValidate(t *testing.T) {
	c := NewShortPost(http.DefaultClient, testLogger())

	assert.NoError(t, c.Validate(map[string]string{"handle": "ligahessen", "api_url": "https://social.example"}))
	assert.ErrorIs(t, c.Validate(map[string]string{"api_url": "https://social.example"}), apperrors.ErrInvalidConfig)
	assert.ErrorIs(t, c.Validate(map[string]string{"handle": "x"}), apperrors.ErrInvalidConfig)
}

func TestFederatedValidate(t *testing.T) {
	f := NewFederated(http.DefaultClient, testLogger())

	assert.NoError(t, f.Validate(map[string]string{"handle": "liga@soziales.social"}))
	assert.Error(t, f.Validate(map[string]string{"handle": "liga"}))
	assert.ErrorIs(t, f.Validate(map[string]string{}), apperrors.ErrInvalidConfig)
}

func TestChannelPostFetchParsesPreview(t *testing.T) {
	page := `<html><body>
	<div class="tgme_widget_message" data-post="liganews/7">
	  <div class="tgme_widget_message_text">Pressemitteilung: <b>Kürzungen</b> bei der Wohlfahrtspflege</div>
	  <time datetime="2025-08-18T10:00:00+02:00"></time>
	</div>
	<div class="tgme_widget_message" data-post="liganews/8">
	  <div class="tgme_widget_message_text"></div>
	</div>
	</body></html>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(page))
	}))
	t.Cleanup(srv.Close)

	c := &ChannelPost{client: srv.Client(), logger: testLogger()}

	// Point the scrape at the test server by fetching the page directly.
	body, _, err := fetchBody(context.Background(), srv.Client(), srv.URL, maxPageBytes)
	require.NoError(t, err)
	require.NotEmpty(t, body)

	items, err := c.parsePreview(body, "liganews")
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, "liganews/7", items[0].ExternalID)
	assert.Equal(t, "liganews", items[0].Author)
	assert.Contains(t, items[0].Content, "Kürzungen bei der Wohlfahrtspflege")
	assert.False(t, items[0].PublishedAt.IsZero())
}
