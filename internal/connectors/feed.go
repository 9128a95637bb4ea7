package connectors

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	nurl "net/url"
	"time"

	"github.com/araddon/dateparse"
	readability "github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"

	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/domain"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/textutil"
)

// Feed handles syndication documents (RSS/Atom/JSON feed). With follow_links
// enabled (the default) each entry's target page is fetched and the entry
// content replaced with the readability-extracted article body.
type Feed struct {
	client *http.Client
	parser *gofeed.Parser
	logger *zerolog.Logger
}

// NewFeed creates the feed driver.
func NewFeed(client *http.Client, logger *zerolog.Logger) *Feed {
	return &Feed{client: client, parser: gofeed.NewParser(), logger: logger}
}

// Kind returns the connector kind.
func (f *Feed) Kind() domain.ConnectorKind {
	return domain.KindFeed
}

// Validate checks the feed channel config.
func (f *Feed) Validate(cfg map[string]string) error {
	return requireURL(cfg, "url")
}

// Fetch downloads and parses the feed.
func (f *Feed) Fetch(ctx context.Context, ch domain.Channel) ([]domain.RawItem, error) {
	followLinks := boolConfig(ch.Config, "follow_links", true)

	return f.fetch(ctx, ch, followLinks)
}

// fetch is shared with the search-alert and paraphrased-alert drivers, which
// differ only in link-following policy and kind tag.
func (f *Feed) fetch(ctx context.Context, ch domain.Channel, followLinks bool) ([]domain.RawItem, error) {
	body, _, err := fetchBody(ctx, f.client, ch.Config["url"], maxPageBytes)
	if err != nil {
		return nil, err
	}

	parsed, err := f.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	items := make([]domain.RawItem, 0, len(parsed.Items))

	for _, entry := range parsed.Items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		item, ok := f.normalizeEntry(ctx, entry, followLinks)
		if !ok {
			continue
		}

		items = append(items, item)
	}

	return items, nil
}

// normalizeEntry maps one feed entry to a raw item. Entries without any
// usable identity (no guid, no link) are malformed upstream data and are
// dropped with a log line.
func (f *Feed) normalizeEntry(ctx context.Context, entry *gofeed.Item, followLinks bool) (domain.RawItem, bool) {
	externalID := entry.GUID
	if externalID == "" {
		externalID = entry.Link
	}

	if externalID == "" {
		f.logger.Warn().Str("title", entry.Title).Msg("feed entry without guid or link dropped")

		return domain.RawItem{}, false
	}

	content := entry.Content
	if content == "" {
		content = entry.Description
	}

	if followLinks && entry.Link != "" {
		if extracted := f.extractArticle(ctx, entry.Link); extracted != "" {
			content = extracted
		}
	}

	item := domain.RawItem{
		ExternalID:  externalID,
		Title:       textutil.CollapseWhitespace(entry.Title),
		Content:     content,
		URL:         entry.Link,
		PublishedAt: entryPublished(entry),
		Metadata:    map[string]any{domain.MetaSourceDomain: hostOf(entry.Link)},
	}

	if len(entry.Authors) > 0 && entry.Authors[0] != nil {
		item.Author = entry.Authors[0].Name
	}

	return item, true
}

// extractArticle fetches the linked page and returns the readability body, or
// "" when the page cannot be fetched or extracted. A failed follow-link is
// not a fetch failure; the entry keeps its feed-provided content.
func (f *Feed) extractArticle(ctx context.Context, link string) string {
	body, _, err := fetchBody(ctx, f.client, link, maxPageBytes)
	if err != nil {
		f.logger.Debug().Err(err).Str("url", link).Msg("follow-link fetch failed")

		return ""
	}

	pageURL, err := nurl.Parse(link)
	if err != nil {
		return ""
	}

	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		f.logger.Debug().Err(err).Str("url", link).Msg("article extraction failed")

		return ""
	}

	return textutil.CollapseWhitespace(article.TextContent)
}

// entryPublished picks the best available timestamp for a feed entry.
func entryPublished(entry *gofeed.Item) time.Time {
	if entry.PublishedParsed != nil {
		return *entry.PublishedParsed
	}

	if entry.UpdatedParsed != nil {
		return *entry.UpdatedParsed
	}

	if entry.Published != "" {
		if t, err := dateparse.ParseAny(entry.Published); err == nil {
			return t
		}
	}

	return time.Time{}
}

// SearchAlert reads a search-alert stream: feed semantics, but contents are
// upstream pre-summaries, so links are never followed.
type SearchAlert struct {
	feed *Feed
}

// NewSearchAlert creates the search-alert driver on top of the feed driver.
func NewSearchAlert(feed *Feed) *SearchAlert {
	return &SearchAlert{feed: feed}
}

// Kind returns the connector kind.
func (s *SearchAlert) Kind() domain.ConnectorKind {
	return domain.KindSearchAlert
}

// Validate checks the search-alert channel config.
func (s *SearchAlert) Validate(cfg map[string]string) error {
	return requireURL(cfg, "url")
}

// Fetch parses the alert stream and tags the items.
func (s *SearchAlert) Fetch(ctx context.Context, ch domain.Channel) ([]domain.RawItem, error) {
	items, err := s.feed.fetch(ctx, ch, false)
	if err != nil {
		return nil, err
	}

	for i := range items {
		if items[i].Metadata == nil {
			items[i].Metadata = map[string]any{}
		}

		items[i].Metadata["search_alert"] = true
	}

	return items, nil
}
