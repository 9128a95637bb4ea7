package connectors

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"github.com/rs/zerolog"

	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/domain"
)

// channelPostBaseURL is the public preview host for broadcast channels.
const channelPostBaseURL = "https://t.me/s/"

// ChannelPost scrapes the public preview page of a broadcast channel. No API
// credentials, no headless browser; the preview page carries the recent
// messages with stable per-message ids in data attributes.
type ChannelPost struct {
	client *http.Client
	logger *zerolog.Logger
}

// NewChannelPost creates the channel-post driver.
func NewChannelPost(client *http.Client, logger *zerolog.Logger) *ChannelPost {
	return &ChannelPost{client: client, logger: logger}
}

// Kind returns the connector kind.
func (c *ChannelPost) Kind() domain.ConnectorKind {
	return domain.KindChannelPost
}

// Validate checks the channel-post config.
func (c *ChannelPost) Validate(cfg map[string]string) error {
	return requireNonEmpty(cfg, "channel_name")
}

// Fetch scrapes the public preview page.
func (c *ChannelPost) Fetch(ctx context.Context, ch domain.Channel) ([]domain.RawItem, error) {
	name := strings.TrimPrefix(ch.Config["channel_name"], "@")
	pageURL := channelPostBaseURL + url.PathEscape(name)

	body, _, err := fetchBody(ctx, c.client, pageURL, maxPageBytes)
	if err != nil {
		return nil, err
	}

	return c.parsePreview(body, name)
}

// parsePreview extracts the message list out of a preview page body.
func (c *ChannelPost) parsePreview(body []byte, name string) ([]domain.RawItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse preview page: %w", err)
	}

	var items []domain.RawItem

	doc.Find(".tgme_widget_message").Each(func(_ int, sel *goquery.Selection) {
		post, ok := sel.Attr("data-post")
		if !ok || post == "" {
			return
		}

		text := sel.Find(".tgme_widget_message_text").Text()
		if strings.TrimSpace(text) == "" {
			return
		}

		var published time.Time

		if dt, ok := sel.Find("time[datetime]").Attr("datetime"); ok {
			if ts, err := dateparse.ParseAny(dt); err == nil {
				published = ts
			}
		}

		items = append(items, normalizePost(name, post, text, "https://t.me/"+post, published))
	})

	// Preview pages list newest last; keep upstream order as-is.
	return items, nil
}
