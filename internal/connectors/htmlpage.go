package connectors

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	nurl "net/url"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	readability "github.com/go-shiori/go-readability"
	"github.com/rs/zerolog"

	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/domain"
	apperrors "github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/errors"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/textutil"
)

// HTMLPage scrapes a generic web page. With a configured `selector` every
// matching element becomes one item (first heading or link text as title,
// element text as content); without one, the whole page is reduced to a
// single article via the readability heuristic.
type HTMLPage struct {
	client *http.Client
	logger *zerolog.Logger
}

// NewHTMLPage creates the html-page driver.
func NewHTMLPage(client *http.Client, logger *zerolog.Logger) *HTMLPage {
	return &HTMLPage{client: client, logger: logger}
}

// Kind returns the connector kind.
func (h *HTMLPage) Kind() domain.ConnectorKind {
	return domain.KindHTML
}

// Validate checks the html channel config.
func (h *HTMLPage) Validate(cfg map[string]string) error {
	if err := requireURL(cfg, "url"); err != nil {
		return err
	}

	if sel := cfg["selector"]; sel != "" {
		if _, err := cascadia.Compile(sel); err != nil {
			return fmt.Errorf("%w: bad selector: %v", apperrors.ErrInvalidConfig, err)
		}
	}

	return nil
}

// Fetch downloads the page and extracts items.
func (h *HTMLPage) Fetch(ctx context.Context, ch domain.Channel) ([]domain.RawItem, error) {
	pageURL := ch.Config["url"]

	body, _, err := fetchBody(ctx, h.client, pageURL, maxPageBytes)
	if err != nil {
		return nil, err
	}

	if selector := ch.Config["selector"]; selector != "" {
		return h.fetchBySelector(body, pageURL, selector)
	}

	return h.fetchByHeuristic(body, pageURL)
}

// fetchBySelector yields one item per selector match.
func (h *HTMLPage) fetchBySelector(body []byte, pageURL, selector string) ([]domain.RawItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	base, _ := nurl.Parse(pageURL)

	var items []domain.RawItem

	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		content := textutil.CollapseWhitespace(sel.Text())
		if content == "" {
			return
		}

		title := textutil.CollapseWhitespace(sel.Find("h1, h2, h3, a").First().Text())
		if title == "" {
			title = textutil.Truncate(content, 100)
		}

		itemURL := pageURL

		if href, ok := sel.Find("a[href]").First().Attr("href"); ok && base != nil {
			if ref, err := nurl.Parse(href); err == nil {
				itemURL = base.ResolveReference(ref).String()
			}
		}

		items = append(items, domain.RawItem{
			ExternalID: itemURL + "#" + textutil.ContentHash(content)[:16],
			Title:      title,
			Content:    content,
			URL:        itemURL,
			Metadata:   map[string]any{domain.MetaSourceDomain: hostOf(itemURL)},
		})
	})

	return items, nil
}

// fetchByHeuristic reduces the page to one readability-extracted article.
func (h *HTMLPage) fetchByHeuristic(body []byte, pageURL string) ([]domain.RawItem, error) {
	parsed, err := nurl.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil {
		return nil, fmt.Errorf("extract article: %w", err)
	}

	content := textutil.CollapseWhitespace(article.TextContent)
	if content == "" {
		return nil, nil
	}

	title := textutil.CollapseWhitespace(article.Title)
	if title == "" {
		title = textutil.Truncate(content, 100)
	}

	return []domain.RawItem{{
		ExternalID: pageURL + "#" + textutil.ContentHash(content)[:16],
		Title:      title,
		Content:    content,
		URL:        pageURL,
		Author:     article.Byline,
		Metadata:   map[string]any{domain.MetaSourceDomain: hostOf(pageURL)},
	}}, nil
}
