package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/rs/zerolog"

	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/domain"
	apperrors "github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/errors"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/textutil"
)

// socialTitleChars is how much of the post text becomes the item title.
const socialTitleChars = 100

var handlePattern = regexp.MustCompile(`@([A-Za-z0-9_]{2,30})`)

// mentionedHandles extracts @-mentions from a post, lowercased, deduplicated,
// in first-occurrence order.
func mentionedHandles(text string) []string {
	matches := handlePattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(matches))
	handles := make([]string, 0, len(matches))

	for _, m := range matches {
		h := strings.ToLower(m[1])
		if !seen[h] {
			seen[h] = true
			handles = append(handles, h)
		}
	}

	return handles
}

// normalizePost maps one timeline post to a raw item: author = handle, title
// = first chars of the text, mentions collected into metadata.
func normalizePost(handle, id, text, postURL string, published time.Time) domain.RawItem {
	clean := textutil.CollapseWhitespace(textutil.StripHTML(text))

	meta := map[string]any{domain.MetaSourceDomain: hostOf(postURL)}
	if handles := mentionedHandles(clean); len(handles) > 0 {
		meta[domain.MetaMentionedHandles] = handles
	}

	return domain.RawItem{
		ExternalID:  id,
		Title:       textutil.Truncate(clean, socialTitleChars),
		Content:     clean,
		URL:         postURL,
		Author:      handle,
		PublishedAt: published,
		Metadata:    meta,
	}
}

// statusPost is the JSON shape of the short-post and long-post status APIs.
type statusPost struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	URL       string `json:"url"`
	CreatedAt string `json:"created_at"`
}

// timelineAPI fetches recent posts for a handle over a JSON status API. The
// short-post and long-post kinds share this transport and differ only in the
// endpoint they are pointed at.
type timelineAPI struct {
	kind   domain.ConnectorKind
	client *http.Client
	logger *zerolog.Logger
}

// NewShortPost creates the short-post timeline driver.
func NewShortPost(client *http.Client, logger *zerolog.Logger) Connector {
	return &timelineAPI{kind: domain.KindShortPost, client: client, logger: logger}
}

// NewLongPost creates the long-post timeline driver.
func NewLongPost(client *http.Client, logger *zerolog.Logger) Connector {
	return &timelineAPI{kind: domain.KindLongPost, client: client, logger: logger}
}

func (t *timelineAPI) Kind() domain.ConnectorKind {
	return t.kind
}

func (t *timelineAPI) Validate(cfg map[string]string) error {
	if err := requireNonEmpty(cfg, "handle"); err != nil {
		return err
	}

	return requireURL(cfg, "api_url")
}

func (t *timelineAPI) Fetch(ctx context.Context, ch domain.Channel) ([]domain.RawItem, error) {
	handle := strings.TrimPrefix(ch.Config["handle"], "@")
	endpoint := strings.TrimRight(ch.Config["api_url"], "/") + "/users/" + url.PathEscape(handle) + "/statuses"

	body, _, err := fetchBody(ctx, t.client, endpoint, maxPageBytes)
	if err != nil {
		return nil, err
	}

	var posts []statusPost
	if err := json.Unmarshal(body, &posts); err != nil {
		return nil, fmt.Errorf("parse timeline: %w", err)
	}

	items := make([]domain.RawItem, 0, len(posts))

	for _, p := range posts {
		if p.ID == "" || p.Text == "" {
			t.logger.Warn().Str("handle", handle).Msg("timeline post without id or text dropped")

			continue
		}

		var published time.Time
		if p.CreatedAt != "" {
			if ts, err := dateparse.ParseAny(p.CreatedAt); err == nil {
				published = ts
			}
		}

		items = append(items, normalizePost(handle, p.ID, p.Text, p.URL, published))
	}

	return items, nil
}

// mastodonStatus is the subset of the Mastodon status schema the federated
// driver reads.
type mastodonStatus struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	URL       string `json:"url"`
	CreatedAt string `json:"created_at"`
	Account   struct {
		Acct string `json:"acct"`
	} `json:"account"`
}

// Federated reads a handle's public timeline from a Mastodon-compatible
// instance: account lookup by acct, then the account statuses endpoint.
type Federated struct {
	client *http.Client
	logger *zerolog.Logger
}

// NewFederated creates the federated-timeline driver.
func NewFederated(client *http.Client, logger *zerolog.Logger) *Federated {
	return &Federated{client: client, logger: logger}
}

// Kind returns the connector kind.
func (f *Federated) Kind() domain.ConnectorKind {
	return domain.KindFederated
}

// Validate checks the federated channel config. The handle carries the
// instance: user@instance.example.
func (f *Federated) Validate(cfg map[string]string) error {
	if err := requireNonEmpty(cfg, "handle"); err != nil {
		return err
	}

	if !strings.Contains(strings.TrimPrefix(cfg["handle"], "@"), "@") {
		return fmt.Errorf("federated handle must be user@instance: %q", cfg["handle"])
	}

	return nil
}

// Fetch resolves the account and reads its recent statuses.
func (f *Federated) Fetch(ctx context.Context, ch domain.Channel) ([]domain.RawItem, error) {
	handle := strings.TrimPrefix(ch.Config["handle"], "@")

	user, instance, ok := strings.Cut(handle, "@")
	if !ok {
		return nil, fmt.Errorf("federated handle must be user@instance: %q", handle)
	}

	lookupURL := fmt.Sprintf("https://%s/api/v1/accounts/lookup?acct=%s", instance, url.QueryEscape(user))

	body, _, err := fetchBody(ctx, f.client, lookupURL, maxPageBytes)
	if err != nil {
		return nil, err
	}

	var account struct {
		ID string `json:"id"`
	}

	if err := json.Unmarshal(body, &account); err != nil || account.ID == "" {
		return nil, fmt.Errorf("account lookup for %s: %w", handle, errOrMalformed(err))
	}

	statusesURL := fmt.Sprintf("https://%s/api/v1/accounts/%s/statuses?exclude_reblogs=true&limit=40", instance, account.ID)

	body, _, err = fetchBody(ctx, f.client, statusesURL, maxPageBytes)
	if err != nil {
		return nil, err
	}

	var statuses []mastodonStatus
	if err := json.Unmarshal(body, &statuses); err != nil {
		return nil, fmt.Errorf("parse statuses: %w", err)
	}

	items := make([]domain.RawItem, 0, len(statuses))

	for _, st := range statuses {
		if st.ID == "" {
			continue
		}

		var published time.Time
		if st.CreatedAt != "" {
			if ts, err := dateparse.ParseAny(st.CreatedAt); err == nil {
				published = ts
			}
		}

		items = append(items, normalizePost(handle, st.ID, st.Content, st.URL, published))
	}

	return items, nil
}

// ParaphrasedAlert reads a paraphrasing mirror feed for a handle: feed
// transport, social normalization (author = handle).
type ParaphrasedAlert struct {
	feed *Feed
}

// NewParaphrasedAlert creates the paraphrased-alert driver.
func NewParaphrasedAlert(feed *Feed) *ParaphrasedAlert {
	return &ParaphrasedAlert{feed: feed}
}

// Kind returns the connector kind.
func (p *ParaphrasedAlert) Kind() domain.ConnectorKind {
	return domain.KindParaphrasedAlert
}

// Validate checks the paraphrased-alert channel config.
func (p *ParaphrasedAlert) Validate(cfg map[string]string) error {
	if err := requireNonEmpty(cfg, "handle"); err != nil {
		return err
	}

	return requireURL(cfg, "url")
}

// Fetch reads the mirror feed and re-normalizes entries as posts of the
// configured handle.
func (p *ParaphrasedAlert) Fetch(ctx context.Context, ch domain.Channel) ([]domain.RawItem, error) {
	handle := strings.TrimPrefix(ch.Config["handle"], "@")

	entries, err := p.feed.fetch(ctx, ch, false)
	if err != nil {
		return nil, err
	}

	items := make([]domain.RawItem, 0, len(entries))

	for _, e := range entries {
		text := e.Content
		if text == "" {
			text = e.Title
		}

		item := normalizePost(handle, e.ExternalID, text, e.URL, e.PublishedAt)
		items = append(items, item)
	}

	return items, nil
}

// errOrMalformed keeps error wrapping uniform when json.Unmarshal succeeded
// but the payload was semantically empty.
func errOrMalformed(err error) error {
	if err != nil {
		return err
	}

	return apperrors.ErrMalformedResponse
}
