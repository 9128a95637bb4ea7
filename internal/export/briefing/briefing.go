// Package briefing renders the periodic priority digest and hands it to a
// delivery transport.
package briefing

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/domain"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/storage"
)

// Reference selection defaults.
const (
	DefaultMinPriority = domain.PriorityMedium
	DefaultHoursBack   = 24
)

// Store is the storage surface of the exporter.
type Store interface {
	ListBriefingItems(ctx context.Context, q storage.BriefingQuery) ([]domain.ItemDetail, error)
}

// Sender delivers a rendered briefing. Transports (SMTP, webhook, stdout)
// implement it outside this package.
type Sender interface {
	Send(ctx context.Context, b *Briefing) error
}

// Options select and label a briefing.
type Options struct {
	MinPriority domain.Priority
	HoursBack   int
	IncludeRead bool
	// Location resolves the subject's local date; nil means time.Local.
	Location *time.Location
	// FromAddress labels the briefing envelope for the delivery transport.
	FromAddress string
}

func (o Options) withDefaults() Options {
	if o.MinPriority == "" {
		o.MinPriority = DefaultMinPriority
	}

	if o.HoursBack <= 0 {
		o.HoursBack = DefaultHoursBack
	}

	if o.Location == nil {
		o.Location = time.Local
	}

	return o
}

// Briefing is one rendered digest.
type Briefing struct {
	Subject string
	From    string
	Text    string
	HTML    string
	Items   []domain.ItemDetail
}

// Empty reports whether the selection matched nothing.
func (b *Briefing) Empty() bool {
	return len(b.Items) == 0
}

// Exporter builds briefings from the store.
type Exporter struct {
	store  Store
	logger *zerolog.Logger
	now    func() time.Time
}

// New creates the exporter.
func New(store Store, logger *zerolog.Logger) *Exporter {
	return &Exporter{store: store, logger: logger, now: time.Now}
}

// Build selects and renders a briefing. Items arrive from the store already
// grouped by priority descending, newest first within each bucket.
func (e *Exporter) Build(ctx context.Context, opts Options) (*Briefing, error) {
	opts = opts.withDefaults()
	now := e.now()

	items, err := e.store.ListBriefingItems(ctx, storage.BriefingQuery{
		MinPriority: opts.MinPriority,
		Since:       now.Add(-time.Duration(opts.HoursBack) * time.Hour),
		IncludeRead: opts.IncludeRead,
	})
	if err != nil {
		return nil, fmt.Errorf("select briefing items: %w", err)
	}

	b := &Briefing{
		Subject: "Briefing — " + now.In(opts.Location).Format("02.01.2006"),
		From:    opts.FromAddress,
		Items:   items,
	}
	b.Text = renderText(b.Subject, items)
	b.HTML = renderHTML(b.Subject, items)

	return b, nil
}

// BuildAndSend renders a briefing and delivers it. An empty selection is not
// delivered.
func (e *Exporter) BuildAndSend(ctx context.Context, opts Options, sender Sender) error {
	b, err := e.Build(ctx, opts)
	if err != nil {
		return err
	}

	if b.Empty() {
		e.logger.Info().Msg("briefing empty, nothing sent")

		return nil
	}

	if err := sender.Send(ctx, b); err != nil {
		return fmt.Errorf("send briefing: %w", err)
	}

	e.logger.Info().Int("items", len(b.Items)).Str("subject", b.Subject).Msg("briefing sent")

	return nil
}

var priorityHeadings = map[domain.Priority]string{
	domain.PriorityHigh:   "Hohe Priorität",
	domain.PriorityMedium: "Mittlere Priorität",
	domain.PriorityLow:    "Niedrige Priorität",
	domain.PriorityNone:   "Ohne Priorität",
}

func renderText(subject string, items []domain.ItemDetail) string {
	var sb strings.Builder

	sb.WriteString(subject + "\n")
	sb.WriteString(strings.Repeat("=", len([]rune(subject))) + "\n")

	var current domain.Priority = "\x00"

	for _, it := range items {
		if it.Priority != current {
			current = it.Priority
			sb.WriteString("\n" + priorityHeadings[current] + "\n\n")
		}

		sb.WriteString("* " + it.Title + "\n")

		if it.Summary != "" {
			sb.WriteString("  " + it.Summary + "\n")
		}

		sb.WriteString("  " + it.SourceName)

		if len(it.Groups) > 0 {
			sb.WriteString(" · " + strings.Join(it.Groups, ", "))
		}

		sb.WriteString("\n")

		if it.URL != "" {
			sb.WriteString("  " + it.URL + "\n")
		}
	}

	return sb.String()
}

func renderHTML(subject string, items []domain.ItemDetail) string {
	var sb strings.Builder

	sb.WriteString("<html><body>\n")
	sb.WriteString("<h1>" + html.EscapeString(subject) + "</h1>\n")

	var current domain.Priority = "\x00"
	open := false

	for _, it := range items {
		if it.Priority != current {
			if open {
				sb.WriteString("</ul>\n")
			}

			current = it.Priority
			open = true

			sb.WriteString("<h2>" + html.EscapeString(priorityHeadings[current]) + "</h2>\n<ul>\n")
		}

		sb.WriteString("<li>")

		if it.URL != "" {
			sb.WriteString(`<a href="` + html.EscapeString(it.URL) + `">` + html.EscapeString(it.Title) + "</a>")
		} else {
			sb.WriteString("<strong>" + html.EscapeString(it.Title) + "</strong>")
		}

		if it.Summary != "" {
			sb.WriteString("<br>" + html.EscapeString(it.Summary))
		}

		sb.WriteString("<br><small>" + html.EscapeString(it.SourceName))

		if len(it.Groups) > 0 {
			sb.WriteString(" · " + html.EscapeString(strings.Join(it.Groups, ", ")))
		}

		sb.WriteString("</small></li>\n")
	}

	if open {
		sb.WriteString("</ul>\n")
	}

	sb.WriteString("</body></html>\n")

	return sb.String()
}
