// Package connectors implements the channel drivers: feed, html page, the
// social-timeline variants, search alerts and binary documents. Every driver
// validates its channel config and fetches a finite, ordered batch of
// normalized raw items.
package connectors

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/domain"
	apperrors "github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/errors"
)

// Connector is the capability contract every driver implements.
type Connector interface {
	// Kind returns the connector kind this driver handles.
	Kind() domain.ConnectorKind

	// Validate checks a channel configuration and returns a human-readable
	// error when it is unusable.
	Validate(cfg map[string]string) error

	// Fetch retrieves recent items from the channel, in upstream order.
	// Cancellation via ctx stops production; a partial batch plus an error is
	// never returned together.
	Fetch(ctx context.Context, ch domain.Channel) ([]domain.RawItem, error)
}

// Registry dispatches channels to drivers by kind.
type Registry struct {
	drivers map[domain.ConnectorKind]Connector
}

// NewRegistry builds the registry from the given drivers. Later entries for
// the same kind win.
func NewRegistry(drivers ...Connector) *Registry {
	m := make(map[domain.ConnectorKind]Connector, len(drivers))
	for _, d := range drivers {
		m[d.Kind()] = d
	}

	return &Registry{drivers: m}
}

// Get returns the driver for a kind.
func (r *Registry) Get(kind domain.ConnectorKind) (Connector, error) {
	d, ok := r.drivers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownKind, kind)
	}

	return d, nil
}

// Validate checks a channel config against the driver for its kind.
func (r *Registry) Validate(kind domain.ConnectorKind, cfg map[string]string) error {
	d, err := r.Get(kind)
	if err != nil {
		return err
	}

	return d.Validate(cfg)
}

// Fetch runs the driver for the channel's kind.
func (r *Registry) Fetch(ctx context.Context, ch domain.Channel) ([]domain.RawItem, error) {
	d, err := r.Get(ch.Kind)
	if err != nil {
		return nil, err
	}

	return d.Fetch(ctx, ch)
}

// DefaultRegistry wires every supported driver against one shared HTTP client.
func DefaultRegistry(client *http.Client, logger *zerolog.Logger) *Registry {
	feed := NewFeed(client, logger)

	return NewRegistry(
		feed,
		NewSearchAlert(feed),
		NewHTMLPage(client, logger),
		NewShortPost(client, logger),
		NewLongPost(client, logger),
		NewFederated(client, logger),
		NewChannelPost(client, logger),
		NewParaphrasedAlert(feed),
		NewDocument(client, logger),
	)
}

// requireURL validates that cfg[key] is present and an absolute http(s) URL.
func requireURL(cfg map[string]string, key string) error {
	raw, ok := cfg[key]
	if !ok || raw == "" {
		return fmt.Errorf("%w: missing %q", apperrors.ErrInvalidConfig, key)
	}

	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q is not an absolute http(s) url", apperrors.ErrInvalidConfig, key)
	}

	return nil
}

// requireNonEmpty validates that cfg[key] is present and non-empty.
func requireNonEmpty(cfg map[string]string, key string) error {
	if cfg[key] == "" {
		return fmt.Errorf("%w: missing %q", apperrors.ErrInvalidConfig, key)
	}

	return nil
}

// boolConfig reads a boolean switch from the config map, defaulting when the
// key is absent or unparseable.
func boolConfig(cfg map[string]string, key string, def bool) bool {
	switch cfg[key] {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return def
	}
}
