package connectors

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	apperrors "github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/errors"
)

const userAgent = "newsagent/1.0 (+https://liga-hessen.example/newsagent)"

// NewHTTPClient builds the shared client the drivers fetch through. A
// non-empty agent overrides the driver default on every request.
func NewHTTPClient(timeout time.Duration, agent string) *http.Client {
	client := &http.Client{Timeout: timeout}

	if agent != "" {
		client.Transport = &userAgentTransport{agent: agent, base: http.DefaultTransport}
	}

	return client
}

type userAgentTransport struct {
	agent string
	base  http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.agent)

	return t.base.RoundTrip(clone)
}

// maxBodyBytes caps downloads; documents can be large, pages should not be.
const (
	maxPageBytes     = 4 << 20
	maxDocumentBytes = 32 << 20
)

// fetchBody GETs a URL and returns the response body up to limit bytes.
// Non-2xx statuses map to ErrHTTPStatus so callers can errors.Is them.
func fetchBody(ctx context.Context, client *http.Client, rawURL string, limit int64) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("get %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("get %s: %w %d", rawURL, apperrors.ErrHTTPStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", rawURL, err)
	}

	return body, resp.Header.Get("Content-Type"), nil
}

// hostOf extracts the hostname of a URL for the source-domain metadata field.
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	return u.Hostname()
}
