package connectors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPClientOverridesUserAgent(t *testing.T) {
	var got string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	client := NewHTTPClient(10*time.Second, "liga-newsagent/2.0")

	_, _, err := fetchBody(context.Background(), client, srv.URL, maxPageBytes)
	require.NoError(t, err)
	assert.Equal(t, "liga-newsagent/2.0", got)
}

func TestNewHTTPClientDefaultUserAgent(t *testing.T) {
	var got string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	client := NewHTTPClient(10*time.Second, "")

	_, _, err := fetchBody(context.Background(), client, srv.URL, maxPageBytes)
	require.NoError(t, err)
	assert.Equal(t, userAgent, got)
}
