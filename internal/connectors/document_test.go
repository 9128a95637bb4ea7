package connectors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/domain"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/textutil"
)

func TestDocumentFetchPlainText(t *testing.T) {
	content := "Stellungnahme der Liga zur Novelle des Kinderförderungsgesetzes.\nSeite 1 von 3."

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(content))
	}))
	t.Cleanup(srv.Close)

	d := NewDocument(srv.Client(), testLogger())

	ch := domain.Channel{
		Kind:   domain.KindDocument,
		Config: map[string]string{"url": srv.URL + "/stellungnahme.txt"},
	}

	items, err := d.Fetch(context.Background(), ch)
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, textutil.HashBytes([]byte(content)), items[0].ExternalID)
	assert.Equal(t, items[0].ExternalID, items[0].HashOverride)
	assert.Equal(t, "stellungnahme.txt", items[0].Title)
	assert.Contains(t, items[0].Content, "Kinderförderungsgesetzes")
}

func TestDocumentFetchBinaryWithoutText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte{0x00, 0x01, 0x02, 0x03, 0xFF, 0xFE})
	}))
	t.Cleanup(srv.Close)

	d := NewDocument(srv.Client(), testLogger())

	ch := domain.Channel{
		Kind:   domain.KindDocument,
		Config: map[string]string{"url": srv.URL + "/scan.bin"},
	}

	items, err := d.Fetch(context.Background(), ch)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestExtractPDFText(t *testing.T) {
	pdf := []byte("%PDF-1.4\nBT (Bericht zur) Tj (Pflege \\(Hessen\\)) Tj ET")

	got := extractPDFText(pdf)
	assert.Equal(t, "Bericht zur Pflege (Hessen)", got)

	assert.Empty(t, extractPDFText([]byte("%PDF-1.4\nkein Textlayer")))
}

func TestRegistryDispatch(t *testing.T) {
	reg := DefaultRegistry(http.DefaultClient, testLogger())

	for _, kind := range domain.AllKinds() {
		_, err := reg.Get(kind)
		assert.NoError(t, err, "kind %s", kind)
	}

	_, err := reg.Get(domain.ConnectorKind("carrier_pigeon"))
	assert.Error(t, err)
}
