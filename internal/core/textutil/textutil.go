// Package textutil holds the text normalization shared by connectors and the
// ingestion pipeline: HTML stripping, whitespace collapsing and the canonical
// content hash.
package textutil

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/net/html"
)

// EmptyContentHash is the distinguished sentinel for items whose normalized
// content is empty. It never collides with a real SHA-256 digest.
const EmptyContentHash = "empty:0000000000000000000000000000000000000000000000000000000000000000"

// StripHTML extracts the visible text of an HTML fragment. Script and style
// subtrees are dropped. Plain text passes through unchanged apart from entity
// decoding by the tokenizer.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<>") {
		return s
	}

	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return s
	}

	var b strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}

		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return b.String()
}

// CollapseWhitespace replaces any run of whitespace with a single space and
// trims the ends.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Normalize produces the canonical text form used for content hashing:
// HTML-stripped, whitespace-collapsed, case preserved.
func Normalize(s string) string {
	return CollapseWhitespace(StripHTML(s))
}

// ContentHash hashes the normalized content. Identical visible text hashes
// identically regardless of markup or whitespace. Empty content maps to the
// sentinel.
func ContentHash(content string) string {
	norm := Normalize(content)
	if norm == "" {
		return EmptyContentHash
	}

	sum := sha256.Sum256([]byte(norm))

	return hex.EncodeToString(sum[:])
}

// HashBytes hashes a raw byte stream, for connectors that identify documents
// by binary digest.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)

	return hex.EncodeToString(sum[:])
}

// Truncate cuts s to at most n runes, appending no ellipsis.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}

	return string(runes[:n])
}
