package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text untouched", "nur Text ohne Markup", "nur Text ohne Markup"},
		{"tags removed", "<p>Hessen <b>kürzt</b> Mittel</p>", "Hessen kürzt Mittel"},
		{"script dropped", "<p>Text</p><script>alert(1)</script>", "Text"},
		{"style dropped", "<style>p{}</style><div>Inhalt</div>", "Inhalt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CollapseWhitespace(StripHTML(tt.in)))
		})
	}
}

func TestContentHashNormalization(t *testing.T) {
	// Identical visible text must hash identically regardless of markup.
	a := ContentHash("<p>Hessen   kürzt\n\nKita-Mittel</p>")
	b := ContentHash("Hessen kürzt Kita-Mittel")
	assert.Equal(t, a, b)

	c := ContentHash("Hessen kürzt Bundesmittel")
	assert.NotEqual(t, a, c)
}

func TestContentHashEmptySentinel(t *testing.T) {
	assert.Equal(t, EmptyContentHash, ContentHash(""))
	assert.Equal(t, EmptyContentHash, ContentHash("   \n\t "))
	assert.Equal(t, EmptyContentHash, ContentHash("<div>  </div>"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab", Truncate("abcd", 2))
	assert.Equal(t, "kü", Truncate("kürzen", 2))
}
