package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTMLText(t *testing.T) {
	doc := `<html><head><style>p{}</style></head><body>
<h1>Title</h1>
<noscript>enable js</noscript>
<p>First   paragraph.</p><script>alert(1)</script><p>Second</p>
</body></html>`

	assert.Equal(t, "Title First paragraph. Second", htmlText(doc))
}

func TestExtractText(t *testing.T) {
	article := `<html><head><title>News</title></head><body>
<nav><a href="/">Home</a></nav>
<article><h1>Rabbits</h1>
<p>Rabbits are small mammals in the family Leporidae of the order Lagomorpha. They are found in several parts of the world.</p>
<p>Rabbits are herbivores that feed by grazing on grass, forbs, and leafy weeds.</p>
</article></body></html>`

	text := ExtractText(article, "https://example.com/rabbits")
	assert.Contains(t, text, "Rabbits are small mammals")
	assert.NotContains(t, text, "\n")
}

func TestExtractText_BadURLStillExtracts(t *testing.T) {
	text := ExtractText("<p>just text</p>", "://bad url")
	assert.Contains(t, text, "just text")
}

func TestNormalizeSpace(t *testing.T) {
	assert.Equal(t, "a b c", normalizeSpace("  a \n\t b   c "))
	assert.Equal(t, "", normalizeSpace(" \n "))
}
