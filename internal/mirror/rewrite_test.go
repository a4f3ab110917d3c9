package mirror

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRewriteReplacesEveryOccurrence(t *testing.T) {
	t.Parallel()

	text := strings.Repeat(`<img src="img/a.png">`, 5)
	got, count := rewrite(text, map[string]string{"img/a.png": "assets/a.png"})
	assert.Equal(t, 5, count)
	assert.Equal(t, strings.Repeat(`<img src="assets/a.png">`, 5), got)
}

func TestRewriteLongestKeyFirstWithoutDoubleRewrite(t *testing.T) {
	t.Parallel()

	text := `<img src="https://x.test/p/a/b.png"><img src="a/b.png">`
	got, count := rewrite(text, map[string]string{
		"https://x.test/p/a/b.png": "a/b.png",
		"a/b.png":                  "../a/b.png",
	})
	assert.Equal(t, 2, count)
	assert.Equal(t, `<img src="a/b.png"><img src="../a/b.png">`, got)
}

func TestRewriteRespectsBoundaries(t *testing.T) {
	t.Parallel()

	text := `src="img/a.png" data="bigimg/a.png" x: url(img/a.png); y="img/a.png.map" z=img/a.png>`
	got, count := rewrite(text, map[string]string{"img/a.png": "local/a.png"})
	assert.Equal(t, 3, count)
	assert.Equal(t, `src="local/a.png" data="bigimg/a.png" x: url(local/a.png); y="img/a.png.map" z=local/a.png>`, got)
}

func TestRewriteKeepsEntityEncodedQueries(t *testing.T) {
	t.Parallel()

	text := `<link href="css/site.css?v=1&amp;t=2"><link href="css/site.css">`
	got, count := rewrite(text, map[string]string{
		"css/site.css?v=1&amp;t=2": "css/site.0badf00d.css",
		"css/site.css":             "css/site.css",
	})
	assert.Equal(t, 2, count)
	assert.Equal(t, `<link href="css/site.0badf00d.css"><link href="css/site.css">`, got)
}

func TestRewriteIsPure(t *testing.T) {
	t.Parallel()

	text := `a "x.png" b 'x.png'`
	replacements := map[string]string{"x.png": "y.png", "": "ignored"}
	first, n1 := rewrite(text, replacements)
	second, n2 := rewrite(text, replacements)
	assert.Equal(t, first, second)
	assert.Equal(t, n1, n2)
	assert.Equal(t, `a "y.png" b 'y.png'`, first)

	unchanged, n := rewrite(text, nil)
	assert.Equal(t, text, unchanged)
	assert.Zero(t, n)
}
