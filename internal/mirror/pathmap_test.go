package mirror

import (
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMapper(t *testing.T, origin string) *pathMapper {
	t.Helper()
	m, err := newPathMapper(t.TempDir(), mustParse(t, origin))
	require.NoError(t, err)
	return m
}

func TestMapURLLayout(t *testing.T) {
	t.Parallel()

	m := newTestMapper(t, "https://x.test/p/")
	cases := map[string]string{
		"https://x.test/p/":                 "index.html",
		"https://x.test/p/a/b.png":          "a/b.png",
		"https://x.test/p/a/b.png#frag":     "a/b.png",
		"https://x.test/p/css/":             "css/index.html",
		"https://x.test/img/logo.png":       "_root/img/logo.png",
		"https://cdn.test/lib/x.js":         "_ext/cdn.test/lib/x.js",
		"https://cdn.test:8443/x.js":        "_ext/cdn.test-8443/x.js",
		"https://x.test/p/a//b/c%20d.png":   "a/b/c-d.png",
		"https://x.test/p/%5C../x.png":      "section/x.png",
		"https://x.test/p/.sitemirror.json": "sitemirror.json",
	}
	for raw, want := range cases {
		got, err := m.mapURL(mustParse(t, raw))
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
}

func TestMapURLUsesDirectoryOfDocumentOrigin(t *testing.T) {
	t.Parallel()

	m := newTestMapper(t, "https://x.test/docs/page.html")
	got, err := m.mapURL(mustParse(t, "https://x.test/docs/img/a.png"))
	require.NoError(t, err)
	assert.Equal(t, "img/a.png", got)

	got, err = m.mapURL(mustParse(t, "https://x.test"))
	require.NoError(t, err)
	assert.Equal(t, "_root/index.html", got)
}

func TestMapURLFoldsQueryIntoName(t *testing.T) {
	t.Parallel()

	m := newTestMapper(t, "https://x.test/p/")
	first, err := m.mapURL(mustParse(t, "https://x.test/p/a/b.png?v=1"))
	require.NoError(t, err)
	again, err := m.mapURL(mustParse(t, "https://x.test/p/a/b.png?v=1"))
	require.NoError(t, err)
	other, err := m.mapURL(mustParse(t, "https://x.test/p/a/b.png?v=2"))
	require.NoError(t, err)

	assert.Equal(t, first, again)
	assert.NotEqual(t, first, other)
	assert.Regexp(t, regexp.MustCompile(`^a/b\.[0-9a-f]{8}\.png$`), first)

	plain, err := m.mapURL(mustParse(t, "https://x.test/p/a/b.png"))
	require.NoError(t, err)
	assert.NotEqual(t, plain, first)

	index, err := m.mapURL(mustParse(t, "https://x.test/p/?page=2"))
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^index\.[0-9a-f]{8}\.html$`), index)
}

func TestMapURLRejectsTraversal(t *testing.T) {
	t.Parallel()

	m := newTestMapper(t, "https://x.test/p/")
	unsafe := []string{
		"https://x.test/p/%2E%2E/%2E%2E/%2E%2E/etc/passwd.png",
		"https://x.test/p/..%2F..%2Fescape.png",
		"https://x.test/p/..",
		"https://x.test/p/.",
		"https://x.test/p/a/%2E%2E/b.png",
	}
	for _, raw := range unsafe {
		_, err := m.mapURL(mustParse(t, raw))
		assert.ErrorIs(t, err, ErrUnsafePath, raw)
	}
}

func TestMapURLNeverEscapesRoot(t *testing.T) {
	t.Parallel()

	m := newTestMapper(t, "https://x.test/p/")
	segments := []string{"..", "%2E%2E", ".", "a", "%2F", "..%2F", "%5C..", "b.png", "", "%00"}
	prefix := m.root + string(filepath.Separator)

	var walk func(depth int, current string)
	walk = func(depth int, current string) {
		if depth == 0 {
			for _, host := range []string{"https://x.test/p/", "https://x.test/", "https://cdn.test/"} {
				raw := host + current + "x.png"
				u, err := url.Parse(raw)
				if err != nil {
					continue
				}
				local, err := m.mapURL(u)
				if err != nil {
					assert.ErrorIs(t, err, ErrUnsafePath, raw)
					continue
				}
				assert.True(t, strings.HasPrefix(m.abs(local), prefix), "%s mapped outside root: %s", raw, local)
			}
			return
		}
		for _, seg := range segments {
			walk(depth-1, current+seg+"/")
		}
	}
	walk(3, "")
}

func TestRelative(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a/b.png", relative("index.html", "a/b.png"))
	assert.Equal(t, "fonts/f.woff", relative("css/site.css", "css/fonts/f.woff"))
	assert.Equal(t, "../img/x.png", relative("css/site.css", "img/x.png"))
	assert.Equal(t, "../_ext/cdn.test/x.js", relative("docs/page.html", "_ext/cdn.test/x.js"))
}

func TestSanitizeSegment(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "hello-world.png", sanitizeSegment("hello world.png"))
	assert.Equal(t, "a_b-c", sanitizeSegment("--a_b!c--"))
	assert.Equal(t, "", sanitizeSegment("???"))
	assert.Equal(t, "htaccess", sanitizeSegment(".htaccess"))
	assert.Equal(t, "", sanitizeSegment(".."))
}

func TestDocumentPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "index.html", documentPath("index.html"))
	assert.Equal(t, "css/site.css", documentPath("css/site.css"))
	assert.Equal(t, "p.html", documentPath("p"))
	assert.Equal(t, "index.php.html", documentPath("index.php"))
	assert.Equal(t, "_root/page.HTM", documentPath("_root/page.HTM"))
}
