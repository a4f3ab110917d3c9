package mirror

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"
)

const (
	rootPrefix     = "_root"
	externalPrefix = "_ext"
	indexName      = "index.html"
)

// pathMapper derives local paths from remote URLs. Paths are slash separated
// and relative to the output root.
type pathMapper struct {
	root    string
	origin  *url.URL
	baseDir string
}

func newPathMapper(root string, origin *url.URL) (*pathMapper, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve output root: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	baseDir := origin.Path
	if idx := strings.LastIndex(baseDir, "/"); idx >= 0 {
		baseDir = baseDir[:idx+1]
	} else {
		baseDir = "/"
	}
	return &pathMapper{root: abs, origin: origin, baseDir: baseDir}, nil
}

// mapURL returns the local path for u. The fragment never takes part; the
// query is folded into the file name so distinct queries do not collide.
func (m *pathMapper) mapURL(u *url.URL) (string, error) {
	var segments []string
	urlPath := u.Path
	if urlPath == "" {
		urlPath = "/"
	}
	switch {
	case !strings.EqualFold(u.Host, m.origin.Host):
		host := sanitizeSegment(strings.ToLower(u.Host))
		if host == "" {
			host = "unknown-host"
		}
		segments = append(segments, externalPrefix, host)
	case strings.HasPrefix(urlPath, m.baseDir):
		urlPath = strings.TrimPrefix(urlPath, m.baseDir)
	default:
		segments = append(segments, rootPrefix)
	}

	parts := strings.Split(urlPath, "/")
	for i, part := range parts {
		last := i == len(parts)-1
		if part == "" && !last {
			continue
		}
		if dotSegment(part) {
			return "", fmt.Errorf("%w: %q", ErrUnsafePath, u.Path)
		}
		var cleaned string
		if last {
			cleaned = fileName(part, u.RawQuery)
		} else if cleaned = sanitizeSegment(part); cleaned == "" {
			cleaned = "section"
		}
		segments = append(segments, cleaned)
	}

	local := path.Join(segments...)
	if err := m.contain(local); err != nil {
		return "", err
	}
	return local, nil
}

// contain checks that local stays below the output root once joined and
// cleaned.
func (m *pathMapper) contain(local string) error {
	if local == "" || path.IsAbs(local) {
		return fmt.Errorf("%w: %q", ErrUnsafePath, local)
	}
	target := filepath.Join(m.root, filepath.FromSlash(local))
	rel, err := filepath.Rel(m.root, target)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsafePath, err)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %q", ErrUnsafePath, local)
	}
	return nil
}

// dotSegment reports decoded path segments that would move the path once
// joined. Percent escapes such as %2E%2E arrive here as plain dots.
func dotSegment(name string) bool {
	return name == "." || name == ".."
}

func (m *pathMapper) abs(local string) string {
	return filepath.Join(m.root, filepath.FromSlash(local))
}

// relative expresses target relative to the directory holding doc.
func relative(doc, target string) string {
	dir := path.Dir(doc)
	rel, err := filepath.Rel(filepath.FromSlash(dir), filepath.FromSlash(target))
	if err != nil {
		return target
	}
	return filepath.ToSlash(rel)
}

func fileName(segment, rawQuery string) string {
	name := sanitizeSegment(segment)
	if name == "" {
		name = indexName
	}
	if rawQuery == "" {
		return name
	}
	sum := blake3.Sum256([]byte(rawQuery))
	tag := hex.EncodeToString(sum[:4])
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if stem == "" {
		stem = "index"
	}
	return stem + "." + tag + ext
}

// documentPath names a document so a browser opens it as a page and so it
// never shadows the directory holding its own assets: the seed of
// https://x.test/p is stored as p.html next to p/.
func documentPath(local string) string {
	switch strings.ToLower(path.Ext(local)) {
	case ".html", ".htm", ".css":
		return local
	}
	return local + ".html"
}

// sanitizeSegment reduces a path segment to portable file name characters.
// Leading dots are dropped so a remote name never becomes a hidden file such
// as the manifest.
func sanitizeSegment(segment string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-', r == '_', r == '.':
			return r
		}
		return '-'
	}, segment)
	return strings.TrimRight(strings.TrimLeft(cleaned, ".-"), "-")
}
