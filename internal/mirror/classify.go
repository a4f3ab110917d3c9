package mirror

import (
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"
)

var defaultExtensions = []string{
	".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico", ".webp",
	".woff", ".woff2", ".ttf", ".eot", ".otf",
	".mp3", ".wav", ".ogg", ".mp4", ".webm",
	".json", ".xml", ".wasm", ".fnt", ".mem",
	".css", ".js",
}

var skippedPrefixes = []string{"#", "mailto:", "javascript:", "data:", "tel:", "blob:", "about:"}

// decision is the classifier's verdict on one reference.
type decision struct {
	URL    *url.URL
	Class  Class
	Reason string
}

func (d decision) skipped() bool {
	return d.URL == nil
}

func (d decision) err() error {
	return fmt.Errorf("%w: %s", ErrParseSkipped, d.Reason)
}

type classifier struct {
	origin     *url.URL
	policy     OriginPolicy
	extensions map[string]struct{}
	exclude    []string
}

func buildExtensions(list []string) map[string]struct{} {
	if len(list) == 0 {
		list = defaultExtensions
	}
	allowed := make(map[string]struct{}, len(list))
	for _, item := range list {
		trimmed := strings.ToLower(strings.TrimSpace(item))
		if trimmed == "" {
			continue
		}
		if !strings.HasPrefix(trimmed, ".") {
			trimmed = "." + trimmed
		}
		allowed[trimmed] = struct{}{}
	}
	return allowed
}

// classify resolves ref against base and decides whether it names an asset.
// Skips carry the reason reported as ParseSkipped.
func (c *classifier) classify(ref Reference, base *url.URL, kind Kind) decision {
	value := strings.TrimSpace(ref.Value)
	if value == "" {
		return decision{Reason: "empty reference"}
	}
	lower := strings.ToLower(value)
	for _, prefix := range skippedPrefixes {
		if !strings.HasPrefix(lower, prefix) {
			continue
		}
		if prefix == "#" {
			return decision{Reason: "anchor reference"}
		}
		return decision{Reason: fmt.Sprintf("%s reference", strings.TrimSuffix(prefix, ":"))}
	}
	if c.excluded(value) {
		return decision{Reason: "excluded by pattern"}
	}

	candidate, err := url.Parse(value)
	if err != nil {
		return decision{Reason: "malformed reference"}
	}
	resolved := canonical(base.ResolveReference(candidate))
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return decision{Reason: fmt.Sprintf("unsupported scheme %q", resolved.Scheme)}
	}
	if resolved.Host == "" {
		return decision{Reason: "missing host"}
	}
	if c.policy != OriginAny && !strings.EqualFold(resolved.Host, c.origin.Host) {
		return decision{Reason: "off-origin reference"}
	}

	class := ClassSecondary
	if kind == KindMarkup && ref.fromAttribute() {
		class = ClassPrimary
	}

	ext := strings.ToLower(path.Ext(resolved.Path))
	switch {
	case ext == "":
		if class != ClassPrimary || !embeddingContext(ref) {
			return decision{Reason: "no asset extension"}
		}
	default:
		if _, ok := c.extensions[ext]; !ok {
			return decision{Reason: fmt.Sprintf("extension %s not allowed", ext)}
		}
	}
	return decision{URL: resolved, Class: class}
}

// canonical drops the fragment and lower-cases scheme and host, so URLs that
// name the same server resource compare equal.
func canonical(u *url.URL) *url.URL {
	u.Fragment = ""
	u.RawFragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return u
}

// embeddingContext reports whether the attribute embeds a resource into the
// page rather than linking to another page.
func embeddingContext(ref Reference) bool {
	switch ref.Attr {
	case "src", "data-src", "poster":
		return true
	case "href":
		return ref.Tag == "link"
	}
	return false
}

func (c *classifier) excluded(value string) bool {
	for _, pattern := range c.exclude {
		if ok, err := path.Match(pattern, value); err == nil && ok {
			return true
		}
		if strings.Contains(pattern, "/") {
			continue
		}
		if ok, err := path.Match(pattern, path.Base(value)); err == nil && ok {
			return true
		}
	}
	return false
}

func scanKind(u *url.URL) Kind {
	switch strings.ToLower(path.Ext(u.Path)) {
	case ".css":
		return KindStylesheet
	case ".html", ".htm", "":
		return KindMarkup
	default:
		return KindText
	}
}

// documentKind picks the scanning mode of the primary document. A served
// HTML or CSS media type decides; otherwise only a stylesheet extension moves
// the document off markup.
func documentKind(name, contentType string) Kind {
	if media, _, err := mime.ParseMediaType(contentType); err == nil {
		switch media {
		case "text/html", "application/xhtml+xml":
			return KindMarkup
		case "text/css":
			return KindStylesheet
		}
	}
	if strings.EqualFold(path.Ext(name), ".css") {
		return KindStylesheet
	}
	return KindMarkup
}
