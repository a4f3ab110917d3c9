package mirror

import (
	"html"
	"regexp"
	"sort"
	"strings"

	nethtml "golang.org/x/net/html"
)

var (
	referenceAttrs = map[string]struct{}{
		"src":      {},
		"href":     {},
		"poster":   {},
		"data-src": {},
	}
	attrPattern = regexp.MustCompile(`(?i)(?:^|[\s"'/])(data-src|src|href|poster)\s*=\s*("([^"]*)"|'([^']*)'|([^\s"'>]+))`)
)

type scanner struct {
	textPattern *regexp.Regexp
}

func newScanner(extensions map[string]struct{}) *scanner {
	return &scanner{textPattern: buildTextPattern(extensions)}
}

// buildTextPattern matches quoted or url(...) wrapped strings ending in one
// of the extensions, with an optional query or fragment suffix.
func buildTextPattern(extensions map[string]struct{}) *regexp.Regexp {
	alts := make([]string, 0, len(extensions))
	for ext := range extensions {
		trimmed := strings.TrimPrefix(ext, ".")
		if trimmed == "" {
			continue
		}
		alts = append(alts, regexp.QuoteMeta(trimmed))
	}
	if len(alts) == 0 {
		return nil
	}
	sort.Slice(alts, func(i, j int) bool {
		if len(alts[i]) != len(alts[j]) {
			return len(alts[i]) > len(alts[j])
		}
		return alts[i] < alts[j]
	})
	return regexp.MustCompile(`(?i)["'(]\s*([^"'()\s<>]+?\.(?:` + strings.Join(alts, "|") + `)(?:[?#][^"'()\s<>]*)?)\s*["')]`)
}

func (s *scanner) scan(text string, kind Kind) []Reference {
	set := newReferenceSet()
	switch kind {
	case KindMarkup:
		s.scanMarkup(text, set)
	default:
		s.scanText(text, set)
	}
	return set.list()
}

func (s *scanner) scanMarkup(text string, set *referenceSet) {
	z := nethtml.NewTokenizer(strings.NewReader(text))
	rawElement := ""
	for {
		tt := z.Next()
		switch tt {
		case nethtml.ErrorToken:
			return
		case nethtml.StartTagToken, nethtml.SelfClosingTagToken:
			raw := string(z.Raw())
			name, hasAttr := z.TagName()
			tag := string(name)
			attrs := map[string]string{}
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				k := string(key)
				if _, ok := attrs[k]; !ok {
					attrs[k] = string(val)
				}
			}
			s.collectAttributes(raw, tag, attrs, set)
			if style, ok := attrs["style"]; ok {
				s.scanText(style, set)
			}
			if tt == nethtml.StartTagToken && (tag == "style" || tag == "script") {
				rawElement = tag
			}
		case nethtml.EndTagToken:
			rawElement = ""
		case nethtml.TextToken:
			if rawElement != "" {
				s.scanText(string(z.Raw()), set)
			}
		}
	}
}

// collectAttributes pulls the verbatim attribute text out of the raw tag so
// the rewriter can find it again. Matches are checked against the tokenizer's
// view of the attributes to ignore look-alikes inside other attribute values.
func (s *scanner) collectAttributes(raw, tag string, attrs map[string]string, set *referenceSet) {
	for _, m := range attrPattern.FindAllStringSubmatch(raw, -1) {
		attr := strings.ToLower(m[1])
		if _, ok := referenceAttrs[attr]; !ok {
			continue
		}
		var verbatim string
		switch {
		case strings.HasPrefix(m[2], `"`):
			verbatim = m[3]
		case strings.HasPrefix(m[2], `'`):
			verbatim = m[4]
		default:
			verbatim = m[5]
		}
		value := html.UnescapeString(verbatim)
		if want, ok := attrs[attr]; !ok || want != value {
			continue
		}
		trimmed := strings.TrimSpace(verbatim)
		if trimmed == "" {
			continue
		}
		set.add(Reference{
			Raw:   trimmed,
			Value: strings.TrimSpace(value),
			Tag:   tag,
			Attr:  attr,
		})
	}
}

func (s *scanner) scanText(text string, set *referenceSet) {
	if s.textPattern == nil {
		return
	}
	for _, m := range s.textPattern.FindAllStringSubmatch(text, -1) {
		raw := strings.TrimSpace(m[1])
		if raw == "" {
			continue
		}
		set.add(Reference{Raw: raw, Value: html.UnescapeString(raw)})
	}
}

type referenceSet struct {
	order []string
	refs  map[string]Reference
}

func newReferenceSet() *referenceSet {
	return &referenceSet{refs: map[string]Reference{}}
}

// add keeps the first occurrence of each raw string, upgrading a text match
// to an attribute match when the same string shows up in both places.
func (s *referenceSet) add(ref Reference) {
	existing, ok := s.refs[ref.Raw]
	if !ok {
		s.order = append(s.order, ref.Raw)
		s.refs[ref.Raw] = ref
		return
	}
	if !existing.fromAttribute() && ref.fromAttribute() {
		s.refs[ref.Raw] = ref
	}
}

func (s *referenceSet) list() []Reference {
	out := make([]Reference, 0, len(s.order))
	for _, raw := range s.order {
		out = append(out, s.refs[raw])
	}
	return out
}
