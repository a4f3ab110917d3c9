package mirror

import (
	"sort"
	"strings"
)

type span struct {
	start, end int
	with       string
}

// rewrite replaces every boundary-delimited occurrence of each key in
// replacements with its value. All spans are located on the original text
// before any replacement is applied, longest keys claiming their spans first,
// so replacement output is never matched again.
func rewrite(text string, replacements map[string]string) (string, int) {
	if len(replacements) == 0 || text == "" {
		return text, 0
	}
	keys := make([]string, 0, len(replacements))
	for raw := range replacements {
		if raw != "" {
			keys = append(keys, raw)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	claimed := make([]bool, len(text))
	var spans []span
	for _, raw := range keys {
		offset := 0
		for {
			idx := strings.Index(text[offset:], raw)
			if idx < 0 {
				break
			}
			start := offset + idx
			end := start + len(raw)
			offset = start + 1
			if !boundaryBefore(text, start) || !boundaryAfter(text, end) {
				continue
			}
			if overlaps(claimed, start, end) {
				continue
			}
			for i := start; i < end; i++ {
				claimed[i] = true
			}
			spans = append(spans, span{start: start, end: end, with: replacements[raw]})
			offset = end
		}
	}
	if len(spans) == 0 {
		return text, 0
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, s := range spans {
		b.WriteString(text[last:s.start])
		b.WriteString(s.with)
		last = s.end
	}
	b.WriteString(text[last:])
	return b.String(), len(spans)
}

func overlaps(claimed []bool, start, end int) bool {
	for i := start; i < end; i++ {
		if claimed[i] {
			return true
		}
	}
	return false
}

func boundaryBefore(text string, idx int) bool {
	if idx == 0 {
		return true
	}
	return strings.IndexByte("\"'(=,; \t\r\n", text[idx-1]) >= 0
}

func boundaryAfter(text string, idx int) bool {
	if idx >= len(text) {
		return true
	}
	return strings.IndexByte("\"'),>&; \t\r\n", text[idx]) >= 0
}
