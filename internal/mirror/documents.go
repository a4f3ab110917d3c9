package mirror

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// document is one unit of work for the driver: a local file together with
// the URL its relative references resolve against.
type document struct {
	path  string
	url   *url.URL
	kind  Kind
	depth int
}

// seedFromURL fetches the start page into its mapped location. Its scanning
// mode comes from the served media type, since page URLs such as index.php
// or /p say nothing about the content.
func (m *mirror) seedFromURL(ctx context.Context, start *url.URL) (document, error) {
	local, err := m.paths.mapURL(start)
	if err != nil {
		return document{}, err
	}
	asset, _ := m.claim(start.String(), documentPath(local), ClassPrimary)
	m.emitProgress(asset.URL)
	if err := m.fetch(ctx, asset); err != nil {
		asset.State = StateFailed
		asset.Reason = err.Error()
		return document{}, fmt.Errorf("fetch seed document: %w", err)
	}
	m.recordFetched(asset)
	m.manifest.update(asset, time.Now())
	return document{path: asset.Path, url: start, kind: documentKind(start.Path, asset.ContentType)}, nil
}

// seedFromFile places a local document into the output root. A document
// that already lives at its target is rewritten in place.
func (m *mirror) seedFromFile(source string, base *url.URL) (document, error) {
	data, err := os.ReadFile(source)
	if err != nil {
		return document{}, fmt.Errorf("read seed document: %w", err)
	}
	name := sanitizeSegment(filepath.Base(source))
	if name == "" {
		name = indexName
	}
	target := m.paths.abs(name)
	srcAbs, err := filepath.Abs(source)
	if err != nil {
		return document{}, fmt.Errorf("read seed document: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(srcAbs); err == nil {
		srcAbs = resolved
	}
	if srcAbs != target {
		if err := writeFileAtomic(target, data); err != nil {
			return document{}, fmt.Errorf("write seed document: %w", err)
		}
	}
	return document{path: name, url: base, kind: documentKind(name, "")}, nil
}

type binding struct {
	ref   Reference
	asset *Asset
}

// processDocument runs scan, resolve, fetch and rewrite for doc and returns
// the fetched documents that qualify for another scan. Read and write errors
// on the seed document are fatal; on later documents they are recorded.
func (m *mirror) processDocument(ctx context.Context, doc document) ([]document, error) {
	source := doc.url.String()
	target := m.paths.abs(doc.path)
	data, err := os.ReadFile(target)
	if err != nil {
		if doc.depth == 0 {
			return nil, fmt.Errorf("read seed document: %w", err)
		}
		m.recordError(Error{Source: source, Target: doc.path, Type: "read", Message: err.Error()})
		return nil, nil
	}
	m.recordDocumentVisit()
	text := string(data)
	log := m.log.WithField("document", doc.path).WithField("depth", doc.depth)

	refs := m.scanner.scan(text, doc.kind)
	m.recordReferences(len(refs))
	log.WithField("references", len(refs)).Debug("scanned document")

	var (
		pending  []*Asset
		bindings []binding
	)
	for _, ref := range refs {
		if m.selfReference(doc, ref) {
			log.WithField("reference", ref.Raw).Debug("reference already points at the mirror")
			m.recordSkippedParse()
			continue
		}
		d := m.classifier.classify(ref, doc.url, doc.kind)
		if d.skipped() {
			log.WithField("reference", ref.Raw).WithError(d.err()).Trace("reference skipped")
			m.recordSkippedParse()
			continue
		}
		local, err := m.paths.mapURL(d.URL)
		if err != nil {
			log.WithField("reference", ref.Raw).WithError(err).Warn("reference skipped")
			m.recordSkippedUnsafe()
			m.skip(d.URL.String(), d.Class, err.Error())
			m.recordError(Error{Source: source, Target: d.URL.String(), Type: "unsafe-path", Message: err.Error()})
			if d.Class == ClassPrimary {
				m.recordUnresolved(ref.Raw)
			}
			continue
		}
		asset, created := m.claim(d.URL.String(), local, d.Class)
		if created {
			pending = append(pending, asset)
		}
		bindings = append(bindings, binding{ref: ref, asset: asset})
	}

	m.fetchAll(ctx, source, pending)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now()
	var next []document
	for _, asset := range pending {
		m.manifest.update(asset, now)
		if asset.State != StateFetched || doc.depth+1 > m.recursionDepth {
			continue
		}
		u, err := url.Parse(asset.URL)
		if err != nil {
			continue
		}
		if _, ok := m.scanExt[strings.ToLower(path.Ext(u.Path))]; !ok {
			continue
		}
		next = append(next, document{path: asset.Path, url: u, kind: scanKind(u), depth: doc.depth + 1})
	}

	replacements := make(map[string]string, len(bindings))
	for _, b := range bindings {
		if b.asset.State != StateFetched {
			continue
		}
		replacements[b.ref.Raw] = relative(doc.path, b.asset.Path)
	}
	rewritten, count := rewrite(text, replacements)
	if rewritten != text {
		if err := writeFileAtomic(target, []byte(rewritten)); err != nil {
			return nil, fmt.Errorf("write %s: %w", doc.path, err)
		}
	}

	report := &DocumentReport{
		Path:       doc.path,
		URL:        source,
		Kind:       doc.kind,
		Depth:      doc.depth,
		References: len(refs),
		Rewritten:  count,
	}
	if m.markdown && doc.depth == 0 && doc.kind == KindMarkup {
		m.writeMarkdown(report, rewritten, now)
	}
	m.saveDocument(report)
	log.WithField("rewritten", count).Info("document mirrored")
	return next, nil
}

// selfReference reports whether ref already points at a file this mirror
// wrote for a different URL, as happens when a rewritten document is scanned
// again. A reference whose target matches the layout of the remote site
// resolves to the recorded URL and is processed normally.
func (m *mirror) selfReference(doc document, ref Reference) bool {
	value := ref.Value
	if idx := strings.IndexAny(value, "?#"); idx >= 0 {
		value = value[:idx]
	}
	if value == "" || strings.Contains(value, "://") || strings.HasPrefix(value, "/") {
		return false
	}
	candidate := path.Clean(path.Join(path.Dir(doc.path), value))
	owner, ok := m.manifest.owner(candidate)
	if !ok {
		return false
	}
	resolved, err := doc.url.Parse(ref.Value)
	if err != nil {
		return true
	}
	return canonical(resolved).String() != owner
}

func writeFileAtomic(target string, data []byte) error {
	_, err := writeAtomic(target, bytes.NewReader(data), 0)
	return err
}
