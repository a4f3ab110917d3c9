package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type mirror struct {
	client         *http.Client
	log            logrus.FieldLogger
	paths          *pathMapper
	scanner        *scanner
	classifier     *classifier
	manifest       *manifest
	limiter        *rate.Limiter
	userAgent      string
	timeout        time.Duration
	force          bool
	maxWorkers     int
	maxBytes       int64
	recursionDepth int
	scanExt        map[string]struct{}
	markdown       bool
	progress       func(string)

	mu     sync.Mutex
	assets map[string]*Asset
	owners map[string]string
	stats  Stats

	reportMu   sync.Mutex
	errors     []Error
	unresolved []string
	documents  []*DocumentReport
}

// Mirror downloads the primary document and the assets it embeds into
// cfg.OutputRoot and rewrites the references to point at the local copies.
//
// Individual asset failures are collected in the report. An error is returned
// only for invalid configuration, an unreadable seed document, an unwritable
// output root, or cancellation; on cancellation the report covers the
// documents finished so far.
func Mirror(ctx context.Context, cfg Config) (*Report, error) {
	seed, base, err := parseSeed(cfg)
	if err != nil {
		return nil, err
	}

	root := strings.TrimSpace(cfg.OutputRoot)
	if root == "" {
		return nil, errors.New("output root is required")
	}
	if err := checkWritable(root); err != nil {
		return nil, fmt.Errorf("output root %s: %w", root, err)
	}

	policy := cfg.OriginPolicy
	switch policy {
	case "":
		policy = OriginSame
	case OriginSame, OriginAny:
	default:
		return nil, fmt.Errorf("unknown origin policy %q", policy)
	}

	maxWorkers := cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 8
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	recursionDepth := cfg.RecursionDepth
	switch {
	case recursionDepth == 0:
		recursionDepth = defaultRecursionDepth
	case recursionDepth < 0:
		recursionDepth = 0
	}

	maxBytes := cfg.MaxAssetBytes
	if maxBytes == 0 {
		maxBytes = 256 << 20
	}
	if maxBytes < 0 {
		maxBytes = 0
	}

	logger := cfg.Logger
	if logger == nil {
		quiet := logrus.New()
		quiet.SetOutput(io.Discard)
		logger = quiet
	}

	paths, err := newPathMapper(root, base)
	if err != nil {
		return nil, err
	}
	man, err := loadManifest(paths.root, base.Scheme+"://"+base.Host)
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}

	extensions := buildExtensions(cfg.Extensions)
	scanExt := buildExtensions(cfg.ScanExtensions)
	if len(cfg.ScanExtensions) == 0 {
		scanExt = map[string]struct{}{".css": {}}
	}

	m := &mirror{
		client:  client,
		log:     logger,
		paths:   paths,
		scanner: newScanner(extensions),
		classifier: &classifier{
			origin:     base,
			policy:     policy,
			extensions: extensions,
			exclude:    cfg.Exclude,
		},
		manifest:       man,
		limiter:        newRateLimiter(cfg.RequestsPerMinute, maxWorkers),
		userAgent:      userAgent,
		timeout:        timeout,
		force:          cfg.ForceRefetch,
		maxWorkers:     maxWorkers,
		maxBytes:       maxBytes,
		recursionDepth: recursionDepth,
		scanExt:        scanExt,
		markdown:       cfg.Markdown,
		progress:       cfg.Progress,
		assets:         map[string]*Asset{},
		owners:         map[string]string{},
	}

	started := time.Now()
	var first document
	if seed != nil {
		first, err = m.seedFromURL(ctx, seed)
	} else {
		first, err = m.seedFromFile(cfg.Document, base)
	}
	if err != nil {
		return nil, err
	}

	queue := []document{first}
	seen := map[string]struct{}{first.path: {}}
	var runErr error
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		doc := queue[0]
		queue = queue[1:]
		next, err := m.processDocument(ctx, doc)
		if err != nil {
			if ctx.Err() != nil {
				runErr = ctx.Err()
				break
			}
			return nil, err
		}
		for _, n := range next {
			if _, ok := seen[n.path]; ok {
				continue
			}
			seen[n.path] = struct{}{}
			queue = append(queue, n)
		}
	}

	if err := m.manifest.write(); err != nil && runErr == nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	finished := time.Now()
	report := &Report{
		Documents:  m.documents,
		Assets:     m.assets,
		Errors:     m.errors,
		Unresolved: m.unresolved,
		Stats:      m.collectStats(finished.Sub(started)),
		StartedAt:  started,
		FinishedAt: finished,
	}
	return report, runErr
}

func parseSeed(cfg Config) (*url.URL, *url.URL, error) {
	startURL := strings.TrimSpace(cfg.StartURL)
	docPath := strings.TrimSpace(cfg.Document)
	switch {
	case startURL != "" && docPath != "":
		return nil, nil, errors.New("start URL and document are mutually exclusive")
	case startURL == "" && docPath == "":
		return nil, nil, errors.New("start URL or document is required")
	}

	raw := startURL
	if docPath != "" {
		raw = strings.TrimSpace(cfg.BaseURL)
		if raw == "" {
			return nil, nil, errors.New("base URL is required with a local document")
		}
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme == "" {
		parsed, err = url.Parse("https://" + raw)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid URL: %w", err)
		}
	}
	parsed = canonical(parsed)
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, nil, fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, nil, errors.New("URL must include a host")
	}
	if docPath != "" {
		return nil, parsed, nil
	}
	return parsed, parsed, nil
}

// checkWritable creates root if needed and proves a file can be created in it.
func checkWritable(root string) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	check, err := os.CreateTemp(root, ".writable-*")
	if err != nil {
		return err
	}
	name := check.Name()
	check.Close()
	return os.Remove(name)
}

func (m *mirror) emitProgress(u string) {
	if m.progress == nil {
		return
	}
	m.progress(u)
}
