package mirror

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeResponse struct {
	status  int
	body    string
	headers map[string]string
}

// fakeSite serves canned responses keyed by absolute URL and records every
// request it sees.
type fakeSite struct {
	mu        sync.Mutex
	pages     map[string]fakeResponse
	requests  []string
	userAgent string
	onRequest func(*http.Request)
}

func newFakeSite(pages map[string]string) *fakeSite {
	site := &fakeSite{pages: map[string]fakeResponse{}}
	for u, body := range pages {
		site.pages[u] = fakeResponse{status: http.StatusOK, body: body}
	}
	return site
}

func (fs *fakeSite) set(u string, resp fakeResponse) {
	fs.mu.Lock()
	fs.pages[u] = resp
	fs.mu.Unlock()
}

func (fs *fakeSite) RoundTrip(req *http.Request) (*http.Response, error) {
	if fs.onRequest != nil {
		fs.onRequest(req)
	}
	fs.mu.Lock()
	fs.requests = append(fs.requests, req.URL.String())
	fs.userAgent = req.Header.Get("User-Agent")
	page, ok := fs.pages[req.URL.String()]
	fs.mu.Unlock()
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	if !ok {
		return newStringResponse(req, http.StatusNotFound, "not found"), nil
	}
	resp := newStringResponse(req, page.status, page.body)
	for k, v := range page.headers {
		resp.Header.Set(k, v)
	}
	return resp, nil
}

func (fs *fakeSite) requested(u string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for _, r := range fs.requests {
		if r == u {
			return true
		}
	}
	return false
}

func (fs *fakeSite) requestCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.requests)
}

func (fs *fakeSite) resetRequests() {
	fs.mu.Lock()
	fs.requests = nil
	fs.mu.Unlock()
}

func newStringResponse(req *http.Request, status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
		Request:    req,
	}
}

func testConfig(site http.RoundTripper, root string) Config {
	return Config{
		StartURL:          "https://x.test/p/",
		OutputRoot:        root,
		MaxWorkers:        4,
		RequestsPerMinute: -1,
		RequestTimeout:    time.Second,
		Client:            &http.Client{Timeout: time.Second, Transport: site},
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// snapshotTree returns the contents of every file below root keyed by its
// slash separated relative path.
func snapshotTree(t *testing.T, root string, skip ...string) map[string]string {
	t.Helper()
	files := map[string]string{}
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		for _, s := range skip {
			if rel == s {
				return nil
			}
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		files[rel] = string(data)
		return nil
	})
	require.NoError(t, err)
	return files
}
