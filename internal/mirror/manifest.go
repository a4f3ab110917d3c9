package mirror

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const manifestName = ".sitemirror.json"

type manifestData struct {
	Origin string          `json:"origin"`
	Assets []manifestEntry `json:"assets"`
}

type manifestEntry struct {
	URL       string    `json:"url"`
	Path      string    `json:"path"`
	Status    int       `json:"status,omitempty"`
	Bytes     int64     `json:"bytes"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// manifest records which local paths the mirror wrote and for which URL. It
// lives in the output root next to the mirrored files.
type manifest struct {
	path   string
	origin string

	mu     sync.RWMutex
	byPath map[string]manifestEntry
}

func loadManifest(root, origin string) (*manifest, error) {
	m := &manifest{
		path:   filepath.Join(root, manifestName),
		origin: origin,
		byPath: make(map[string]manifestEntry),
	}
	payload, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return m, nil
	}
	var data manifestData
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("parse %s: %w", manifestName, err)
	}
	for _, entry := range data.Assets {
		if entry.Path == "" || entry.URL == "" {
			continue
		}
		m.byPath[entry.Path] = entry
	}
	return m, nil
}

// owner returns the URL a local path was written for.
func (m *manifest) owner(local string) (string, bool) {
	m.mu.RLock()
	entry, ok := m.byPath[local]
	m.mu.RUnlock()
	return entry.URL, ok
}

func (m *manifest) update(asset *Asset, at time.Time) {
	if asset == nil || asset.State != StateFetched {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.byPath[asset.Path]; ok && asset.Cached && existing.URL == asset.URL {
		return
	}
	m.byPath[asset.Path] = manifestEntry{
		URL:       asset.URL,
		Path:      asset.Path,
		Status:    asset.Status,
		Bytes:     asset.Bytes,
		FetchedAt: at.UTC(),
	}
}

func (m *manifest) write() error {
	m.mu.RLock()
	entries := make([]manifestEntry, 0, len(m.byPath))
	for _, entry := range m.byPath {
		entries = append(entries, entry)
	}
	m.mu.RUnlock()
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	payload, err := json.MarshalIndent(manifestData{Origin: m.origin, Assets: entries}, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(m.path, payload)
}
