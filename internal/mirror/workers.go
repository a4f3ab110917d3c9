package mirror

import (
	"context"
	"encoding/hex"
	"errors"
	"path"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"
)

// claim returns the asset registered for rawURL, creating it when absent.
// Only the caller that creates an asset fetches it.
func (m *mirror) claim(rawURL, local string, class Class) (*Asset, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.assets[rawURL]; ok {
		if class == ClassPrimary && existing.Class == ClassSecondary {
			existing.Class = ClassPrimary
		}
		return existing, false
	}
	if owner, taken := m.owners[local]; taken && owner != rawURL {
		local = disambiguate(local, rawURL)
	}
	asset := &Asset{URL: rawURL, Path: local, Class: class, State: StatePending}
	m.assets[rawURL] = asset
	m.owners[local] = rawURL
	return asset, true
}

// skip registers rawURL as deliberately not fetched unless another reference
// already claimed it.
func (m *mirror) skip(rawURL string, class Class, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.assets[rawURL]; ok {
		return
	}
	m.assets[rawURL] = &Asset{URL: rawURL, Class: class, State: StateSkipped, Reason: reason}
}

// disambiguate gives a URL whose sanitized path collides with another URL's
// a name derived from the full URL.
func disambiguate(local, rawURL string) string {
	sum := blake3.Sum256([]byte(rawURL))
	ext := path.Ext(local)
	return strings.TrimSuffix(local, ext) + "." + hex.EncodeToString(sum[:4]) + ext
}

// fetchAll fetches the assets with at most maxWorkers requests in flight.
// Individual failures are recorded on the asset and never stop the pool.
func (m *mirror) fetchAll(ctx context.Context, source string, assets []*Asset) {
	var g errgroup.Group
	g.SetLimit(m.maxWorkers)
	for _, asset := range assets {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			m.processAsset(ctx, source, asset)
			return nil
		})
	}
	_ = g.Wait()
}

func (m *mirror) processAsset(ctx context.Context, source string, asset *Asset) {
	m.emitProgress(asset.URL)
	err := m.fetch(ctx, asset)
	if err == nil {
		m.recordFetched(asset)
		return
	}
	asset.State = StateFailed
	asset.Reason = err.Error()
	entry := m.log.WithField("url", asset.URL).WithField("class", asset.Class)
	if asset.Class == ClassSecondary {
		entry.WithError(err).Debug("secondary asset not fetched")
		m.recordSecondaryFailure()
		return
	}
	entry.WithError(err).Warn("asset not fetched")
	typ := "fetch"
	if !errors.Is(err, ErrFetchFailed) {
		typ = "io"
	}
	m.recordError(Error{Source: source, Target: asset.URL, Type: typ, Message: err.Error(), Status: asset.Status})
	m.recordFailed(asset)
}
