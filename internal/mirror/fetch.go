package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

func (m *mirror) fetch(ctx context.Context, asset *Asset) error {
	start := time.Now()
	target := m.paths.abs(asset.Path)
	if !m.force {
		if info, err := os.Stat(target); err == nil && info.Mode().IsRegular() {
			asset.State = StateFetched
			asset.Cached = true
			asset.Bytes = info.Size()
			return nil
		}
	}

	if !m.acquireRequestSlot(ctx) {
		return fmt.Errorf("%w: %v", ErrFetchFailed, context.Cause(ctx))
	}
	reqCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, asset.URL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	req.Header.Set("User-Agent", m.userAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Encoding", acceptEncoding)

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	asset.Status = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode)
	}
	asset.ContentType = resp.Header.Get("Content-Type")

	body, err := decodeBody(resp)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer body.Close()

	n, err := writeAtomic(target, fetchReader{body}, m.maxBytes)
	switch {
	case err == nil:
	case errors.Is(err, ErrFetchFailed):
		return err
	case errors.Is(err, errTooLarge):
		return fmt.Errorf("%w: %v", ErrFetchFailed, err)
	default:
		return fmt.Errorf("write %s: %w", asset.Path, err)
	}
	asset.State = StateFetched
	asset.Bytes = n
	asset.Fetched = time.Since(start)
	return nil
}

var errTooLarge = errors.New("body exceeds size limit")

// fetchReader marks errors from the response body as fetch failures so they
// stay apart from local write errors.
type fetchReader struct {
	r io.Reader
}

func (f fetchReader) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	if err != nil && err != io.EOF {
		err = fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	return n, err
}

// writeAtomic streams r into a temporary file next to target and renames it
// into place, so target is either absent or complete.
func writeAtomic(target string, r io.Reader, limit int64) (int64, error) {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	n, err := io.Copy(tmp, src)
	if err != nil {
		cleanup()
		return 0, err
	}
	if limit > 0 && n > limit {
		cleanup()
		return 0, fmt.Errorf("%w (%d bytes)", errTooLarge, limit)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return 0, err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return 0, err
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return 0, err
	}
	return n, nil
}
