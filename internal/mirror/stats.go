package mirror

import "time"

func (m *mirror) recordReferences(n int) {
	m.mu.Lock()
	m.stats.References += n
	m.mu.Unlock()
}

func (m *mirror) recordDocumentVisit() {
	m.mu.Lock()
	m.stats.Documents++
	m.mu.Unlock()
}

func (m *mirror) recordFetched(asset *Asset) {
	m.mu.Lock()
	if asset.Cached {
		m.stats.FromCache++
	} else {
		m.stats.Fetched++
		m.stats.BytesWritten += asset.Bytes
	}
	m.mu.Unlock()
}

func (m *mirror) recordFailed(asset *Asset) {
	m.mu.Lock()
	m.stats.Failed++
	m.mu.Unlock()
	if asset.Class == ClassPrimary {
		m.recordUnresolved(asset.URL)
	}
}

func (m *mirror) recordSecondaryFailure() {
	m.mu.Lock()
	m.stats.SecondaryFailed++
	m.mu.Unlock()
}

func (m *mirror) recordSkippedParse() {
	m.mu.Lock()
	m.stats.Skipped++
	m.stats.SkippedParse++
	m.mu.Unlock()
}

func (m *mirror) recordSkippedUnsafe() {
	m.mu.Lock()
	m.stats.Skipped++
	m.stats.SkippedUnsafe++
	m.mu.Unlock()
}

func (m *mirror) collectStats(duration time.Duration) Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := m.stats
	stats.Duration = duration
	return stats
}
