package mirror

import (
	"fmt"
	"io"
	"sort"
)

func (m *mirror) recordError(err Error) {
	m.reportMu.Lock()
	m.errors = append(m.errors, err)
	m.reportMu.Unlock()
}

func (m *mirror) recordUnresolved(ref string) {
	m.reportMu.Lock()
	m.unresolved = append(m.unresolved, ref)
	m.reportMu.Unlock()
}

func (m *mirror) saveDocument(doc *DocumentReport) {
	m.reportMu.Lock()
	m.documents = append(m.documents, doc)
	m.reportMu.Unlock()
}

// WriteSummary prints the run summary: asset counts and the primary
// references that could not be mirrored.
func (r *Report) WriteSummary(w io.Writer) error {
	s := r.Stats
	if _, err := fmt.Fprintf(w, "documents: %d  references: %d\n", s.Documents, s.References); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "fetched: %d (cached %d, %d bytes)  skipped: %d (unsafe %d, excluded %d)  failed: %d\n",
		s.Fetched+s.FromCache, s.FromCache, s.BytesWritten, s.Skipped, s.SkippedUnsafe, s.SkippedParse, s.Failed); err != nil {
		return err
	}
	if s.SecondaryFailed > 0 {
		if _, err := fmt.Fprintf(w, "secondary candidates not found: %d\n", s.SecondaryFailed); err != nil {
			return err
		}
	}
	if len(r.Unresolved) == 0 {
		return nil
	}
	unresolved := append([]string(nil), r.Unresolved...)
	sort.Strings(unresolved)
	if _, err := fmt.Fprintln(w, "unresolved primary references:"); err != nil {
		return err
	}
	for _, ref := range unresolved {
		if _, err := fmt.Fprintf(w, "  %s\n", ref); err != nil {
			return err
		}
	}
	return nil
}
