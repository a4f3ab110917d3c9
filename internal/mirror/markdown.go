package mirror

import (
	"encoding/hex"
	"errors"
	"fmt"
	"html"
	"os"
	"path"
	"regexp"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

var titlePattern = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

// writeMarkdown stores a Markdown rendering of the mirrored document next to
// it. Links stay relative, so they point at the mirrored files. An existing
// snapshot with the same content hash is left alone.
func (m *mirror) writeMarkdown(doc *DocumentReport, body string, at time.Time) {
	markdown, err := htmltomarkdown.ConvertString(body)
	if err != nil {
		m.recordError(Error{Source: doc.URL, Target: doc.Path, Type: "markdown", Message: err.Error()})
		return
	}
	text := strings.TrimSpace(markdown)
	if text == "" {
		text = "*No textual content extracted.*"
	}

	sum := blake3.Sum256([]byte(text))
	hash := hex.EncodeToString(sum[:])

	local := strings.TrimSuffix(doc.Path, path.Ext(doc.Path)) + ".md"
	target := m.paths.abs(local)
	if existing, err := readSnapshotHash(target); err == nil && existing == hash {
		doc.MarkdownPath = local
		return
	}

	content, err := buildMarkdownDocument(doc, extractHTMLTitle(body), text, at, hash)
	if err != nil {
		m.recordError(Error{Source: doc.URL, Target: local, Type: "markdown", Message: err.Error()})
		return
	}
	if err := writeFileAtomic(target, []byte(content)); err != nil {
		m.recordError(Error{Source: doc.URL, Target: local, Type: "markdown", Message: err.Error()})
		return
	}
	doc.MarkdownPath = local
}

// snapshotHeader is the YAML front matter of a Markdown snapshot.
type snapshotHeader struct {
	URL           string `yaml:"url"`
	Title         string `yaml:"title,omitempty"`
	Source        string `yaml:"source"`
	MirroredAt    string `yaml:"mirrored_at"`
	ContentBlake3 string `yaml:"content_blake3"`
	WordCount     int    `yaml:"word_count"`
	Rewritten     int    `yaml:"rewritten_references"`
}

func buildMarkdownDocument(doc *DocumentReport, title, body string, at time.Time, hash string) (string, error) {
	header, err := yaml.Marshal(snapshotHeader{
		URL:           doc.URL,
		Title:         title,
		Source:        doc.Path,
		MirroredAt:    at.UTC().Format(time.RFC3339),
		ContentBlake3: hash,
		WordCount:     len(strings.Fields(body)),
		Rewritten:     doc.Rewritten,
	})
	if err != nil {
		return "", err
	}
	return "---\n" + string(header) + "---\n\n" + body + "\n", nil
}

// readSnapshotHash returns the content hash recorded in an existing snapshot.
func readSnapshotHash(target string) (string, error) {
	data, err := os.ReadFile(target)
	if err != nil {
		return "", err
	}
	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	rest, ok := strings.CutPrefix(content, "---\n")
	if !ok {
		return "", errors.New("missing front matter")
	}
	front, _, ok := strings.Cut(rest, "\n---\n")
	if !ok {
		return "", errors.New("unterminated front matter")
	}
	var header snapshotHeader
	if err := yaml.Unmarshal([]byte(front), &header); err != nil {
		return "", fmt.Errorf("parse front matter: %w", err)
	}
	if header.ContentBlake3 == "" {
		return "", errors.New("content hash not found")
	}
	return header.ContentBlake3, nil
}

func extractHTMLTitle(src string) string {
	m := titlePattern.FindStringSubmatch(src)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(m[1]))
}
