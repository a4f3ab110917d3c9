package mirror

import (
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultRecursionDepth = 1

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

var (
	// ErrUnsafePath marks a reference whose local path would escape the output root.
	ErrUnsafePath = errors.New("unsafe path")
	// ErrFetchFailed marks an asset that could not be retrieved.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrParseSkipped marks a reference that was intentionally not resolved.
	ErrParseSkipped = errors.New("parse skipped")
)

// OriginPolicy controls whether absolute references to other hosts are fetched.
type OriginPolicy string

const (
	OriginSame OriginPolicy = "same-origin"
	OriginAny  OriginPolicy = "any-origin"
)

// Config defines inputs for a mirror run.
type Config struct {
	// StartURL is fetched and used as the primary document. Mutually
	// exclusive with Document.
	StartURL string
	// Document is a local file used as the primary document; BaseURL is
	// required alongside it.
	Document string
	BaseURL  string

	OutputRoot     string
	OriginPolicy   OriginPolicy
	Extensions     []string
	ScanExtensions []string
	Exclude        []string
	// RecursionDepth bounds how many levels of fetched stylesheets are
	// scanned. Zero means the default of 1; a negative value scans only the
	// primary document.
	RecursionDepth int
	ForceRefetch   bool
	RequestTimeout time.Duration
	UserAgent      string

	MaxWorkers        int
	RequestsPerMinute int
	MaxAssetBytes     int64
	Markdown          bool

	Client   *http.Client
	Logger   logrus.FieldLogger
	Progress func(string)
}

// Report captures the outcome of a mirror run.
type Report struct {
	Documents  []*DocumentReport
	Assets     map[string]*Asset
	Errors     []Error
	Unresolved []string
	Stats      Stats
	StartedAt  time.Time
	FinishedAt time.Time
}

// DocumentReport summarizes the processing of one document.
type DocumentReport struct {
	Path         string
	URL          string
	Kind         Kind
	Depth        int
	References   int
	Rewritten    int
	MarkdownPath string
}

// Kind is the scanning mode of a document.
type Kind string

const (
	KindMarkup     Kind = "markup"
	KindStylesheet Kind = "stylesheet"
	KindText       Kind = "text"
)

// Class tells how an asset was discovered.
type Class string

const (
	// ClassPrimary is an asset referenced by a structural attribute.
	ClassPrimary Class = "primary"
	// ClassSecondary is an asset found by heuristic text scanning.
	ClassSecondary Class = "secondary"
)

// State is the fetch state of an asset.
type State string

const (
	StatePending State = "pending"
	StateFetched State = "fetched"
	StateSkipped State = "skipped"
	StateFailed  State = "failed"
)

// Reference is a raw resource reference as it appears in a document.
type Reference struct {
	Raw   string
	Value string
	Tag   string
	Attr  string
}

func (r Reference) fromAttribute() bool {
	return r.Attr != ""
}

// Asset is a resolved remote resource and its local location.
type Asset struct {
	URL     string
	Path    string
	Class   Class
	State   State
	Reason  string
	Status  int
	Bytes   int64
	Cached  bool
	Fetched time.Duration

	// ContentType is the served media type; empty for cached assets.
	ContentType string
}

// Error captures a failure that occurred while resolving or fetching a reference.
type Error struct {
	Source  string
	Target  string
	Type    string
	Message string
	Status  int
}

// Stats aggregates run level counters.
type Stats struct {
	Documents       int
	References      int
	Fetched         int
	FromCache       int
	Skipped         int
	SkippedUnsafe   int
	SkippedParse    int
	Failed          int
	SecondaryFailed int
	BytesWritten    int64
	Duration        time.Duration
}
