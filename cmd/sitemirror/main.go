package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/sirupsen/logrus"

	"sitemirror/internal/mirror"
)

type cli struct {
	Config kong.ConfigFlag `help:"YAML file with option defaults; keys are flag names in snake_case." env:"SITEMIRROR_CONFIG" placeholder:"FILE"`

	URL      string `arg:"" optional:"" help:"Absolute URL of the page to mirror."`
	Document string `help:"Local document to process instead of fetching a URL." type:"existingfile"`
	BaseURL  string `help:"URL the local document was served from; relative references resolve against it."`

	OutputRoot     string        `short:"o" default:"mirror" help:"Directory that receives the mirrored files."`
	OriginPolicy   string        `enum:"same-origin,any-origin" default:"same-origin" help:"Fetch off-origin absolute references (${enum})."`
	Extensions     []string      `help:"Asset extensions worth fetching (default: common web asset types)."`
	ScanExtensions []string      `default:".css" help:"Fetched assets re-scanned for further references."`
	Exclude        []string      `help:"Glob patterns for references that are never resolved."`
	RecursionDepth int           `default:"1" help:"How many levels of fetched stylesheets are scanned; 0 scans only the page."`
	ForceRefetch   bool          `help:"Download assets even when the local file exists."`
	RequestTimeout time.Duration `default:"30s" help:"Timeout for each HTTP request."`
	UserAgent      string        `help:"User-Agent header sent with every request."`

	Workers           int   `default:"8" help:"Concurrent downloads per document."`
	RequestsPerMinute int   `default:"600" help:"Request pacing across the run; negative disables it."`
	MaxAssetBytes     int64 `default:"268435456" help:"Largest accepted asset body in bytes; negative disables the limit."`
	Markdown          bool  `help:"Also write a Markdown snapshot of the mirrored page."`

	LogLevel string `enum:"trace,debug,info,warn,error" default:"info" help:"Log verbosity (${enum})."`
	LogJSON  bool   `name:"log-json" help:"Emit logs as JSON."`
	Progress bool   `help:"Print every URL as it is requested."`
}

func (c *cli) mirrorConfig(logger logrus.FieldLogger) mirror.Config {
	cfg := mirror.Config{
		StartURL:          c.URL,
		Document:          c.Document,
		BaseURL:           c.BaseURL,
		OutputRoot:        c.OutputRoot,
		OriginPolicy:      mirror.OriginPolicy(c.OriginPolicy),
		Extensions:        c.Extensions,
		ScanExtensions:    c.ScanExtensions,
		Exclude:           c.Exclude,
		RecursionDepth:    c.RecursionDepth,
		ForceRefetch:      c.ForceRefetch,
		RequestTimeout:    c.RequestTimeout,
		UserAgent:         c.UserAgent,
		MaxWorkers:        c.Workers,
		RequestsPerMinute: c.RequestsPerMinute,
		MaxAssetBytes:     c.MaxAssetBytes,
		Markdown:          c.Markdown,
		Logger:            logger,
	}
	if c.RecursionDepth == 0 {
		cfg.RecursionDepth = -1
	}
	if c.Progress {
		cfg.Progress = func(u string) { fmt.Fprintln(os.Stderr, u) }
	}
	return cfg
}

func main() {
	var c cli
	kctx := kong.Parse(&c,
		kong.Name("sitemirror"),
		kong.Description("Mirror a web page and the assets it embeds into a local directory."),
		kong.UsageOnError(),
		kong.Configuration(yamlConfig),
	)

	logger, err := newLogger(os.Stderr, c.LogLevel, c.LogJSON)
	kctx.FatalIfErrorf(err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := mirror.Mirror(ctx, c.mirrorConfig(logger))
	if report != nil {
		if werr := report.WriteSummary(os.Stdout); werr != nil {
			logger.WithError(werr).Error("write summary")
		}
	}
	kctx.FatalIfErrorf(err)
}
