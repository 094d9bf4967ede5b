// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package engine runs one crawl from a site config to persisted chapters.

A [Crawler] is built per run and drives the full sequence: fetch the book's
landing page, extract document metadata, walk the paginated chapter list,
upsert the document, download every chapter through a bounded worker pool,
and recompute the document's stats. Chapter discovery order defines the
stored chapter numbers, so completion order inside the pool does not
matter.

# Supervision

The engine never talks to the task layer directly. The supervisor hands it
a [Reporter] and watches the other side: a progress snapshot on every
chapter transition, narrative log lines, and a stop latch polled before
each fetch. Once the latch reports true the run winds down at the next
checkpoint and [Crawler.Run] returns [ErrStopped].

# Failure Model

Per-chapter failures (empty content, exhausted fetches, persistence
errors) are recorded in the idempotency ledger, counted, and never fatal.
Only pre-download failures fail the run: an unresolvable landing URL, an
unfetchable landing page, a missing document title, or a document upsert
error.
*/
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/taibuivan/novira/internal/core/chapter"
	"github.com/taibuivan/novira/internal/core/document"
	"github.com/taibuivan/novira/internal/crawler/extract"
	"github.com/taibuivan/novira/internal/crawler/fetch"
	"github.com/taibuivan/novira/internal/crawler/ledger"
	"github.com/taibuivan/novira/internal/crawler/siteconfig"
	"github.com/taibuivan/novira/internal/platform/constants"
)

// # Crawl Stages

// Stage labels for the externally visible crawl phase, persisted on the task.
const (
	StagePending     = "pending"
	StageParsingList = "parsing_list"
	StageDownloading = "downloading"
	StageCompleted   = "completed"
)

// # Log Levels

// Levels tagging [Reporter.OnLog] lines, stored verbatim in the task log ring.
const (
	LevelInfo    = "INFO"
	LevelWarning = "WARNING"
	LevelError   = "ERROR"
	LevelSuccess = "SUCCESS"
)

// ErrStopped reports that a run ended because the stop latch was set. The
// supervisor maps it to the stopped status rather than a failure.
var ErrStopped = errors.New("engine: crawl stopped")

// # Supervision Contract

// Progress is one snapshot of a running crawl. Completed counts fresh
// downloads and ledger skips alike; Completed+Failed reaches Total once the
// download phase drains. DocumentTitle and DocumentAuthor fill in once the
// landing page metadata extracts, so the supervisor can label the task.
type Progress struct {
	Total          int    `json:"total"`
	Completed      int    `json:"completed"`
	Failed         int    `json:"failed"`
	CurrentChapter string `json:"current_chapter"`
	Stage          string `json:"stage"`
	Detail         string `json:"detail"`
	DocumentTitle  string `json:"document_title,omitempty"`
	DocumentAuthor string `json:"document_author,omitempty"`
}

// Reporter receives crawl callbacks on the supervisor side. OnProgress and
// OnLog are invoked from worker goroutines and must be safe for concurrent
// use; ShouldStop is polled before every fetch and must be cheap.
type Reporter interface {
	OnProgress(progress Progress)
	OnLog(level string, message string)
	ShouldStop() bool
}

// NopReporter discards callbacks and never stops. Standalone crawls and
// tests use it.
type NopReporter struct{}

// OnProgress implements [Reporter].
func (NopReporter) OnProgress(Progress) {}

// OnLog implements [Reporter].
func (NopReporter) OnLog(string, string) {}

// ShouldStop implements [Reporter].
func (NopReporter) ShouldStop() bool { return false }

// # Persistence Slices

// DocumentStore is the slice of the document repository the engine writes.
type DocumentStore interface {
	Upsert(context context.Context, document *document.Document) (string, error)
	RecomputeStats(context context.Context, id string) error
}

// ChapterStore persists downloaded chapters.
type ChapterStore interface {
	Upsert(context context.Context, chapter *chapter.Chapter) (string, error)
}

// # Construction

// Options assembles a [Crawler]. Config, Documents, and Chapters are
// required; everything else has a working default. StartURL overrides the
// book_detail template as the landing page when set.
type Options struct {
	Config      *siteconfig.Config
	BookID      string
	StartURL    string
	MaxWorkers  int
	UseProxy    bool
	RetryFailed bool

	Documents DocumentStore
	Chapters  ChapterStore
	Ledger    ledger.Ledger
	Reporter  Reporter
	Proxy     fetch.ProxyProvider
	Logger    *slog.Logger
}

// Crawler executes one book crawl. It is single-use: build, Run, discard.
type Crawler struct {
	config      *siteconfig.Config
	bookID      string
	startURL    string
	maxWorkers  int
	retryFailed bool

	client    *fetch.Client
	evaluator *extract.Evaluator
	documents DocumentStore
	chapters  ChapterStore
	ledger    ledger.Ledger
	reporter  Reporter
	logger    *slog.Logger

	mu       sync.Mutex
	progress Progress
}

// New builds a [Crawler] from options, wiring the site's fetch client from
// the config's request block.
func New(options Options) *Crawler {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	reporter := options.Reporter
	if reporter == nil {
		reporter = NopReporter{}
	}

	bookLedger := options.Ledger
	if bookLedger == nil {
		bookLedger = ledger.Noop{}
	}

	maxWorkers := options.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = constants.DefaultTaskWorkers
	}

	var proxy fetch.ProxyProvider
	if options.UseProxy {
		proxy = options.Proxy
		if proxy == nil {
			proxy = fetch.NopProxy{}
		}
	}

	client := fetch.NewClient(fetch.Options{
		Headers:    options.Config.Request.Headers,
		Timeout:    options.Config.Timeout(),
		Encoding:   options.Config.Request.Encoding,
		MaxRetries: options.Config.MaxRetries(),
		Proxy:      proxy,
		Logger:     logger,
	})

	return &Crawler{
		config:      options.Config,
		bookID:      options.BookID,
		startURL:    options.StartURL,
		maxWorkers:  maxWorkers,
		retryFailed: options.RetryFailed,
		client:      client,
		evaluator:   extract.NewEvaluator(logger),
		documents:   options.Documents,
		chapters:    options.Chapters,
		ledger:      bookLedger,
		reporter:    reporter,
		logger:      logger,
		progress:    Progress{Stage: StagePending},
	}
}
