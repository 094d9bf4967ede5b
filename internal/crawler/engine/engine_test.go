// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package engine_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/novira/internal/core/chapter"
	"github.com/taibuivan/novira/internal/core/document"
	"github.com/taibuivan/novira/internal/crawler/engine"
	"github.com/taibuivan/novira/internal/crawler/siteconfig"
)

// # Test Doubles

type fakeDocumentStore struct {
	mu         sync.Mutex
	upserts    []*document.Document
	statsCalls []string
}

func (store *fakeDocumentStore) Upsert(_ context.Context, record *document.Document) (string, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.upserts = append(store.upserts, record)
	return "doc-1", nil
}

func (store *fakeDocumentStore) RecomputeStats(_ context.Context, id string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.statsCalls = append(store.statsCalls, id)
	return nil
}

type fakeChapterStore struct {
	mu      sync.Mutex
	upserts []*chapter.Chapter
}

func (store *fakeChapterStore) Upsert(_ context.Context, record *chapter.Chapter) (string, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.upserts = append(store.upserts, record)
	return record.ID, nil
}

func (store *fakeChapterStore) byNumber() map[int]string {
	store.mu.Lock()
	defer store.mu.Unlock()
	titles := make(map[int]string, len(store.upserts))
	for _, record := range store.upserts {
		titles[record.Number] = record.Title
	}
	return titles
}

type fakeLedger struct {
	mu       sync.Mutex
	success  map[string]bool
	failures []string
	cleared  int
}

func (ledger *fakeLedger) IsSuccess(_ context.Context, _, _, url string) bool {
	ledger.mu.Lock()
	defer ledger.mu.Unlock()
	return ledger.success[url]
}

func (ledger *fakeLedger) MarkSuccess(_ context.Context, _, _, url string) {
	ledger.mu.Lock()
	defer ledger.mu.Unlock()
	if ledger.success == nil {
		ledger.success = make(map[string]bool)
	}
	ledger.success[url] = true
}

func (ledger *fakeLedger) MarkFailure(_ context.Context, _, _, url string) {
	ledger.mu.Lock()
	defer ledger.mu.Unlock()
	ledger.failures = append(ledger.failures, url)
}

func (ledger *fakeLedger) Stats(_ context.Context, _, _ string) (int64, int64) {
	ledger.mu.Lock()
	defer ledger.mu.Unlock()
	return int64(len(ledger.success)), int64(len(ledger.failures))
}

func (ledger *fakeLedger) ClearFailures(_ context.Context, _, _ string) {
	ledger.mu.Lock()
	defer ledger.mu.Unlock()
	ledger.failures = nil
	ledger.cleared++
}

// recorder captures reporter callbacks; with stopAfter set it flips the
// stop latch once that many chapters have been processed.
type recorder struct {
	mu        sync.Mutex
	snapshots []engine.Progress
	logs      []string
	stopAfter int
}

func (r *recorder) OnProgress(progress engine.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, progress)
}

func (r *recorder) OnLog(level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, level+" "+message)
}

func (r *recorder) ShouldStop() bool {
	if r.stopAfter <= 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snapshots) == 0 {
		return false
	}
	last := r.snapshots[len(r.snapshots)-1]
	return last.Completed+last.Failed >= r.stopAfter
}

func (r *recorder) last() engine.Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snapshots) == 0 {
		return engine.Progress{}
	}
	return r.snapshots[len(r.snapshots)-1]
}

// # Fixtures

type hitCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (hits *hitCounter) record(path string) {
	hits.mu.Lock()
	defer hits.mu.Unlock()
	hits.counts[path]++
}

func (hits *hitCounter) count(path string) int {
	hits.mu.Lock()
	defer hits.mu.Unlock()
	return hits.counts[path]
}

// crawlServer serves a fixed page set and counts hits per path.
func crawlServer(t *testing.T, pages map[string]string) (*httptest.Server, *hitCounter) {
	t.Helper()
	hits := &hitCounter{counts: make(map[string]int)}
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		hits.record(request.URL.Path)
		body, ok := pages[request.URL.Path]
		if !ok {
			http.NotFound(writer, request)
			return
		}
		_, _ = io.WriteString(writer, body)
	}))
	t.Cleanup(server.Close)
	return server, hits
}

func parseConfig(t *testing.T, raw string) *siteconfig.Config {
	t.Helper()
	config, err := siteconfig.Parse([]byte(raw))
	require.NoError(t, err)
	return config
}

// listConfig crawls a two-page chapter list with single-page chapters.
func listConfig(t *testing.T, baseURL string) *siteconfig.Config {
	return parseConfig(t, `{
		"site": {"name": "testsite", "base_url": "`+baseURL+`"},
		"request": {"timeout_secs": 5},
		"crawl": {"request_delay_secs": 0, "max_retries": 1},
		"url_templates": {
			"book_detail": "/book/{book_id}.html",
			"chapter_list_page": "/book/{book_id}/{page}.html",
			"chapter_content_page": "/chapter/{book_id}/{chapter_id}_{page}.html"
		},
		"parsers": {
			"document_info": {
				"title": {"type": "xpath", "expression": "//h1/text()", "index": 0},
				"author": {"type": "xpath", "expression": "//p[@class='author']/text()", "index": 0}
			},
			"chapter_list": {
				"items": {"type": "xpath", "expression": "//ul[@id='chapters']/li"},
				"title": {"type": "xpath", "expression": "./a/text()", "index": 0},
				"url": {"type": "xpath", "expression": "./a/@href", "index": 0},
				"pagination": {
					"enabled": true,
					"max_page_manual": 1,
					"max_page_xpath": {"type": "xpath", "expression": "//span[@id='pages']/text()", "index": 0}
				}
			},
			"chapter_content": {
				"content": {"type": "xpath", "expression": "//div[@id='content']/text()"}
			}
		}
	}`)
}

const landingPage = `<html><body>
<h1>仙逆</h1>
<p class="author">耳根</p>
<span id="pages">2</span>
<ul id="chapters">
<li><a href="/chapter/7/1.html">第一章</a></li>
<li><a href="/chapter/7/2.html">第二章</a></li>
</ul>
</body></html>`

const listPageTwo = `<html><body>
<ul id="chapters">
<li><a href="/chapter/7/3.html">第三章</a></li>
</ul>
</body></html>`

func contentPage(body string) string {
	return `<html><body><div id="content">` + body + `</div></body></html>`
}

// # Tests

/*
TestExtractBookID pins the id rule: the first digit run of the URL path,
never of the host.
*/
func TestExtractBookID(t *testing.T) {
	tests := []struct {
		rawURL string
		id     string
		ok     bool
	}{
		{"https://www.dxmwx.org/read/41934.html", "41934", true},
		{"https://djks5.com/book/777/", "777", true},
		{"https://example.com/book/12/34.html", "12", true},
		{"https://example.com/about", "", false},
		{"://missing-scheme/123", "", false},
	}

	for _, test := range tests {
		id, ok := engine.ExtractBookID(test.rawURL)
		assert.Equal(t, test.ok, ok, test.rawURL)
		assert.Equal(t, test.id, id, test.rawURL)
	}
}

/*
TestCrawler_Run walks the full sequence against a stub site: a paginated
chapter list, per-chapter content fetches through the worker pool, document
upsert, and a final stats pass. Chapter numbers must follow discovery
order even though the pool completes out of order.
*/
func TestCrawler_Run(t *testing.T) {
	server, _ := crawlServer(t, map[string]string{
		"/book/7.html":       landingPage,
		"/book/7/2.html":     listPageTwo,
		"/chapter/7/1.html":  contentPage("First body."),
		"/chapter/7/2.html":  contentPage("Second body."),
		"/chapter/7/3.html":  contentPage("Third body."),
	})

	documents := &fakeDocumentStore{}
	chapters := &fakeChapterStore{}
	reporter := &recorder{}

	crawler := engine.New(engine.Options{
		Config:     listConfig(t, server.URL),
		BookID:     "7",
		MaxWorkers: 2,
		Documents:  documents,
		Chapters:   chapters,
		Reporter:   reporter,
	})

	// 1. The run completes.
	require.NoError(t, crawler.Run(context.Background()))

	// 2. One document row, carrying the extracted metadata.
	require.Len(t, documents.upserts, 1)
	record := documents.upserts[0]
	assert.Equal(t, "仙逆", record.Title)
	assert.Equal(t, "耳根", record.Author)
	assert.Equal(t, "testsite", record.SiteName)
	assert.Equal(t, "7", record.BookID)
	assert.Equal(t, server.URL+"/book/7.html", record.SourceURL)

	// 3. Three chapters, numbered in discovery order across both pages.
	assert.Equal(t, map[int]string{1: "第一章", 2: "第二章", 3: "第三章"}, chapters.byNumber())
	for _, persisted := range chapters.upserts {
		assert.Equal(t, "doc-1", persisted.DocumentID)
	}

	// 4. Stats recomputed for the upserted document.
	assert.Equal(t, []string{"doc-1"}, documents.statsCalls)

	// 5. Progress drained to a completed stage, carrying the metadata.
	final := reporter.last()
	assert.Equal(t, engine.StageCompleted, final.Stage)
	assert.Equal(t, 3, final.Total)
	assert.Equal(t, 3, final.Completed)
	assert.Zero(t, final.Failed)
	assert.Equal(t, "仙逆", final.DocumentTitle)
	assert.Equal(t, "耳根", final.DocumentAuthor)
}

/*
TestCrawler_Run_ContentPagination drives a chapter spread over sub-pages.
The sub-page loop must follow the chapter_content_page template, join
pages with a blank line, and stop after three consecutive identical pages.
*/
func TestCrawler_Run_ContentPagination(t *testing.T) {
	landing := `<html><body><h1>仙逆</h1>
<ul id="chapters"><li><a href="/chapter/7/100.html">第一章</a></li></ul>
</body></html>`

	server, hits := crawlServer(t, map[string]string{
		"/book/7.html":           landing,
		"/chapter/7/100.html":    contentPage("Part one"),
		"/chapter/7/100_2.html":  contentPage("Part two"),
		"/chapter/7/100_3.html":  contentPage("Part two"),
		"/chapter/7/100_4.html":  contentPage("Part two"),
		"/chapter/7/100_5.html":  contentPage("Part two"),
		"/chapter/7/100_6.html":  contentPage("never served"),
	})

	config := parseConfig(t, `{
		"site": {"name": "testsite", "base_url": "`+server.URL+`"},
		"crawl": {"request_delay_secs": 0, "max_retries": 1},
		"url_templates": {
			"book_detail": "/book/{book_id}.html",
			"chapter_content_page": "/chapter/{book_id}/{chapter_id}_{page}.html"
		},
		"parsers": {
			"document_info": {
				"title": {"type": "xpath", "expression": "//h1/text()", "index": 0}
			},
			"chapter_list": {
				"items": {"type": "xpath", "expression": "//ul[@id='chapters']/li"},
				"title": {"type": "xpath", "expression": "./a/text()", "index": 0},
				"url": {"type": "xpath", "expression": "./a/@href", "index": 0}
			},
			"chapter_content": {
				"content": {"type": "xpath", "expression": "//div[@id='content']/text()"},
				"next_page": {"enabled": true, "max_page_manual": 10}
			}
		}
	}`)

	chapters := &fakeChapterStore{}
	crawler := engine.New(engine.Options{
		Config:     config,
		BookID:     "7",
		MaxWorkers: 1,
		Documents:  &fakeDocumentStore{},
		Chapters:   chapters,
	})

	require.NoError(t, crawler.Run(context.Background()))

	// 1. Distinct sub-pages joined with a blank line; repeats dropped.
	require.Len(t, chapters.upserts, 1)
	assert.Equal(t, "Part one\n\nPart two", chapters.upserts[0].Content)

	// 2. The loop broke on the third consecutive repeat, inside the bound.
	assert.Equal(t, 1, hits.count("/chapter/7/100_5.html"))
	assert.Zero(t, hits.count("/chapter/7/100_6.html"))
}

/*
TestCrawler_Run_StopLatch flips the stop latch after the first chapter.
The run must wind down without processing the rest and report ErrStopped,
but stats still get recomputed for the partial work.
*/
func TestCrawler_Run_StopLatch(t *testing.T) {
	server, _ := crawlServer(t, map[string]string{
		"/book/7.html":      landingPage,
		"/book/7/2.html":    listPageTwo,
		"/chapter/7/1.html": contentPage("First body."),
		"/chapter/7/2.html": contentPage("Second body."),
		"/chapter/7/3.html": contentPage("Third body."),
	})

	documents := &fakeDocumentStore{}
	chapters := &fakeChapterStore{}
	reporter := &recorder{stopAfter: 1}

	crawler := engine.New(engine.Options{
		Config:     listConfig(t, server.URL),
		BookID:     "7",
		MaxWorkers: 1,
		Documents:  documents,
		Chapters:   chapters,
		Reporter:   reporter,
	})

	err := crawler.Run(context.Background())
	require.ErrorIs(t, err, engine.ErrStopped)

	assert.Len(t, chapters.upserts, 1)
	assert.Equal(t, []string{"doc-1"}, documents.statsCalls)
}

/*
TestCrawler_Run_MissingTitle verifies a landing page without the document
title fails the run before anything is persisted.
*/
func TestCrawler_Run_MissingTitle(t *testing.T) {
	server, _ := crawlServer(t, map[string]string{
		"/book/7.html": `<html><body><p>no heading here</p></body></html>`,
	})

	documents := &fakeDocumentStore{}
	crawler := engine.New(engine.Options{
		Config:    listConfig(t, server.URL),
		BookID:    "7",
		Documents: documents,
		Chapters:  &fakeChapterStore{},
	})

	err := crawler.Run(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, engine.ErrStopped)
	assert.Empty(t, documents.upserts)
}

/*
TestCrawler_Run_SkipsLedgeredChapters pre-marks the first chapter in the
ledger. The worker must count it complete without re-fetching its content,
and mark the freshly downloaded one.
*/
func TestCrawler_Run_SkipsLedgeredChapters(t *testing.T) {
	landing := `<html><body><h1>仙逆</h1>
<ul id="chapters">
<li><a href="/chapter/7/1.html">第一章</a></li>
<li><a href="/chapter/7/2.html">第二章</a></li>
</ul>
</body></html>`

	server, hits := crawlServer(t, map[string]string{
		"/book/7.html":      landing,
		"/chapter/7/1.html": contentPage("First body."),
		"/chapter/7/2.html": contentPage("Second body."),
	})

	ledger := &fakeLedger{success: map[string]bool{
		server.URL + "/chapter/7/1.html": true,
	}}
	chapters := &fakeChapterStore{}
	reporter := &recorder{}

	crawler := engine.New(engine.Options{
		Config:     listConfig(t, server.URL),
		BookID:     "7",
		MaxWorkers: 1,
		Documents:  &fakeDocumentStore{},
		Chapters:   chapters,
		Ledger:     ledger,
		Reporter:   reporter,
	})

	require.NoError(t, crawler.Run(context.Background()))

	// 1. Only the unledgered chapter was fetched and persisted.
	assert.Zero(t, hits.count("/chapter/7/1.html"))
	assert.Equal(t, map[int]string{2: "第二章"}, chapters.byNumber())

	// 2. Both count toward completion; the fresh one is now ledgered.
	final := reporter.last()
	assert.Equal(t, 2, final.Completed)
	assert.True(t, ledger.success[server.URL+"/chapter/7/2.html"])
}

/*
TestCrawler_Run_EmptyContentFails serves a chapter page with no content
node. The chapter must land in the failed ledger set and count as failed,
while the run itself still completes.
*/
func TestCrawler_Run_EmptyContentFails(t *testing.T) {
	landing := `<html><body><h1>仙逆</h1>
<ul id="chapters"><li><a href="/chapter/7/1.html">第一章</a></li></ul>
</body></html>`

	server, _ := crawlServer(t, map[string]string{
		"/book/7.html":      landing,
		"/chapter/7/1.html": `<html><body><p>wrong node</p></body></html>`,
	})

	ledger := &fakeLedger{}
	chapters := &fakeChapterStore{}
	reporter := &recorder{}

	crawler := engine.New(engine.Options{
		Config:    listConfig(t, server.URL),
		BookID:    "7",
		Documents: &fakeDocumentStore{},
		Chapters:  chapters,
		Ledger:    ledger,
		Reporter:  reporter,
	})

	require.NoError(t, crawler.Run(context.Background()))

	assert.Empty(t, chapters.upserts)
	assert.Equal(t, []string{server.URL + "/chapter/7/1.html"}, ledger.failures)

	final := reporter.last()
	assert.Equal(t, 1, final.Failed)
	assert.Zero(t, final.Completed)
	assert.Equal(t, engine.StageCompleted, final.Stage)
}

/*
TestCrawler_Run_RetryFailedClearsLedger verifies the retry mode clears the
failed set before downloading, so previously failed chapters get another
attempt.
*/
func TestCrawler_Run_RetryFailedClearsLedger(t *testing.T) {
	landing := `<html><body><h1>仙逆</h1>
<ul id="chapters"><li><a href="/chapter/7/1.html">第一章</a></li></ul>
</body></html>`

	server, _ := crawlServer(t, map[string]string{
		"/book/7.html":      landing,
		"/chapter/7/1.html": contentPage("First body."),
	})

	ledger := &fakeLedger{failures: []string{server.URL + "/chapter/7/1.html"}}
	crawler := engine.New(engine.Options{
		Config:      listConfig(t, server.URL),
		BookID:      "7",
		RetryFailed: true,
		Documents:   &fakeDocumentStore{},
		Chapters:    &fakeChapterStore{},
		Ledger:      ledger,
	})

	require.NoError(t, crawler.Run(context.Background()))
	assert.Equal(t, 1, ledger.cleared)
}
