// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/taibuivan/novira/internal/core/chapter"
	"github.com/taibuivan/novira/internal/crawler/extract"
	"github.com/taibuivan/novira/internal/platform/constants"
	"github.com/taibuivan/novira/pkg/uuidv7"
)

// duplicatePageLimit ends content pagination once this many consecutive
// sub-pages repeat the same text, the signature of a site that serves its
// last page for every out-of-range number.
const duplicatePageLimit = 3

// # Worker Pool

// downloadAll drains the chapter list through maxWorkers goroutines.
func (crawler *Crawler) downloadAll(ctx context.Context, documentID string, chapters []extract.ChapterItem) {
	site := crawler.config.Site.Name

	succeeded, failed := crawler.ledger.Stats(ctx, site, crawler.bookID)
	if succeeded > 0 || failed > 0 {
		crawler.log(LevelInfo, fmt.Sprintf("ledger: %d chapters already downloaded, %d previously failed",
			succeeded, failed))
	}
	if crawler.retryFailed && failed > 0 {
		crawler.ledger.ClearFailures(ctx, site, crawler.bookID)
		crawler.log(LevelInfo, fmt.Sprintf("retrying %d previously failed chapters", failed))
	}

	jobs := make(chan int)
	var workers sync.WaitGroup

	for worker := 0; worker < crawler.maxWorkers; worker++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for index := range jobs {
				crawler.processChapter(ctx, documentID, index+1, chapters[index])
			}
		}()
	}

feed:
	for index := range chapters {
		if crawler.stopped(ctx) {
			break
		}
		select {
		case jobs <- index:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	workers.Wait()
}

// processChapter runs the per-chapter pipeline: skip check, content
// download, persistence, ledger bookkeeping, throttle.
func (crawler *Crawler) processChapter(ctx context.Context, documentID string, number int, item extract.ChapterItem) {
	if crawler.stopped(ctx) {
		return
	}

	site := crawler.config.Site.Name

	if crawler.ledger.IsSuccess(ctx, site, crawler.bookID, item.URL) {
		done, total := crawler.chapterDone(true, item.Title)
		crawler.log(LevelInfo, fmt.Sprintf("[%d/%d] %s (already downloaded)", done, total, item.Title))
		return
	}

	content := crawler.downloadContent(ctx, item.URL)
	if crawler.stopped(ctx) {
		// Stop arrived mid-download; leave the chapter unmarked so the
		// next run picks it up.
		return
	}

	if strings.TrimSpace(content) == "" {
		crawler.ledger.MarkFailure(ctx, site, crawler.bookID, item.URL)
		done, total := crawler.chapterDone(false, item.Title)
		crawler.log(LevelError, fmt.Sprintf("[%d/%d] %s: no content extracted", done, total, item.Title))
		return
	}

	record := &chapter.Chapter{
		ID:         uuidv7.New(),
		DocumentID: documentID,
		Number:     number,
		Title:      item.Title,
		Content:    content,
		SourceURL:  item.URL,
	}

	if _, err := crawler.chapters.Upsert(ctx, record); err != nil {
		crawler.ledger.MarkFailure(ctx, site, crawler.bookID, item.URL)
		done, total := crawler.chapterDone(false, item.Title)
		crawler.log(LevelError, fmt.Sprintf("[%d/%d] %s: persist failed: %v", done, total, item.Title, err))
	} else {
		crawler.ledger.MarkSuccess(ctx, site, crawler.bookID, item.URL)
		done, total := crawler.chapterDone(true, item.Title)
		crawler.log(LevelInfo, fmt.Sprintf("[%d/%d] %s (%d chars)",
			done, total, item.Title, chapter.CountWords(content)))
	}

	crawler.throttle(ctx)
}

// # Content Pagination

/*
downloadContent fetches one chapter's full text across its sub-pages.

Sub-page texts are joined with a blank line; list-shaped extractions join
their parts with single newlines first. Pagination stops at the page bound
(re-read from the first page when the config carries a live locator), on a
fetch failure, after three consecutive identical pages, or when the next
URL stops advancing. The configured clean steps run once over the joined
result.
*/
func (crawler *Crawler) downloadContent(ctx context.Context, chapterURL string) string {
	spec := crawler.config.Parsers.ChapterContent
	next := spec.NextPage

	maxPages := next.MaxPages(constants.DefaultContentMaxPages)
	parts := make([]string, 0, 1)
	duplicates := 0
	currentURL := chapterURL

	for page := 1; page <= maxPages; page++ {
		if crawler.stopped(ctx) {
			break
		}

		pageHTML, ok := crawler.client.Get(currentURL)
		if !ok {
			crawler.log(LevelWarning, fmt.Sprintf("content page %d fetch failed: %s", page, currentURL))
			break
		}

		// The first page may carry the real page count
		if page == 1 && next != nil && next.MaxPage != nil {
			maxPages = crawler.pageBound(pageHTML, next, maxPages)
		}

		text := contentText(crawler.evaluator.Evaluate(pageHTML, spec.Content))
		if text != "" {
			if len(parts) > 0 && text == parts[len(parts)-1] {
				duplicates++
				if duplicates >= duplicatePageLimit {
					break
				}
			} else {
				duplicates = 0
				parts = append(parts, text)
			}
		}

		if next == nil || !next.Enabled {
			break
		}

		nextURL, ok := crawler.contentPageURL(chapterURL, page+1)
		if !ok || nextURL == currentURL {
			break
		}
		currentURL = nextURL
	}

	joined := strings.Join(parts, "\n\n")
	if len(spec.Clean) == 0 {
		return joined
	}
	return contentText(crawler.evaluator.Apply(joined, spec.Clean))
}

// contentText renders an extracted content value. List results join with
// newlines after dropping blank lines; anything non-string yields "".
func contentText(value extract.Value) string {
	if list, ok := extract.AsList(value); ok {
		kept := make([]string, 0, len(list))
		for _, line := range list {
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				kept = append(kept, trimmed)
			}
		}
		return strings.Join(kept, "\n")
	}

	text, _ := extract.AsString(value)
	return text
}

// throttle applies the per-chapter delay, abandoning the wait on
// cancellation.
func (crawler *Crawler) throttle(ctx context.Context) {
	delay := crawler.config.RequestDelay()
	if delay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}
