// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package engine

import (
	"context"
	"fmt"
	"strconv"

	"github.com/taibuivan/novira/internal/core/document"
	"github.com/taibuivan/novira/internal/crawler/extract"
	"github.com/taibuivan/novira/internal/crawler/siteconfig"
	"github.com/taibuivan/novira/internal/platform/constants"
	"github.com/taibuivan/novira/pkg/uuidv7"
)

// # Crawl Sequence

/*
Run executes the crawl to a terminal state.

The sequence: resolve the landing URL, parse document metadata and the
paginated chapter list, upsert the document, drain the chapter list through
the worker pool, recompute document stats. Stats are recomputed even when
the run is stopped mid-download, so partial work is reflected immediately.

Parameters:
  - ctx: context.Context (Cancelling it stops the run like the latch does)

Returns:
  - error: nil on completion, [ErrStopped] when the stop latch ended the
    run, anything else for a failed crawl
*/
func (crawler *Crawler) Run(ctx context.Context) error {
	site := crawler.config.Site

	// 1. Resolve the landing page; an explicit start URL wins over the template
	startURL := crawler.startURL
	if startURL == "" {
		built, ok := crawler.config.BuildURL(siteconfig.TemplateBookDetail, map[string]string{
			"book_id": crawler.bookID,
		})
		if !ok {
			return fmt.Errorf("engine: book_detail template unresolved for book %s", crawler.bookID)
		}
		startURL = built
	}

	crawler.log(LevelInfo, fmt.Sprintf("crawl started: %s book %s", site.Name, crawler.bookID))
	crawler.setStage(StageParsingList, "fetching chapter list")

	landing, ok := crawler.client.Get(startURL)
	if !ok {
		return fmt.Errorf("engine: landing page fetch failed: %s", startURL)
	}

	// 2. Document metadata; a title is the minimum to persist anything
	info := crawler.evaluator.Record(landing, crawler.config.Parsers.DocumentInfo)
	if info["title"] == "" {
		return fmt.Errorf("engine: document title not found on %s", startURL)
	}
	crawler.setInfo(info["title"], info["author"])
	crawler.log(LevelInfo, "document: "+describeDocument(info))

	// 3. Chapter discovery across list pages
	chapters := crawler.collectChapters(ctx, landing)
	crawler.log(LevelInfo, fmt.Sprintf("chapter list ready: %d chapters", len(chapters)))

	if crawler.stopped(ctx) {
		crawler.log(LevelWarning, "crawl stopped")
		return ErrStopped
	}

	// 4. Document row, before any chapter write needs its id
	documentID, err := crawler.upsertDocument(ctx, startURL, info)
	if err != nil {
		return err
	}

	// 5. Download pool
	crawler.setTotal(len(chapters))
	crawler.setStage(StageDownloading, fmt.Sprintf("downloading %d chapters", len(chapters)))
	crawler.downloadAll(ctx, documentID, chapters)

	// 6. Derived stats reflect whatever landed, stopped or not
	if err := crawler.documents.RecomputeStats(ctx, documentID); err != nil {
		crawler.log(LevelWarning, fmt.Sprintf("document stats not refreshed: %v", err))
	}

	if crawler.stopped(ctx) {
		crawler.log(LevelWarning, "crawl stopped")
		return ErrStopped
	}

	progress := crawler.snapshot()
	crawler.setStage(StageCompleted, "")
	crawler.log(LevelSuccess, fmt.Sprintf("crawl completed: %d downloaded, %d failed of %d chapters",
		progress.Completed, progress.Failed, progress.Total))
	return nil
}

// describeDocument renders a one-line summary of the extracted metadata.
func describeDocument(info map[string]string) string {
	if info["author"] == "" {
		return info["title"]
	}
	return info["title"] + " by " + info["author"]
}

// upsertDocument writes the document row and returns its canonical id.
func (crawler *Crawler) upsertDocument(ctx context.Context, sourceURL string, info map[string]string) (string, error) {
	record := &document.Document{
		ID:        uuidv7.New(),
		SiteName:  crawler.config.Site.Name,
		BookID:    crawler.bookID,
		Title:     info["title"],
		Author:    info["author"],
		CoverURL:  info["cover_url"],
		Intro:     info["intro"],
		SourceURL: sourceURL,
	}

	id, err := crawler.documents.Upsert(ctx, record)
	if err != nil {
		return "", fmt.Errorf("engine: persist document: %w", err)
	}
	return id, nil
}

// # Chapter Discovery

// collectChapters walks the chapter list, following pagination when the
// config enables it. A failed page ends pagination; chapters gathered so
// far stand, in discovery order.
func (crawler *Crawler) collectChapters(ctx context.Context, landing string) []extract.ChapterItem {
	spec := crawler.config.Parsers.ChapterList
	baseURL := crawler.config.Site.BaseURL
	chapters := crawler.evaluator.ChapterItems(landing, spec.Items, spec.Title, spec.URL, baseURL)

	pagination := spec.Pagination
	if pagination == nil || !pagination.Enabled {
		return chapters
	}

	maxPages := crawler.pageBound(landing, pagination, constants.DefaultListMaxPages)
	if maxPages > 1 {
		crawler.log(LevelInfo, fmt.Sprintf("chapter list spans %d pages", maxPages))
	}

	template := pagination.TemplateName(siteconfig.TemplateChapterListPage)
	for page := 2; page <= maxPages; page++ {
		if crawler.stopped(ctx) {
			break
		}

		pageURL, ok := crawler.config.BuildURL(template, map[string]string{
			"book_id": crawler.bookID,
			"page":    strconv.Itoa(page),
		})
		if !ok {
			crawler.log(LevelWarning, fmt.Sprintf("chapter list page template unresolved at page %d", page))
			break
		}

		pageHTML, ok := crawler.client.Get(pageURL)
		if !ok {
			crawler.log(LevelWarning, fmt.Sprintf("chapter list page %d failed, continuing with %d chapters",
				page, len(chapters)))
			break
		}

		chapters = append(chapters,
			crawler.evaluator.ChapterItems(pageHTML, spec.Items, spec.Title, spec.URL, baseURL)...)
	}

	return chapters
}

// pageBound resolves a pagination phase's page limit: the larger of the
// manual bound and the live-extracted count, with the phase default when
// the config pins neither.
func (crawler *Crawler) pageBound(pageHTML string, pagination *siteconfig.PaginationSpec, fallback int) int {
	if pagination == nil {
		return fallback
	}

	bound := pagination.MaxPageManual
	if pagination.MaxPage != nil {
		extracted := extract.ParseMaxPages(crawler.evaluator.Evaluate(pageHTML, *pagination.MaxPage))
		if extracted > bound {
			bound = extracted
		}
	}
	if bound <= 0 {
		return fallback
	}
	return bound
}

// stopped reports whether the run should wind down, from either the
// supervisor's latch or context cancellation.
func (crawler *Crawler) stopped(ctx context.Context) bool {
	return ctx.Err() != nil || crawler.reporter.ShouldStop()
}
