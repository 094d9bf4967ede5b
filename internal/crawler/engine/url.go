// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package engine

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/taibuivan/novira/internal/crawler/siteconfig"
)

// # URL Identity

// digitRuns matches decimal-digit runs in a URL path.
var digitRuns = regexp.MustCompile(`[0-9]+`)

/*
ExtractBookID pulls a book id out of a full page URL.

The id is the first decimal-digit run of the URL path. Only the path is
scanned, so numeric fragments in the host (djks5.com) never masquerade as
ids.

Parameters:
  - rawURL: string

Returns:
  - string: The digit run
  - bool: false when the URL does not parse or its path carries no digits
*/
func ExtractBookID(rawURL string) (string, bool) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", false
	}

	run := digitRuns.FindString(parsed.Path)
	return run, run != ""
}

// chapterPathIDs extracts the book and chapter ids from a chapter URL's
// path, as its first and second digit runs. A lone run is the chapter id,
// with the crawl's own book id standing in.
func (crawler *Crawler) chapterPathIDs(chapterURL string) (bookID, chapterID string, ok bool) {
	parsed, err := url.Parse(chapterURL)
	if err != nil {
		return "", "", false
	}

	runs := digitRuns.FindAllString(parsed.Path, 2)
	switch len(runs) {
	case 0:
		return "", "", false
	case 1:
		return crawler.bookID, runs[0], true
	}
	return runs[0], runs[1], true
}

// contentPageURL renders the chapter_content_page template for sub-page N
// of a chapter.
func (crawler *Crawler) contentPageURL(chapterURL string, page int) (string, bool) {
	bookID, chapterID, ok := crawler.chapterPathIDs(chapterURL)
	if !ok {
		return "", false
	}

	template := crawler.config.Parsers.ChapterContent.NextPage.TemplateName(siteconfig.TemplateChapterContentPage)
	return crawler.config.BuildURL(template, map[string]string{
		"book_id":    bookID,
		"chapter_id": chapterID,
		"page":       strconv.Itoa(page),
	})
}
