// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package chapter stores and serves the text content of crawled books.

A chapter is one numbered unit of a document: its title, full text and the
source URL it was extracted from. Crawl workers write rows through
[ChapterRepository.Upsert]; the reader endpoints serve them back, metadata
first and full content on demand.

# Identity

Chapters are addressed by (document, number). Numbers are 1-based and follow
list-discovery order, so re-crawling a book overwrites chapters in place
instead of growing duplicates.
*/
package chapter

import (
	"time"
	"unicode/utf8"
)

// # Chapter Entity

// Chapter is one numbered content unit of a crawled document.
type Chapter struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Number     int       `json:"num"`
	Title      string    `json:"title"`
	Content    string    `json:"content,omitempty"` // empty in listings, loaded for the reader view
	SourceURL  string    `json:"source_url"`
	WordCount  int       `json:"word_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CountWords returns the stored word count for a content string. CJK prose
// has no space-delimited words, so the count is code points, not bytes.
func CountWords(content string) int {
	return utf8.RuneCountInString(content)
}
