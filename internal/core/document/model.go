// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package document manages the books produced by crawl runs.

A document is one crawled book: its source identity (site, book id, source
URL), display metadata (title, author, cover, intro) and totals derived
from its chapters. The source URL is the natural key, so the same book
re-crawled resolves to the same row. Chapter rows hang off a document and
are removed with it.

# Reader Surface

The package serves the library endpoints: paginated listing, detail with
table of contents, metadata editing and deletion. Crawl runs write through
[DocumentRepository.Upsert] and [DocumentRepository.RecomputeStats].
*/
package document

import "time"

// # Document Entity

// Document is one crawled book with its derived totals.
type Document struct {
	ID            string    `json:"id"`
	SiteName      string    `json:"site_name"`
	BookID        string    `json:"book_id"`
	Title         string    `json:"title"`
	Author        string    `json:"author"`
	CoverURL      string    `json:"cover_url"`
	Intro         string    `json:"intro"`
	SourceURL     string    `json:"source_url"`
	TotalChapters int       `json:"total_chapters"`
	TotalWords    int64     `json:"total_words"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// MetaPatch carries the editable metadata fields for a partial update.
// Nil members keep the stored value.
type MetaPatch struct {
	Title    *string
	Author   *string
	Intro    *string
	CoverURL *string
}

// # Field Identifiers

// Global field names for validation and response mapping.
const (
	FieldTitle    = "title"
	FieldAuthor   = "author"
	FieldIntro    = "intro"
	FieldCoverURL = "cover_url"

	FieldItems    = "items"
	FieldMessage  = "message"
	FieldDocument = "document"
	FieldChapters = "chapters"
)
