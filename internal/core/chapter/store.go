// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package chapter

import "context"

// # Chapter Data Access

// ChapterRepository defines the data access contract for chapter content.
type ChapterRepository interface {

	/*
		Upsert writes a chapter keyed by (document, number): a new number
		inserts, an existing one overwrites title, content, source URL and
		word count. The stored word count is always derived from Content.

		Parameters:
		  - context: context.Context
		  - chapter: *Chapter (ID used only when the row is new)

		Returns:
		  - string: The authoritative row ID, also written back to chapter.ID
		  - error: Storage failures
	*/
	Upsert(context context.Context, chapter *Chapter) (string, error)

	/*
		ListByDocument returns chapter metadata for a document, ordered by
		number. Content is omitted; a full table of contents stays small.

		Parameters:
		  - context: context.Context
		  - documentID: string (UUID)

		Returns:
		  - []*Chapter: Metadata rows with empty Content
		  - error: Storage failures
	*/
	ListByDocument(context context.Context, documentID string) ([]*Chapter, error)

	/*
		FindByNumber returns one chapter with its full content.

		Parameters:
		  - context: context.Context
		  - documentID: string (UUID)
		  - number: int (1-based)

		Returns:
		  - *Chapter: Hydrated row including Content
		  - error: apperr.NotFound if absent
	*/
	FindByNumber(context context.Context, documentID string, number int) (*Chapter, error)
}
