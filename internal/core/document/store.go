// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package document

import "context"

// # Document Data Access

// DocumentRepository defines the persistence contract for documents.
type DocumentRepository interface {

	/*
		Upsert inserts a document or resolves it by source URL. An existing
		row keeps its ID; its title is refreshed and the optional metadata
		fields are refreshed only when the incoming value is non-empty, so
		a degraded extraction never blanks stored data.

		Parameters:
		  - context: context.Context
		  - document: *Document (ID used only when the row is new)

		Returns:
		  - string: The authoritative row ID, also written back to document.ID
		  - error: Storage failures
	*/
	Upsert(context context.Context, document *Document) (string, error)

	/*
		List returns documents ordered by most recently updated.

		Parameters:
		  - context: context.Context
		  - limit: int
		  - offset: int

		Returns:
		  - []*Document: One page of rows
		  - int: Total row count
		  - error: Storage failures
	*/
	List(context context.Context, limit, offset int) ([]*Document, int, error)

	/*
		FindByID returns the document with the given ID.

		Parameters:
		  - context: context.Context
		  - id: string (UUID)

		Returns:
		  - *Document: Hydrated row
		  - error: apperr.NotFound if missing
	*/
	FindByID(context context.Context, id string) (*Document, error)

	/*
		UpdateMeta applies a partial metadata edit.

		Parameters:
		  - context: context.Context
		  - id: string (UUID)
		  - patch: MetaPatch (nil members keep stored values)

		Returns:
		  - error: apperr.NotFound if missing
	*/
	UpdateMeta(context context.Context, id string, patch MetaPatch) error

	/*
		Delete removes a document; its chapters go with it through the
		foreign key cascade.

		Parameters:
		  - context: context.Context
		  - id: string (UUID)

		Returns:
		  - error: apperr.NotFound if missing
	*/
	Delete(context context.Context, id string) error

	/*
		DeleteBySiteBook removes the document a crawl produced, addressed
		by its site and book rather than by row ID. Missing rows are not
		an error; forceful task deletion calls this without knowing
		whether the crawl got far enough to persist anything.

		Parameters:
		  - context: context.Context
		  - siteName: string
		  - bookID: string

		Returns:
		  - int64: Rows removed (0 or 1)
		  - error: Storage failures
	*/
	DeleteBySiteBook(context context.Context, siteName, bookID string) (int64, error)

	/*
		RecomputeStats rederives the chapter and word totals from the
		document's chapter rows in one statement.

		Parameters:
		  - context: context.Context
		  - id: string (UUID)

		Returns:
		  - error: apperr.NotFound if missing
	*/
	RecomputeStats(context context.Context, id string) error
}
