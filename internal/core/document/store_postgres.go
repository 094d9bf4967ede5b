// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package document

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/novira/internal/platform/apperr"
	"github.com/taibuivan/novira/internal/platform/database/schema"
	"github.com/taibuivan/novira/internal/platform/dberr"
	"github.com/taibuivan/novira/internal/platform/postgres"
)

// # PostgreSQL Repository

// documentRepository implements the [DocumentRepository] interface using pgx.
type documentRepository struct {
	pool *pgxpool.Pool
}

// NewDocumentRepository constructs a PostgreSQL backed document store.
func NewDocumentRepository(pool *pgxpool.Pool) DocumentRepository {
	return &documentRepository{pool: pool}
}

/*
Upsert inserts a document or resolves the existing row by source URL.

Description: The title always follows the latest crawl; author, cover and
intro only overwrite the stored value when the incoming one is non-empty.
NULLIF/COALESCE keeps that rule inside the statement, so concurrent crawls
of the same book cannot interleave a read-then-write race.

Parameters:
  - context: context.Context
  - document: *Document

Returns:
  - string: Authoritative row ID (existing ID when the URL was known)
  - error: Storage failures after transient-error retries
*/
func (repository *documentRepository) Upsert(context context.Context, document *Document) (string, error) {

	// Upsert command keyed by the unique source URL index
	query := fmt.Sprintf(`
		INSERT INTO %s AS d (%s, %s, %s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (%s) DO UPDATE SET
			%s = EXCLUDED.%s,
			%s = COALESCE(NULLIF(EXCLUDED.%s, ''), d.%s),
			%s = COALESCE(NULLIF(EXCLUDED.%s, ''), d.%s),
			%s = COALESCE(NULLIF(EXCLUDED.%s, ''), d.%s),
			%s = NOW()
		RETURNING %s
	`,
		schema.CoreDocument.Table,
		schema.CoreDocument.ID, schema.CoreDocument.SiteName, schema.CoreDocument.BookID,
		schema.CoreDocument.Title, schema.CoreDocument.Author, schema.CoreDocument.CoverURL,
		schema.CoreDocument.Intro, schema.CoreDocument.SourceURL,
		schema.CoreDocument.SourceURL,
		schema.CoreDocument.Title, schema.CoreDocument.Title,
		schema.CoreDocument.Author, schema.CoreDocument.Author, schema.CoreDocument.Author,
		schema.CoreDocument.CoverURL, schema.CoreDocument.CoverURL, schema.CoreDocument.CoverURL,
		schema.CoreDocument.Intro, schema.CoreDocument.Intro, schema.CoreDocument.Intro,
		schema.CoreDocument.UpdatedAt,
		schema.CoreDocument.ID,
	)

	// Execute with retries; the upsert opens every crawl run
	var id string
	err := postgres.Retry(context, func() error {
		return repository.pool.QueryRow(context, query,
			document.ID,
			document.SiteName,
			document.BookID,
			document.Title,
			document.Author,
			document.CoverURL,
			document.Intro,
			document.SourceURL,
		).Scan(&id)
	})
	if err != nil {
		return "", fmt.Errorf("postgres: failed to upsert document: %w", err)
	}

	// Adopt the authoritative ID
	document.ID = id
	return id, nil
}

/*
List retrieves one page of documents, most recently updated first.

Parameters:
  - context: context.Context
  - limit: int
  - offset: int

Returns:
  - []*Document: Hydrated rows
  - int: Total row count across all pages
  - error: Storage failures
*/
func (repository *documentRepository) List(context context.Context, limit, offset int) ([]*Document, int, error) {

	// Window-function total avoids a second COUNT query
	query := fmt.Sprintf(`
		SELECT %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s,
			COUNT(*) OVER() AS total_count
		FROM %s
		ORDER BY %s DESC
		LIMIT $1 OFFSET $2
	`,
		schema.CoreDocument.ID, schema.CoreDocument.SiteName, schema.CoreDocument.BookID,
		schema.CoreDocument.Title, schema.CoreDocument.Author, schema.CoreDocument.CoverURL,
		schema.CoreDocument.Intro, schema.CoreDocument.SourceURL, schema.CoreDocument.TotalChapters,
		schema.CoreDocument.TotalWords, schema.CoreDocument.CreatedAt, schema.CoreDocument.UpdatedAt,
		schema.CoreDocument.Table,
		schema.CoreDocument.UpdatedAt,
	)

	// Query execution
	rows, err := repository.pool.Query(context, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: failed to list documents: %w", err)
	}
	defer rows.Close()

	// Row iteration and entity hydration
	var documents []*Document
	var totalCount int
	for rows.Next() {
		var document Document
		err := rows.Scan(
			&document.ID,
			&document.SiteName,
			&document.BookID,
			&document.Title,
			&document.Author,
			&document.CoverURL,
			&document.Intro,
			&document.SourceURL,
			&document.TotalChapters,
			&document.TotalWords,
			&document.CreatedAt,
			&document.UpdatedAt,
			&totalCount,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("postgres: failed to scan document: %w", err)
		}
		documents = append(documents, &document)
	}

	return documents, totalCount, nil
}

/*
FindByID returns the document with the given ID.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - *Document: Hydrated row
  - error: apperr.NotFound on absent rows
*/
func (repository *documentRepository) FindByID(context context.Context, id string) (*Document, error) {

	// Full row projection
	query := fmt.Sprintf(`
		SELECT %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s
		FROM %s
		WHERE %s = $1
	`,
		schema.CoreDocument.ID, schema.CoreDocument.SiteName, schema.CoreDocument.BookID,
		schema.CoreDocument.Title, schema.CoreDocument.Author, schema.CoreDocument.CoverURL,
		schema.CoreDocument.Intro, schema.CoreDocument.SourceURL, schema.CoreDocument.TotalChapters,
		schema.CoreDocument.TotalWords, schema.CoreDocument.CreatedAt, schema.CoreDocument.UpdatedAt,
		schema.CoreDocument.Table,
		schema.CoreDocument.ID,
	)

	// Execute query and hydrate the entity
	var document Document
	err := repository.pool.QueryRow(context, query, id).Scan(
		&document.ID,
		&document.SiteName,
		&document.BookID,
		&document.Title,
		&document.Author,
		&document.CoverURL,
		&document.Intro,
		&document.SourceURL,
		&document.TotalChapters,
		&document.TotalWords,
		&document.CreatedAt,
		&document.UpdatedAt,
	)

	// Error resolution
	if err != nil {
		return nil, dberr.Wrap(fmt.Errorf("postgres: failed to find document by id: %w", err), "Document")
	}

	return &document, nil
}

/*
UpdateMeta applies a partial metadata edit in place.

Description: COALESCE against the bound parameters lets nil patch members
keep the stored column value without building a dynamic SET list.

Parameters:
  - context: context.Context
  - id: string
  - patch: MetaPatch

Returns:
  - error: apperr.NotFound if no row matched
*/
func (repository *documentRepository) UpdateMeta(context context.Context, id string, patch MetaPatch) error {

	// Update command with per-column keep-or-replace semantics
	query := fmt.Sprintf(`
		UPDATE %s SET
			%s = COALESCE($2, %s),
			%s = COALESCE($3, %s),
			%s = COALESCE($4, %s),
			%s = COALESCE($5, %s),
			%s = NOW()
		WHERE %s = $1
	`,
		schema.CoreDocument.Table,
		schema.CoreDocument.Title, schema.CoreDocument.Title,
		schema.CoreDocument.Author, schema.CoreDocument.Author,
		schema.CoreDocument.Intro, schema.CoreDocument.Intro,
		schema.CoreDocument.CoverURL, schema.CoreDocument.CoverURL,
		schema.CoreDocument.UpdatedAt,
		schema.CoreDocument.ID,
	)

	// Execute record update
	result, err := repository.pool.Exec(context, query, id, patch.Title, patch.Author, patch.Intro, patch.CoverURL)
	if err != nil {
		return fmt.Errorf("postgres: failed to update document: %w", err)
	}

	// Affected row verification
	if result.RowsAffected() == 0 {
		return apperr.NotFound("Document")
	}

	return nil
}

/*
Delete removes a document row. Chapter rows follow through the cascade.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - error: apperr.NotFound if no row matched
*/
func (repository *documentRepository) Delete(context context.Context, id string) error {

	// Row removal; chapters cascade via the FK
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`,
		schema.CoreDocument.Table, schema.CoreDocument.ID)

	// Command execution
	result, err := repository.pool.Exec(context, query, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete document: %w", err)
	}

	// Affected row verification
	if result.RowsAffected() == 0 {
		return apperr.NotFound("Document")
	}

	return nil
}

// DeleteBySiteBook removes the document for a (site, book) pair, cascading
// its chapters. Zero rows affected is a valid outcome.
func (repository *documentRepository) DeleteBySiteBook(context context.Context, siteName, bookID string) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1 AND %s = $2`,
		schema.CoreDocument.Table, schema.CoreDocument.SiteName, schema.CoreDocument.BookID)

	result, err := repository.pool.Exec(context, query, siteName, bookID)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to delete document by site and book: %w", err)
	}

	return result.RowsAffected(), nil
}

/*
RecomputeStats rederives totalchapters and totalwords from chapter rows.

Description: Both totals come from sub-selects inside a single UPDATE, so
the derived columns always agree with each other.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - error: apperr.NotFound if no row matched
*/
func (repository *documentRepository) RecomputeStats(context context.Context, id string) error {

	// Single-statement derivation from chapter rows
	query := fmt.Sprintf(`
		UPDATE %s SET
			%s = (SELECT COUNT(*) FROM %s WHERE %s = $1),
			%s = (SELECT COALESCE(SUM(%s), 0) FROM %s WHERE %s = $1),
			%s = NOW()
		WHERE %s = $1
	`,
		schema.CoreDocument.Table,
		schema.CoreDocument.TotalChapters, schema.CoreChapter.Table, schema.CoreChapter.DocumentID,
		schema.CoreDocument.TotalWords, schema.CoreChapter.WordCount, schema.CoreChapter.Table, schema.CoreChapter.DocumentID,
		schema.CoreDocument.UpdatedAt,
		schema.CoreDocument.ID,
	)

	// Execute with retries; stats close out every crawl run
	var result pgconn.CommandTag
	err := postgres.Retry(context, func() error {
		tag, execErr := repository.pool.Exec(context, query, id)
		result = tag
		return execErr
	})
	if err != nil {
		return fmt.Errorf("postgres: failed to recompute document stats: %w", err)
	}

	// Affected row verification
	if result.RowsAffected() == 0 {
		return apperr.NotFound("Document")
	}

	return nil
}
