// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package chapter

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/novira/internal/platform/database/schema"
	"github.com/taibuivan/novira/internal/platform/dberr"
	"github.com/taibuivan/novira/internal/platform/postgres"
)

// # PostgreSQL Repository

// chapterRepository implements the [ChapterRepository] interface using pgx.
type chapterRepository struct {
	pool *pgxpool.Pool
}

// NewChapterRepository constructs a PostgreSQL backed chapter store.
func NewChapterRepository(pool *pgxpool.Pool) ChapterRepository {
	return &chapterRepository{pool: pool}
}

/*
Upsert inserts a chapter or overwrites the row holding its (document,
number) slot.

Description: The word count column is recomputed from Content here, so it
can never drift from the stored text. Crawl workers hit this concurrently;
the unique index on (documentid, chapternumber) arbitrates racing writers
and both end up with the same row ID.

Parameters:
  - context: context.Context
  - chapter: *Chapter

Returns:
  - string: Authoritative row ID (existing ID when the slot was taken)
  - error: Storage failures after transient-error retries
*/
func (repository *chapterRepository) Upsert(context context.Context, chapter *Chapter) (string, error) {

	// Upsert command keyed by the (document, number) unique index
	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (%s, %s) DO UPDATE SET
			%s = EXCLUDED.%s,
			%s = EXCLUDED.%s,
			%s = EXCLUDED.%s,
			%s = EXCLUDED.%s,
			%s = NOW()
		RETURNING %s
	`,
		schema.CoreChapter.Table,
		schema.CoreChapter.ID, schema.CoreChapter.DocumentID, schema.CoreChapter.ChapterNumber,
		schema.CoreChapter.Title, schema.CoreChapter.Content, schema.CoreChapter.SourceURL,
		schema.CoreChapter.WordCount,
		schema.CoreChapter.DocumentID, schema.CoreChapter.ChapterNumber,
		schema.CoreChapter.Title, schema.CoreChapter.Title,
		schema.CoreChapter.Content, schema.CoreChapter.Content,
		schema.CoreChapter.SourceURL, schema.CoreChapter.SourceURL,
		schema.CoreChapter.WordCount, schema.CoreChapter.WordCount,
		schema.CoreChapter.UpdatedAt,
		schema.CoreChapter.ID,
	)

	// Derived column, never trusted from the caller
	chapter.WordCount = CountWords(chapter.Content)

	// Execute with retries; chapter writes ride inside long crawls where a
	// dropped connection must not burn the download
	var id string
	err := postgres.Retry(context, func() error {
		return repository.pool.QueryRow(context, query,
			chapter.ID,
			chapter.DocumentID,
			chapter.Number,
			chapter.Title,
			chapter.Content,
			chapter.SourceURL,
			chapter.WordCount,
		).Scan(&id)
	})
	if err != nil {
		return "", fmt.Errorf("postgres: failed to upsert chapter: %w", err)
	}

	// Adopt the authoritative ID
	chapter.ID = id
	return id, nil
}

/*
ListByDocument retrieves chapter metadata for one document.

Description: Content is excluded from the column list; the reader's table
of contents needs numbers, titles and word counts only.

Parameters:
  - context: context.Context
  - documentID: string

Returns:
  - []*Chapter: Rows ordered by chapter number
  - error: Storage failures
*/
func (repository *chapterRepository) ListByDocument(context context.Context, documentID string) ([]*Chapter, error) {

	// Metadata projection ordered by reading position
	query := fmt.Sprintf(`
		SELECT %s, %s, %s, %s, %s, %s, %s, %s
		FROM %s
		WHERE %s = $1
		ORDER BY %s ASC
	`,
		schema.CoreChapter.ID, schema.CoreChapter.DocumentID, schema.CoreChapter.ChapterNumber,
		schema.CoreChapter.Title, schema.CoreChapter.SourceURL, schema.CoreChapter.WordCount,
		schema.CoreChapter.CreatedAt, schema.CoreChapter.UpdatedAt,
		schema.CoreChapter.Table,
		schema.CoreChapter.DocumentID,
		schema.CoreChapter.ChapterNumber,
	)

	// Query execution
	rows, err := repository.pool.Query(context, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list chapters: %w", err)
	}
	defer rows.Close()

	// Row iteration and entity hydration
	var chapters []*Chapter
	for rows.Next() {
		var chapter Chapter
		err := rows.Scan(
			&chapter.ID,
			&chapter.DocumentID,
			&chapter.Number,
			&chapter.Title,
			&chapter.SourceURL,
			&chapter.WordCount,
			&chapter.CreatedAt,
			&chapter.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan chapter: %w", err)
		}
		chapters = append(chapters, &chapter)
	}

	return chapters, nil
}

/*
FindByNumber returns the full chapter occupying one (document, number) slot.

Parameters:
  - context: context.Context
  - documentID: string
  - number: int

Returns:
  - *Chapter: Hydrated row including Content
  - error: apperr.NotFound on absent rows
*/
func (repository *chapterRepository) FindByNumber(context context.Context, documentID string, number int) (*Chapter, error) {

	// Full row projection for the reader view
	query := fmt.Sprintf(`
		SELECT %s, %s, %s, %s, %s, %s, %s, %s, %s
		FROM %s
		WHERE %s = $1 AND %s = $2
	`,
		schema.CoreChapter.ID, schema.CoreChapter.DocumentID, schema.CoreChapter.ChapterNumber,
		schema.CoreChapter.Title, schema.CoreChapter.Content, schema.CoreChapter.SourceURL,
		schema.CoreChapter.WordCount, schema.CoreChapter.CreatedAt, schema.CoreChapter.UpdatedAt,
		schema.CoreChapter.Table,
		schema.CoreChapter.DocumentID, schema.CoreChapter.ChapterNumber,
	)

	// Execute query and hydrate the entity
	var chapter Chapter
	err := repository.pool.QueryRow(context, query, documentID, number).Scan(
		&chapter.ID,
		&chapter.DocumentID,
		&chapter.Number,
		&chapter.Title,
		&chapter.Content,
		&chapter.SourceURL,
		&chapter.WordCount,
		&chapter.CreatedAt,
		&chapter.UpdatedAt,
	)

	// Error resolution
	if err != nil {
		return nil, dberr.Wrap(fmt.Errorf("postgres: failed to find chapter by number: %w", err), "Chapter")
	}

	return &chapter, nil
}
