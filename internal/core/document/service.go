// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package document

import (
	"context"
	"log/slog"
	"strings"

	"github.com/taibuivan/novira/internal/core/chapter"
	"github.com/taibuivan/novira/internal/platform/validate"
)

// # Service Layer

// Service orchestrates the reader-facing document operations. The chapter
// repository joins in for the detail view's table of contents.
type Service struct {
	documentRepo DocumentRepository
	chapterRepo  chapter.ChapterRepository
	logger       *slog.Logger
}

// NewService constructs a new [Service] with its required repositories.
func NewService(documentRepo DocumentRepository, chapterRepo chapter.ChapterRepository, logger *slog.Logger) *Service {
	return &Service{
		documentRepo: documentRepo,
		chapterRepo:  chapterRepo,
		logger:       logger,
	}
}

/*
ListDocuments returns one page of the library, most recently updated first.

Parameters:
  - context: context.Context
  - limit: int
  - offset: int

Returns:
  - []*Document: One page of rows
  - int: Total row count
  - error: Storage failures
*/
func (service *Service) ListDocuments(context context.Context, limit, offset int) ([]*Document, int, error) {
	return service.documentRepo.List(context, limit, offset)
}

/*
GetDocument returns a document together with its table of contents.

Parameters:
  - context: context.Context
  - id: string (UUID)

Returns:
  - *Document: The document row
  - []*chapter.Chapter: Chapter metadata ordered by number
  - error: apperr.NotFound if the document is missing
*/
func (service *Service) GetDocument(context context.Context, id string) (*Document, []*chapter.Chapter, error) {

	// Resolve the document first so a bad ID is a clean 404
	document, err := service.documentRepo.FindByID(context, id)
	if err != nil {
		return nil, nil, err
	}

	// Attach the table of contents
	chapters, err := service.chapterRepo.ListByDocument(context, id)
	if err != nil {
		return nil, nil, err
	}

	return document, chapters, nil
}

/*
UpdateDocument applies a partial metadata edit.

Description: Only provided fields change. A provided title must be
non-blank; the other fields accept any value including empty strings,
which clear them.

Parameters:
  - context: context.Context
  - id: string (UUID)
  - patch: MetaPatch

Returns:
  - error: Validation errors or apperr.NotFound
*/
func (service *Service) UpdateDocument(context context.Context, id string, patch MetaPatch) error {

	// Business attribute validation
	validator := &validate.Validator{}
	validator.Custom(FieldTitle, patch.Title != nil && strings.TrimSpace(*patch.Title) == "", "Title cannot be blank")

	if err := validator.Err(); err != nil {
		return err
	}

	// Storage persistence
	if err := service.documentRepo.UpdateMeta(context, id, patch); err != nil {
		return err
	}

	service.logger.Info("document_updated",
		slog.String("document_id", id),
	)

	return nil
}

/*
DeleteDocument removes a document and all of its chapters.

Parameters:
  - context: context.Context
  - id: string (UUID)

Returns:
  - error: apperr.NotFound if missing
*/
func (service *Service) DeleteDocument(context context.Context, id string) error {

	if err := service.documentRepo.Delete(context, id); err != nil {
		return err
	}

	service.logger.Info("document_deleted",
		slog.String("document_id", id),
	)

	return nil
}
