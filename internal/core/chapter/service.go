// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package chapter

import (
	"context"
	"log/slog"
)

// # Service Layer

// Service orchestrates read access to chapter content. Writes stay on the
// repository; crawl workers persist without passing through here.
type Service struct {
	chapterRepo ChapterRepository
	logger      *slog.Logger
}

// NewService constructs a new [Service].
func NewService(chapterRepo ChapterRepository, logger *slog.Logger) *Service {
	return &Service{
		chapterRepo: chapterRepo,
		logger:      logger,
	}
}

/*
ListChapters returns the table of contents for a document.

Parameters:
  - context: context.Context
  - documentID: string (UUID)

Returns:
  - []*Chapter: Metadata ordered by number, Content omitted
  - error: Storage failures
*/
func (service *Service) ListChapters(context context.Context, documentID string) ([]*Chapter, error) {
	return service.chapterRepo.ListByDocument(context, documentID)
}

/*
GetChapter returns one chapter with its full content.

Parameters:
  - context: context.Context
  - documentID: string (UUID)
  - number: int (1-based)

Returns:
  - *Chapter: The hydrated entity
  - error: apperr.NotFound if the slot is empty
*/
func (service *Service) GetChapter(context context.Context, documentID string, number int) (*Chapter, error) {
	return service.chapterRepo.FindByNumber(context, documentID, number)
}
