// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package chapter

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/novira/internal/platform/apperr"
	requestutil "github.com/taibuivan/novira/internal/platform/request"
	"github.com/taibuivan/novira/internal/platform/respond"
)

const (
	FieldItems = "items"
	FieldTotal = "total"
)

// # Handler Implementation

// Handler implements the HTTP layer for reading chapters.
type Handler struct {
	service *Service
}

// NewHandler constructs a new chapter [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes attaches chapter endpoints under the owning document.
func (handler *Handler) RegisterRoutes(api chi.Router) {
	api.Get("/documents/{documentID}/chapters", handler.ListChapters)
	api.Get("/documents/{documentID}/chapters/{number}", handler.GetChapter)
}

// # Chapter Retrieval

/*
GET /api/v1/documents/{documentID}/chapters.

Description: Returns the full table of contents for a document. Content
bodies are omitted; fetch them per chapter.

Request:
  - documentID: string (UUID)

Response:
  - 200: items/total: Metadata ordered by chapter number
*/
func (handler *Handler) ListChapters(writer http.ResponseWriter, request *http.Request) {
	documentID := requestutil.ID(request, "documentID")

	chapters, err := handler.service.ListChapters(request.Context(), documentID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	// Keep the empty case a JSON array, not null
	if chapters == nil {
		chapters = []*Chapter{}
	}

	respond.OK(writer, map[string]any{
		FieldItems: chapters,
		FieldTotal: len(chapters),
	})
}

/*
GET /api/v1/documents/{documentID}/chapters/{number}.

Description: Returns one chapter including its full text.

Request:
  - documentID: string (UUID)
  - number: int (1-based reading position)

Response:
  - 200: Chapter: Full chapter including content
  - 400: Validation: Non-numeric chapter number
  - 404: ErrNotFound: No chapter in that slot
*/
func (handler *Handler) GetChapter(writer http.ResponseWriter, request *http.Request) {
	documentID := requestutil.ID(request, "documentID")

	number, err := strconv.Atoi(requestutil.Param(request, "number"))
	if err != nil || number < 1 {
		respond.Error(writer, request, apperr.ValidationError("Chapter number must be a positive integer"))
		return
	}

	chapter, err := handler.service.GetChapter(request.Context(), documentID, number)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, chapter)
}
