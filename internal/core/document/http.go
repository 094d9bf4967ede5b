// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package document

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	requestutil "github.com/taibuivan/novira/internal/platform/request"
	"github.com/taibuivan/novira/internal/platform/respond"
	"github.com/taibuivan/novira/pkg/pagination"
)

// # Handler Implementation

// Handler implements the HTTP layer for the document library.
type Handler struct {
	service *Service
}

// NewHandler constructs a new document [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes attaches the library endpoints to the root API router.
// Chapter content endpoints live in the chapter package and share the
// /documents prefix.
func (handler *Handler) RegisterRoutes(api chi.Router) {
	api.Get("/documents", handler.ListDocuments)
	api.Get("/documents/{documentID}", handler.GetDocument)
	api.Patch("/documents/{documentID}", handler.UpdateDocument)
	api.Delete("/documents/{documentID}", handler.DeleteDocument)
}

// # Library Browsing

/*
GET /api/v1/documents.

Description: Returns one page of the crawled library, most recently
updated first.

Request:
  - page: int (1-indexed)
  - limit: int

Response:
  - 200: []Document: Paginated rows with meta block
*/
func (handler *Handler) ListDocuments(writer http.ResponseWriter, request *http.Request) {
	paginationParams := pagination.FromRequest(request)

	documents, total, err := handler.service.ListDocuments(request.Context(), paginationParams.Limit, paginationParams.Offset())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	// Keep the empty case a JSON array, not null
	if documents == nil {
		documents = []*Document{}
	}

	respond.Paginated(writer, documents, pagination.NewMeta(paginationParams.Page, paginationParams.Limit, total))
}

/*
GET /api/v1/documents/{documentID}.

Description: Returns a document together with its table of contents.
Chapter content bodies are omitted.

Request:
  - documentID: string (UUID)

Response:
  - 200: document/chapters: Detail plus ordered chapter metadata
  - 404: ErrNotFound: Unknown document
*/
func (handler *Handler) GetDocument(writer http.ResponseWriter, request *http.Request) {
	documentID := requestutil.ID(request, "documentID")

	document, chapters, err := handler.service.GetDocument(request.Context(), documentID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		FieldDocument: document,
		FieldChapters: chapters,
	})
}

// # Metadata Editing

// updateDocumentRequest defines the inbound JSON schema for metadata edits.
// Absent fields keep their stored values.
type updateDocumentRequest struct {
	Title    *string `json:"title"`
	Author   *string `json:"author"`
	Intro    *string `json:"intro"`
	CoverURL *string `json:"cover_url"`
}

/*
PATCH /api/v1/documents/{documentID}.

Description: Edits display metadata. Fields left out of the body stay
unchanged; a provided title must be non-blank.

Request:
  - documentID: string (UUID)
  - body: updateDocumentRequest

Response:
  - 200: message: Confirmation
  - 400: ErrInvalidJSON/Validation: Invalid payload
  - 404: ErrNotFound: Unknown document
*/
func (handler *Handler) UpdateDocument(writer http.ResponseWriter, request *http.Request) {
	documentID := requestutil.ID(request, "documentID")

	var input updateDocumentRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	patch := MetaPatch{
		Title:    input.Title,
		Author:   input.Author,
		Intro:    input.Intro,
		CoverURL: input.CoverURL,
	}

	if err := handler.service.UpdateDocument(request.Context(), documentID, patch); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{FieldMessage: "Document updated"})
}

/*
DELETE /api/v1/documents/{documentID}.

Description: Removes a document and every chapter under it.

Request:
  - documentID: string (UUID)

Response:
  - 204: No content
  - 404: ErrNotFound: Unknown document
*/
func (handler *Handler) DeleteDocument(writer http.ResponseWriter, request *http.Request) {
	documentID := requestutil.ID(request, "documentID")

	if err := handler.service.DeleteDocument(request.Context(), documentID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}
