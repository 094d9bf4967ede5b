// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package siteconfig

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	requestutil "github.com/taibuivan/novira/internal/platform/request"
	"github.com/taibuivan/novira/internal/platform/respond"
)

const (
	FieldItems    = "items"
	FieldTotal    = "total"
	FieldMessage  = "message"
	FieldFilename = "filename"
	FieldValid    = "valid"
	FieldErrors   = "errors"
)

// # Handler Implementation

// Handler implements the HTTP layer for the config registry.
type Handler struct {
	service *Service
}

// NewHandler constructs a new config [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes attaches config registry endpoints to the root API router.
// The probe endpoint lives in the probe package and shares the /configs
// prefix.
func (handler *Handler) RegisterRoutes(api chi.Router) {
	api.Get("/configs", handler.listConfigs)
	api.Post("/configs", handler.createConfig)
	api.Get("/configs/{filename}", handler.getConfig)
	api.Put("/configs/{filename}", handler.updateConfig)
	api.Delete("/configs/{filename}", handler.deleteConfig)
	api.Post("/configs/{filename}/validate", handler.validateConfig)
}

/*
GET /api/v1/configs.

Description: Returns summaries for every stored site config.

Response:
  - 200: items: []Summary, total: int
*/
func (handler *Handler) listConfigs(writer http.ResponseWriter, request *http.Request) {
	summaries, err := handler.service.ListConfigs(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		FieldItems: summaries,
		FieldTotal: len(summaries),
	})
}

// createConfigRequest defines the inbound JSON schema for config creation.
// Config is optional; when omitted the template is copied.
type createConfigRequest struct {
	SiteName string          `json:"site_name"`
	Config   json.RawMessage `json:"config"`
}

/*
POST /api/v1/configs.

Description: Creates a new site config, either from a supplied document or
by copying the template.

Request:
  - site_name: string (Slug; becomes config_<site_name>.json)
  - config: object (Optional full document)

Response:
  - 201: filename: string
  - 400: Invalid site_name
  - 409: Config already exists
  - 422: Document failed validation
*/
func (handler *Handler) createConfig(writer http.ResponseWriter, request *http.Request) {
	var payload createConfigRequest
	if err := requestutil.DecodeJSON(request, &payload); err != nil {
		respond.Error(writer, request, err)
		return
	}

	filename, err := handler.service.CreateConfig(request.Context(), payload.SiteName, payload.Config)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, map[string]any{
		FieldFilename: filename,
	})
}

/*
GET /api/v1/configs/{filename}.

Description: Returns the stored config document, byte for byte.

Response:
  - 200: The raw JSON document
  - 404: Config not found
*/
func (handler *Handler) getConfig(writer http.ResponseWriter, request *http.Request) {
	filename := requestutil.Param(request, "filename")

	document, err := handler.service.GetConfig(request.Context(), filename)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, document)
}

/*
PUT /api/v1/configs/{filename}.

Description: Replaces the stored document. The body is the full config
document itself.

Response:
  - 200: message: string
  - 404: Config not found
  - 422: Document failed validation
*/
func (handler *Handler) updateConfig(writer http.ResponseWriter, request *http.Request) {
	filename := requestutil.Param(request, "filename")

	var document json.RawMessage
	if err := requestutil.DecodeJSON(request, &document); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.UpdateConfig(request.Context(), filename, document); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		FieldMessage: "Config updated",
	})
}

/*
DELETE /api/v1/configs/{filename}.

Description: Removes a stored config. The template is protected.

Response:
  - 204: Deleted
  - 404: Config not found
*/
func (handler *Handler) deleteConfig(writer http.ResponseWriter, request *http.Request) {
	filename := requestutil.Param(request, "filename")

	if err := handler.service.DeleteConfig(request.Context(), filename); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
POST /api/v1/configs/{filename}/validate.

Description: Checks the stored document against the schema rules.

Response:
  - 200: valid: bool, errors: []string
  - 404: Config not found
*/
func (handler *Handler) validateConfig(writer http.ResponseWriter, request *http.Request) {
	filename := requestutil.Param(request, "filename")

	valid, problems, err := handler.service.ValidateFile(request.Context(), filename)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if problems == nil {
		problems = []string{}
	}
	respond.OK(writer, map[string]any{
		FieldValid:  valid,
		FieldErrors: problems,
	})
}
