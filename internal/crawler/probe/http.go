// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package probe

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	requestutil "github.com/taibuivan/novira/internal/platform/request"
	"github.com/taibuivan/novira/internal/platform/respond"
)

const (
	FieldURL         = "url"
	FieldTestType    = "test_type"
	FieldProbeResult = "result"
)

// # Handler Implementation

// Handler implements the HTTP layer for config probes.
type Handler struct {
	service *Service
}

// NewHandler constructs a new probe [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes attaches the probe endpoint next to the config registry
// routes owned by the siteconfig package.
func (handler *Handler) RegisterRoutes(api chi.Router) {
	api.Post("/configs/{filename}/probe", handler.probeConfig)
}

// probeRequest defines the inbound JSON schema for a probe.
type probeRequest struct {
	URL      string `json:"url"`
	TestType string `json:"test_type"`
}

/*
POST /api/v1/configs/{filename}/probe.

Description: Fetches the given URL with the named config's request options
and evaluates one parser tree against the live page. test_type selects the
tree and defaults to document_info.

Response:
  - 200: result: Result
  - 400: Invalid URL or test type
  - 404: Unknown config
  - 422: Page fetch failed
*/
func (handler *Handler) probeConfig(writer http.ResponseWriter, request *http.Request) {
	filename := requestutil.Param(request, "filename")

	var payload probeRequest
	if err := requestutil.DecodeJSON(request, &payload); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.service.Run(request.Context(), filename, payload.URL, payload.TestType)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		FieldProbeResult: result,
	})
}
