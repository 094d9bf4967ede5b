// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package siteconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/taibuivan/novira/internal/platform/apperr"
	"github.com/taibuivan/novira/internal/platform/validate"
)

const (
	FieldSiteName = "site_name"
	FieldConfig   = "config"
)

// # Service Layer

// Service orchestrates config registry operations. Every document that
// enters the store passes [Parse] and [Validate] first; the registry never
// holds a config the engine cannot load.
type Service struct {
	configRepo ConfigRepository
	logger     *slog.Logger
}

// NewService constructs a new [Service].
func NewService(configRepo ConfigRepository, logger *slog.Logger) *Service {
	return &Service{
		configRepo: configRepo,
		logger:     logger,
	}
}

// # Registry Operations

/*
ListConfigs returns summaries for every stored site config.

Parameters:
  - context: context.Context

Returns:
  - []Summary: Newest first; the template is excluded
  - error: Storage failures
*/
func (service *Service) ListConfigs(context context.Context) ([]Summary, error) {
	return service.configRepo.List(context)
}

/*
GetConfig returns the raw stored document for a config file.

Parameters:
  - context: context.Context
  - filename: string (config_<name>.json)

Returns:
  - json.RawMessage: The stored document
  - error: ErrNotFound if missing
*/
func (service *Service) GetConfig(context context.Context, filename string) (json.RawMessage, error) {
	return service.configRepo.Get(context, filename)
}

/*
CreateConfig stores a new site config.

Description: When no document is supplied the reserved template is copied
with site.name set to siteName. The document must pass schema validation
before it is written.

Parameters:
  - context: context.Context
  - siteName: string (Slug; becomes config_<siteName>.json)
  - document: json.RawMessage (Optional full document)

Returns:
  - string: The filename the config was stored under
  - error: Validation, conflict, or storage errors
*/
func (service *Service) CreateConfig(context context.Context, siteName string, document json.RawMessage) (string, error) {
	siteName = strings.TrimSpace(siteName)

	validator := &validate.Validator{}
	validator.Required(FieldSiteName, siteName)
	if siteName != "" {
		validator.Slug(FieldSiteName, siteName)
	}
	if err := validator.Err(); err != nil {
		return "", err
	}

	filename := FilenamePrefix + siteName + FilenameSuffix

	if len(document) == 0 {
		rendered, err := service.renderTemplate(context, siteName)
		if err != nil {
			return "", err
		}
		document = rendered
	}

	if err := rejectInvalid(document); err != nil {
		return "", err
	}

	if err := service.configRepo.Create(context, filename, document); err != nil {
		return "", err
	}

	service.logger.Info("site_config_created", slog.String("filename", filename))
	return filename, nil
}

/*
UpdateConfig replaces an existing config document.

Parameters:
  - context: context.Context
  - filename: string
  - document: json.RawMessage (The full replacement document)

Returns:
  - error: Unprocessable when the document fails validation; ErrNotFound
    if the file is missing
*/
func (service *Service) UpdateConfig(context context.Context, filename string, document json.RawMessage) error {
	if err := rejectInvalid(document); err != nil {
		return err
	}

	if err := service.configRepo.Update(context, filename, document); err != nil {
		return err
	}

	service.logger.Info("site_config_updated", slog.String("filename", filename))
	return nil
}

/*
DeleteConfig removes a config file. The template is protected.

Parameters:
  - context: context.Context
  - filename: string

Returns:
  - error: ErrNotFound if missing; validation error for the template
*/
func (service *Service) DeleteConfig(context context.Context, filename string) error {
	if err := service.configRepo.Delete(context, filename); err != nil {
		return err
	}

	service.logger.Info("site_config_deleted", slog.String("filename", filename))
	return nil
}

/*
ValidateFile checks a stored config against the schema rules.

Parameters:
  - context: context.Context
  - filename: string

Returns:
  - bool: true when the document parses and passes [Validate]
  - []string: One message per problem; empty when valid
  - error: ErrNotFound if the file is missing
*/
func (service *Service) ValidateFile(context context.Context, filename string) (bool, []string, error) {
	document, err := service.configRepo.Get(context, filename)
	if err != nil {
		return false, nil, err
	}

	problems := validateDocument(document)
	return len(problems) == 0, problems, nil
}

/*
LoadConfig reads and parses a stored config for crawl use.

Parameters:
  - context: context.Context
  - filename: string

Returns:
  - *Config: The normalized configuration
  - error: ErrNotFound or parse failures
*/
func (service *Service) LoadConfig(context context.Context, filename string) (*Config, error) {
	return service.configRepo.LoadConfig(context, filename)
}

// # Helpers

// renderTemplate copies the reserved template document with site.name set.
func (service *Service) renderTemplate(context context.Context, siteName string) (json.RawMessage, error) {
	raw, err := service.configRepo.Get(context, TemplateFilename)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("config template unavailable: %w", err))
	}

	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, apperr.Internal(fmt.Errorf("config template unreadable: %w", err))
	}

	site, ok := tree["site"].(map[string]any)
	if !ok {
		site = map[string]any{}
		tree["site"] = site
	}
	site["name"] = siteName

	rendered, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return rendered, nil
}

// validateDocument parses and validates a raw document, folding parse
// failures into the problem list.
func validateDocument(document []byte) []string {
	config, err := Parse(document)
	if err != nil {
		return []string{err.Error()}
	}
	return Validate(config)
}

// rejectInvalid converts validation problems into a 422 error.
func rejectInvalid(document []byte) error {
	problems := validateDocument(document)
	if len(problems) == 0 {
		return nil
	}

	details := make([]apperr.FieldError, 0, len(problems))
	for _, problem := range problems {
		details = append(details, apperr.FieldError{Field: FieldConfig, Message: problem})
	}
	return apperr.Unprocessable("Config document failed validation", details...)
}
