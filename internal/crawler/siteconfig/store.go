// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package siteconfig

import (
	"context"
	"encoding/json"
	"time"
)

// # Filename Conventions

const (
	// FilenamePrefix and FilenameSuffix bound the config_<name>.json shape.
	FilenamePrefix = "config_"
	FilenameSuffix = ".json"

	// TemplateFilename is the reserved skeleton document. It never appears
	// in listings and can never be deleted.
	TemplateFilename = "config_template.json"
)

// # Listing Shape

// Summary describes one stored config for listings. Name and BaseURL come
// from the parsed document; unparseable files are skipped.
type Summary struct {
	Filename   string    `json:"filename"`
	Name       string    `json:"name"`
	BaseURL    string    `json:"base_url"`
	ModifiedAt time.Time `json:"modified_at"`
}

// # Config Registry Contract

// ConfigRepository defines the persistence contract for site config
// documents.
type ConfigRepository interface {

	/*
		List returns summaries for every stored config, newest first.
		The template file is excluded.

		Parameters:
		  - context: context.Context

		Returns:
		  - []Summary: One entry per readable config
		  - error: Storage failures
	*/
	List(context context.Context) ([]Summary, error)

	/*
		Get returns the raw document for a config file.

		Parameters:
		  - context: context.Context
		  - filename: string (config_<name>.json)

		Returns:
		  - json.RawMessage: The stored document, byte for byte
		  - error: ErrNotFound if missing
	*/
	Get(context context.Context, filename string) (json.RawMessage, error)

	/*
		Create stores a new config document.

		Parameters:
		  - context: context.Context
		  - filename: string
		  - document: []byte

		Returns:
		  - error: Conflict when the file already exists
	*/
	Create(context context.Context, filename string, document []byte) error

	/*
		Update replaces an existing config document.

		Parameters:
		  - context: context.Context
		  - filename: string
		  - document: []byte

		Returns:
		  - error: ErrNotFound if missing
	*/
	Update(context context.Context, filename string, document []byte) error

	/*
		Delete removes a config file. The template is protected.

		Parameters:
		  - context: context.Context
		  - filename: string

		Returns:
		  - error: ErrNotFound if missing; validation error for the template
	*/
	Delete(context context.Context, filename string) error

	/*
		LoadConfig reads and parses a config document in one step.

		Parameters:
		  - context: context.Context
		  - filename: string

		Returns:
		  - *Config: The normalized configuration
		  - error: ErrNotFound or parse failures
	*/
	LoadConfig(context context.Context, filename string) (*Config, error)
}
