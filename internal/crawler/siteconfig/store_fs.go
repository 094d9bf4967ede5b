// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package siteconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/taibuivan/novira/internal/platform/apperr"
)

// # Config Store (Filesystem)

// fileRepository implements [ConfigRepository] over a directory of
// config_<name>.json documents.
type fileRepository struct {
	dir    string
	logger *slog.Logger
}

// NewFileRepository constructs a filesystem-backed config repository
// rooted at dir.
func NewFileRepository(dir string, logger *slog.Logger) ConfigRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &fileRepository{dir: dir, logger: logger}
}

// ValidFilename reports whether filename has the config_<name>.json shape
// and contains no path elements.
func ValidFilename(filename string) bool {
	if filepath.Base(filename) != filename {
		return false
	}
	if !strings.HasPrefix(filename, FilenamePrefix) || !strings.HasSuffix(filename, FilenameSuffix) {
		return false
	}
	return len(filename) > len(FilenamePrefix)+len(FilenameSuffix)
}

func (repository *fileRepository) List(_ context.Context) ([]Summary, error) {
	entries, err := os.ReadDir(repository.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Summary{}, nil
		}
		return nil, fmt.Errorf("fsstore: failed to list configs: %w", err)
	}

	summaries := make([]Summary, 0, len(entries))
	for _, entry := range entries {
		filename := entry.Name()
		if entry.IsDir() || filename == TemplateFilename || !ValidFilename(filename) {
			continue
		}

		document, readErr := os.ReadFile(filepath.Join(repository.dir, filename))
		if readErr != nil {
			repository.logger.Warn("config_file_unreadable",
				slog.String("filename", filename),
				slog.Any("error", readErr))
			continue
		}

		config, parseErr := Parse(document)
		if parseErr != nil {
			repository.logger.Warn("config_file_unparseable",
				slog.String("filename", filename),
				slog.Any("error", parseErr))
			continue
		}

		info, infoErr := entry.Info()
		summary := Summary{
			Filename: filename,
			Name:     config.Site.Name,
			BaseURL:  config.Site.BaseURL,
		}
		if infoErr == nil {
			summary.ModifiedAt = info.ModTime().UTC()
		}
		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(left, right int) bool {
		return summaries[left].ModifiedAt.After(summaries[right].ModifiedAt)
	})
	return summaries, nil
}

func (repository *fileRepository) Get(_ context.Context, filename string) (json.RawMessage, error) {
	if !ValidFilename(filename) {
		return nil, apperr.ValidationError("Invalid config filename")
	}

	document, err := os.ReadFile(filepath.Join(repository.dir, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.NotFound("Config")
		}
		return nil, fmt.Errorf("fsstore: failed to read config: %w", err)
	}
	return document, nil
}

func (repository *fileRepository) Create(_ context.Context, filename string, document []byte) error {
	if !ValidFilename(filename) {
		return apperr.ValidationError("Invalid config filename")
	}

	path := filepath.Join(repository.dir, filename)
	if _, err := os.Stat(path); err == nil {
		return apperr.Conflict("Config already exists")
	}

	if err := os.MkdirAll(repository.dir, 0o755); err != nil {
		return fmt.Errorf("fsstore: failed to create config dir: %w", err)
	}
	if err := os.WriteFile(path, document, 0o644); err != nil {
		return fmt.Errorf("fsstore: failed to write config: %w", err)
	}
	return nil
}

func (repository *fileRepository) Update(_ context.Context, filename string, document []byte) error {
	if !ValidFilename(filename) {
		return apperr.ValidationError("Invalid config filename")
	}

	path := filepath.Join(repository.dir, filename)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return apperr.NotFound("Config")
		}
		return fmt.Errorf("fsstore: failed to stat config: %w", err)
	}

	if err := os.WriteFile(path, document, 0o644); err != nil {
		return fmt.Errorf("fsstore: failed to write config: %w", err)
	}
	return nil
}

func (repository *fileRepository) Delete(_ context.Context, filename string) error {
	if filename == TemplateFilename {
		return apperr.ValidationError("The template config cannot be deleted")
	}
	if !ValidFilename(filename) {
		return apperr.ValidationError("Invalid config filename")
	}

	err := os.Remove(filepath.Join(repository.dir, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return apperr.NotFound("Config")
		}
		return fmt.Errorf("fsstore: failed to delete config: %w", err)
	}
	return nil
}

func (repository *fileRepository) LoadConfig(context context.Context, filename string) (*Config, error) {
	document, err := repository.Get(context, filename)
	if err != nil {
		return nil, err
	}
	return Parse(document)
}
