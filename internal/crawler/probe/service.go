// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package probe runs one-off extraction checks against live pages.

Config authors iterate on locators by pointing a stored config at a real
URL and inspecting what each parser tree extracts, including the raw
matches and every post-process step, without queueing a crawl task.
*/
package probe

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/taibuivan/novira/internal/crawler/extract"
	"github.com/taibuivan/novira/internal/crawler/fetch"
	"github.com/taibuivan/novira/internal/crawler/siteconfig"
	"github.com/taibuivan/novira/internal/platform/apperr"
	"github.com/taibuivan/novira/internal/platform/validate"
)

// Probe kinds, one per parser tree in a config.
const (
	TestDocumentInfo   = "document_info"
	TestChapterList    = "chapter_list"
	TestChapterContent = "chapter_content"
)

// sampleLimit caps how many chapter entries a list probe echoes back.
const sampleLimit = 5

// ConfigLoader resolves a config filename into a parsed site config.
// Implemented by the siteconfig service.
type ConfigLoader interface {
	LoadConfig(context context.Context, filename string) (*siteconfig.Config, error)
}

// PageFetcher grabs one page. Satisfied by the fetch client.
type PageFetcher interface {
	Get(rawURL string) (string, bool)
}

// ClientFactory builds the fetcher for one probe from the target config's
// request options.
type ClientFactory func(config *siteconfig.Config) PageFetcher

// # Probe Results

// FieldResult is one document-info field with its evaluation trace.
type FieldResult struct {
	Value extract.Value  `json:"value"`
	Trace *extract.Trace `json:"trace"`
}

// ListResult summarizes a chapter-list probe.
type ListResult struct {
	Total  int                   `json:"total"`
	Sample []extract.ChapterItem `json:"sample"`
}

// ContentResult is a chapter-content probe over a single page; the clean
// steps run the way a crawl applies them to the joined text.
type ContentResult struct {
	Text   string         `json:"text"`
	Length int            `json:"length"`
	Trace  *extract.Trace `json:"trace"`
}

// Result is the typed outcome of one probe. Exactly one of the payload
// members is set, matching Type.
type Result struct {
	Type    string                 `json:"type"`
	Fields  map[string]FieldResult `json:"fields,omitempty"`
	List    *ListResult            `json:"list,omitempty"`
	Content *ContentResult         `json:"content,omitempty"`
}

// # Service Implementation

// Service wires probes to the config registry and the extraction stack.
type Service struct {
	configs   ConfigLoader
	factory   ClientFactory
	evaluator *extract.Evaluator
	logger    *slog.Logger
}

// NewService constructs a probe [Service]. A nil factory builds a direct
// fetch client from each config's request options.
func NewService(configs ConfigLoader, factory ClientFactory, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		configs:   configs,
		factory:   factory,
		evaluator: extract.NewEvaluator(logger),
		logger:    logger,
	}
}

/*
Run fetches the URL with the named config's request options and evaluates
one parser tree against the page.

Description: An empty test type defaults to document_info. The fetch uses
the config's headers, charset, timeout and retry budget; proxies never
apply to probes.

Parameters:
  - context: context.Context
  - filename: string (Stored config name)
  - rawURL: string (Page to probe)
  - testType: string (document_info | chapter_list | chapter_content)

Returns:
  - *Result: The typed probe outcome
  - error: Validation failures, apperr.NotFound for an unknown config,
    apperr.Unprocessable when the page cannot be fetched
*/
func (service *Service) Run(context context.Context, filename, rawURL, testType string) (*Result, error) {
	if testType == "" {
		testType = TestDocumentInfo
	}

	validator := &validate.Validator{}
	validator.Required(FieldURL, rawURL)
	if rawURL != "" {
		validator.URL(FieldURL, rawURL)
	}
	validator.OneOf(FieldTestType, testType, TestDocumentInfo, TestChapterList, TestChapterContent)
	if err := validator.Err(); err != nil {
		return nil, err
	}

	config, err := service.configs.LoadConfig(context, filename)
	if err != nil {
		return nil, err
	}

	page, ok := service.fetcher(config).Get(rawURL)
	if !ok {
		return nil, apperr.Unprocessable("Page fetch failed")
	}

	service.logger.Info("probe_run",
		slog.String("config", filename),
		slog.String("test_type", testType),
		slog.Int("page_bytes", len(page)))

	switch testType {
	case TestChapterList:
		return service.probeList(config, page, rawURL), nil
	case TestChapterContent:
		return service.probeContent(config, page), nil
	default:
		return service.probeInfo(config, page), nil
	}
}

// fetcher builds the page client for one probe.
func (service *Service) fetcher(config *siteconfig.Config) PageFetcher {
	if service.factory != nil {
		return service.factory(config)
	}
	return fetch.NewClient(fetch.Options{
		Headers:    config.Request.Headers,
		Timeout:    config.Timeout(),
		Encoding:   config.Request.Encoding,
		MaxRetries: config.MaxRetries(),
		Logger:     service.logger,
	})
}

// probeInfo traces every document-info field.
func (service *Service) probeInfo(config *siteconfig.Config, page string) *Result {
	fields := make(map[string]FieldResult, len(config.Parsers.DocumentInfo))
	for name, locator := range config.Parsers.DocumentInfo {
		value, trace := service.evaluator.EvaluateTrace(page, locator)
		fields[name] = FieldResult{Value: value, Trace: trace}
	}
	return &Result{Type: TestDocumentInfo, Fields: fields}
}

// probeList parses chapter entries off the fetched page and echoes a
// bounded sample.
func (service *Service) probeList(config *siteconfig.Config, page, pageURL string) *Result {
	spec := config.Parsers.ChapterList
	items := service.evaluator.ChapterItems(page, spec.Items, spec.Title, spec.URL, pageURL)

	sample := items
	if len(sample) > sampleLimit {
		sample = sample[:sampleLimit]
	}
	if sample == nil {
		sample = []extract.ChapterItem{}
	}
	return &Result{Type: TestChapterList, List: &ListResult{Total: len(items), Sample: sample}}
}

// probeContent extracts chapter text from the single fetched page.
func (service *Service) probeContent(config *siteconfig.Config, page string) *Result {
	spec := config.Parsers.ChapterContent

	value, trace := service.evaluator.EvaluateTrace(page, spec.Content)
	text := renderText(value)
	if len(spec.Clean) > 0 {
		text = renderText(service.evaluator.Apply(text, spec.Clean))
	}

	return &Result{Type: TestChapterContent, Content: &ContentResult{
		Text:   text,
		Length: utf8.RuneCountInString(text),
		Trace:  trace,
	}}
}

// renderText flattens an extracted content value the way a crawl does:
// list results join with newlines after dropping blank lines.
func renderText(value extract.Value) string {
	if list, ok := extract.AsList(value); ok {
		kept := make([]string, 0, len(list))
		for _, line := range list {
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				kept = append(kept, trimmed)
			}
		}
		return strings.Join(kept, "\n")
	}

	text, _ := extract.AsString(value)
	return text
}
