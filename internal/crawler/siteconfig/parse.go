// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package siteconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/antchfx/xpath"

	"github.com/taibuivan/novira/internal/crawler/extract"
)

// # Document Decoding

/*
Parse decodes a raw config document into a normalized [Config].

Keys beginning with "_" are comments and are stripped recursively before
decoding, so hand-edited files can annotate any level of the tree.
Numeric fields accept JSON numbers or numeric strings.

Parameters:
  - data: []byte (Raw JSON document)

Returns:
  - *Config: The normalized configuration
  - error: Malformed JSON or structurally undecodable fields
*/
func Parse(data []byte) (*Config, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var tree any
	if err := decoder.Decode(&tree); err != nil {
		return nil, fmt.Errorf("siteconfig: malformed json: %w", err)
	}

	cleaned, err := json.Marshal(stripComments(tree))
	if err != nil {
		return nil, fmt.Errorf("siteconfig: re-encode: %w", err)
	}

	var config Config
	if err := json.Unmarshal(cleaned, &config); err != nil {
		return nil, fmt.Errorf("siteconfig: %w", err)
	}
	return &config, nil
}

// stripComments removes "_"-prefixed keys from every object in the tree.
func stripComments(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		for key, child := range typed {
			if strings.HasPrefix(key, "_") {
				delete(typed, key)
				continue
			}
			typed[key] = stripComments(child)
		}
		return typed
	case []any:
		for index, child := range typed {
			typed[index] = stripComments(child)
		}
		return typed
	}
	return value
}

// # Tolerant Field Decoding

// coerceInt reads a JSON number or numeric string, falling back to def.
func coerceInt(raw json.RawMessage, def int) int {
	value, present := coerceFloat(raw)
	if !present {
		return def
	}
	return int(value)
}

// coerceFloat reads a JSON number or numeric string. present is false
// when the field is absent, null, or not numeric.
func coerceFloat(raw json.RawMessage) (value float64, present bool) {
	if len(raw) == 0 {
		return 0, false
	}

	var number float64
	if err := json.Unmarshal(raw, &number); err == nil {
		return number, true
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		parsed, parseErr := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if parseErr != nil {
			return 0, false
		}
		return parsed, true
	}

	return 0, false
}

// decodeLocatorField reads a locator that may be written either as a full
// object or as a bare XPath string shorthand.
func decodeLocatorField(raw json.RawMessage) (*extract.Locator, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var shorthand string
	if err := json.Unmarshal(raw, &shorthand); err == nil {
		if strings.TrimSpace(shorthand) == "" {
			return nil, nil
		}
		return &extract.Locator{Type: extract.TypeXPath, Expression: shorthand}, nil
	}

	var locator extract.Locator
	if err := json.Unmarshal(raw, &locator); err != nil {
		return nil, err
	}
	return &locator, nil
}

// # Custom Unmarshalers

// UnmarshalJSON decodes request options with numeric coercion.
func (options *RequestOptions) UnmarshalJSON(data []byte) error {
	var aux struct {
		Headers  map[string]string `json:"headers"`
		Timeout  json.RawMessage   `json:"timeout_secs"`
		Encoding string            `json:"encoding"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("request: %w", err)
	}

	options.Headers = aux.Headers
	options.Encoding = aux.Encoding
	options.TimeoutSecs = coerceInt(aux.Timeout, 0)
	return nil
}

// UnmarshalJSON decodes crawl options, tracking whether the delay key was
// present so an explicit zero survives defaulting.
func (options *CrawlOptions) UnmarshalJSON(data []byte) error {
	var aux struct {
		Delay      json.RawMessage `json:"request_delay_secs"`
		MaxRetries json.RawMessage `json:"max_retries"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("crawl: %w", err)
	}

	if value, present := coerceFloat(aux.Delay); present {
		options.RequestDelaySecs = value
		options.delaySet = true
	}
	options.MaxRetries = coerceInt(aux.MaxRetries, 0)
	return nil
}

// UnmarshalJSON decodes the parsers block. document_info is optional.
func (parsers *Parsers) UnmarshalJSON(data []byte) error {
	var aux struct {
		DocumentInfo   map[string]extract.Locator `json:"document_info"`
		ChapterList    ChapterListSpec            `json:"chapter_list"`
		ChapterContent ChapterContentSpec         `json:"chapter_content"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("parsers: %w", err)
	}

	parsers.DocumentInfo = aux.DocumentInfo
	parsers.ChapterList = aux.ChapterList
	parsers.ChapterContent = aux.ChapterContent
	return nil
}

// UnmarshalJSON decodes content extraction settings. Older documents name
// the sub-page block "pagination" and carry a flat "max_pages" cap; both
// spellings are folded into NextPage.
func (spec *ChapterContentSpec) UnmarshalJSON(data []byte) error {
	var aux struct {
		Content        extract.Locator       `json:"content"`
		Clean          []extract.ProcessStep `json:"clean"`
		NextPage       *PaginationSpec       `json:"next_page"`
		LegacyNextPage *PaginationSpec       `json:"pagination"`
		LegacyMaxPages json.RawMessage       `json:"max_pages"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("chapter_content: %w", err)
	}

	spec.Content = aux.Content
	spec.Clean = aux.Clean
	spec.NextPage = aux.NextPage
	if spec.NextPage == nil {
		spec.NextPage = aux.LegacyNextPage
	}

	if pageCap := coerceInt(aux.LegacyMaxPages, 0); pageCap > 0 {
		if spec.NextPage == nil {
			spec.NextPage = &PaginationSpec{}
		}
		if spec.NextPage.MaxPageManual <= 0 {
			spec.NextPage.MaxPageManual = pageCap
		}
	}
	return nil
}

// UnmarshalJSON decodes a pagination block. The manual bound accepts both
// the singular and plural key; the live page-count locator accepts a bare
// XPath string or a full locator object, under either "max_page_xpath" or
// the older "max_page" key.
func (pagination *PaginationSpec) UnmarshalJSON(data []byte) error {
	var aux struct {
		Enabled        bool            `json:"enabled"`
		MaxPageManual  json.RawMessage `json:"max_page_manual"`
		MaxPagesManual json.RawMessage `json:"max_pages_manual"`
		MaxPageXPath   json.RawMessage `json:"max_page_xpath"`
		LegacyMaxPage  json.RawMessage `json:"max_page"`
		URLTemplate    string          `json:"url_template"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("pagination: %w", err)
	}

	pagination.Enabled = aux.Enabled
	pagination.URLTemplate = aux.URLTemplate

	manual := aux.MaxPageManual
	if len(manual) == 0 {
		manual = aux.MaxPagesManual
	}
	pagination.MaxPageManual = coerceInt(manual, 0)

	rawLocator := aux.MaxPageXPath
	if len(rawLocator) == 0 {
		rawLocator = aux.LegacyMaxPage
	}
	locator, err := decodeLocatorField(rawLocator)
	if err != nil {
		return fmt.Errorf("pagination: max_page_xpath: %w", err)
	}
	pagination.MaxPage = locator
	return nil
}

// # Validation

/*
Validate checks a decoded config for structural completeness and locator
expression syntax.

Required fields: site.name, site.base_url, the chapter_list items/title/url
locators, and the chapter_content content locator. Every present locator
expression must compile under its selector type.

Parameters:
  - config: *Config (A decoded document)

Returns:
  - []string: One message per problem, prefixed with the JSON path; empty
    when the config is valid
*/
func Validate(config *Config) []string {
	var problems []string

	if strings.TrimSpace(config.Site.Name) == "" {
		problems = append(problems, "site.name is required")
	}
	if strings.TrimSpace(config.Site.BaseURL) == "" {
		problems = append(problems, "site.base_url is required")
	}

	for field, locator := range config.Parsers.DocumentInfo {
		problems = checkExpression(problems, "parsers.document_info."+field, locator)
	}

	list := config.Parsers.ChapterList
	problems = requireLocator(problems, "parsers.chapter_list.items", list.Items)
	problems = requireLocator(problems, "parsers.chapter_list.title", list.Title)
	problems = requireLocator(problems, "parsers.chapter_list.url", list.URL)
	problems = checkPagination(problems, "parsers.chapter_list.pagination", list.Pagination)

	content := config.Parsers.ChapterContent
	problems = requireLocator(problems, "parsers.chapter_content.content", content.Content)
	problems = checkPagination(problems, "parsers.chapter_content.next_page", content.NextPage)

	return problems
}

// requireLocator demands a non-empty expression, then checks its syntax.
func requireLocator(problems []string, path string, locator extract.Locator) []string {
	if strings.TrimSpace(locator.Expression) == "" {
		return append(problems, path+" is required")
	}
	return checkExpression(problems, path, locator)
}

// checkExpression compiles the locator expression under its selector type.
func checkExpression(problems []string, path string, locator extract.Locator) []string {
	expression := strings.TrimSpace(locator.Expression)
	if expression == "" {
		return problems
	}

	switch locator.Type {
	case extract.TypeRegex:
		if _, err := regexp.Compile(expression); err != nil {
			problems = append(problems, fmt.Sprintf("%s: invalid regex: %v", path, err))
		}
	default:
		if _, err := xpath.Compile(expression); err != nil {
			problems = append(problems, fmt.Sprintf("%s: invalid xpath: %v", path, err))
		}
	}
	return problems
}

// checkPagination validates the optional live page-count locator.
func checkPagination(problems []string, path string, pagination *PaginationSpec) []string {
	if pagination == nil || pagination.MaxPage == nil {
		return problems
	}
	return checkExpression(problems, path+".max_page_xpath", *pagination.MaxPage)
}
