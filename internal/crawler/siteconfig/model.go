// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package siteconfig defines the declarative per-site crawl configuration.

A config is a single JSON document describing how one source site is
fetched and parsed: request headers and timing, URL templates for the
site's page scheme, and locator trees for the document page, the chapter
list, and chapter content. Documents are normalized into typed records at
load time; downstream code never touches raw maps.

# Core Responsibility

  - Decoding: Tolerant JSON parsing ([Parse]) with comment-key stripping
    and numeric coercion for hand-edited files.
  - Validation: Structural and expression-syntax checks ([Validate]) with
    JSON-path error messages.
  - Registry: A filesystem-backed store of config_<name>.json documents
    under SITE_CONFIG_DIR.

Locator and post-process semantics live in the extract package; siteconfig
owns only their JSON decoding and placement within the document.
*/
package siteconfig

import (
	"regexp"
	"strings"
	"time"

	"github.com/taibuivan/novira/internal/crawler/extract"
	"github.com/taibuivan/novira/internal/platform/constants"
)

// # URL Template Names

// Well-known template keys the crawl engine resolves via [Config.BuildURL].
const (
	// TemplateBookDetail renders the landing page for a book id.
	TemplateBookDetail = "book_detail"

	// TemplateChapterListPage renders page N of a paginated chapter list.
	TemplateChapterListPage = "chapter_list_page"

	// TemplateChapterContentPage renders sub-page N of a chapter.
	TemplateChapterContentPage = "chapter_content_page"
)

// # Config Document

// Config is one site's crawl configuration, decoded and normalized.
type Config struct {
	Site         Site              `json:"site"`
	Request      RequestOptions    `json:"request"`
	Crawl        CrawlOptions      `json:"crawl"`
	URLTemplates map[string]string `json:"url_templates"`
	Parsers      Parsers           `json:"parsers"`
}

// Site identifies the source site. Name keys the idempotency ledger and
// must stay stable across config edits.
type Site struct {
	Name    string `json:"name"`
	BaseURL string `json:"base_url"`
}

// RequestOptions tunes the HTTP client built for this site.
type RequestOptions struct {
	Headers     map[string]string
	TimeoutSecs int
	Encoding    string // charset override (e.g. "gbk"); empty means auto-detect
}

// CrawlOptions shapes crawl throughput.
type CrawlOptions struct {
	RequestDelaySecs float64
	MaxRetries       int

	// delaySet distinguishes an explicit zero delay from an absent key.
	delaySet bool
}

// Parsers holds the locator trees for the three page kinds.
type Parsers struct {
	DocumentInfo   map[string]extract.Locator
	ChapterList    ChapterListSpec
	ChapterContent ChapterContentSpec
}

// ChapterListSpec describes how chapter entries are read off a list page.
// Items selects the entry subtrees; Title and URL are evaluated within
// each subtree's local scope.
type ChapterListSpec struct {
	Items      extract.Locator `json:"items"`
	Title      extract.Locator `json:"title"`
	URL        extract.Locator `json:"url"`
	Pagination *PaginationSpec `json:"pagination"`
}

// ChapterContentSpec describes how a chapter's body text is extracted.
// Clean steps run once over the fully joined content.
type ChapterContentSpec struct {
	Content  extract.Locator
	Clean    []extract.ProcessStep
	NextPage *PaginationSpec
}

// PaginationSpec bounds and drives a pagination loop. The same shape
// serves both list pages (chapter_list.pagination) and content sub-pages
// (chapter_content.next_page).
type PaginationSpec struct {
	Enabled       bool
	MaxPageManual int
	MaxPage       *extract.Locator // optional live extraction of the page count
	URLTemplate   string           // overrides the phase's default template name
}

// # Accessors

// Timeout returns the per-request socket timeout.
func (config *Config) Timeout() time.Duration {
	seconds := config.Request.TimeoutSecs
	if seconds <= 0 {
		seconds = constants.DefaultFetchTimeoutSecs
	}
	return time.Duration(seconds) * time.Second
}

// RequestDelay returns the pause applied after each persisted chapter.
// An explicit zero disables the pause; an absent key gets the default.
func (config *Config) RequestDelay() time.Duration {
	if !config.Crawl.delaySet {
		return time.Duration(constants.DefaultRequestDelaySecs * float64(time.Second))
	}
	if config.Crawl.RequestDelaySecs <= 0 {
		return 0
	}
	return time.Duration(config.Crawl.RequestDelaySecs * float64(time.Second))
}

// MaxRetries returns the fetch attempt bound per URL.
func (config *Config) MaxRetries() int {
	if config.Crawl.MaxRetries <= 0 {
		return constants.DefaultMaxRetries
	}
	return config.Crawl.MaxRetries
}

// MaxPages returns the manual page bound, or fallback when the block is
// absent or sets no positive value. Safe on a nil receiver.
func (pagination *PaginationSpec) MaxPages(fallback int) int {
	if pagination == nil || pagination.MaxPageManual <= 0 {
		return fallback
	}
	return pagination.MaxPageManual
}

// TemplateName returns the template key for this pagination phase,
// honouring a per-config override. Safe on a nil receiver.
func (pagination *PaginationSpec) TemplateName(fallback string) string {
	if pagination == nil || pagination.URLTemplate == "" {
		return fallback
	}
	return pagination.URLTemplate
}

// # URL Construction

// placeholderPattern matches named {placeholder} slots in URL templates.
var placeholderPattern = regexp.MustCompile(`\{([a-z_]+)\}`)

/*
BuildURL renders a named URL template with the given parameters.

Placeholders take the form {book_id}, {chapter_id}, {page}. Relative
results resolve against site.base_url.

Parameters:
  - name: string (Template key, e.g. TemplateChapterListPage)
  - params: map[string]string (Placeholder values)

Returns:
  - string: The rendered absolute URL
  - bool: false when the template is missing or a placeholder has no value
*/
func (config *Config) BuildURL(name string, params map[string]string) (string, bool) {
	template, exists := config.URLTemplates[name]
	if !exists || template == "" {
		return "", false
	}

	unresolved := false
	rendered := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := match[1 : len(match)-1]
		value, filled := params[key]
		if !filled || value == "" {
			unresolved = true
			return match
		}
		return value
	})
	if unresolved {
		return "", false
	}

	if !strings.HasPrefix(rendered, "http") {
		rendered = extract.ResolveURL(config.Site.BaseURL, rendered)
	}
	return rendered, true
}
