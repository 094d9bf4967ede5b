// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package siteconfig_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/novira/internal/crawler/extract"
	"github.com/taibuivan/novira/internal/crawler/siteconfig"
)

// fullDocument exercises every block of the config schema, including
// comment keys, numeric strings, and both pagination spellings.
const fullDocument = `{
	"_comment": "fixture for a dxmwx-style site",
	"site": {"name": "dxmwx", "base_url": "https://www.dxmwx.org"},
	"request": {
		"headers": {"User-Agent": "Mozilla/5.0"},
		"timeout_secs": "45",
		"encoding": "utf-8"
	},
	"crawl": {"request_delay_secs": 0.5, "max_retries": 3},
	"url_templates": {
		"book_detail": "/book/{book_id}.html",
		"chapter_list_page": "/chapter/{book_id}_{page}.html",
		"chapter_content_page": "https://www.dxmwx.org/read/{book_id}_{chapter_id}_{page}.html"
	},
	"parsers": {
		"_comment": "locator trees",
		"document_info": {
			"_note": "title feeds the document store",
			"title": {"type": "xpath", "expression": "//h1/text()", "index": 0},
			"author": {
				"type": "xpath",
				"expression": "//div[@class='author']/text()",
				"index": 0,
				"process": [
					{"method": "replace", "params": {"old": "Author:", "new": ""}},
					{"method": "strip"}
				]
			}
		},
		"chapter_list": {
			"items": {"type": "xpath", "expression": "//div[@id='list']//a", "index": 999},
			"title": {"type": "xpath", "expression": "./text()", "index": 0},
			"url": {"type": "xpath", "expression": "./@href", "index": 0},
			"pagination": {
				"enabled": true,
				"max_page_manual": "2",
				"max_page_xpath": "//select[@id='page']/option[last()]/text()"
			}
		},
		"chapter_content": {
			"content": {"type": "xpath", "expression": "//div[@id='content']/text()", "index": 999},
			"clean": [{"method": "strip"}],
			"next_page": {
				"enabled": true,
				"max_pages_manual": 3,
				"max_page_xpath": {
					"type": "xpath",
					"expression": "//span[@class='pages']/text()",
					"index": 0,
					"default": "1"
				}
			}
		}
	}
}`

// minimalDocument carries only the required fields.
const minimalDocument = `{
	"site": {"name": "69shu", "base_url": "https://www.69shu.com"},
	"parsers": {
		"chapter_list": {
			"items": {"type": "xpath", "expression": "//ul[@class='chapters']//a"},
			"title": {"type": "xpath", "expression": "./text()"},
			"url": {"type": "xpath", "expression": "./@href"}
		},
		"chapter_content": {
			"content": {"type": "xpath", "expression": "//div[@class='txt']/text()"}
		}
	}
}`

/*
TestParse_FullDocument verifies decoding of a complete document: comment
stripping, numeric coercion, and both pagination key spellings.
*/
func TestParse_FullDocument(t *testing.T) {
	config, err := siteconfig.Parse([]byte(fullDocument))
	require.NoError(t, err)

	// Site & request
	assert.Equal(t, "dxmwx", config.Site.Name)
	assert.Equal(t, "https://www.dxmwx.org", config.Site.BaseURL)
	assert.Equal(t, "Mozilla/5.0", config.Request.Headers["User-Agent"])
	assert.Equal(t, 45, config.Request.TimeoutSecs) // numeric string coerced
	assert.Equal(t, "utf-8", config.Request.Encoding)

	// Crawl accessors
	assert.Equal(t, 45*time.Second, config.Timeout())
	assert.Equal(t, 500*time.Millisecond, config.RequestDelay())
	assert.Equal(t, 3, config.MaxRetries())

	// Comment keys never survive decoding
	assert.Len(t, config.Parsers.DocumentInfo, 2)
	assert.NotContains(t, config.Parsers.DocumentInfo, "_note")

	author := config.Parsers.DocumentInfo["author"]
	require.Len(t, author.Process, 2)
	assert.Equal(t, "replace", author.Process[0].Method)
	assert.Equal(t, "Author:", author.Process[0].Params["old"])

	// List pagination: numeric-string bound plus string-shorthand locator
	pagination := config.Parsers.ChapterList.Pagination
	require.NotNil(t, pagination)
	assert.True(t, pagination.Enabled)
	assert.Equal(t, 2, pagination.MaxPageManual)
	require.NotNil(t, pagination.MaxPage)
	assert.Equal(t, extract.TypeXPath, pagination.MaxPage.Type)
	assert.Equal(t, "//select[@id='page']/option[last()]/text()", pagination.MaxPage.Expression)

	// Content pagination: plural manual key plus full locator object
	nextPage := config.Parsers.ChapterContent.NextPage
	require.NotNil(t, nextPage)
	assert.True(t, nextPage.Enabled)
	assert.Equal(t, 3, nextPage.MaxPageManual)
	require.NotNil(t, nextPage.MaxPage)
	require.NotNil(t, nextPage.MaxPage.Default)
	assert.Equal(t, "1", *nextPage.MaxPage.Default)

	require.Len(t, config.Parsers.ChapterContent.Clean, 1)
	assert.Equal(t, "strip", config.Parsers.ChapterContent.Clean[0].Method)
}

/*
TestParse_Defaults verifies the house defaults applied when tuning fields
are absent.
*/
func TestParse_Defaults(t *testing.T) {
	config, err := siteconfig.Parse([]byte(minimalDocument))
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, config.Timeout())
	assert.Equal(t, 300*time.Millisecond, config.RequestDelay())
	assert.Equal(t, 20, config.MaxRetries())

	// Absent pagination blocks fall back through nil-safe accessors.
	assert.Nil(t, config.Parsers.ChapterList.Pagination)
	assert.Equal(t, 100, config.Parsers.ChapterList.Pagination.MaxPages(100))
	assert.Nil(t, config.Parsers.ChapterContent.NextPage)
	assert.Equal(t, 5, config.Parsers.ChapterContent.NextPage.MaxPages(5))
	assert.Equal(t, siteconfig.TemplateChapterListPage,
		config.Parsers.ChapterList.Pagination.TemplateName(siteconfig.TemplateChapterListPage))
}

/*
TestParse_ExplicitZeroDelay verifies that request_delay_secs set to zero
disables the pause instead of falling back to the default.
*/
func TestParse_ExplicitZeroDelay(t *testing.T) {
	document := `{
		"site": {"name": "fast", "base_url": "https://fast.example.com"},
		"crawl": {"request_delay_secs": 0},
		"parsers": {}
	}`

	config, err := siteconfig.Parse([]byte(document))
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), config.RequestDelay())
}

/*
TestParse_LegacyShapes verifies that older documents decode: the content
pagination block under "pagination", a flat "max_pages" cap, and the
"max_page" locator alias.
*/
func TestParse_LegacyShapes(t *testing.T) {
	document := `{
		"site": {"name": "legacy", "base_url": "https://legacy.example.com"},
		"parsers": {
			"chapter_content": {
				"content": {"type": "xpath", "expression": "//div[@id='txt']/text()"},
				"max_pages": 8,
				"pagination": {
					"enabled": true,
					"max_page": {"type": "xpath", "expression": "//em[@id='pages']/text()", "index": 0}
				}
			}
		}
	}`

	config, err := siteconfig.Parse([]byte(document))
	require.NoError(t, err)

	nextPage := config.Parsers.ChapterContent.NextPage
	require.NotNil(t, nextPage)
	assert.True(t, nextPage.Enabled)
	assert.Equal(t, 8, nextPage.MaxPageManual) // flat cap folded in
	require.NotNil(t, nextPage.MaxPage)
	assert.Equal(t, "//em[@id='pages']/text()", nextPage.MaxPage.Expression)
}

/*
TestParse_MalformedJSON verifies the error path for undecodable input.
*/
func TestParse_MalformedJSON(t *testing.T) {
	_, err := siteconfig.Parse([]byte(`{"site": `))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed")
}

/*
TestValidate verifies structural and expression-syntax checks with their
JSON-path messages.
*/
func TestValidate(t *testing.T) {
	testCases := []struct {
		name        string
		document    string
		wantProblem string
	}{
		{
			name:        "valid document",
			document:    minimalDocument,
			wantProblem: "",
		},
		{
			name: "missing site name",
			document: `{
				"site": {"base_url": "https://a.example.com"},
				"parsers": {
					"chapter_list": {
						"items": {"expression": "//a"},
						"title": {"expression": "./text()"},
						"url": {"expression": "./@href"}
					},
					"chapter_content": {"content": {"expression": "//p/text()"}}
				}
			}`,
			wantProblem: "site.name is required",
		},
		{
			name: "missing chapter list items",
			document: `{
				"site": {"name": "a", "base_url": "https://a.example.com"},
				"parsers": {
					"chapter_list": {
						"title": {"expression": "./text()"},
						"url": {"expression": "./@href"}
					},
					"chapter_content": {"content": {"expression": "//p/text()"}}
				}
			}`,
			wantProblem: "parsers.chapter_list.items is required",
		},
		{
			name: "broken xpath expression",
			document: `{
				"site": {"name": "a", "base_url": "https://a.example.com"},
				"parsers": {
					"chapter_list": {
						"items": {"expression": "//a"},
						"title": {"expression": "./text()"},
						"url": {"expression": "./@href"}
					},
					"chapter_content": {"content": {"expression": "//div[@id='txt'"}}
				}
			}`,
			wantProblem: "parsers.chapter_content.content: invalid xpath",
		},
		{
			name: "broken regex expression",
			document: `{
				"site": {"name": "a", "base_url": "https://a.example.com"},
				"parsers": {
					"document_info": {
						"title": {"type": "regex", "expression": "(unclosed"}
					},
					"chapter_list": {
						"items": {"expression": "//a"},
						"title": {"expression": "./text()"},
						"url": {"expression": "./@href"}
					},
					"chapter_content": {"content": {"expression": "//p/text()"}}
				}
			}`,
			wantProblem: "parsers.document_info.title: invalid regex",
		},
		{
			name: "broken pagination locator",
			document: `{
				"site": {"name": "a", "base_url": "https://a.example.com"},
				"parsers": {
					"chapter_list": {
						"items": {"expression": "//a"},
						"title": {"expression": "./text()"},
						"url": {"expression": "./@href"},
						"pagination": {"enabled": true, "max_page_xpath": "//option["}
					},
					"chapter_content": {"content": {"expression": "//p/text()"}}
				}
			}`,
			wantProblem: "parsers.chapter_list.pagination.max_page_xpath: invalid xpath",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			config, err := siteconfig.Parse([]byte(testCase.document))
			require.NoError(t, err)

			problems := siteconfig.Validate(config)
			if testCase.wantProblem == "" {
				assert.Empty(t, problems)
				return
			}

			require.NotEmpty(t, problems)
			found := false
			for _, problem := range problems {
				if strings.Contains(problem, testCase.wantProblem) {
					found = true
					break
				}
			}
			assert.True(t, found, "problems %v should mention %q", problems, testCase.wantProblem)
		})
	}
}

/*
TestBuildURL verifies template rendering, placeholder resolution, and
relative-URL handling.
*/
func TestBuildURL(t *testing.T) {
	config, err := siteconfig.Parse([]byte(fullDocument))
	require.NoError(t, err)

	testCases := []struct {
		name     string
		template string
		params   map[string]string
		wantURL  string
		wantOK   bool
	}{
		{
			name:     "relative template resolves against base",
			template: siteconfig.TemplateBookDetail,
			params:   map[string]string{"book_id": "41934"},
			wantURL:  "https://www.dxmwx.org/book/41934.html",
			wantOK:   true,
		},
		{
			name:     "list page with two params",
			template: siteconfig.TemplateChapterListPage,
			params:   map[string]string{"book_id": "41934", "page": "2"},
			wantURL:  "https://www.dxmwx.org/chapter/41934_2.html",
			wantOK:   true,
		},
		{
			name:     "absolute template used as-is",
			template: siteconfig.TemplateChapterContentPage,
			params:   map[string]string{"book_id": "41934", "chapter_id": "123", "page": "3"},
			wantURL:  "https://www.dxmwx.org/read/41934_123_3.html",
			wantOK:   true,
		},
		{
			name:     "missing template",
			template: "search_page",
			params:   map[string]string{"book_id": "41934"},
			wantOK:   false,
		},
		{
			name:     "missing placeholder value",
			template: siteconfig.TemplateChapterListPage,
			params:   map[string]string{"book_id": "41934"},
			wantOK:   false,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			url, ok := config.BuildURL(testCase.template, testCase.params)
			assert.Equal(t, testCase.wantOK, ok)
			if testCase.wantOK {
				assert.Equal(t, testCase.wantURL, url)
			}
		})
	}
}
