// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package extract

import (
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"
)

// # Record Extraction

/*
Record evaluates a map of field locators against one page and assembles a
flat string record, used for document_info parsing.

Keys beginning with "_" are config comments and skipped. Nil results become
the empty string; list results are joined with newlines.

Parameters:
  - pageHTML: string
  - fields: map[string]Locator (field name -> extraction rule)

Returns:
  - map[string]string: one entry per non-comment field
*/
func (e *Evaluator) Record(pageHTML string, fields map[string]Locator) map[string]string {
	record := make(map[string]string, len(fields))

	for name, locator := range fields {
		if strings.HasPrefix(name, "_") {
			continue
		}
		record[name] = flatten(e.Evaluate(pageHTML, locator))
	}

	return record
}

// flatten renders a value as a single string for record fields.
func flatten(value Value) string {
	switch typed := value.(type) {
	case string:
		return typed
	case []string:
		kept := make([]string, 0, len(typed))
		for _, item := range typed {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				kept = append(kept, trimmed)
			}
		}
		return strings.Join(kept, "\n")
	}
	return ""
}

// # Chapter List Extraction

// ChapterItem is one discovered chapter: its display title and absolute URL.
type ChapterItem struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

/*
ChapterItems extracts the chapter listing from a list page.

The items locator selects the repeating subtrees (one per chapter); the
title and url locators are then evaluated in each subtree's local scope.
Relative URLs resolve against baseURL. A subtree that yields no title or no
URL is skipped with a warning rather than failing the whole page.

Parameters:
  - pageHTML: string (The list page markup)
  - items: Locator (Selects the per-chapter subtrees; XPath only)
  - title: Locator (Evaluated inside each subtree)
  - urlLoc: Locator (Evaluated inside each subtree)
  - baseURL: string (Base for resolving relative chapter URLs)

Returns:
  - []ChapterItem: discovered chapters in page order
*/
func (e *Evaluator) ChapterItems(pageHTML string, items, title, urlLoc Locator, baseURL string) []ChapterItem {

	// 1. Parse the page and select the repeating subtrees
	document, err := htmlquery.Parse(strings.NewReader(pageHTML))
	if err != nil {
		e.logger.Warn("chapter_items_parse_failed", slog.Any("error", err))
		return nil
	}

	itemsExpr, err := xpath.Compile(items.Expression)
	if err != nil {
		e.logger.Warn("chapter_items_expression_invalid",
			slog.String("expression", items.Expression),
			slog.Any("error", err),
		)
		return nil
	}

	nodes := htmlquery.QuerySelectorAll(document, itemsExpr)
	chapters := make([]ChapterItem, 0, len(nodes))

	// 2. Evaluate title and url in each subtree's local scope
	for _, node := range nodes {
		itemTitle := FirstString(e.evaluateAt(node, title))
		itemURL := FirstString(e.evaluateAt(node, urlLoc))

		if itemTitle == "" || itemURL == "" {
			e.logger.Warn("chapter_item_skipped",
				slog.String("title", itemTitle),
				slog.String("url", itemURL),
			)
			continue
		}

		// 3. Resolve relative chapter URLs against the site base
		chapters = append(chapters, ChapterItem{
			Title: itemTitle,
			URL:   ResolveURL(baseURL, itemURL),
		})
	}

	return chapters
}

// evaluateAt runs a locator scoped to one node of an already-parsed page.
//
// XPath expressions evaluate relative to the node, so config-relative paths
// like "./a/@href" address the subtree. Regex locators run over the
// subtree's serialized HTML.
func (e *Evaluator) evaluateAt(node *html.Node, locator Locator) Value {
	var matches []string
	var err error

	if locator.Type == TypeRegex {
		matches, err = regexMatches(htmlquery.OutputHTML(node, true), locator.Expression)
	} else {
		matches, err = xpathMatches(node, locator.Expression)
	}
	if err != nil {
		e.logger.Warn("locator_select_failed",
			slog.String("type", locator.Type),
			slog.String("expression", locator.Expression),
			slog.Any("error", err),
		)
		matches = nil
	}

	value := applyIndex(matches, locator.Index)
	if IsEmpty(value) && locator.Default != nil {
		value = *locator.Default
	}

	for _, step := range locator.Process {
		after, stepErr := applyStep(value, step)
		if stepErr != nil {
			e.logger.Warn("post_process_step_failed",
				slog.String("method", step.Method),
				slog.Any("error", stepErr),
			)
			continue
		}
		value = after
	}

	return value
}

// ResolveURL joins a possibly-relative reference against a base URL.
// Unparseable inputs return the reference unchanged.
func ResolveURL(base, ref string) string {
	if ref == "" {
		return ref
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}

	refURL, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}

	return baseURL.ResolveReference(refURL).String()
}

// ParseMaxPages coerces an extracted max-page value ("12", "12.0", a
// one-element list) to an int. Unusable values yield 0.
func ParseMaxPages(value Value) int {
	text := strings.TrimSpace(FirstString(value))
	if text == "" {
		return 0
	}

	// Accept float-shaped page counts ("3.0") the way lenient sites emit them.
	pages, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0
	}

	return int(pages)
}
