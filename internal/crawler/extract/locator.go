// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package extract implements the locator engine: declarative XPath/regex
extraction with an ordered post-processing pipeline.

# Overview

A [Locator] describes WHERE a piece of data lives in a fetched page (an XPath
or regular expression), WHICH match to take (an optional index), and HOW to
normalize the raw match (an ordered list of [ProcessStep]). Site configs are
built entirely out of locators, which keeps per-site knowledge declarative:
adding a new source site never requires new Go code.

# Evaluation model

Evaluation is total: it never returns an error. Broken expressions, missing
matches, and failing post-process steps degrade to nil (or the locator's
default) with a logged warning, mirroring the tolerant behavior crawl
pipelines need when pages drift from their expected shape.
*/
package extract

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"
)

// # Locator Model

const (
	// TypeXPath selects matches with an XPath 1.0 expression.
	TypeXPath = "xpath"
	// TypeRegex selects matches with a regular expression.
	TypeRegex = "regex"

	// AllMatches is the index sentinel requesting the whole match list.
	AllMatches = 999
)

// Value is the result of evaluating a [Locator]: a scalar string, a list of
// strings ([]string), or nil when nothing matched.
type Value = any

// Locator is a single declarative extraction rule.
type Locator struct {
	// Type is TypeXPath (the default when empty) or TypeRegex.
	Type string `json:"type"`

	// Expression is the XPath or regex to run against the page.
	Expression string `json:"expression"`

	// Index selects one match from the match list. nil or the AllMatches
	// sentinel return the whole list; negative values count from the end.
	Index *int `json:"index"`

	// Default substitutes a fallback when the match is nil or an empty list.
	Default *string `json:"default"`

	// Process is the ordered post-processing pipeline.
	Process []ProcessStep `json:"process"`
}

// UnmarshalJSON decodes a locator, coercing the index from a JSON number,
// numeric string, or null.
func (l *Locator) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type       string          `json:"type"`
		Expression string          `json:"expression"`
		Index      json.RawMessage `json:"index"`
		Default    *string         `json:"default"`
		Process    []ProcessStep   `json:"process"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	l.Type = raw.Type
	l.Expression = raw.Expression
	l.Default = raw.Default
	l.Process = raw.Process
	l.Index = coerceIndex(raw.Index)

	return nil
}

// coerceIndex accepts a JSON number, a numeric string, null, or a missing
// field. Anything unparseable is treated as absent.
func coerceIndex(raw json.RawMessage) *int {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var number float64
	if err := json.Unmarshal(raw, &number); err == nil {
		n := int(number)
		return &n
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(text)); err == nil {
			return &n
		}
	}

	return nil
}

// # Evaluator

// Evaluator runs locators against fetched pages.
//
// # Concurrency
//
// Evaluator is stateless apart from its logger and safe for concurrent use.
type Evaluator struct {
	logger *slog.Logger
}

// NewEvaluator creates an Evaluator. A nil logger falls back to slog.Default.
func NewEvaluator(logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{logger: logger}
}

/*
Evaluate runs a locator against a page and returns the extracted value.

Algorithm:
 1. Select matches (XPath node strings or regex matches).
 2. Apply the index (nil/999 = whole list, signed otherwise).
 3. Substitute the default when the result is nil or an empty list.
 4. Run the post-process pipeline in order.

Parameters:
  - pageHTML: string (The raw page markup)
  - locator: Locator (The extraction rule)

Returns:
  - Value: string, []string, or nil
*/
func (e *Evaluator) Evaluate(pageHTML string, locator Locator) Value {
	return e.evaluate(pageHTML, locator, nil)
}

/*
EvaluateTrace runs a locator like [Evaluator.Evaluate] while recording every
stage of the evaluation, for the config probe endpoint.

Returns:
  - Value: the final value
  - *Trace: raw matches, per-step before/after, and the final value
*/
func (e *Evaluator) EvaluateTrace(pageHTML string, locator Locator) (Value, *Trace) {
	trace := &Trace{}
	value := e.evaluate(pageHTML, locator, trace)
	trace.Final = value
	return value, trace
}

// evaluate is the shared implementation behind Evaluate and EvaluateTrace.
func (e *Evaluator) evaluate(pageHTML string, locator Locator, trace *Trace) Value {

	// 1. Select the raw matches
	matches, err := e.selectMatches(pageHTML, locator)
	if err != nil {
		e.logger.Warn("locator_select_failed",
			slog.String("type", locator.Type),
			slog.String("expression", locator.Expression),
			slog.Any("error", err),
		)
		matches = nil
	}
	if trace != nil {
		trace.RawMatches = matches
	}

	// 2. Apply the index semantics
	value := applyIndex(matches, locator.Index)
	if trace != nil {
		trace.Indexed = value
	}

	// 3. Fall back to the default on a nil or empty result
	if IsEmpty(value) && locator.Default != nil {
		value = *locator.Default
		if trace != nil {
			trace.UsedDefault = true
		}
	}

	// 4. Run the post-process pipeline
	for _, step := range locator.Process {
		before := value
		after, err := applyStep(value, step)
		if err != nil {
			// A failing step is skipped; later steps see the prior value.
			e.logger.Warn("post_process_step_failed",
				slog.String("method", step.Method),
				slog.Any("error", err),
			)
			after = before
		}
		if trace != nil {
			trace.Steps = append(trace.Steps, StepTrace{
				Method: step.Method,
				Before: before,
				After:  after,
				Error:  errString(err),
			})
		}
		value = after
	}

	return value
}

// selectMatches runs the locator expression over the whole page.
func (e *Evaluator) selectMatches(pageHTML string, locator Locator) ([]string, error) {
	if locator.Type == TypeRegex {
		return regexMatches(pageHTML, locator.Expression)
	}

	document, err := htmlquery.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	return xpathMatches(document, locator.Expression)
}

// regexMatches returns the full match per hit, or capture group 1 when the
// pattern declares capture groups.
func regexMatches(input, expression string) ([]string, error) {
	re, err := regexp.Compile(expression)
	if err != nil {
		return nil, fmt.Errorf("compile regex: %w", err)
	}

	submatches := re.FindAllStringSubmatch(input, -1)
	matches := make([]string, 0, len(submatches))
	for _, m := range submatches {
		if len(m) > 1 {
			matches = append(matches, m[1])
		} else {
			matches = append(matches, m[0])
		}
	}

	return matches, nil
}

// xpathMatches evaluates an XPath expression from the given node.
//
// Node-set results are stringified the way page authors expect: text and
// attribute axes yield their values, element axes yield serialized HTML.
// Primitive results (string(), count(), boolean()) yield a one-element list.
func xpathMatches(node *html.Node, expression string) ([]string, error) {
	expr, err := xpath.Compile(expression)
	if err != nil {
		return nil, fmt.Errorf("compile xpath: %w", err)
	}

	switch result := expr.Evaluate(htmlquery.CreateXPathNavigator(node)).(type) {
	case *xpath.NodeIterator:
		var matches []string
		for result.MoveNext() {
			navigator, ok := result.Current().(*htmlquery.NodeNavigator)
			if !ok {
				continue
			}
			matches = append(matches, navigatorString(navigator))
		}
		return matches, nil
	case string:
		return []string{result}, nil
	case float64:
		return []string{strconv.FormatFloat(result, 'f', -1, 64)}, nil
	case bool:
		return []string{strconv.FormatBool(result)}, nil
	}

	return nil, nil
}

// navigatorString converts the navigator's current position into a string.
func navigatorString(navigator *htmlquery.NodeNavigator) string {
	switch navigator.NodeType() {
	case xpath.AttributeNode, xpath.TextNode, xpath.CommentNode:
		return navigator.Value()
	default:
		return htmlquery.OutputHTML(navigator.Current(), true)
	}
}

// applyIndex reduces the match list per the index semantics.
func applyIndex(matches []string, index *int) Value {
	if index == nil || *index == AllMatches {
		if matches == nil {
			return []string{}
		}
		return matches
	}

	if len(matches) == 0 {
		return nil
	}

	idx := *index
	if idx < 0 {
		idx += len(matches)
	}
	if idx < 0 || idx >= len(matches) {
		return nil
	}

	return matches[idx]
}

// # Value Helpers

// IsEmpty reports whether a value is nil or an empty list.
func IsEmpty(value Value) bool {
	if value == nil {
		return true
	}
	if list, ok := value.([]string); ok {
		return len(list) == 0
	}
	return false
}

// AsString returns the scalar string form of a value.
func AsString(value Value) (string, bool) {
	s, ok := value.(string)
	return s, ok
}

// AsList returns the list form of a value.
func AsList(value Value) ([]string, bool) {
	list, ok := value.([]string)
	return list, ok
}

// FirstString flattens a value to a scalar: a string is returned as-is, a
// list yields its first element, nil yields "".
func FirstString(value Value) string {
	switch typed := value.(type) {
	case string:
		return typed
	case []string:
		if len(typed) > 0 {
			return typed[0]
		}
	}
	return ""
}

// # Trace

// Trace captures every stage of a locator evaluation for diagnostics.
type Trace struct {
	RawMatches  []string    `json:"raw_matches"`
	Indexed     Value       `json:"indexed"`
	UsedDefault bool        `json:"used_default"`
	Steps       []StepTrace `json:"steps"`
	Final       Value       `json:"final"`
}

// StepTrace records one post-process step's input and output.
type StepTrace struct {
	Method string `json:"method"`
	Before Value  `json:"before"`
	After  Value  `json:"after"`
	Error  string `json:"error,omitempty"`
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
