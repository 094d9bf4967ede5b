// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package extract

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/taibuivan/novira/pkg/convert"
	"github.com/taibuivan/novira/pkg/slice"
)

// # Post-Processing

// ProcessStep is one step of a locator's post-processing pipeline.
//
// The method set is closed: strip, replace, regex_replace, join, split,
// extract_first, extract_index. Unknown methods are logged and skipped.
type ProcessStep struct {
	Method string            `json:"method"`
	Params map[string]string `json:"params"`
}

// UnmarshalJSON decodes a step, coercing scalar params (numbers, booleans)
// to their string form so the params map stays uniformly typed.
func (s *ProcessStep) UnmarshalJSON(data []byte) error {
	var raw struct {
		Method string                     `json:"method"`
		Params map[string]json.RawMessage `json:"params"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Method = raw.Method
	if raw.Params != nil {
		s.Params = make(map[string]string, len(raw.Params))
		for key, value := range raw.Params {
			if strings.HasPrefix(key, "_") {
				continue
			}
			s.Params[key] = scalarString(value)
		}
	}

	return nil
}

// scalarString renders a raw JSON scalar as a plain string.
func scalarString(raw json.RawMessage) string {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}

	var number float64
	if err := json.Unmarshal(raw, &number); err == nil {
		return strconv.FormatFloat(number, 'f', -1, 64)
	}

	var truth bool
	if err := json.Unmarshal(raw, &truth); err == nil {
		return strconv.FormatBool(truth)
	}

	return strings.Trim(string(raw), `"`)
}

/*
Apply runs a pipeline of steps over an already-extracted value, outside any
locator. The crawl engine uses it for the chapter_content.clean pass, which
operates on joined sub-page content rather than a fresh page selection.

Failing steps are logged and skipped, exactly as in locator evaluation.

Parameters:
  - value: Value (Scalar or list input)
  - steps: []ProcessStep

Returns:
  - Value: the value after every surviving step
*/
func (e *Evaluator) Apply(value Value, steps []ProcessStep) Value {
	for _, step := range steps {
		after, err := applyStep(value, step)
		if err != nil {
			e.logger.Warn("post_process_step_failed",
				slog.String("method", step.Method),
				slog.Any("error", err),
			)
			continue
		}
		value = after
	}
	return value
}

// applyStep runs a single post-process step over a value.
//
// String transforms apply elementwise to list values. Values of other shapes
// (nil in particular) pass through untouched.
func applyStep(value Value, step ProcessStep) (Value, error) {
	switch step.Method {
	case "strip":
		return mapStrings(value, func(s string) string {
			if chars, ok := step.Params["chars"]; ok {
				return strings.Trim(s, chars)
			}
			return strings.TrimSpace(s)
		}), nil

	case "replace":
		oldText := step.Params["old"]
		newText := step.Params["new"]
		return mapStrings(value, func(s string) string {
			return replaceTolerant(s, oldText, newText)
		}), nil

	case "regex_replace":
		re, err := regexp.Compile(step.Params["pattern"])
		if err != nil {
			return value, fmt.Errorf("compile pattern: %w", err)
		}
		repl := step.Params["repl"]
		return mapStrings(value, func(s string) string {
			return re.ReplaceAllString(s, repl)
		}), nil

	case "join":
		if list, ok := AsList(value); ok {
			return strings.Join(list, step.Params["separator"]), nil
		}
		return value, nil

	case "split":
		text, ok := AsString(value)
		if !ok {
			return value, nil
		}
		separator, present := step.Params["separator"]
		if !present {
			separator = " "
		}
		if separator == "" {
			return value, fmt.Errorf("empty separator")
		}
		return strings.Split(text, separator), nil

	case "extract_first":
		if list, ok := AsList(value); ok && len(list) > 0 {
			return list[0], nil
		}
		return value, nil

	case "extract_index":
		list, ok := AsList(value)
		if !ok {
			return value, nil
		}
		idx := convert.ToIntD(step.Params["index"], 0)
		if idx < 0 {
			idx += len(list)
		}
		if idx < 0 || idx >= len(list) {
			return value, nil
		}
		return list[idx], nil
	}

	return value, fmt.Errorf("unsupported method %q", step.Method)
}

// replaceTolerant substitutes oldText with newText. When oldText is absent
// it retries with non-breaking spaces normalized to plain spaces on both
// sides, since scraped pages freely mix the two.
func replaceTolerant(s, oldText, newText string) string {
	if strings.Contains(s, oldText) {
		return strings.ReplaceAll(s, oldText, newText)
	}

	normalized := strings.ReplaceAll(s, "\u00a0", " ")
	normalizedOld := strings.ReplaceAll(oldText, "\u00a0", " ")
	if strings.Contains(normalized, normalizedOld) {
		return strings.ReplaceAll(normalized, normalizedOld, newText)
	}

	return s
}

// mapStrings applies a string transform to a scalar or elementwise to a list.
func mapStrings(value Value, transform func(string) string) Value {
	switch typed := value.(type) {
	case string:
		return transform(typed)
	case []string:
		return slice.Map(typed, transform)
	}
	return value
}
