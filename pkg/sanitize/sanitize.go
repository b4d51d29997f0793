// Package sanitize coerces a model's text reply into strict JSON.
//
// Only a narrow set of textual repairs is applied, in this order:
//
//  1. strip code fences (with or without a language tag) and any prose outside them
//  2. trim surrounding whitespace
//  3. collapse numeric ranges after a colon ("percentage": 45-60) to their first bound
//  4. remove trailing commas before a closing } or ]
//
// Steps 3 and 4 never touch the contents of string literals.
//
// The result must then parse as a single strict JSON value; anything else is a hard failure.
package sanitize

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"advisor/pkg/faults"
)

const fence = "```"

var (
	// A range value: the colon, the first bound, the rest of the range, then the delimiter that ends the value.
	rangePattern = regexp.MustCompile(`(:\s*)(-?\d+(?:\.\d+)?)\s*-\s*\d+(?:\.\d+)?(\s*[,}\]\r\n])`)

	trailingComma = regexp.MustCompile(`,(\s*[}\]])`)

	// Language tag directly after an opening fence, e.g. ```json or ```JSON5.
	fenceTag = regexp.MustCompile(`^(?:[A-Za-z][A-Za-z0-9_+-]*)?[ \t]*\r?\n?`)
)

// Clean applies the repair rules to raw and returns the candidate JSON text.
func Clean(raw string) string {
	s := stripFences(raw)
	s = strings.TrimSpace(s)
	s = CollapseRanges(s)
	s = RemoveTrailingCommas(s)
	return s
}

// stripFences returns the payload of the outermost fenced block, or the outermost JSON
// object/array when the reply has prose but no fence. A fence only wraps the payload when it
// opens before the first { or [; later fences belong to string content.
func stripFences(raw string) string {
	open := strings.Index(raw, fence)
	if open < 0 {
		return stripProse(raw)
	}
	if start := strings.IndexAny(raw, "{["); start >= 0 && start < open {
		return stripProse(raw)
	}

	body := raw[open+len(fence):]
	body = fenceTag.ReplaceAllString(body, "")

	if closing := strings.LastIndex(body, fence); closing >= 0 {
		body = body[:closing]
	}
	return body
}

func stripProse(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed[0] == '{' || trimmed[0] == '[' {
		return trimmed
	}

	start := strings.IndexAny(trimmed, "{[")
	if start < 0 {
		return trimmed
	}
	closer := byte('}')
	if trimmed[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(trimmed, closer)
	if end <= start {
		return trimmed
	}
	return trimmed[start : end+1]
}

// CollapseRanges rewrites `: N-M` to `: N` wherever a numeric range stands in for a number.
func CollapseRanges(s string) string {
	return outsideStrings(s, func(seg string) string {
		return rangePattern.ReplaceAllString(seg, "${1}${2}${3}")
	})
}

// RemoveTrailingCommas drops commas that directly precede a closing brace or bracket.
func RemoveTrailingCommas(s string) string {
	return outsideStrings(s, func(seg string) string {
		return trailingComma.ReplaceAllString(seg, "$1")
	})
}

// outsideStrings applies repair to the text between JSON string literals and copies the
// literals unchanged. An unterminated literal runs to the end of s.
func outsideStrings(s string, repair func(string) string) string {
	var b strings.Builder
	b.Grow(len(s))
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] != '"' {
			continue
		}
		b.WriteString(repair(s[start:i]))

		end := i + 1
		for end < len(s) && s[end] != '"' {
			if s[end] == '\\' {
				end++
			}
			end++
		}
		if end >= len(s) {
			b.WriteString(s[i:])
			return b.String()
		}
		b.WriteString(s[i : end+1])
		i = end
		start = end + 1
	}
	b.WriteString(repair(s[start:]))
	return b.String()
}

// Parse cleans raw and checks that it is exactly one strict JSON value.
// Failures are faults.KindMalformedStageOutput errors naming stage and keeping a bounded excerpt.
func Parse(stage, raw string) (json.RawMessage, error) {
	cleaned := Clean(raw)
	if err := strict(cleaned, nil); err != nil {
		return nil, faults.MalformedStageOutput(stage, cleaned, err)
	}
	return json.RawMessage(cleaned), nil
}

// Decode cleans raw and decodes it into v.
func Decode(stage, raw string, v any) error {
	cleaned := Clean(raw)
	if err := strict(cleaned, v); err != nil {
		return faults.MalformedStageOutput(stage, cleaned, err)
	}
	return nil
}

// strict decodes exactly one JSON value from s into v (or discards it when v is nil)
// and rejects trailing data.
func strict(s string, v any) error {
	if s == "" {
		return errors.New("empty response")
	}

	dec := json.NewDecoder(strings.NewReader(s))
	if v == nil {
		var discard json.RawMessage
		v = &discard
	}
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("invalid JSON: unexpected data after top-level value")
	}
	return nil
}
