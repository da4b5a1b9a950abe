// Package llmtext turns free-form model output into typed values.
//
// Model responses often wrap JSON or markdown in code fences even when told
// not to. Everything here is pure and safe to call on arbitrary text.
package llmtext

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrEmpty is returned when nothing remains after stripping wrappers
var ErrEmpty = errors.New("empty model output")

// StripFences removes markdown code fence markers (``` and ```lang) and trims
// surrounding whitespace. Text without fences is only trimmed.
func StripFences(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if isFenceLine(line) {
			continue
		}
		kept = append(kept, line)
	}
	out := strings.Join(kept, "\n")
	// inline fences such as ```json{...}``` on a single line
	out = strings.ReplaceAll(out, "```json", "")
	out = strings.ReplaceAll(out, "```", "")
	return strings.TrimSpace(out)
}

// isFenceLine reports whether line is only a fence marker with an optional language tag
func isFenceLine(line string) bool {
	t := strings.TrimSpace(line)
	if !strings.HasPrefix(t, "```") {
		return false
	}
	for _, r := range strings.TrimLeft(t, "`") {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '+' || r == '_') {
			return false
		}
	}
	return true
}

// ParseJSON strips fences and decodes the remaining text into T.
// Trailing content after the first JSON value is an error.
func ParseJSON[T any](text string) (T, error) {
	var v T
	body := StripFences(text)
	if body == "" {
		return v, ErrEmpty
	}

	dec := json.NewDecoder(strings.NewReader(body))
	if err := dec.Decode(&v); err != nil {
		return v, fmt.Errorf("failed to decode model output: %w", err)
	}
	if dec.More() {
		var zero T
		return zero, fmt.Errorf("unexpected trailing content in model output")
	}
	return v, nil
}

// ParseOr decodes text into T and returns fallback on any failure, including
// a failed validation when valid is non-nil.
func ParseOr[T any](text string, fallback T, valid func(T) bool) T {
	v, err := ParseJSON[T](text)
	if err != nil {
		return fallback
	}
	if valid != nil && !valid(v) {
		return fallback
	}
	return v
}

// StripOuterFence removes a single code fence wrapping the whole text while
// leaving fenced blocks inside the document untouched.
func StripOuterFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	first := strings.IndexByte(trimmed, '\n')
	if first < 0 {
		return strings.TrimSpace(strings.Trim(trimmed, "`"))
	}
	inner := trimmed[first+1:]
	if strings.HasSuffix(inner, "```") {
		inner = strings.TrimSuffix(inner, "```")
	}
	return strings.TrimSpace(inner)
}
