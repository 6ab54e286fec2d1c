// Package jsondecode implements a three-step decode cascade for LLM
// output: extract the first JSON candidate, escape stray
// control characters and retry, then delegate to a repair library for
// truncated/unquoted/trailing-comma output. Every caller in internal/coding
// and internal/theory routes model text through Decode instead of
// json.Unmarshal directly.
package jsondecode

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Error carries the original text (truncated for diagnostics) alongside the
// cascade's final failure, so an operator can see what the model actually
// emitted without dumping the whole response into a log line.
type Error struct {
	Snippet string
	Cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("decode llm json: %v (snippet: %q)", e.Cause, e.Snippet)
}

func (e *Error) Unwrap() error { return e.Cause }

// Decode parses raw model output into v, trying progressively more lenient
// strategies. Returns *Error on total failure.
func Decode(raw string, v any) error {
	candidate := extractCandidate(raw)

	if err := json.Unmarshal([]byte(candidate), v); err == nil {
		return nil
	}

	escaped := escapeControlChars(candidate)
	if err := json.Unmarshal([]byte(escaped), v); err == nil {
		return nil
	}

	repaired, err := jsonrepair.JSONRepair(candidate)
	if err == nil {
		if err := json.Unmarshal([]byte(repaired), v); err == nil {
			return nil
		}
	}

	return &Error{Snippet: snippet(raw), Cause: firstErr(err)}
}

func firstErr(repairErr error) error {
	if repairErr != nil {
		return fmt.Errorf("repair failed: %w", repairErr)
	}
	return fmt.Errorf("repaired output still not valid JSON")
}

// extractCandidate finds the first balanced-looking `{`/`[` span, since
// models frequently wrap JSON in prose or markdown fences.
func extractCandidate(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	start := -1
	for i, r := range raw {
		if r == '{' || r == '[' {
			start = i
			break
		}
	}
	if start < 0 {
		return raw
	}

	open := rune(raw[start])
	close := '}'
	if open == '[' {
		close = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := rune(raw[i])
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}
	// Unbalanced (likely truncated output); hand the rest to the repair
	// library rather than giving up here.
	return raw[start:]
}

// escapeControlChars escapes raw control characters that sometimes appear
// unescaped inside string literals (models emitting literal newlines).
func escapeControlChars(s string) string {
	var b strings.Builder
	inString := false
	escaped := false
	for _, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
				b.WriteRune(r)
				continue
			case r == '\\':
				escaped = true
				b.WriteRune(r)
				continue
			case r == '"':
				inString = false
				b.WriteRune(r)
				continue
			case r == '\n':
				b.WriteString(`\n`)
				continue
			case r == '\t':
				b.WriteString(`\t`)
				continue
			case r == '\r':
				b.WriteString(`\r`)
				continue
			}
			b.WriteRune(r)
			continue
		}
		if r == '"' {
			inString = true
		}
		b.WriteRune(r)
	}
	return b.String()
}

func snippet(s string) string {
	if len(s) <= 300 {
		return s
	}
	return s[:300]
}
