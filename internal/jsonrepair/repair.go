// Package jsonrepair best-effort-completes truncated JSON text.
//
// It exists for inspecting a tool input fragment before its block closes: the
// wire protocol streams tool input as raw JSON split at arbitrary byte
// boundaries, so mid-stream fragments usually do not parse.
package jsonrepair

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// Repair attempts to parse fragment as JSON, completing common truncation
// artifacts first when needed: an unterminated string, a dangling "key": with
// no value, a trailing comma, and unclosed braces/brackets.
//
// It returns the parsed value on success and the original fragment unchanged
// when no repair produces parseable JSON; callers must treat a returned string
// that equals the input as "not yet parseable", not as an error. Empty or
// whitespace-only input returns nil. Valid input parses as-is, so the
// function is idempotent on already-valid JSON.
func Repair(fragment string) any {
	trimmed := strings.TrimSpace(fragment)
	if trimmed == "" {
		return nil
	}
	if v, ok := parse(trimmed); ok {
		return v
	}
	if v, ok := parse(complete(trimmed)); ok {
		return v
	}
	return fragment
}

func parse(s string) (any, bool) {
	if !gjson.Valid(s) {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	return v, true
}

// complete scans the fragment tracking string state and a stack of expected
// closing brackets, then appends whatever the truncation cut off.
func complete(s string) string {
	var stack []byte
	var b strings.Builder
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			b.WriteByte(c)
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if n := len(stack); n > 0 && stack[n-1] == c {
				stack = stack[:n-1]
			}
		case ',':
			// A comma directly before a closing bracket is a truncation
			// artifact; drop it.
			if next := nextSignificant(s, i+1); next == '}' || next == ']' {
				continue
			}
		}
		b.WriteByte(c)
	}

	out := b.String()
	if inString {
		// A trailing backslash would escape the quote we are about to add.
		if escaped {
			out = out[:len(out)-1]
		}
		out += `"`
	}

	out = strings.TrimRight(out, " \t\r\n")
	if strings.HasSuffix(out, ":") {
		// Dangling "key": with nothing after it.
		out += "null"
	}
	if strings.HasSuffix(out, ",") {
		out = out[:len(out)-1]
	}

	// Close remaining brackets, last opened first.
	for i := len(stack) - 1; i >= 0; i-- {
		out += string(stack[i])
	}
	return out
}

// nextSignificant returns the first non-whitespace byte at or after position
// i, or 0 when the input ends first.
func nextSignificant(s string, i int) byte {
	for ; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\r', '\n':
		default:
			return s[i]
		}
	}
	return 0
}
