// Package jsonval implements the "JSON affinity" rule: when a
// TEXT column's value happens to decode as valid JSON, the decoded
// structure replaces the raw string everywhere the row flows: snapshot
// storage, trigger-predicate inputs, and emitted results. Invalid JSON
// leaves the raw string untouched.
//
// This is deliberately built on the standard library's encoding/json
// rather than a third-party decoder: drop-in encoding/json replacements
// like bytedance/sonic earn their keep marshaling schema-shaped API
// payloads, not probing arbitrary embedded text and silently falling back
// on failure; that use case gains nothing from their speed. See
// DESIGN.md.
package jsonval

import "encoding/json"

// Decode inspects v: if it is a string holding valid JSON, the decoded
// value is returned together with true. Otherwise v is returned unchanged
// with false. Non-string values are never JSON-affinity candidates and are
// passed through as-is.
func Decode(v interface{}) (interface{}, bool) {
	s, ok := v.(string)
	if !ok {
		return v, false
	}
	trimmed := s
	if len(trimmed) == 0 {
		return v, false
	}
	// Cheap pre-check: valid JSON values always start with one of these
	// bytes once leading whitespace is stripped by the decoder itself, so
	// skip the allocation-heavy Unmarshal call for the overwhelmingly
	// common case of ordinary text that obviously isn't JSON.
	if !looksLikeJSON(trimmed) {
		return v, false
	}
	var decoded interface{}
	if err := json.Unmarshal([]byte(s), &decoded); err != nil {
		return v, false
	}
	return decoded, true
}

func looksLikeJSON(s string) bool {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	if i >= len(s) {
		return false
	}
	switch s[i] {
	case '{', '[', '"', 't', 'f', 'n', '-':
		return true
	default:
		return s[i] >= '0' && s[i] <= '9'
	}
}
