// Copyright 2025 Arogya Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package normalize turns free-form model replies into typed records. Replies
// often wrap the requested JSON object in prose or code fences, so the object
// is located by scanning rather than parsed from the whole text.
package normalize

import (
	"encoding/json"
	"reflect"
)

// ExtractJSON returns the first balanced {...} span in raw that is a valid
// JSON object. Candidates are tried in order of their opening brace, and
// braces inside string literals are ignored.
func ExtractJSON(raw string) (json.RawMessage, bool) {
	var found json.RawMessage
	Each(raw, func(obj json.RawMessage) bool {
		found = obj
		return true
	})
	return found, found != nil
}

// Each calls accept with every valid JSON object candidate in raw, in the
// order ExtractJSON tries them, until accept returns true. It reports
// whether a candidate was accepted. Objects nested inside a rejected
// candidate are tried too.
func Each(raw string, accept func(obj json.RawMessage) bool) bool {
	for start := 0; start < len(raw); start++ {
		if raw[start] != '{' {
			continue
		}
		end, ok := matchBrace(raw, start)
		if !ok {
			continue
		}
		candidate := raw[start : end+1]
		if json.Valid([]byte(candidate)) && accept(json.RawMessage(candidate)) {
			return true
		}
	}
	return false
}

// matchBrace returns the index of the brace closing the one at start.
func matchBrace(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
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
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// Decode unmarshals the first JSON object in raw that fits v, which must be
// a non-nil pointer. v is left untouched when nothing fits.
func Decode(raw string, v any) bool {
	target := reflect.ValueOf(v)
	if target.Kind() != reflect.Pointer || target.IsNil() {
		return false
	}
	return Each(raw, func(obj json.RawMessage) bool {
		fresh := reflect.New(target.Elem().Type())
		if json.Unmarshal(obj, fresh.Interface()) != nil {
			return false
		}
		target.Elem().Set(fresh.Elem())
		return true
	})
}
