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


package normalize

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Models do not always respect the requested field types. The loose types
// below accept any JSON value so one mistyped field does not discard an
// otherwise usable reply.

// looseString accepts strings, numbers and booleans. Objects and arrays are
// kept as their JSON text.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		*s = looseString(str)
		return nil
	}
	trimmed := bytes.TrimSpace(b)
	if bytes.Equal(trimmed, []byte("null")) {
		*s = ""
		return nil
	}
	*s = looseString(trimmed)
	return nil
}

func (s looseString) trimmed() string {
	return strings.TrimSpace(string(s))
}

// looseList accepts an array or a single string. A string becomes one item
// per line, with list markers removed.
type looseList []string

func (l *looseList) UnmarshalJSON(b []byte) error {
	var items []looseString
	if err := json.Unmarshal(b, &items); err == nil {
		var out []string
		for _, item := range items {
			if v := item.trimmed(); v != "" {
				out = append(out, v)
			}
		}
		*l = out
		return nil
	}

	var single looseString
	if err := json.Unmarshal(b, &single); err != nil {
		return err
	}
	*l = splitLines(string(single))
	return nil
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*•"))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func (l looseList) values() []string {
	if len(l) == 0 {
		return nil
	}
	return []string(l)
}

// looseBool accepts booleans, "true"/"yes"/"1" strings and non-zero numbers.
type looseBool bool

func (v *looseBool) UnmarshalJSON(b []byte) error {
	var flag bool
	if err := json.Unmarshal(b, &flag); err == nil {
		*v = looseBool(flag)
		return nil
	}

	var s looseString
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch strings.ToLower(s.trimmed()) {
	case "true", "yes", "y", "1":
		*v = true
	default:
		var n float64
		*v = looseBool(json.Unmarshal(b, &n) == nil && n != 0)
	}
	return nil
}
