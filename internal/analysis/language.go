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

package analysis

import (
	"fmt"
	"strings"
)

// Language is a supported response language, identified by its ISO 639-1 code.
type Language string

const (
	English Language = "en"
	Hindi   Language = "hi"
	Tamil   Language = "ta"
	Bengali Language = "bn"
	Telugu  Language = "te"
	Marathi Language = "mr"
)

var languageNames = map[Language]string{
	English: "English",
	Hindi:   "Hindi",
	Tamil:   "Tamil",
	Bengali: "Bengali",
	Telugu:  "Telugu",
	Marathi: "Marathi",
}

// Languages lists the supported languages in display order.
func Languages() []Language {
	return []Language{English, Hindi, Tamil, Bengali, Telugu, Marathi}
}

// ParseLanguage accepts a language code or English name, case-insensitively.
// An empty value selects English.
func ParseLanguage(s string) (Language, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" {
		return English, nil
	}
	for code, name := range languageNames {
		if v == string(code) || v == strings.ToLower(name) {
			return code, nil
		}
	}
	return "", fmt.Errorf("unsupported language %q", s)
}

// Name returns the English name used in prompts. Unknown codes render as English.
func (l Language) Name() string {
	if name, ok := languageNames[l]; ok {
		return name
	}
	return languageNames[English]
}

// Valid reports whether l is a supported language.
func (l Language) Valid() bool {
	_, ok := languageNames[l]
	return ok
}
