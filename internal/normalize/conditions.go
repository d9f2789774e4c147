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
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Condition severities.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Recommended actions.
const (
	ActionMonitor = "monitor"
	ActionConsult = "consult"
	ActionUrgent  = "urgent"
)

// FallbackProbability is the confidence given to the single record built
// when a reply cannot be parsed.
const FallbackProbability = 70

// Condition is one candidate condition suggested for a set of symptoms.
type Condition struct {
	ID                  int      `json:"id"`
	Name                string   `json:"name"`
	Probability         int      `json:"probability"`
	Severity            string   `json:"severity"`
	Description         string   `json:"description"`
	DetailedDescription string   `json:"detailedDescription,omitempty"`
	RecommendedAction   string   `json:"recommendedAction"`
	SpecialistType      string   `json:"specialistType"`
	CommonSymptoms      []string `json:"commonSymptoms,omitempty"`
	Recommendations     []string `json:"recommendations,omitempty"`
}

type rawCondition struct {
	Name                looseString     `json:"name"`
	Probability         json.RawMessage `json:"probability"`
	Severity            looseString     `json:"severity"`
	Description         looseString     `json:"description"`
	DetailedDescription looseString     `json:"detailedDescription"`
	RecommendedAction   looseString     `json:"recommendedAction"`
	SpecialistType      looseString     `json:"specialistType"`
	CommonSymptoms      looseList       `json:"commonSymptoms"`
	Recommendations     looseList       `json:"recommendations"`
}

// Conditions parses a {"conditions": [...]} reply. Objects without a
// non-empty list are skipped in favor of later ones, and a reply with none
// is reported as unparseable.
func Conditions(raw string) ([]Condition, bool) {
	var found []rawCondition
	Each(raw, func(obj json.RawMessage) bool {
		var payload struct {
			Conditions []rawCondition `json:"conditions"`
		}
		if json.Unmarshal(obj, &payload) != nil || len(payload.Conditions) == 0 {
			return false
		}
		found = payload.Conditions
		return true
	})
	if len(found) == 0 {
		return nil, false
	}

	out := make([]Condition, 0, len(found))
	for i, rc := range found {
		out = append(out, Condition{
			ID:                  i + 1,
			Name:                rc.Name.trimmed(),
			Probability:         parseProbability(rc.Probability),
			Severity:            oneOf(string(rc.Severity), SeverityMedium, SeverityLow, SeverityMedium, SeverityHigh),
			Description:         string(rc.Description),
			DetailedDescription: string(rc.DetailedDescription),
			RecommendedAction:   oneOf(string(rc.RecommendedAction), ActionConsult, ActionMonitor, ActionConsult, ActionUrgent),
			SpecialistType:      string(rc.SpecialistType),
			CommonSymptoms:      rc.CommonSymptoms.values(),
			Recommendations:     rc.Recommendations.values(),
		})
	}
	return out, true
}

// parseProbability accepts 85, 85.4, "85" and "85%" and clamps to [0, 100].
func parseProbability(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		n = parsed
	}

	if math.IsNaN(n) || n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return int(math.Round(n))
}

// oneOf lowercases value and returns it when allowed, def otherwise.
func oneOf(value, def string, allowed ...string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	for _, a := range allowed {
		if v == a {
			return a
		}
	}
	return def
}

type fallbackLabels struct {
	name       string
	specialist string
}

var conditionFallbackLabels = map[string]fallbackLabels{
	"en": {name: "General Health Concern", specialist: "General Physician"},
	"hi": {name: "सामान्य स्वास्थ्य चिंता", specialist: "सामान्य चिकित्सक"},
	"ta": {name: "பொது சுகாதார கவலை", specialist: "பொது மருத்துவர்"},
}

// FallbackConditions wraps an unparseable reply in a single record so the
// model's prose still reaches the reader. Languages without labels use English.
func FallbackConditions(raw, lang string) []Condition {
	labels, ok := conditionFallbackLabels[lang]
	if !ok {
		labels = conditionFallbackLabels["en"]
	}
	return []Condition{{
		ID:                1,
		Name:              labels.name,
		Probability:       FallbackProbability,
		Severity:          SeverityMedium,
		Description:       raw,
		RecommendedAction: ActionConsult,
		SpecialistType:    labels.specialist,
	}}
}
