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
	"strings"
)

// Report severities.
const (
	ReportNormal   = "normal"
	ReportMild     = "mild"
	ReportModerate = "moderate"
	ReportSevere   = "severe"
)

// Risk levels and the colors they render with.
const (
	RiskLow      = "Low"
	RiskModerate = "Moderate"
	RiskHigh     = "High"
)

var riskColors = map[string]string{
	RiskLow:      "success",
	RiskModerate: "warning",
	RiskHigh:     "error",
}

// ReportSummary is the headline of a report interpretation.
type ReportSummary struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Severity string `json:"severity"`
	Icon     string `json:"icon"`
}

// Finding is a single observation drawn from a report.
type Finding struct {
	Category       string `json:"category"`
	Icon           string `json:"icon"`
	Severity       string `json:"severity"`
	Title          string `json:"title"`
	Explanation    string `json:"explanation"`
	Recommendation string `json:"recommendation"`
	Expandable     bool   `json:"expandable"`
}

// RiskFactor is a named risk and its level.
type RiskFactor struct {
	Factor string `json:"factor"`
	Risk   string `json:"risk"`
	Color  string `json:"color"`
}

// Report is a structured medical report interpretation.
type Report struct {
	Summary     ReportSummary `json:"summary"`
	Findings    []Finding     `json:"findings"`
	NextSteps   []string      `json:"nextSteps"`
	RiskFactors []RiskFactor  `json:"riskFactors"`
}

type rawSummary struct {
	Title    looseString `json:"title"`
	Content  looseString `json:"content"`
	Severity looseString `json:"severity"`
	Icon     looseString `json:"icon"`
}

// UnmarshalJSON also accepts a bare string, taken as the summary content.
func (r *rawSummary) UnmarshalJSON(b []byte) error {
	type plain rawSummary
	var p plain
	if err := json.Unmarshal(b, &p); err == nil {
		*r = rawSummary(p)
		return nil
	}
	var content looseString
	if err := json.Unmarshal(b, &content); err != nil {
		return err
	}
	*r = rawSummary{Content: content}
	return nil
}

type rawFinding struct {
	Category       looseString `json:"category"`
	Icon           looseString `json:"icon"`
	Severity       looseString `json:"severity"`
	Title          looseString `json:"title"`
	Explanation    looseString `json:"explanation"`
	Recommendation looseString `json:"recommendation"`
	Expandable     looseBool   `json:"expandable"`
}

type rawRiskFactor struct {
	Factor looseString `json:"factor"`
	Risk   looseString `json:"risk"`
	Color  looseString `json:"color"`
}

type rawReport struct {
	Summary     rawSummary      `json:"summary"`
	Findings    []rawFinding    `json:"findings"`
	NextSteps   looseList       `json:"nextSteps"`
	RiskFactors []rawRiskFactor `json:"riskFactors"`
}

// ParseReport parses a report reply and coerces its enumerations. Objects
// with neither a summary nor findings are skipped in favor of later ones,
// and a reply with none is reported as unparseable.
func ParseReport(raw string) (Report, bool) {
	var rr rawReport
	found := Each(raw, func(obj json.RawMessage) bool {
		var candidate rawReport
		if json.Unmarshal(obj, &candidate) != nil {
			return false
		}
		if candidate.Summary == (rawSummary{}) && len(candidate.Findings) == 0 {
			return false
		}
		rr = candidate
		return true
	})
	if !found {
		return Report{}, false
	}

	r := Report{
		Summary: ReportSummary{
			Title:    string(rr.Summary.Title),
			Content:  string(rr.Summary.Content),
			Severity: oneOf(string(rr.Summary.Severity), ReportModerate, ReportNormal, ReportMild, ReportModerate, ReportSevere),
			Icon:     string(rr.Summary.Icon),
		},
		Findings:    make([]Finding, 0, len(rr.Findings)),
		NextSteps:   rr.NextSteps.values(),
		RiskFactors: make([]RiskFactor, 0, len(rr.RiskFactors)),
	}
	for _, f := range rr.Findings {
		r.Findings = append(r.Findings, Finding{
			Category:       string(f.Category),
			Icon:           string(f.Icon),
			Severity:       oneOf(string(f.Severity), ReportNormal, ReportNormal, ReportMild, ReportModerate, ReportSevere),
			Title:          string(f.Title),
			Explanation:    string(f.Explanation),
			Recommendation: string(f.Recommendation),
			Expandable:     bool(f.Expandable),
		})
	}
	for _, rf := range rr.RiskFactors {
		risk := normalizeRisk(string(rf.Risk))
		color := rf.Color.trimmed()
		if color == "" {
			color = riskColors[risk]
		}
		r.RiskFactors = append(r.RiskFactors, RiskFactor{Factor: string(rf.Factor), Risk: risk, Color: color})
	}
	if r.NextSteps == nil {
		r.NextSteps = []string{}
	}
	return r, true
}

func normalizeRisk(risk string) string {
	switch strings.ToLower(strings.TrimSpace(risk)) {
	case "low":
		return RiskLow
	case "high":
		return RiskHigh
	default:
		return RiskModerate
	}
}

// FallbackReport wraps an unparseable reply in the report shape.
func FallbackReport(raw string) Report {
	return Report{
		Summary: ReportSummary{
			Title:    "Medical Report Analysis",
			Content:  raw,
			Severity: ReportModerate,
			Icon:     "FileText",
		},
		Findings: []Finding{{
			Category:       "Analysis",
			Icon:           "Search",
			Severity:       ReportNormal,
			Title:          "AI Analysis",
			Explanation:    raw,
			Recommendation: "Consult with your healthcare provider",
			Expandable:     true,
		}},
		NextSteps:   []string{"Review with your doctor", "Follow recommended treatments"},
		RiskFactors: []RiskFactor{},
	}
}
