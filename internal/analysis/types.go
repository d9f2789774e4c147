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
	"net/http"
	"strings"

	"github.com/arogyaplus/arogya-assistant/internal/normalize"
	"github.com/arogyaplus/arogya-assistant/internal/resilience"
)

// Kind identifies an analysis operation and the result it produces.
type Kind string

const (
	KindSymptom    Kind = "symptom"
	KindConditions Kind = "condition-list"
	KindReport     Kind = "report"
	KindImage      Kind = "image"
	KindChat       Kind = "chat"
)

// Activity describes the operation for user-facing messages.
func (k Kind) Activity() string {
	switch k {
	case KindSymptom:
		return "analyzing symptoms"
	case KindConditions:
		return "suggesting conditions"
	case KindReport:
		return "analyzing the report"
	case KindImage:
		return "analyzing the image"
	case KindChat:
		return "answering your message"
	default:
		return "processing the request"
	}
}

// Result is one of *SymptomAnalysis, *ConditionList, *ReportAnalysis,
// *ImageAnalysis or *ChatReply.
type Result interface {
	Kind() Kind
}

// SymptomAnalysis is a free-text consultation-style reading of symptoms.
type SymptomAnalysis struct {
	Text string `json:"text"`
}

func (*SymptomAnalysis) Kind() Kind { return KindSymptom }

type (
	Condition     = normalize.Condition
	ReportSummary = normalize.ReportSummary
	Finding       = normalize.Finding
	RiskFactor    = normalize.RiskFactor
)

// ConditionList holds ranked condition suggestions.
type ConditionList struct {
	Conditions []Condition `json:"conditions"`
}

func (*ConditionList) Kind() Kind { return KindConditions }

// ReportAnalysis is a structured interpretation of a medical report.
type ReportAnalysis struct {
	normalize.Report
}

func (*ReportAnalysis) Kind() Kind { return KindReport }

// ImageAnalysis is a free-text description of an uploaded image.
type ImageAnalysis struct {
	Text string `json:"text"`
}

func (*ImageAnalysis) Kind() Kind { return KindImage }

// Role is the author of a chat turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is one message of a chat conversation.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// ChatReply carries the model's answer and the conversation extended by the
// user's message and that answer.
type ChatReply struct {
	Response string `json:"response"`
	History  []Turn `json:"history"`
}

func (*ChatReply) Kind() Kind { return KindChat }

// Image is an uploaded image. An empty MIMEType is detected from Data.
type Image struct {
	Name     string
	MIMEType string
	Data     []byte
}

func (img *Image) mimeType() string {
	if img.MIMEType != "" {
		return img.MIMEType
	}
	// DetectContentType appends parameters to some types
	mime, _, _ := strings.Cut(http.DetectContentType(img.Data), ";")
	return mime
}

// Request is a single analysis submitted through Analyze.
type Request struct {
	Kind     Kind
	Text     string
	Language Language
	Image    *Image
	History  []Turn
}

// SampleNotice labels results that come from bundled sample data.
const SampleNotice = "Showing sample analysis"

// Envelope is what callers render: a live result, or a labelled sample when
// the live analysis failed.
type Envelope struct {
	Kind      Kind                 `json:"kind"`
	Result    Result               `json:"result"`
	Fallback  bool                 `json:"fallback"`
	Notice    string               `json:"notice,omitempty"`
	ErrorKind resilience.ErrorKind `json:"error_kind,omitempty"`
	Message   string               `json:"message,omitempty"`
}
