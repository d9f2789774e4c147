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
	"unicode/utf8"

	"github.com/arogyaplus/arogya-assistant/internal/resilience"
)

// MaxInputRunes bounds user text sent to the model. Extracted report text is
// the largest input the client expects.
const MaxInputRunes = 30000

// validateText rejects blank or oversized input before any backend call.
func validateText(text, field string) error {
	if strings.TrimSpace(text) == "" {
		return resilience.NewInvalidInputError(fmt.Sprintf("%s cannot be empty", field), nil)
	}
	if n := utf8.RuneCountInString(text); n > MaxInputRunes {
		return resilience.NewInvalidInputError(
			fmt.Sprintf("%s is too long (%d characters, limit %d)", field, n, MaxInputRunes), nil)
	}
	return nil
}

// BuildSymptomPrompt asks for a consultation-style reading of symptoms.
func BuildSymptomPrompt(symptoms string, lang Language) string {
	var prompt strings.Builder

	fmt.Fprintf(&prompt, "You are a healthcare AI assistant analyzing symptoms. "+
		"Please provide a professional medical analysis in %s language.\n\n", lang.Name())
	fmt.Fprintf(&prompt, "User symptoms: %s\n\n", symptoms)
	prompt.WriteString("Please provide:\n")
	prompt.WriteString("1. A brief analysis of the described symptoms\n")
	prompt.WriteString("2. Possible conditions to consider (with confidence levels)\n")
	prompt.WriteString("3. Recommended actions (immediate care, doctor consultation, etc.)\n")
	prompt.WriteString("4. Important disclaimers about seeking professional medical advice\n\n")
	prompt.WriteString("Format your response as a clear, professional medical consultation. " +
		"Remember this is for informational purposes only and does not replace professional medical advice.")

	return prompt.String()
}

const conditionSchema = `{
  "conditions": [
    {
      "name": "Condition name",
      "probability": 85,
      "severity": "low/medium/high",
      "description": "Brief description",
      "detailedDescription": "Detailed explanation",
      "recommendedAction": "monitor/consult/urgent",
      "specialistType": "Type of specialist",
      "commonSymptoms": ["symptom1", "symptom2"],
      "recommendations": ["recommendation1", "recommendation2"]
    }
  ]
}`

// BuildConditionPrompt asks for ranked conditions as a JSON object.
func BuildConditionPrompt(symptoms string, lang Language) string {
	var prompt strings.Builder

	fmt.Fprintf(&prompt, "As a medical AI assistant, analyze these symptoms and provide structured "+
		"condition suggestions in %s language.\n\n", lang.Name())
	fmt.Fprintf(&prompt, "Symptoms: %s\n\n", symptoms)
	prompt.WriteString("Please provide your response in this JSON format:\n")
	prompt.WriteString(conditionSchema)
	prompt.WriteString("\n\nProvide 3-4 most likely conditions ranked by probability. " +
		"Include severity levels and clear recommendations.")

	return prompt.String()
}

const reportSchema = `{
  "summary": { "title": "Overall Health Assessment", "content": "Brief summary of findings", "severity": "normal/mild/moderate/severe", "icon": "Heart" },
  "findings": [
    { "category": "Test Category", "icon": "Icon name", "severity": "normal/mild/moderate/severe", "title": "Finding title", "explanation": "Detailed explanation", "recommendation": "What to do next", "expandable": true }
  ],
  "nextSteps": ["Step 1", "Step 2"],
  "riskFactors": [{ "factor": "Risk name", "risk": "Low/Moderate/High", "color": "success/warning/error" }]
}`

// BuildReportPrompt asks for a structured report interpretation.
func BuildReportPrompt(reportText string, lang Language) string {
	var prompt strings.Builder

	fmt.Fprintf(&prompt, "As a medical AI assistant, analyze this medical report and provide a "+
		"comprehensive interpretation in %s language.\n\n", lang.Name())
	fmt.Fprintf(&prompt, "Medical Report Text: %s\n\n", reportText)
	prompt.WriteString("Please provide your response in this JSON format:\n")
	prompt.WriteString(reportSchema)

	return prompt.String()
}

// BuildImagePrompt frames the user's question about an image.
func BuildImagePrompt(question string) string {
	var prompt strings.Builder

	prompt.WriteString("As a medical AI assistant, analyze this medical image/document.\n\n")
	fmt.Fprintf(&prompt, "User question: %s\n\n", question)
	prompt.WriteString("Please provide:\n")
	prompt.WriteString("1. A description of what you can see in the image\n")
	prompt.WriteString("2. Any notable medical findings or observations\n")
	prompt.WriteString("3. Educational information about the condition/procedure shown\n")
	prompt.WriteString("4. Recommendations for next steps or further consultation\n\n")
	prompt.WriteString("Important: This is for educational purposes only and does not replace " +
		"professional medical diagnosis.")

	return prompt.String()
}

// ChatSystemInstruction is prepended to every chat conversation.
func ChatSystemInstruction(lang Language) string {
	return fmt.Sprintf("You are ArogyaPlus AI, a healthcare assistant. Provide helpful, accurate health "+
		"information in %s language. Always remind users to consult healthcare professionals "+
		"for medical decisions.", lang.Name())
}
