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

package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/arogyaplus/arogya-assistant/internal/resilience"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GeminiGenerator calls the Gemini API through the genai SDK.
type GeminiGenerator struct {
	client *genai.Client
	logger *zap.Logger
}

// NewGeminiGenerator creates a generator. A non-empty endpoint overrides the
// API base URL.
func NewGeminiGenerator(ctx context.Context, apiKey, endpoint string, logger *zap.Logger) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if endpoint != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: endpoint}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiGenerator{client: client, logger: logger}, nil
}

// Name identifies the backend.
func (g *GeminiGenerator) Name() string { return ProviderGemini }

// Generate calls GenerateContent with the request's history and settings.
func (g *GeminiGenerator) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, resilience.NewInvalidInputError("at least one message is required", nil)
	}

	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		contents = append(contents, toGeminiContent(m))
	}

	g.logger.Debug("Generating content",
		zap.String("model", req.Model),
		zap.Int("content_count", len(contents)),
		zap.String("safety", string(req.Safety)),
		zap.String("preview", truncateText(req.Messages[len(req.Messages)-1].Text(), logPreviewLength)),
	)

	resp, err := g.client.Models.GenerateContent(ctx, req.Model, contents, g.buildConfig(req))
	if err != nil {
		return nil, g.handleAPIError(ctx, err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, resilience.NewSafetyBlockedError("the request was blocked by safety filters",
			fmt.Errorf("block reason: %s", resp.PromptFeedback.BlockReason))
	}
	if len(resp.Candidates) == 0 {
		return nil, resilience.NewInvalidResponseFormatError("no candidates returned from the model", nil)
	}

	candidate := resp.Candidates[0]
	switch candidate.FinishReason {
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist:
		return nil, resilience.NewSafetyBlockedError("the response was blocked by safety filters",
			fmt.Errorf("finish reason: %s", candidate.FinishReason))
	}

	text := candidateText(candidate)
	if strings.TrimSpace(text) == "" {
		return nil, resilience.NewInvalidResponseFormatError("the model returned an empty response", nil)
	}

	out := &GenerateResponse{
		Text:         text,
		FinishReason: string(candidate.FinishReason),
		Model:        req.Model,
	}
	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	g.logger.Debug("Content generated",
		zap.String("finish_reason", out.FinishReason),
		zap.Int("total_tokens", out.Usage.TotalTokens),
	)
	return out, nil
}

func (g *GeminiGenerator) buildConfig(req *GenerateRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		SafetySettings: safetySettings(req.Safety),
	}
	if req.SystemInstruction != "" {
		cfg.SystemInstruction = &genai.Content{
			Role:  string(genai.RoleUser),
			Parts: []*genai.Part{{Text: req.SystemInstruction}},
		}
	}
	if req.Config.Temperature > 0 {
		cfg.Temperature = ptr(req.Config.Temperature)
	}
	if req.Config.TopP > 0 {
		cfg.TopP = ptr(req.Config.TopP)
	}
	if req.Config.TopK > 0 {
		cfg.TopK = ptr(float32(req.Config.TopK))
	}
	if req.Config.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = int32(req.Config.MaxOutputTokens)
	}
	return cfg
}

func toGeminiContent(m Message) *genai.Content {
	role := string(genai.RoleUser)
	if m.Role == RoleModel {
		role = string(genai.RoleModel)
	}

	parts := make([]*genai.Part, 0, len(m.Parts))
	for _, p := range m.Parts {
		if p.InlineData != nil {
			parts = append(parts, &genai.Part{
				InlineData: &genai.Blob{MIMEType: p.InlineData.MIMEType, Data: p.InlineData.Data},
			})
			continue
		}
		parts = append(parts, &genai.Part{Text: p.Text})
	}
	return &genai.Content{Role: role, Parts: parts}
}

func candidateText(c *genai.Candidate) string {
	if c == nil || c.Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range c.Content.Parts {
		if p != nil && !p.Thought {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

var harmCategories = []genai.HarmCategory{
	genai.HarmCategoryHarassment,
	genai.HarmCategoryHateSpeech,
	genai.HarmCategorySexuallyExplicit,
	genai.HarmCategoryDangerousContent,
}

func safetySettings(level SafetyLevel) []*genai.SafetySetting {
	var threshold genai.HarmBlockThreshold
	switch level {
	case SafetyNone:
		threshold = genai.HarmBlockThresholdBlockNone
	case SafetyLow:
		threshold = genai.HarmBlockThresholdBlockOnlyHigh
	case SafetyHigh:
		threshold = genai.HarmBlockThresholdBlockLowAndAbove
	default:
		threshold = genai.HarmBlockThresholdBlockMediumAndAbove
	}

	settings := make([]*genai.SafetySetting, 0, len(harmCategories))
	for _, category := range harmCategories {
		settings = append(settings, &genai.SafetySetting{Category: category, Threshold: threshold})
	}
	return settings
}

// handleAPIError maps genai errors onto the analysis error kinds
func (g *GeminiGenerator) handleAPIError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return resilience.ContextError(ctx)
	}

	if code, message, ok := geminiAPIError(err); ok {
		g.logger.Warn("Gemini API error", zap.Int("status", code), zap.String("message", message))
		switch {
		case code == http.StatusTooManyRequests:
			return resilience.NewRateLimitedError("the model provider is rate limiting requests", err)
		case code == http.StatusRequestTimeout || code >= http.StatusInternalServerError:
			return resilience.NewNetworkError(fmt.Sprintf("model provider error (status %d)", code), err)
		case code == http.StatusUnauthorized || code == http.StatusForbidden:
			return resilience.NewUnknownError("invalid API key or unauthorized access", err)
		default:
			return resilience.NewUnknownError(fmt.Sprintf("model provider error (status %d)", code), err)
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return resilience.NewNetworkError("could not reach the model provider", err)
	}

	return resilience.NewUnknownError("Gemini client error", err)
}

// geminiAPIError unwraps genai.APIError, which the SDK returns by value.
func geminiAPIError(err error) (int, string, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, apiErr.Message, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, apiErrPtr.Message, true
	}
	return 0, "", false
}

func ptr[T any](v T) *T { return &v }
