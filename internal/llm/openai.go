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
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/arogyaplus/arogya-assistant/internal/resilience"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIGenerator talks to an OpenAI-compatible chat completions endpoint.
type OpenAIGenerator struct {
	client *openai.Client
	logger *zap.Logger
}

// NewOpenAIGenerator creates a generator. An empty endpoint uses the public API.
func NewOpenAIGenerator(apiKey, endpoint string, logger *zap.Logger) (*OpenAIGenerator, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config := openai.DefaultConfig(apiKey)
	if endpoint != "" {
		config.BaseURL = endpoint
	}

	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(config),
		logger: logger,
	}, nil
}

// Name identifies the backend.
func (g *OpenAIGenerator) Name() string { return ProviderOpenAI }

// Generate sends a chat completion request.
func (g *OpenAIGenerator) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, resilience.NewInvalidInputError("at least one message is required", nil)
	}

	openaiReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    buildChatMessages(req),
		MaxTokens:   req.Config.MaxOutputTokens,
		Temperature: req.Config.Temperature,
		TopP:        req.Config.TopP,
	}

	g.logger.Debug("Creating chat completion",
		zap.String("model", req.Model),
		zap.Int("max_tokens", req.Config.MaxOutputTokens),
		zap.Float64("temperature", float64(req.Config.Temperature)),
		zap.Int("message_count", len(openaiReq.Messages)),
		zap.String("preview", truncateText(req.Messages[len(req.Messages)-1].Text(), logPreviewLength)),
	)

	resp, err := g.client.CreateChatCompletion(ctx, openaiReq)
	if err != nil {
		return nil, g.handleAPIError(ctx, err)
	}

	if len(resp.Choices) == 0 {
		return nil, resilience.NewInvalidResponseFormatError("no choices returned from the model", nil)
	}

	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		return nil, resilience.NewSafetyBlockedError("the response was blocked by the content filter", nil)
	}
	if strings.TrimSpace(choice.Message.Content) == "" {
		return nil, resilience.NewInvalidResponseFormatError("the model returned an empty response", nil)
	}

	g.logger.Debug("Chat completion successful",
		zap.String("finish_reason", string(choice.FinishReason)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)

	return &GenerateResponse{
		Text:         choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Model:        resp.Model,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func buildChatMessages(req *GenerateRequest) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.SystemInstruction != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemInstruction,
		})
	}

	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleModel {
			role = openai.ChatMessageRoleAssistant
		}

		if !m.hasInlineData() {
			messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Text()})
			continue
		}

		parts := make([]openai.ChatMessagePart, 0, len(m.Parts))
		for _, p := range m.Parts {
			if p.InlineData != nil {
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL: dataURL(p.InlineData),
					},
				})
				continue
			}
			parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: p.Text})
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, MultiContent: parts})
	}
	return messages
}

func dataURL(d *InlineData) string {
	return fmt.Sprintf("data:%s;base64,%s", d.MIMEType, base64.StdEncoding.EncodeToString(d.Data))
}

// handleAPIError maps go-openai errors onto the analysis error kinds
func (g *OpenAIGenerator) handleAPIError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return resilience.ContextError(ctx)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		g.logger.Warn("OpenAI API error",
			zap.Int("status", apiErr.HTTPStatusCode),
			zap.String("type", apiErr.Type),
			zap.String("message", apiErr.Message),
		)
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return resilience.NewRateLimitedError("the model provider is rate limiting requests", err)
		case isContentFilter(apiErr):
			return resilience.NewSafetyBlockedError("the request was blocked by the content filter", err)
		case apiErr.HTTPStatusCode == http.StatusRequestTimeout || apiErr.HTTPStatusCode >= http.StatusInternalServerError:
			return resilience.NewNetworkError(fmt.Sprintf("model provider error (status %d)", apiErr.HTTPStatusCode), err)
		case apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden:
			return resilience.NewUnknownError("invalid API key or unauthorized access", err)
		default:
			return resilience.NewUnknownError(fmt.Sprintf("model provider error (status %d)", apiErr.HTTPStatusCode), err)
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		switch {
		case reqErr.HTTPStatusCode == http.StatusTooManyRequests:
			return resilience.NewRateLimitedError("the model provider is rate limiting requests", err)
		case reqErr.HTTPStatusCode >= http.StatusInternalServerError:
			return resilience.NewNetworkError(fmt.Sprintf("model provider error (status %d)", reqErr.HTTPStatusCode), err)
		default:
			return resilience.NewUnknownError(fmt.Sprintf("model provider error (status %d)", reqErr.HTTPStatusCode), err)
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return resilience.NewNetworkError("could not reach the model provider", err)
	}

	return resilience.NewUnknownError("OpenAI client error", err)
}

func isContentFilter(apiErr *openai.APIError) bool {
	if apiErr.HTTPStatusCode != http.StatusBadRequest {
		return false
	}
	if code, ok := apiErr.Code.(string); ok && code == "content_filter" {
		return true
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "content management policy") || strings.Contains(msg, "safety system")
}
