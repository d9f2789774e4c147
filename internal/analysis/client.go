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

// Package analysis runs the health analyses offered by the assistant: symptom
// readings, condition suggestions, report interpretation, image questions and
// multi-turn chat. Every operation is a single generation call wrapped in
// retries and a per-attempt timeout.
package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/arogyaplus/arogya-assistant/internal/llm"
	"github.com/arogyaplus/arogya-assistant/internal/normalize"
	"github.com/arogyaplus/arogya-assistant/internal/resilience"
	"go.uber.org/zap"
)

const (
	// DefaultFastModel serves symptom readings and chat
	DefaultFastModel = "gemini-2.5-flash"
	// DefaultDeepModel serves conditions, reports and images
	DefaultDeepModel = "gemini-2.5-pro"
)

// Models selects the model used by each operation.
type Models struct {
	Symptom    string
	Conditions string
	Report     string
	Image      string
	Chat       string
}

// DefaultModels returns the fast model for symptoms and chat and the deep
// model for everything else.
func DefaultModels() Models {
	return Models{
		Symptom:    DefaultFastModel,
		Conditions: DefaultDeepModel,
		Report:     DefaultDeepModel,
		Image:      DefaultDeepModel,
		Chat:       DefaultFastModel,
	}
}

func (m Models) withDefaults() Models {
	d := DefaultModels()
	for _, f := range []struct {
		value *string
		def   string
	}{
		{&m.Symptom, d.Symptom},
		{&m.Conditions, d.Conditions},
		{&m.Report, d.Report},
		{&m.Image, d.Image},
		{&m.Chat, d.Chat},
	} {
		if *f.value == "" {
			*f.value = f.def
		}
	}
	return m
}

// Options configures a Client.
type Options struct {
	Models         Models
	Retry          resilience.RetryPolicy
	RequestTimeout time.Duration
	Safety         llm.SafetyLevel
}

// DefaultOptions returns 3 attempts with 2s linear backoff and a 60s
// per-attempt timeout.
func DefaultOptions() Options {
	return Options{
		Models:         DefaultModels(),
		Retry:          resilience.DefaultRetryPolicy(),
		RequestTimeout: resilience.DefaultRequestTimeout,
		Safety:         llm.SafetyMedium,
	}
}

// Client runs analyses against a generation backend.
type Client struct {
	gen    llm.Generator
	opts   Options
	logger *zap.Logger
}

// NewClient creates a client. Empty model names and a zero retry policy take
// their defaults.
func NewClient(gen llm.Generator, opts Options, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultOptions()
	opts.Models = opts.Models.withDefaults()
	if opts.Retry.MaxAttempts == 0 {
		shouldRetry := opts.Retry.ShouldRetry
		opts.Retry = defaults.Retry
		opts.Retry.ShouldRetry = shouldRetry
	}
	if opts.Retry.Logger == nil {
		opts.Retry.Logger = logger
	}
	if opts.Safety == "" {
		opts.Safety = defaults.Safety
	}

	return &Client{gen: gen, opts: opts, logger: logger}
}

// AnalyzeSymptoms returns a consultation-style reading of the symptoms.
func (c *Client) AnalyzeSymptoms(ctx context.Context, symptoms string, lang Language) (*SymptomAnalysis, error) {
	if err := validateText(symptoms, "symptoms"); err != nil {
		return nil, err
	}

	text, err := c.generate(ctx, KindSymptom, &llm.GenerateRequest{
		Model:    c.opts.Models.Symptom,
		Messages: []llm.Message{userMessage(BuildSymptomPrompt(symptoms, lang))},
		Config:   llm.GenerationConfig{Temperature: 0.3, TopP: 0.8, TopK: 40, MaxOutputTokens: 1500},
	})
	if err != nil {
		return nil, err
	}
	return &SymptomAnalysis{Text: text}, nil
}

// GenerateConditionSuggestions returns ranked conditions. A reply without a
// usable conditions object becomes a single general record carrying the
// reply text.
func (c *Client) GenerateConditionSuggestions(ctx context.Context, symptoms string, lang Language) (*ConditionList, error) {
	if err := validateText(symptoms, "symptoms"); err != nil {
		return nil, err
	}

	text, err := c.generate(ctx, KindConditions, &llm.GenerateRequest{
		Model:    c.opts.Models.Conditions,
		Messages: []llm.Message{userMessage(BuildConditionPrompt(symptoms, lang))},
		Config:   llm.GenerationConfig{Temperature: 0.2, TopP: 0.8, TopK: 40, MaxOutputTokens: 2000},
	})
	if err != nil {
		return nil, err
	}

	conditions, ok := normalize.Conditions(text)
	if !ok {
		c.logger.Warn("Condition reply was not valid JSON, using general record",
			zap.Int("reply_length", len(text)))
		conditions = normalize.FallbackConditions(text, string(lang))
	}
	return &ConditionList{Conditions: conditions}, nil
}

// AnalyzeMedicalReport interprets extracted report text.
func (c *Client) AnalyzeMedicalReport(ctx context.Context, reportText string, lang Language) (*ReportAnalysis, error) {
	if err := validateText(reportText, "report text"); err != nil {
		return nil, err
	}

	text, err := c.generate(ctx, KindReport, &llm.GenerateRequest{
		Model:    c.opts.Models.Report,
		Messages: []llm.Message{userMessage(BuildReportPrompt(reportText, lang))},
		Config:   llm.GenerationConfig{Temperature: 0.2, TopP: 0.8, TopK: 40, MaxOutputTokens: 2500},
	})
	if err != nil {
		return nil, err
	}

	report, ok := normalize.ParseReport(text)
	if !ok {
		c.logger.Warn("Report reply was not valid JSON, using text summary",
			zap.Int("reply_length", len(text)))
		report = normalize.FallbackReport(text)
	}
	return &ReportAnalysis{Report: report}, nil
}

// AnalyzeImageWithText answers a question about an image. Sampling uses the
// provider defaults.
func (c *Client) AnalyzeImageWithText(ctx context.Context, question string, img *Image) (*ImageAnalysis, error) {
	if err := validateText(question, "question"); err != nil {
		return nil, err
	}
	if img == nil || len(img.Data) == 0 {
		return nil, resilience.NewInvalidInputError("image data is required", nil)
	}

	text, err := c.generate(ctx, KindImage, &llm.GenerateRequest{
		Model: c.opts.Models.Image,
		Messages: []llm.Message{{
			Role: llm.RoleUser,
			Parts: []llm.Part{
				llm.TextPart(BuildImagePrompt(question)),
				llm.ImagePart(img.mimeType(), img.Data),
			},
		}},
	})
	if err != nil {
		return nil, err
	}
	return &ImageAnalysis{Text: text}, nil
}

// HealthChatWithHistory continues a conversation. The returned history is a
// new slice: history, then the user's message verbatim, then the reply.
func (c *Client) HealthChatWithHistory(ctx context.Context, message string, history []Turn, lang Language) (*ChatReply, error) {
	if err := validateText(message, "message"); err != nil {
		return nil, err
	}

	messages := make([]llm.Message, 0, len(history)+1)
	for _, turn := range history {
		role := llm.RoleUser
		if turn.Role == RoleModel {
			role = llm.RoleModel
		}
		messages = append(messages, llm.Message{Role: role, Parts: []llm.Part{llm.TextPart(turn.Text)}})
	}
	messages = append(messages, userMessage(message))

	text, err := c.generate(ctx, KindChat, &llm.GenerateRequest{
		Model:             c.opts.Models.Chat,
		SystemInstruction: ChatSystemInstruction(lang),
		Messages:          messages,
		Config:            llm.GenerationConfig{Temperature: 0.4, TopP: 0.8, TopK: 40, MaxOutputTokens: 1000},
	})
	if err != nil {
		return nil, err
	}

	return &ChatReply{
		Response: text,
		History:  extendHistory(history, message, text),
	}, nil
}

// Analyze dispatches req to the operation named by its kind.
func (c *Client) Analyze(ctx context.Context, req Request) (Result, error) {
	switch req.Kind {
	case KindSymptom:
		return c.AnalyzeSymptoms(ctx, req.Text, req.Language)
	case KindConditions:
		return c.GenerateConditionSuggestions(ctx, req.Text, req.Language)
	case KindReport:
		return c.AnalyzeMedicalReport(ctx, req.Text, req.Language)
	case KindImage:
		return c.AnalyzeImageWithText(ctx, req.Text, req.Image)
	case KindChat:
		return c.HealthChatWithHistory(ctx, req.Text, req.History, req.Language)
	default:
		return nil, resilience.NewInvalidInputError(fmt.Sprintf("unknown analysis kind %q", req.Kind), nil)
	}
}

// AnalyzeOrFallback runs req and substitutes the labelled sample result when
// the analysis fails. Cancelled and invalid requests are returned as errors
// because there is nothing to show in their place.
func (c *Client) AnalyzeOrFallback(ctx context.Context, req Request) (Envelope, error) {
	result, err := c.Analyze(ctx, req)
	if err == nil {
		return Envelope{Kind: result.Kind(), Result: result}, nil
	}

	kind := resilience.Classify(err)
	if kind == resilience.KindCancelled || kind == resilience.KindInvalidInput {
		return Envelope{}, err
	}

	c.logger.Warn("Analysis failed, showing sample result",
		zap.String("kind", string(req.Kind)),
		zap.String("error_kind", string(kind)),
		zap.Error(err))

	sample := SampleResult(req)
	return Envelope{
		Kind:      sample.Kind(),
		Result:    sample,
		Fallback:  true,
		Notice:    SampleNotice,
		ErrorKind: kind,
		Message:   resilience.UserMessage(kind, req.Kind.Activity()),
	}, nil
}

// generate runs one generation call under the retry policy. Each attempt
// gets its own timeout.
func (c *Client) generate(ctx context.Context, kind Kind, req *llm.GenerateRequest) (string, error) {
	req.Safety = c.opts.Safety
	start := time.Now()

	resp, err := resilience.Execute[*llm.GenerateResponse](ctx, c.opts.Retry,
		func(ctx context.Context) (*llm.GenerateResponse, error) {
			return resilience.WithTimeout[*llm.GenerateResponse](ctx, c.opts.RequestTimeout, c.logger,
				func(ctx context.Context) (*llm.GenerateResponse, error) {
					return c.gen.Generate(ctx, req)
				})
		})
	if err != nil {
		c.logger.Warn("Analysis failed",
			zap.String("kind", string(kind)),
			zap.String("model", req.Model),
			zap.String("error_kind", string(resilience.Classify(err))),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", err
	}

	c.logger.Info("Analysis completed",
		zap.String("kind", string(kind)),
		zap.String("model", req.Model),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("elapsed", time.Since(start)))
	return resp.Text, nil
}

func userMessage(text string) llm.Message {
	return llm.Message{Role: llm.RoleUser, Parts: []llm.Part{llm.TextPart(text)}}
}

func extendHistory(history []Turn, message, reply string) []Turn {
	out := make([]Turn, 0, len(history)+2)
	out = append(out, history...)
	return append(out,
		Turn{Role: RoleUser, Text: message},
		Turn{Role: RoleModel, Text: reply},
	)
}
