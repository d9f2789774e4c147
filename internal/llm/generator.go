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

// Package llm adapts hosted generative models to a single request/response
// shape used by the analysis client.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/arogyaplus/arogya-assistant/internal/resilience"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// ProviderGemini selects the native Gemini backend.
	ProviderGemini = "gemini"
	// ProviderOpenAI selects any OpenAI-compatible chat completions backend.
	ProviderOpenAI = "openai"

	// logPreviewLength bounds prompt and reply previews in debug logs
	logPreviewLength = 120
)

// ErrMissingAPIKey is returned when a backend is constructed without credentials.
var ErrMissingAPIKey = errors.New("API key is required")

// Role identifies the author of a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// InlineData carries binary content such as an uploaded image.
type InlineData struct {
	MIMEType string
	Data     []byte
}

// Part is one piece of message content: either text or inline data.
type Part struct {
	Text       string
	InlineData *InlineData
}

// TextPart returns a text part.
func TextPart(text string) Part {
	return Part{Text: text}
}

// ImagePart returns an inline image part.
func ImagePart(mimeType string, data []byte) Part {
	return Part{InlineData: &InlineData{MIMEType: mimeType, Data: data}}
}

// Message is a single conversational turn.
type Message struct {
	Role  Role
	Parts []Part
}

// Text joins the text parts of the message.
func (m Message) Text() string {
	texts := make([]string, 0, len(m.Parts))
	for _, p := range m.Parts {
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

func (m Message) hasInlineData() bool {
	for _, p := range m.Parts {
		if p.InlineData != nil {
			return true
		}
	}
	return false
}

// GenerationConfig holds sampling parameters. Zero values leave the
// provider default in place.
type GenerationConfig struct {
	Temperature     float32
	TopP            float32
	TopK            int
	MaxOutputTokens int
}

// SafetyLevel controls how aggressively the provider filters harmful content.
type SafetyLevel string

const (
	SafetyNone   SafetyLevel = "none"
	SafetyLow    SafetyLevel = "low"
	SafetyMedium SafetyLevel = "medium"
	SafetyHigh   SafetyLevel = "high"
)

// ParseSafetyLevel maps a configuration string to a SafetyLevel.
func ParseSafetyLevel(s string) (SafetyLevel, error) {
	switch level := SafetyLevel(strings.ToLower(strings.TrimSpace(s))); level {
	case SafetyNone, SafetyLow, SafetyMedium, SafetyHigh:
		return level, nil
	case "":
		return SafetyMedium, nil
	default:
		return "", fmt.Errorf("unknown safety level %q", s)
	}
}

// GenerateRequest is a single generation call.
type GenerateRequest struct {
	Model             string
	SystemInstruction string
	Messages          []Message
	Config            GenerationConfig
	Safety            SafetyLevel
}

// Usage reports token accounting when the provider returns it.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// GenerateResponse is the text reply of a generation call.
type GenerateResponse struct {
	Text         string
	FinishReason string
	Model        string
	Usage        Usage
}

// Generator produces text from a generation request. Implementations return
// *resilience.AnalysisError values so callers can branch on the error kind.
type Generator interface {
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
	Name() string
}

// Options configures New.
type Options struct {
	Provider          string
	APIKey            string
	Endpoint          string
	RequestsPerSecond float64
	Burst             int
	BreakerEnabled    bool
	Breaker           resilience.BreakerConfig
}

// New builds the configured backend and wraps it with the client-side rate
// limiter and circuit breaker when enabled.
func New(ctx context.Context, opts Options, logger *zap.Logger) (Generator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		gen Generator
		err error
	)
	switch strings.ToLower(opts.Provider) {
	case ProviderGemini, "":
		gen, err = NewGeminiGenerator(ctx, opts.APIKey, opts.Endpoint, logger)
	case ProviderOpenAI:
		gen, err = NewOpenAIGenerator(opts.APIKey, opts.Endpoint, logger)
	default:
		return nil, fmt.Errorf("unsupported provider %q", opts.Provider)
	}
	if err != nil {
		return nil, err
	}

	if opts.BreakerEnabled {
		cfg := opts.Breaker
		if cfg.Name == "" {
			cfg.Name = gen.Name()
		}
		gen = WithBreaker(gen, resilience.NewBreaker(cfg, logger))
	}
	if opts.RequestsPerSecond > 0 {
		gen = WithRateLimit(gen, opts.RequestsPerSecond, opts.Burst)
	}

	logger.Info("Generation backend initialized",
		zap.String("provider", gen.Name()),
		zap.Bool("breaker", opts.BreakerEnabled),
		zap.Float64("requests_per_second", opts.RequestsPerSecond),
	)
	return gen, nil
}

type limitedGenerator struct {
	next    Generator
	limiter *rate.Limiter
}

// WithRateLimit throttles calls to next. Waiting honours ctx.
func WithRateLimit(next Generator, requestsPerSecond float64, burst int) Generator {
	if burst < 1 {
		burst = 1
	}
	return &limitedGenerator{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

func (g *limitedGenerator) Name() string { return g.next.Name() }

func (g *limitedGenerator) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, resilience.ContextError(ctx)
		}
		// the wait would outlive the deadline
		return nil, resilience.NewRateLimitedError("client rate limit exceeded", err)
	}
	return g.next.Generate(ctx, req)
}

type breakerGenerator struct {
	next    Generator
	breaker *resilience.Breaker
}

// WithBreaker routes calls to next through breaker.
func WithBreaker(next Generator, breaker *resilience.Breaker) Generator {
	return &breakerGenerator{next: next, breaker: breaker}
}

func (g *breakerGenerator) Name() string { return g.next.Name() }

func (g *breakerGenerator) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	var resp *GenerateResponse
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var genErr error
		resp, genErr = g.next.Generate(ctx, req)
		return genErr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// BreakerState reports the state of the circuit breaker wrapped around gen,
// if there is one.
func BreakerState(gen Generator) (string, bool) {
	for {
		switch g := gen.(type) {
		case *breakerGenerator:
			return g.breaker.State(), true
		case *limitedGenerator:
			gen = g.next
		default:
			return "", false
		}
	}
}

// truncateText truncates text to a maximum length for logging
func truncateText(text string, maxLength int) string {
	if len(text) <= maxLength {
		return text
	}
	return text[:maxLength] + "..."
}
