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
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/arogyaplus/arogya-assistant/internal/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/genai"
)

func mockGeminiServer(t *testing.T, status int, body string, inspect func(path string, req map[string]any)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":generateContent") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if inspect != nil {
			raw, _ := io.ReadAll(r.Body)
			var decoded map[string]any
			_ = json.Unmarshal(raw, &decoded)
			inspect(r.URL.Path, decoded)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func geminiResponse(text, finishReason string) string {
	encoded, _ := json.Marshal(text)
	return `{
		"candidates": [{
			"content": {"role": "model", "parts": [{"text": ` + string(encoded) + `}]},
			"finishReason": "` + finishReason + `"
		}],
		"usageMetadata": {"promptTokenCount": 10, "candidatesTokenCount": 5, "totalTokenCount": 15}
	}`
}

func newTestGeminiGenerator(t *testing.T, server *httptest.Server) *GeminiGenerator {
	t.Helper()
	gen, err := NewGeminiGenerator(context.Background(), "test-key", server.URL, zaptest.NewLogger(t))
	require.NoError(t, err)
	return gen
}

func TestNewGeminiGenerator_RequiresKey(t *testing.T) {
	_, err := NewGeminiGenerator(context.Background(), "", "", zaptest.NewLogger(t))
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestGeminiGenerator_Generate(t *testing.T) {
	var (
		path     string
		captured map[string]any
	)
	server := mockGeminiServer(t, http.StatusOK, geminiResponse("Drink water and rest.", "STOP"), func(p string, m map[string]any) {
		path = p
		captured = m
	})
	gen := newTestGeminiGenerator(t, server)

	resp, err := gen.Generate(context.Background(), &GenerateRequest{
		Model:             "gemini-1.5-flash",
		SystemInstruction: "You are a healthcare assistant.",
		Messages: []Message{
			{Role: RoleUser, Parts: []Part{TextPart("hello")}},
			{Role: RoleModel, Parts: []Part{TextPart("hi")}},
			{Role: RoleUser, Parts: []Part{TextPart("I feel dizzy")}},
		},
		Config: GenerationConfig{Temperature: 0.4, TopP: 0.8, TopK: 40, MaxOutputTokens: 1000},
		Safety: SafetyMedium,
	})
	require.NoError(t, err)
	assert.Equal(t, "Drink water and rest.", resp.Text)
	assert.Equal(t, "STOP", resp.FinishReason)
	assert.Equal(t, 15, resp.Usage.TotalTokens)

	assert.Contains(t, path, "gemini-1.5-flash")
	require.NotNil(t, captured)
	contents, ok := captured["contents"].([]any)
	require.True(t, ok)
	require.Len(t, contents, 3)
	assert.Equal(t, "model", contents[1].(map[string]any)["role"])

	genConfig, ok := captured["generationConfig"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1000, genConfig["maxOutputTokens"])
	assert.EqualValues(t, 40, genConfig["topK"])

	safety, ok := captured["safetySettings"].([]any)
	require.True(t, ok)
	assert.Len(t, safety, len(harmCategories))
	assert.Equal(t, string(genai.HarmBlockThresholdBlockMediumAndAbove), safety[0].(map[string]any)["threshold"])

	_, ok = captured["systemInstruction"]
	assert.True(t, ok)
}

func TestGeminiGenerator_SafetyBlocked(t *testing.T) {
	t.Run("prompt feedback", func(t *testing.T) {
		server := mockGeminiServer(t, http.StatusOK, `{"promptFeedback": {"blockReason": "SAFETY"}}`, nil)
		_, err := newTestGeminiGenerator(t, server).Generate(context.Background(), userRequest("x"))
		assert.Equal(t, resilience.KindSafetyBlocked, resilience.Classify(err))
	})

	t.Run("finish reason", func(t *testing.T) {
		server := mockGeminiServer(t, http.StatusOK, geminiResponse("", "SAFETY"), nil)
		_, err := newTestGeminiGenerator(t, server).Generate(context.Background(), userRequest("x"))
		assert.Equal(t, resilience.KindSafetyBlocked, resilience.Classify(err))
	})
}

func TestGeminiGenerator_EmptyCandidates(t *testing.T) {
	server := mockGeminiServer(t, http.StatusOK, `{"candidates": []}`, nil)
	_, err := newTestGeminiGenerator(t, server).Generate(context.Background(), userRequest("x"))
	assert.Equal(t, resilience.KindInvalidResponseFormat, resilience.Classify(err))
}

func TestGeminiGenerator_RateLimited(t *testing.T) {
	server := mockGeminiServer(t, http.StatusTooManyRequests,
		`{"error": {"code": 429, "message": "Resource has been exhausted", "status": "RESOURCE_EXHAUSTED"}}`, nil)
	_, err := newTestGeminiGenerator(t, server).Generate(context.Background(), userRequest("x"))
	require.Error(t, err)
	assert.Equal(t, resilience.KindRateLimited, resilience.Classify(err))
}

func TestSafetySettings(t *testing.T) {
	tests := []struct {
		level SafetyLevel
		want  genai.HarmBlockThreshold
	}{
		{SafetyNone, genai.HarmBlockThresholdBlockNone},
		{SafetyLow, genai.HarmBlockThresholdBlockOnlyHigh},
		{SafetyMedium, genai.HarmBlockThresholdBlockMediumAndAbove},
		{SafetyHigh, genai.HarmBlockThresholdBlockLowAndAbove},
		{"", genai.HarmBlockThresholdBlockMediumAndAbove},
	}
	for _, tt := range tests {
		settings := safetySettings(tt.level)
		require.Len(t, settings, len(harmCategories))
		for _, s := range settings {
			assert.Equal(t, tt.want, s.Threshold)
		}
	}
}

func TestToGeminiContent(t *testing.T) {
	content := toGeminiContent(Message{Role: RoleUser, Parts: []Part{
		TextPart("describe"),
		ImagePart("image/png", []byte{1, 2, 3}),
	}})
	assert.Equal(t, "user", content.Role)
	require.Len(t, content.Parts, 2)
	assert.Equal(t, "describe", content.Parts[0].Text)
	require.NotNil(t, content.Parts[1].InlineData)
	assert.Equal(t, "image/png", content.Parts[1].InlineData.MIMEType)
}
