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

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/arogyaplus/arogya-assistant/internal/analysis"
	"github.com/arogyaplus/arogya-assistant/internal/config"
	"github.com/arogyaplus/arogya-assistant/internal/history"
	"github.com/arogyaplus/arogya-assistant/internal/llm"
	"github.com/arogyaplus/arogya-assistant/internal/normalize"
	"github.com/arogyaplus/arogya-assistant/internal/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

type fakeGenerator struct {
	mu       sync.Mutex
	text     string
	err      error
	requests []*llm.GenerateRequest
}

func (f *fakeGenerator) Name() string { return "fake" }

func (f *fakeGenerator) Generate(_ context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.GenerateResponse{Text: f.text}, nil
}

func createTestConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Provider:    config.ProviderConfig{Name: "openai", APIKey: "sk-test-key"}, // pragma: allowlist secret
		Models: config.ModelsConfig{
			Symptom: "m-symptom", Conditions: "m-conditions", Report: "m-report", Image: "m-image", Chat: "m-chat",
		},
		Retry:     config.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond},
		Analysis:  config.AnalysisConfig{RequestTimeout: 5 * time.Second, SafetyLevel: "medium"},
		Progress:  config.ProgressConfig{Interval: 10 * time.Millisecond},
		RateLimit: config.RateLimitConfig{Burst: 1},
		Breaker:   config.BreakerConfig{Enabled: true, MaxFailures: 5, ResetTimeout: time.Minute},
		History:   config.HistoryConfig{StorageType: "memory", TTL: time.Hour, MaxConversations: 10, MaxTurns: 50},
		Server:    config.ServerConfig{Address: ":0", ShutdownTimeout: time.Second, SessionIdleTTL: time.Minute},
		Logging:   config.LoggingConfig{Level: "info", Format: "json", Output: "stderr"},
	}
}

func newTestApp(t *testing.T, gen llm.Generator) (*app, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	cfg := createTestConfig()
	logger := zaptest.NewLogger(t)

	opts, err := clientOptions(cfg)
	require.NoError(t, err)

	var out, errOut bytes.Buffer
	return &app{
		cfg:    cfg,
		logger: logger,
		level:  zap.NewAtomicLevel(),
		gen:    gen,
		client: analysis.NewClient(gen, opts, logger),
		out:    &out,
		errOut: &errOut,
	}, &out, &errOut
}

func TestInitializeLogger(t *testing.T) {
	tests := []struct {
		name    string
		logging config.LoggingConfig
		level   zapcore.Level
	}{
		{"json info stderr", config.LoggingConfig{Level: "info", Format: "json", Output: "stderr"}, zapcore.InfoLevel},
		{"text debug stdout", config.LoggingConfig{Level: "debug", Format: "text", Output: "stdout"}, zapcore.DebugLevel},
		{"warn", config.LoggingConfig{Level: "warn", Format: "json", Output: "stderr"}, zapcore.WarnLevel},
		{"unknown level", config.LoggingConfig{Level: "trace", Format: "json", Output: "stderr"}, zapcore.InfoLevel},
		{"file output", config.LoggingConfig{
			Level: "error", Format: "json", Output: "file",
			File: filepath.Join(t.TempDir(), "arogya.log"),
		}, zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := createTestConfig()
			cfg.Logging = tt.logging

			logger, level, err := initializeLogger(cfg)
			require.NoError(t, err)
			require.NotNil(t, logger)
			assert.Equal(t, tt.level, level.Level())
			_ = logger.Sync()
		})
	}
}

func TestClientOptions(t *testing.T) {
	cfg := createTestConfig()
	cfg.Retry.TransientOnly = true
	cfg.Analysis.SafetyLevel = "high"

	opts, err := clientOptions(cfg)
	require.NoError(t, err)
	assert.Equal(t, "m-report", opts.Models.Report)
	assert.Equal(t, "m-chat", opts.Models.Chat)
	assert.Equal(t, 2, opts.Retry.MaxAttempts)
	assert.Equal(t, time.Millisecond, opts.Retry.BaseDelay)
	require.NotNil(t, opts.Retry.ShouldRetry)
	assert.False(t, opts.Retry.ShouldRetry(resilience.NewSafetyBlockedError("blocked", nil)))
	assert.Equal(t, llm.SafetyHigh, opts.Safety)
	assert.Equal(t, 5*time.Second, opts.RequestTimeout)

	cfg.Analysis.SafetyLevel = "extreme"
	_, err = clientOptions(cfg)
	assert.Error(t, err)
}

func TestBuildClient(t *testing.T) {
	cfg := createTestConfig()
	cfg.RateLimit.RequestsPerSecond = 5

	gen, client, err := buildClient(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.Equal(t, llm.ProviderOpenAI, gen.Name())

	state, ok := llm.BreakerState(gen)
	assert.True(t, ok)
	assert.Equal(t, "closed", state)
}

func TestHistoryConfig(t *testing.T) {
	cfg := createTestConfig()
	cfg.History.StorageType = "sqlite"
	cfg.History.DBPath = "/tmp/h.db"

	hc := historyConfig(cfg)
	assert.Equal(t, history.SQLiteStorageType, hc.StorageType)
	assert.Equal(t, "/tmp/h.db", hc.DBPath)
	assert.Equal(t, 50, hc.MaxTurns)
	assert.Equal(t, time.Hour, hc.TTL)
}

func TestRunAnalysis_ReportsProgress(t *testing.T) {
	a, _, errOut := newTestApp(t, &fakeGenerator{text: "Likely a tension headache."})

	env, err := a.runAnalysis(context.Background(), analysis.Request{
		Kind: analysis.KindSymptom,
		Text: "dull headache",
	})
	require.NoError(t, err)
	assert.False(t, env.Fallback)
	assert.Equal(t, "Likely a tension headache.", env.Result.(*analysis.SymptomAnalysis).Text)

	assert.Contains(t, errOut.String(), "[  0%] Initializing")
	assert.Contains(t, errOut.String(), "[100%] Complete")
}

func TestRunAnalysis_FallbackAndInvalidInput(t *testing.T) {
	a, out, errOut := newTestApp(t, &fakeGenerator{err: resilience.NewNetworkError("down", nil)})

	env, err := a.runAnalysis(context.Background(), analysis.Request{Kind: analysis.KindSymptom, Text: "cough"})
	require.NoError(t, err)
	require.True(t, env.Fallback)

	require.NoError(t, a.printEnvelope(env, false))
	assert.Contains(t, errOut.String(), analysis.SampleNotice)
	assert.NotEmpty(t, strings.TrimSpace(out.String()))

	_, err = a.runAnalysis(context.Background(), analysis.Request{Kind: analysis.KindSymptom, Text: " "})
	require.Error(t, err)
	assert.Equal(t, resilience.KindInvalidInput, resilience.Classify(err))
	assert.Contains(t, errOut.String(), "Failed")
}

func TestChat_SavesLiveReplies(t *testing.T) {
	gen := &fakeGenerator{text: "Rest and drink fluids."}
	a, _, _ := newTestApp(t, gen)
	store := history.NewMemoryStore(10, time.Hour)
	ctx := context.Background()

	_, err := a.chat(ctx, store, "conv_test", "I feel feverish", analysis.English)
	require.NoError(t, err)
	_, err = a.chat(ctx, store, "conv_test", "Since this morning", analysis.English)
	require.NoError(t, err)

	turns, err := store.Load(ctx, "conv_test")
	require.NoError(t, err)
	require.Len(t, turns, 4)
	assert.Equal(t, analysis.RoleUser, turns[2].Role)
	assert.Equal(t, "Since this morning", turns[2].Text)
	assert.Len(t, gen.requests[1].Messages, 3)

	gen.err = resilience.NewRateLimitedError("quota", nil)
	env, err := a.chat(ctx, store, "conv_test", "Any update?", analysis.English)
	require.NoError(t, err)
	assert.True(t, env.Fallback)
	turns, err = store.Load(ctx, "conv_test")
	require.NoError(t, err)
	assert.Len(t, turns, 4)

	_, err = a.chat(ctx, store, "bad id", "hello", analysis.English)
	assert.ErrorIs(t, err, history.ErrInvalidConversationID)
}

func TestRenderResult(t *testing.T) {
	tests := []struct {
		name     string
		result   analysis.Result
		contains []string
	}{
		{
			name:     "symptom",
			result:   &analysis.SymptomAnalysis{Text: "Symptom reading"},
			contains: []string{"Symptom reading"},
		},
		{
			name:     "chat",
			result:   &analysis.ChatReply{Response: "Chat answer"},
			contains: []string{"Chat answer"},
		},
		{
			name: "conditions",
			result: &analysis.ConditionList{Conditions: []analysis.Condition{{
				ID: 1, Name: "Migraine", Probability: 80, Severity: "medium",
				Description: "Recurring headaches", RecommendedAction: "consult", SpecialistType: "Neurologist",
			}}},
			contains: []string{"1. Migraine (80%, medium severity)", "Recurring headaches", "consult with a Neurologist"},
		},
		{
			name: "report",
			result: &analysis.ReportAnalysis{Report: normalize.Report{
				Summary:     analysis.ReportSummary{Title: "Blood panel", Content: "Mostly normal", Severity: "mild"},
				Findings:    []analysis.Finding{{Title: "Hemoglobin", Severity: "normal", Explanation: "Within range"}},
				RiskFactors: []analysis.RiskFactor{{Factor: "Anemia", Risk: "Low"}},
				NextSteps:   []string{"Repeat in a year"},
			}},
			contains: []string{"Blood panel [mild]", "- Hemoglobin [normal]: Within range", "- Anemia: Low", "- Repeat in a year"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			renderResult(&buf, tt.result)
			for _, want := range tt.contains {
				assert.Contains(t, buf.String(), want)
			}
		})
	}
}

func TestPrintEnvelope_JSON(t *testing.T) {
	a, out, _ := newTestApp(t, &fakeGenerator{})

	env := analysis.Envelope{Kind: analysis.KindImage, Result: &analysis.ImageAnalysis{Text: "A bruise"}}
	require.NoError(t, a.printEnvelope(env, true))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, "image", decoded["kind"])
	assert.Equal(t, "A bruise", decoded["result"].(map[string]interface{})["text"])
}

func TestReadInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, os.WriteFile(path, []byte("Hemoglobin 13.5 g/dL"), 0600))

	text, err := readInput(nil, path)
	require.NoError(t, err)
	assert.Equal(t, "Hemoglobin 13.5 g/dL", text)

	text, err = readInput(strings.NewReader("from stdin"), "-")
	require.NoError(t, err)
	assert.Equal(t, "from stdin", text)

	_, err = readInput(nil, filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestNewRootCmd(t *testing.T) {
	root := newRootCmd()

	names := make(map[string]bool)
	for _, cmd := range root.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"symptoms", "conditions", "report", "image", "chat", "serve"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}

	for _, flag := range []string{"config", "language", "json"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}

	image, _, err := root.Find([]string{"image"})
	require.NoError(t, err)
	assert.NotNil(t, image.Flags().Lookup("file"))

	chat, _, err := root.Find([]string{"chat"})
	require.NoError(t, err)
	assert.NotNil(t, chat.Flags().Lookup("conversation"))
}

func TestNewHandler_HealthChecks(t *testing.T) {
	a, _, _ := newTestApp(t, &fakeGenerator{text: "ok"})
	store := history.NewMemoryStore(10, time.Hour)

	_, healthManager := a.newHandler(store)
	result := healthManager.Check(context.Background())

	assert.Equal(t, "healthy", result.Status)
	assert.Contains(t, result.Checks, "provider")
	assert.Contains(t, result.Checks, "history")
	assert.Contains(t, result.Checks, "sessions")
}

func TestApplyReload(t *testing.T) {
	a, _, _ := newTestApp(t, &fakeGenerator{})

	next := createTestConfig()
	next.Logging.Level = "debug"
	a.applyReload(next)
	assert.Equal(t, zapcore.DebugLevel, a.level.Level())

	assert.False(t, restartRequired(a.cfg, next))
	next.Models.Chat = "another-model"
	assert.True(t, restartRequired(a.cfg, next))
}
