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

// Command arogya runs health analyses from the command line and serves them
// over HTTP.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/arogyaplus/arogya-assistant/internal/analysis"
	"github.com/arogyaplus/arogya-assistant/internal/config"
	"github.com/arogyaplus/arogya-assistant/internal/history"
	"github.com/arogyaplus/arogya-assistant/internal/llm"
	"github.com/arogyaplus/arogya-assistant/internal/resilience"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

// app carries what every subcommand needs once configuration is loaded
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	level  zap.AtomicLevel
	gen    llm.Generator
	client *analysis.Client
	out    io.Writer
	errOut io.Writer
}

type rootOptions struct {
	configPath string
	language   string
	jsonOutput bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "arogya",
		Short:         "AI health analysis assistant",
		Long:          "Analyze symptoms, medical reports and images, and chat about health concerns.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to the configuration file")
	root.PersistentFlags().StringVar(&opts.language, "language", "en", "response language (en, hi, ta, bn, te, mr)")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "print the result envelope as JSON")

	root.AddCommand(
		newSymptomsCmd(opts),
		newConditionsCmd(opts),
		newReportCmd(opts),
		newImageCmd(opts),
		newChatCmd(opts),
		newServeCmd(opts),
	)
	return root
}

// newApp loads configuration and builds the logger and analysis client
func newApp(ctx context.Context, cmd *cobra.Command, opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, level, err := initializeLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	masked := cfg.MaskSensitiveValues()
	logger.Debug("Configuration loaded successfully",
		zap.String("environment", masked.Environment),
		zap.String("provider", masked.Provider.Name),
		zap.String("api_key", masked.Provider.APIKey),
		zap.String("endpoint", masked.Provider.Endpoint),
		zap.String("history_storage", masked.History.StorageType),
	)

	gen, client, err := buildClient(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		level:  level,
		gen:    gen,
		client: client,
		out:    cmd.OutOrStdout(),
		errOut: cmd.ErrOrStderr(),
	}, nil
}

// buildClient wires the generation backend and the analysis client from cfg
func buildClient(ctx context.Context, cfg *config.Config, logger *zap.Logger) (llm.Generator, *analysis.Client, error) {
	breaker := resilience.DefaultBreakerConfig(cfg.Provider.Name)
	breaker.MaxFailures = cfg.Breaker.MaxFailures
	breaker.ResetTimeout = cfg.Breaker.ResetTimeout

	gen, err := llm.New(ctx, llm.Options{
		Provider:          cfg.Provider.Name,
		APIKey:            cfg.Provider.APIKey,
		Endpoint:          cfg.Provider.Endpoint,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
		BreakerEnabled:    cfg.Breaker.Enabled,
		Breaker:           breaker,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize %s backend: %w", cfg.Provider.Name, err)
	}

	opts, err := clientOptions(cfg)
	if err != nil {
		return nil, nil, err
	}
	return gen, analysis.NewClient(gen, opts, logger), nil
}

func clientOptions(cfg *config.Config) (analysis.Options, error) {
	safety, err := llm.ParseSafetyLevel(cfg.Analysis.SafetyLevel)
	if err != nil {
		return analysis.Options{}, err
	}

	retry := resilience.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.Retry.MaxAttempts
	retry.BaseDelay = cfg.Retry.BaseDelay
	if cfg.Retry.TransientOnly {
		retry.ShouldRetry = resilience.RetryTransientOnly
	}

	return analysis.Options{
		Models: analysis.Models{
			Symptom:    cfg.Models.Symptom,
			Conditions: cfg.Models.Conditions,
			Report:     cfg.Models.Report,
			Image:      cfg.Models.Image,
			Chat:       cfg.Models.Chat,
		},
		Retry:          retry,
		RequestTimeout: cfg.Analysis.RequestTimeout,
		Safety:         safety,
	}, nil
}

func historyConfig(cfg *config.Config) history.Config {
	return history.Config{
		StorageType:      history.StorageType(cfg.History.StorageType),
		DBPath:           cfg.History.DBPath,
		RedisURL:         cfg.History.RedisURL,
		TTL:              cfg.History.TTL,
		MaxConversations: cfg.History.MaxConversations,
		MaxTurns:         cfg.History.MaxTurns,
	}
}

// initializeLogger creates a logger based on configuration settings. The
// returned level can be changed later, e.g. on config reload.
func initializeLogger(cfg *config.Config) (*zap.Logger, zap.AtomicLevel, error) {
	var zapConfig zap.Config

	if cfg.Logging.Format == "json" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	level := zap.NewAtomicLevelAt(parseLevel(cfg.Logging.Level))
	zapConfig.Level = level

	// Set output destination
	switch cfg.Logging.Output {
	case "file":
		zapConfig.OutputPaths = []string{cfg.Logging.File}
		zapConfig.ErrorOutputPaths = []string{cfg.Logging.File}
	case "stdout":
		zapConfig.OutputPaths = []string{"stdout"}
		zapConfig.ErrorOutputPaths = []string{"stderr"}
	default:
		// stdout carries command results
		zapConfig.OutputPaths = []string{"stderr"}
		zapConfig.ErrorOutputPaths = []string{"stderr"}
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, level, err
	}
	return logger, level, nil
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
