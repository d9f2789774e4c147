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

// Package config loads the assistant's configuration from a YAML file and
// environment variables using viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var (
	// ErrMissingRequiredField is returned when a required configuration field is missing
	ErrMissingRequiredField = errors.New("missing required configuration field")
	// ErrInvalidConfigValue is returned when a configuration value is invalid
	ErrInvalidConfigValue = errors.New("invalid configuration value")
)

// EnvPrefix prefixes environment overrides, e.g. AROGYA_RETRY_MAX_ATTEMPTS
const EnvPrefix = "AROGYA"

// Config represents the complete application configuration
type Config struct {
	Environment string          `mapstructure:"environment"`
	Provider    ProviderConfig  `mapstructure:"provider"`
	Models      ModelsConfig    `mapstructure:"models"`
	Retry       RetryConfig     `mapstructure:"retry"`
	Analysis    AnalysisConfig  `mapstructure:"analysis"`
	Progress    ProgressConfig  `mapstructure:"progress"`
	RateLimit   RateLimitConfig `mapstructure:"ratelimit"`
	Breaker     BreakerConfig   `mapstructure:"breaker"`
	History     HistoryConfig   `mapstructure:"history"`
	Server      ServerConfig    `mapstructure:"server"`
	Logging     LoggingConfig   `mapstructure:"logging"`
}

// ProviderConfig selects and authenticates the generation backend
type ProviderConfig struct {
	Name     string `mapstructure:"name"`
	APIKey   string `mapstructure:"apikey"`
	Endpoint string `mapstructure:"endpoint"`
}

// ModelsConfig names the model used by each analysis operation
type ModelsConfig struct {
	Symptom    string `mapstructure:"symptom"`
	Conditions string `mapstructure:"conditions"`
	Report     string `mapstructure:"report"`
	Image      string `mapstructure:"image"`
	Chat       string `mapstructure:"chat"`
}

// RetryConfig contains retry settings for generation calls
type RetryConfig struct {
	MaxAttempts   int           `mapstructure:"max_attempts"`
	BaseDelay     time.Duration `mapstructure:"base_delay"`
	TransientOnly bool          `mapstructure:"transient_only"`
}

// AnalysisConfig contains per-request analysis settings
type AnalysisConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	SafetyLevel    string        `mapstructure:"safety_level"`
}

// ProgressConfig contains simulated progress settings
type ProgressConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// RateLimitConfig contains the client-side request limiter settings
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// BreakerConfig contains circuit breaker settings
type BreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxFailures  uint32        `mapstructure:"max_failures"`
	ResetTimeout time.Duration `mapstructure:"reset_timeout"`
}

// HistoryConfig contains chat history storage settings
type HistoryConfig struct {
	StorageType      string        `mapstructure:"storage_type"`
	DBPath           string        `mapstructure:"db_path"`
	RedisURL         string        `mapstructure:"redis_url"`
	TTL              time.Duration `mapstructure:"ttl"`
	MaxConversations int           `mapstructure:"max_conversations"`
	MaxTurns         int           `mapstructure:"max_turns"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	SessionIdleTTL  time.Duration `mapstructure:"session_idle_ttl"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
	File   string `mapstructure:"file"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed for field '%s': %s", e.Field, e.Message)
}

// LoadOptions contains options for configuration loading
type LoadOptions struct {
	ConfigPath       string
	Environment      string
	ValidateRequired bool
}

// Load loads configuration from file and environment variables
// Environment variables take precedence over config file values
func Load(configPath string) (*Config, error) {
	return LoadWithOptions(LoadOptions{
		ConfigPath:       configPath,
		Environment:      getEnvironment(),
		ValidateRequired: true,
	})
}

// LoadWithOptions loads configuration with additional options
func LoadWithOptions(opts LoadOptions) (*Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Set configuration file path
	if err := setConfigFile(v, opts.ConfigPath); err != nil {
		return nil, fmt.Errorf("failed to set config file: %w", err)
	}

	// Enable environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(EnvPrefix)

	// Read configuration file
	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error if env vars are set
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Set explicit environment variable mappings
	setEnvironmentMappings(v)

	// Unmarshal configuration
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if opts.Environment != "" {
		config.Environment = opts.Environment
	}

	// Validate configuration
	if err := validateConfig(&config, opts.ValidateRequired); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Provider defaults
	v.SetDefault("provider.name", "gemini")
	v.SetDefault("provider.apikey", "")
	v.SetDefault("provider.endpoint", "")

	// Model defaults
	v.SetDefault("models.symptom", "gemini-2.5-flash")
	v.SetDefault("models.conditions", "gemini-2.5-pro")
	v.SetDefault("models.report", "gemini-2.5-pro")
	v.SetDefault("models.image", "gemini-2.5-pro")
	v.SetDefault("models.chat", "gemini-2.5-flash")

	// Retry defaults
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", "2s")
	v.SetDefault("retry.transient_only", false)

	// Analysis defaults
	v.SetDefault("analysis.request_timeout", "60s")
	v.SetDefault("analysis.safety_level", "medium")

	// Progress defaults
	v.SetDefault("progress.interval", "1s")
	v.SetDefault("progress.timeout", "0s")

	// Rate limit and breaker defaults
	v.SetDefault("ratelimit.requests_per_second", 0)
	v.SetDefault("ratelimit.burst", 1)
	v.SetDefault("breaker.enabled", true)
	v.SetDefault("breaker.max_failures", 5)
	v.SetDefault("breaker.reset_timeout", "60s")

	// History defaults
	v.SetDefault("history.storage_type", "memory")
	v.SetDefault("history.db_path", "./arogya_history.db")
	v.SetDefault("history.redis_url", "")
	v.SetDefault("history.ttl", "24h")
	v.SetDefault("history.max_conversations", 1000)
	v.SetDefault("history.max_turns", 50)

	// Server defaults
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.session_idle_ttl", "30m")
	v.SetDefault("server.max_upload_bytes", 10<<20)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.file", "arogya.log")
}

// setConfigFile sets the configuration file path with fallback logic
func setConfigFile(v *viper.Viper, configPath string) error {
	// Check for CONFIG_PATH environment variable
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		if _, err := os.Stat(envPath); err != nil {
			return fmt.Errorf("config file specified by CONFIG_PATH does not exist: %s", envPath)
		}
		v.SetConfigFile(envPath)
		return nil
	}

	// Use provided config path
	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return fmt.Errorf("config file does not exist: %s", configPath)
		}
		v.SetConfigFile(configPath)
		return nil
	}

	// Default fallback locations. A missing file leaves defaults and env vars.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	return nil
}

// setEnvironmentMappings sets explicit environment variable mappings
func setEnvironmentMappings(v *viper.Viper) {
	// Map common environment variables
	envMappings := map[string]string{
		"AROGYA_PROVIDER":   "provider.name",
		"GEMINI_ENDPOINT":   "provider.endpoint",
		"HISTORY_DB_PATH":   "history.db_path",
		"REDIS_URL":         "history.redis_url",
		"SERVER_ADDRESS":    "server.address",
		"LOG_LEVEL":         "logging.level",
		"LOG_FORMAT":        "logging.format",
		"LOG_OUTPUT":        "logging.output",
		"AROGYA_LOG_FILE":   "logging.file",
		"AROGYA_SAFETY":     "analysis.safety_level",
		"AROGYA_RETRY_MAX":  "retry.max_attempts",
		"AROGYA_RETRY_BASE": "retry.base_delay",
	}

	for envVar, configKey := range envMappings {
		if value := os.Getenv(envVar); value != "" {
			v.Set(configKey, value)
		}
	}

	// The key variable follows the selected provider
	keyVars := []string{"GEMINI_API_KEY", "GOOGLE_API_KEY", "OPENAI_API_KEY"}
	if strings.EqualFold(v.GetString("provider.name"), "openai") {
		keyVars = []string{"OPENAI_API_KEY"}
		if value := os.Getenv("OPENAI_ENDPOINT"); value != "" {
			v.Set("provider.endpoint", value)
		}
	}
	if v.GetString("provider.apikey") != "" {
		return
	}
	for _, envVar := range keyVars {
		if value := os.Getenv(envVar); value != "" {
			v.Set("provider.apikey", value)
			return
		}
	}
}

// validateConfig validates the configuration for required fields and valid values
func validateConfig(config *Config, requireCredentials bool) error {
	var errs []ValidationError

	// Validate required fields
	validProviders := []string{"gemini", "openai"}
	if !contains(validProviders, config.Provider.Name) {
		errs = append(errs, ValidationError{
			Field:   "provider.name",
			Message: fmt.Sprintf("provider must be one of: %s", strings.Join(validProviders, ", ")),
		})
	}

	if requireCredentials && config.Provider.APIKey == "" {
		errs = append(errs, ValidationError{
			Field:   "provider.apikey",
			Message: "API key is required. Set via config file or the GEMINI_API_KEY / OPENAI_API_KEY environment variable",
		})
	}

	// Validate numeric values
	if config.Retry.MaxAttempts < 1 {
		errs = append(errs, ValidationError{
			Field:   "retry.max_attempts",
			Message: "max_attempts must be at least 1",
		})
	}

	if config.Retry.BaseDelay < 0 {
		errs = append(errs, ValidationError{
			Field:   "retry.base_delay",
			Message: "base_delay must not be negative",
		})
	}

	if config.Analysis.RequestTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "analysis.request_timeout",
			Message: "request_timeout must be greater than 0",
		})
	}

	if config.Progress.Interval <= 0 {
		errs = append(errs, ValidationError{
			Field:   "progress.interval",
			Message: "interval must be greater than 0",
		})
	}

	if config.Progress.Timeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "progress.timeout",
			Message: "timeout must not be negative",
		})
	}

	if config.RateLimit.RequestsPerSecond < 0 {
		errs = append(errs, ValidationError{
			Field:   "ratelimit.requests_per_second",
			Message: "requests_per_second must not be negative",
		})
	}

	if config.RateLimit.Burst < 1 {
		errs = append(errs, ValidationError{
			Field:   "ratelimit.burst",
			Message: "burst must be at least 1",
		})
	}

	if config.Breaker.Enabled && config.Breaker.MaxFailures < 1 {
		errs = append(errs, ValidationError{
			Field:   "breaker.max_failures",
			Message: "max_failures must be at least 1 when the breaker is enabled",
		})
	}

	// Validate enum values
	validSafetyLevels := []string{"none", "low", "medium", "high"}
	if !contains(validSafetyLevels, config.Analysis.SafetyLevel) {
		errs = append(errs, ValidationError{
			Field:   "analysis.safety_level",
			Message: fmt.Sprintf("safety level must be one of: %s", strings.Join(validSafetyLevels, ", ")),
		})
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, config.Logging.Level) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("log level must be one of: %s", strings.Join(validLogLevels, ", ")),
		})
	}

	validLogFormats := []string{"json", "text"}
	if !contains(validLogFormats, config.Logging.Format) {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("log format must be one of: %s", strings.Join(validLogFormats, ", ")),
		})
	}

	validLogOutputs := []string{"stdout", "stderr", "file"}
	if !contains(validLogOutputs, config.Logging.Output) {
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("log output must be one of: %s", strings.Join(validLogOutputs, ", ")),
		})
	}

	errs = append(errs, validateHistory(config.History)...)

	// Return all validation errors
	if len(errs) > 0 {
		var errorMessages []string
		for _, err := range errs {
			errorMessages = append(errorMessages, err.Error())
		}
		return fmt.Errorf("%w:\n%s", ErrInvalidConfigValue, strings.Join(errorMessages, "\n"))
	}

	return nil
}

func validateHistory(h HistoryConfig) []ValidationError {
	var errs []ValidationError

	validStorageTypes := []string{"memory", "sqlite", "redis"}
	if !contains(validStorageTypes, h.StorageType) {
		errs = append(errs, ValidationError{
			Field:   "history.storage_type",
			Message: fmt.Sprintf("storage type must be one of: %s", strings.Join(validStorageTypes, ", ")),
		})
	}

	switch h.StorageType {
	case "sqlite":
		if h.DBPath == "" {
			errs = append(errs, ValidationError{
				Field:   "history.db_path",
				Message: "history database path is required for sqlite storage",
			})
		} else if err := validateDirectoryExists(filepath.Dir(h.DBPath)); err != nil {
			errs = append(errs, ValidationError{
				Field:   "history.db_path",
				Message: fmt.Sprintf("history database directory does not exist: %s", filepath.Dir(h.DBPath)),
			})
		}
	case "redis":
		if h.RedisURL == "" {
			errs = append(errs, ValidationError{
				Field:   "history.redis_url",
				Message: "redis_url is required for redis storage. Set via config file or REDIS_URL",
			})
		}
	}

	if h.MaxTurns < 0 {
		errs = append(errs, ValidationError{
			Field:   "history.max_turns",
			Message: "max_turns must not be negative",
		})
	}

	return errs
}

// MaskSensitiveValues returns a copy of the config with sensitive values masked
func (c *Config) MaskSensitiveValues() *Config {
	masked := *c

	// Mask sensitive fields
	if masked.Provider.APIKey != "" {
		masked.Provider.APIKey = maskValue(masked.Provider.APIKey)
	}
	if masked.History.RedisURL != "" {
		masked.History.RedisURL = maskValue(masked.History.RedisURL)
	}

	return &masked
}

// maskValue masks sensitive values, showing only the first 8 characters
func maskValue(value string) string {
	if len(value) <= 8 {
		return strings.Repeat("*", len(value))
	}
	return value[:8] + strings.Repeat("*", len(value)-8)
}

// contains checks if a slice contains a specific string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// validateDirectoryExists checks if a directory exists
func validateDirectoryExists(path string) error {
	if path == "" || path == "." {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	return nil
}

// getEnvironment returns the current environment (development, production, etc.)
func getEnvironment() string {
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		return env
	}
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return ""
}

// WatchConfig reloads the configuration whenever the file changes and passes
// each valid result to callback. Invalid edits are reported to onError and
// otherwise ignored.
func WatchConfig(configPath string, callback func(*Config), onError func(error)) error {
	v := viper.New()

	// Set up configuration
	if err := setConfigFile(v, configPath); err != nil {
		return err
	}
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file for watching: %w", err)
	}

	// Enable watching
	v.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}

		// Reload configuration
		config, err := LoadWithOptions(LoadOptions{
			ConfigPath:       configPath,
			Environment:      getEnvironment(),
			ValidateRequired: true,
		})
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("failed to reload config from %s: %w", e.Name, err))
			}
			return
		}

		// Call callback with new config
		callback(config)
	})
	v.WatchConfig()

	return nil
}
