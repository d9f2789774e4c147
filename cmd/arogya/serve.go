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
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/arogyaplus/arogya-assistant/internal/api"
	"github.com/arogyaplus/arogya-assistant/internal/config"
	"github.com/arogyaplus/arogya-assistant/internal/health"
	"github.com/arogyaplus/arogya-assistant/internal/history"
	"github.com/arogyaplus/arogya-assistant/internal/llm"
	"github.com/arogyaplus/arogya-assistant/internal/progress"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// sessionCleanupInterval is how often idle progress sessions are dropped
const sessionCleanupInterval = time.Minute

func newServeCmd(opts *rootOptions) *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer a.close()

			if address != "" {
				a.cfg.Server.Address = address
			}
			return a.serve(ctx, opts.configPath)
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "listen address (overrides server.address)")
	return cmd
}

// serve runs the HTTP API until ctx is done, then shuts down gracefully
func (a *app) serve(ctx context.Context, configPath string) error {
	store, err := history.New(ctx, historyConfig(a.cfg), a.logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	handler, healthManager := a.newHandler(store)

	router := newRouter(a.cfg, handler)
	server := &http.Server{
		Addr:              a.cfg.Server.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := config.WatchConfig(configPath, a.applyReload, func(err error) {
		a.logger.Warn("Ignoring invalid configuration change", zap.Error(err))
	}); err != nil {
		a.logger.Info("Configuration hot reload disabled", zap.Error(err))
	}

	go a.cleanupSessions(ctx, handler.Sessions())

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("Starting arogya API server",
			zap.String("address", a.cfg.Server.Address),
			zap.String("provider", a.gen.Name()),
			zap.String("version", version),
			zap.String("health", healthManager.Check(ctx).Status),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down arogya API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// newHandler wires the API handler and its health checks
func (a *app) newHandler(store history.Store) (*api.APIHandler, *health.Manager) {
	sessions := progress.NewManager(
		progress.WithInterval(a.cfg.Progress.Interval),
		progress.WithTimeout(a.cfg.Progress.Timeout),
		progress.WithLogger(a.logger),
	)

	healthManager := health.NewManager("arogya", version, a.cfg.Environment, a.logger)
	healthManager.AddChecker("provider", health.ProviderChecker(
		a.cfg.Provider.Name,
		a.cfg.Provider.APIKey != "",
		func() (string, bool) { return llm.BreakerState(a.gen) },
	))
	healthManager.AddChecker("history", health.StoreChecker(a.cfg.History.StorageType, store))
	healthManager.AddChecker("sessions", health.SessionChecker(sessions.Len))

	handler := api.NewAPIHandler(api.Dependencies{
		Client:         a.client,
		Sessions:       sessions,
		Store:          store,
		Health:         healthManager,
		MaxUploadBytes: a.cfg.Server.MaxUploadBytes,
		Logger:         a.logger,
	})
	return handler, healthManager
}

func newRouter(cfg *config.Config, handler *api.APIHandler) *gin.Engine {
	// Set Gin mode based on log level
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	return api.NewRouter(handler)
}

// applyReload applies the settings that can change without a restart.
// Backend and storage settings need a restart.
func (a *app) applyReload(cfg *config.Config) {
	a.level.SetLevel(parseLevel(cfg.Logging.Level))
	a.logger.Info("Configuration reloaded",
		zap.String("log_level", cfg.Logging.Level),
		zap.Bool("restart_required", restartRequired(a.cfg, cfg)))
}

func restartRequired(current, next *config.Config) bool {
	return current.Provider != next.Provider ||
		current.Models != next.Models ||
		current.Retry != next.Retry ||
		current.Analysis != next.Analysis ||
		current.History != next.History ||
		current.Server.Address != next.Server.Address
}

func (a *app) cleanupSessions(ctx context.Context, sessions *progress.Manager) {
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := sessions.CleanupIdle(a.cfg.Server.SessionIdleTTL); removed > 0 {
				a.logger.Debug("Removed idle sessions", zap.Int("removed", removed))
			}
		}
	}
}
