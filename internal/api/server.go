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

// Package api exposes the analysis client to UI callers over HTTP.
package api

import (
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/arogyaplus/arogya-assistant/internal/analysis"
	"github.com/arogyaplus/arogya-assistant/internal/health"
	"github.com/arogyaplus/arogya-assistant/internal/history"
	"github.com/arogyaplus/arogya-assistant/internal/progress"
	"github.com/arogyaplus/arogya-assistant/internal/resilience"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// SessionHeader selects the caller's progress session
	SessionHeader = "X-Session-ID"
	// RequestIDHeader carries the request id echoed in error responses
	RequestIDHeader = "X-Request-ID"
	// DefaultMaxUploadBytes bounds image uploads
	DefaultMaxUploadBytes = 10 << 20
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]{0,127}$`)

// Dependencies holds everything the handlers need. Store and Health are
// optional.
type Dependencies struct {
	Client         *analysis.Client
	Sessions       *progress.Manager
	Store          history.Store
	Health         *health.Manager
	MaxUploadBytes int64
	Logger         *zap.Logger
}

// APIHandler serves the analysis, session and conversation routes
type APIHandler struct {
	client         *analysis.Client
	sessions       *progress.Manager
	store          history.Store
	health         *health.Manager
	errors         *resilience.ErrorHandler
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(deps Dependencies) *APIHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sessions := deps.Sessions
	if sessions == nil {
		sessions = progress.NewManager(progress.WithLogger(logger))
	}
	maxUpload := deps.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}

	return &APIHandler{
		client:         deps.Client,
		sessions:       sessions,
		store:          deps.Store,
		health:         deps.Health,
		errors:         resilience.NewErrorHandler(logger),
		maxUploadBytes: maxUpload,
		logger:         logger,
	}
}

// NewRouter builds a gin engine with the handler's routes mounted
func NewRouter(h *APIHandler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(requestLogger(h.logger))
	router.MaxMultipartMemory = h.maxUploadBytes

	h.RegisterRoutes(router)
	return router
}

// RegisterRoutes registers the API routes with the Gin router
func (h *APIHandler) RegisterRoutes(router *gin.Engine) {
	if h.health != nil {
		router.GET("/health", gin.WrapH(h.health.HTTPHandler()))
	} else {
		router.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": health.StatusHealthy, "service": "arogya"})
		})
	}

	api := router.Group("/api/v1")
	{
		api.POST("/analyses/symptoms", h.analyze(analysis.KindSymptom))
		api.POST("/analyses/conditions", h.analyze(analysis.KindConditions))
		api.POST("/analyses/report", h.analyze(analysis.KindReport))
		api.POST("/analyses/chat", h.analyze(analysis.KindChat))
		api.POST("/analyses/image", h.analyzeImage)

		api.GET("/sessions/:id", h.getSession)
		api.GET("/sessions/:id/progress", h.streamProgress)
		api.POST("/sessions/:id/cancel", h.cancelSession)

		api.GET("/conversations/:id", h.getConversation)
		api.DELETE("/conversations/:id", h.deleteConversation)
	}
}

// Sessions exposes the progress manager, e.g. for idle cleanup
func (h *APIHandler) Sessions() *progress.Manager {
	return h.sessions
}

// writeError renders err in the shared error response format
func (h *APIHandler) writeError(c *gin.Context, err error) {
	requestID := c.GetString("request_id")

	if errors.Is(err, progress.ErrBusy) {
		c.JSON(http.StatusConflict, resilience.ErrorResponse{
			Error:     "Another analysis is already running for this session.",
			Code:      "BUSY",
			RequestID: requestID,
			Timestamp: time.Now(),
		})
		return
	}

	h.errors.WriteErrorResponse(c.Writer, err, requestID)
	c.Abort()
}

// requestIDMiddleware adds a unique request ID to each request
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}

// requestLogger logs one line per request
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", c.GetString("request_id")),
		)
	}
}
