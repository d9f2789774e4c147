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

package api

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/arogyaplus/arogya-assistant/internal/analysis"
	"github.com/arogyaplus/arogya-assistant/internal/history"
	"github.com/arogyaplus/arogya-assistant/internal/progress"
	"github.com/arogyaplus/arogya-assistant/internal/resilience"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AnalysisRequest is the JSON body of the text analysis routes
type AnalysisRequest struct {
	Text           string          `json:"text"`
	Language       string          `json:"language"`
	ConversationID string          `json:"conversation_id,omitempty"`
	History        []analysis.Turn `json:"history,omitempty"`
}

// AnalysisResponse is the envelope plus the identifiers a caller needs to
// follow up on the request
type AnalysisResponse struct {
	analysis.Envelope
	SessionID      string `json:"session_id"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// analyze handles POST /api/v1/analyses/{symptoms,conditions,report,chat}
func (h *APIHandler) analyze(kind analysis.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AnalysisRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			h.writeError(c, resilience.NewInvalidInputError("Invalid request format", err))
			return
		}

		lang, err := analysis.ParseLanguage(req.Language)
		if err != nil {
			h.writeError(c, resilience.NewInvalidInputError(err.Error(), err))
			return
		}

		sessionID, err := h.sessionID(c)
		if err != nil {
			h.writeError(c, err)
			return
		}

		areq := analysis.Request{
			Kind:     kind,
			Text:     req.Text,
			Language: lang,
			History:  req.History,
		}

		var conversationID string
		if kind == analysis.KindChat && h.store != nil {
			conversationID, areq.History, err = h.loadConversation(c.Request.Context(), req)
			if err != nil {
				h.writeError(c, err)
				return
			}
		}

		h.run(c, sessionID, conversationID, areq)
	}
}

// analyzeImage handles POST /api/v1/analyses/image (multipart: text, image)
func (h *APIHandler) analyzeImage(c *gin.Context) {
	lang, err := analysis.ParseLanguage(c.PostForm("language"))
	if err != nil {
		h.writeError(c, resilience.NewInvalidInputError(err.Error(), err))
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		h.writeError(c, resilience.NewInvalidInputError("An image file is required", err))
		return
	}
	if fileHeader.Size > h.maxUploadBytes {
		h.writeError(c, resilience.NewInvalidInputError(
			fmt.Sprintf("Image exceeds the %d byte upload limit", h.maxUploadBytes), nil))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.writeError(c, resilience.NewInvalidInputError("Failed to read the uploaded image", err))
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		h.writeError(c, resilience.NewInvalidInputError("Failed to read the uploaded image", err))
		return
	}
	if int64(len(data)) > h.maxUploadBytes {
		h.writeError(c, resilience.NewInvalidInputError(
			fmt.Sprintf("Image exceeds the %d byte upload limit", h.maxUploadBytes), nil))
		return
	}

	// octet-stream carries no information; let the client sniff the bytes
	mimeType := fileHeader.Header.Get("Content-Type")
	if mimeType == "application/octet-stream" {
		mimeType = ""
	}

	sessionID, err := h.sessionID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.run(c, sessionID, "", analysis.Request{
		Kind:     analysis.KindImage,
		Text:     c.PostForm("text"),
		Language: lang,
		Image: &analysis.Image{
			Name:     fileHeader.Filename,
			MIMEType: mimeType,
			Data:     data,
		},
	})
}

// run executes the request under the session's progress controller and
// writes the envelope
func (h *APIHandler) run(c *gin.Context, sessionID, conversationID string, req analysis.Request) {
	controller := h.sessions.Controller(sessionID)

	envelope, err := progress.Run(c.Request.Context(), controller,
		func(ctx context.Context) (analysis.Envelope, error) {
			return h.client.AnalyzeOrFallback(ctx, req)
		})
	if err != nil {
		h.errors.LogError(err, string(req.Kind), zap.String("session_id", sessionID))
		h.writeError(c, err)
		return
	}

	if conversationID != "" && !envelope.Fallback {
		if reply, ok := envelope.Result.(*analysis.ChatReply); ok {
			if err := h.store.Save(c.Request.Context(), conversationID, reply.History); err != nil {
				// the reply is still useful without persistence
				h.logger.Warn("Failed to save conversation",
					zap.String("conversation_id", conversationID),
					zap.Error(err))
			}
		}
	}

	c.JSON(http.StatusOK, AnalysisResponse{
		Envelope:       envelope,
		SessionID:      sessionID,
		ConversationID: conversationID,
	})
}

// loadConversation resolves the conversation id of a chat request and the
// history to send with it. History in the body wins over the stored one.
func (h *APIHandler) loadConversation(ctx context.Context, req AnalysisRequest) (string, []analysis.Turn, error) {
	if req.ConversationID == "" {
		return history.NewConversationID(), req.History, nil
	}
	if err := history.ValidateConversationID(req.ConversationID); err != nil {
		return "", nil, resilience.NewInvalidInputError("Invalid conversation ID format", err)
	}
	if len(req.History) > 0 {
		return req.ConversationID, req.History, nil
	}

	turns, err := h.store.Load(ctx, req.ConversationID)
	if err != nil {
		h.logger.Warn("Failed to load conversation, continuing without history",
			zap.String("conversation_id", req.ConversationID),
			zap.Error(err))
		return req.ConversationID, nil, nil
	}
	return req.ConversationID, turns, nil
}

// sessionID returns the caller's session, minting one when the header is
// absent. The id is echoed back in the response header.
func (h *APIHandler) sessionID(c *gin.Context) (string, error) {
	id := c.GetHeader(SessionHeader)
	if id == "" {
		id = uuid.NewString()
	} else if !sessionIDPattern.MatchString(id) {
		return "", resilience.NewInvalidInputError("Invalid session ID format", nil)
	}
	c.Header(SessionHeader, id)
	return id, nil
}

// getConversation handles GET /api/v1/conversations/:id
func (h *APIHandler) getConversation(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation storage is not configured"})
		return
	}

	conversationID := c.Param("id")
	if err := history.ValidateConversationID(conversationID); err != nil {
		h.writeError(c, resilience.NewInvalidInputError("Invalid conversation ID format", err))
		return
	}

	turns, err := h.store.Load(c.Request.Context(), conversationID)
	if err != nil {
		h.logger.Error("Failed to load conversation", zap.String("conversation_id", conversationID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load conversation"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversation_id": conversationID,
		"history":         turns,
	})
}

// deleteConversation handles DELETE /api/v1/conversations/:id
func (h *APIHandler) deleteConversation(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation storage is not configured"})
		return
	}

	conversationID := c.Param("id")
	if err := history.ValidateConversationID(conversationID); err != nil {
		h.writeError(c, resilience.NewInvalidInputError("Invalid conversation ID format", err))
		return
	}

	if err := h.store.Delete(c.Request.Context(), conversationID); err != nil {
		h.logger.Error("Failed to delete conversation", zap.String("conversation_id", conversationID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete conversation"})
		return
	}

	c.Status(http.StatusNoContent)
}
