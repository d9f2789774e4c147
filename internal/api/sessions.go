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
	"net/http"
	"time"

	"github.com/arogyaplus/arogya-assistant/internal/progress"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// cancelWaitTimeout bounds how long ?wait=true blocks on a cancelled run
const cancelWaitTimeout = 5 * time.Second

// SessionResponse reports the progress state of a session
type SessionResponse struct {
	SessionID string `json:"session_id"`
	progress.State
}

func (h *APIHandler) lookupSession(c *gin.Context) (*progress.Controller, bool) {
	controller, ok := h.sessions.Lookup(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return nil, false
	}
	return controller, true
}

// getSession handles GET /api/v1/sessions/:id
func (h *APIHandler) getSession(c *gin.Context) {
	controller, ok := h.lookupSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, SessionResponse{SessionID: c.Param("id"), State: controller.State()})
}

// cancelSession handles POST /api/v1/sessions/:id/cancel. With ?wait=true it
// also waits for the cancelled operation to unwind.
func (h *APIHandler) cancelSession(c *gin.Context) {
	controller, ok := h.lookupSession(c)
	if !ok {
		return
	}

	settled := controller.Cancel()
	if c.Query("wait") == "true" {
		select {
		case <-settled:
		case <-c.Request.Context().Done():
		case <-time.After(cancelWaitTimeout):
			h.logger.Warn("Cancelled request did not settle in time", zap.String("session_id", c.Param("id")))
		}
	}

	c.JSON(http.StatusAccepted, SessionResponse{SessionID: c.Param("id"), State: controller.State()})
}

// streamProgress handles GET /api/v1/sessions/:id/progress as server-sent
// events. Events already emitted for the latest run are replayed first; the
// stream ends after a terminal event or when the client goes away.
func (h *APIHandler) streamProgress(c *gin.Context) {
	controller, ok := h.lookupSession(c)
	if !ok {
		return
	}

	events := make(chan progress.Event, 16)
	unsubscribe := controller.Subscribe(func(event progress.Event) {
		select {
		case events <- event:
		default:
			h.logger.Warn("Dropping progress event for slow client",
				zap.String("session_id", c.Param("id")),
				zap.String("stage", event.Stage))
		}
	})
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	seen := make(map[string]bool)
	write := func(event progress.Event) bool {
		seen[event.ID] = true
		if _, err := c.Writer.WriteString(event.ToSSEMessage()); err != nil {
			return false
		}
		c.Writer.Flush()
		return true
	}

	past := controller.Events()
	for _, event := range past {
		if !write(event) {
			return
		}
	}
	if n := len(past); n > 0 && past[n-1].Terminal() && !controller.State().Processing {
		return
	}
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			if seen[event.ID] {
				continue
			}
			if !write(event) || event.Terminal() {
				return
			}
		}
	}
}
