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

package progress

import (
	"sync"
	"time"
)

// Manager keeps one controller per UI session
type Manager struct {
	controllers map[string]*managedController
	opts        []Option
	mutex       sync.RWMutex
}

type managedController struct {
	controller *Controller
	lastUsed   time.Time
}

// NewManager creates a new manager; opts apply to every controller it creates
func NewManager(opts ...Option) *Manager {
	return &Manager{
		controllers: make(map[string]*managedController),
		opts:        opts,
	}
}

// Controller returns the session's controller, creating it on first use
func (m *Manager) Controller(sessionID string) *Controller {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if managed, exists := m.controllers[sessionID]; exists {
		managed.lastUsed = time.Now()
		return managed.controller
	}

	controller := NewController(m.opts...)
	m.controllers[sessionID] = &managedController{controller: controller, lastUsed: time.Now()}
	return controller
}

// Lookup retrieves an existing controller without creating one
func (m *Manager) Lookup(sessionID string) (*Controller, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	managed, exists := m.controllers[sessionID]
	if !exists {
		return nil, false
	}
	return managed.controller, true
}

// Remove cancels any active run of the session and forgets its controller
func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	managed, exists := m.controllers[sessionID]
	delete(m.controllers, sessionID)
	m.mutex.Unlock()

	if exists {
		managed.controller.Cancel()
	}
}

// CleanupIdle removes controllers that are idle and unused for longer than maxAge
func (m *Manager) CleanupIdle(maxAge time.Duration) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for sessionID, managed := range m.controllers {
		if managed.lastUsed.Before(cutoff) && !managed.controller.State().Processing {
			delete(m.controllers, sessionID)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked sessions
func (m *Manager) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.controllers)
}
