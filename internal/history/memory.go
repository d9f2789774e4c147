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

package history

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/arogyaplus/arogya-assistant/internal/analysis"
)

type memoryEntry struct {
	turns     []analysis.Turn
	expiresAt time.Time
}

// MemoryStore keeps conversations in an LRU cache. Entries expire ttl after
// their last save.
type MemoryStore struct {
	cache *lru.Cache[string, memoryEntry]
	ttl   time.Duration
	now   func() time.Time
}

// NewMemoryStore creates a store holding at most maxConversations entries,
// 1000 when non-positive. A non-positive ttl keeps entries until evicted.
func NewMemoryStore(maxConversations int, ttl time.Duration) *MemoryStore {
	if maxConversations <= 0 {
		maxConversations = DefaultConfig().MaxConversations
	}
	// lru.New only fails for a non-positive size
	cache, _ := lru.New[string, memoryEntry](maxConversations)
	return &MemoryStore{
		cache: cache,
		ttl:   ttl,
		now:   time.Now,
	}
}

// Load returns a copy of the saved turns
func (m *MemoryStore) Load(_ context.Context, conversationID string) ([]analysis.Turn, error) {
	if err := ValidateConversationID(conversationID); err != nil {
		return nil, err
	}

	entry, ok := m.cache.Get(conversationID)
	if !ok {
		return []analysis.Turn{}, nil
	}
	if !entry.expiresAt.IsZero() && m.now().After(entry.expiresAt) {
		m.cache.Remove(conversationID)
		return []analysis.Turn{}, nil
	}
	return copyTurns(entry.turns), nil
}

// Save stores a copy of turns, evicting the least recently used conversation
// when full
func (m *MemoryStore) Save(_ context.Context, conversationID string, turns []analysis.Turn) error {
	if err := ValidateConversationID(conversationID); err != nil {
		return err
	}

	entry := memoryEntry{turns: copyTurns(turns)}
	if m.ttl > 0 {
		entry.expiresAt = m.now().Add(m.ttl)
	}
	m.cache.Add(conversationID, entry)
	return nil
}

// Delete removes a conversation
func (m *MemoryStore) Delete(_ context.Context, conversationID string) error {
	m.cache.Remove(conversationID)
	return nil
}

// Len returns the number of stored conversations
func (m *MemoryStore) Len() int {
	return m.cache.Len()
}

// Ping always succeeds
func (m *MemoryStore) Ping(context.Context) error {
	return nil
}

// Close drops all conversations
func (m *MemoryStore) Close() error {
	m.cache.Purge()
	return nil
}
