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

// Package history persists chat conversations between requests. The analysis
// client itself is stateless: callers load a conversation, pass its turns to
// the chat operation and save the extended history it returns.
package history

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/arogyaplus/arogya-assistant/internal/analysis"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StorageType represents the type of storage backend for conversations
type StorageType string

const (
	// MemoryStorageType keeps conversations in process memory
	MemoryStorageType StorageType = "memory"
	// SQLiteStorageType stores conversations in a SQLite database file
	SQLiteStorageType StorageType = "sqlite"
	// RedisStorageType stores conversations in Redis with a TTL
	RedisStorageType StorageType = "redis"
)

// ErrInvalidConversationID is returned for empty or malformed conversation ids.
var ErrInvalidConversationID = errors.New("invalid conversation id")

var conversationIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]{0,127}$`)

// Config holds configuration for conversation storage
type Config struct {
	StorageType      StorageType   `mapstructure:"storage_type"`
	DBPath           string        `mapstructure:"db_path"`
	RedisURL         string        `mapstructure:"redis_url"`
	TTL              time.Duration `mapstructure:"ttl"`
	MaxConversations int           `mapstructure:"max_conversations"`
	MaxTurns         int           `mapstructure:"max_turns"`
}

// DefaultConfig returns default conversation storage configuration
func DefaultConfig() Config {
	return Config{
		StorageType:      MemoryStorageType,
		DBPath:           "./arogya_history.db",
		TTL:              24 * time.Hour,
		MaxConversations: 1000,
		MaxTurns:         50,
	}
}

// Store loads and saves conversation turns by conversation id.
type Store interface {
	// Load returns the saved turns. An unknown conversation loads as empty.
	Load(ctx context.Context, conversationID string) ([]analysis.Turn, error)
	// Save replaces the saved turns of a conversation
	Save(ctx context.Context, conversationID string, turns []analysis.Turn) error
	// Delete removes a conversation. Deleting an unknown id is not an error.
	Delete(ctx context.Context, conversationID string) error
	// Ping reports whether the backend is reachable
	Ping(ctx context.Context) error
	// Close releases the backend
	Close() error
}

// New creates the store selected by cfg.StorageType.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		store Store
		err   error
	)
	switch cfg.StorageType {
	case MemoryStorageType, "":
		store = NewMemoryStore(cfg.MaxConversations, cfg.TTL)
	case SQLiteStorageType:
		store, err = NewSQLiteStore(ctx, cfg.DBPath)
	case RedisStorageType:
		store, err = NewRedisStore(ctx, cfg.RedisURL, cfg.TTL)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.StorageType)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s history storage: %w", cfg.StorageType, err)
	}

	logger.Info("Conversation history storage initialized",
		zap.String("storage_type", string(cfg.StorageType)),
		zap.Int("max_turns", cfg.MaxTurns),
		zap.Duration("ttl", cfg.TTL))

	if cfg.MaxTurns > 0 {
		store = &boundedStore{Store: store, maxTurns: cfg.MaxTurns}
	}
	return store, nil
}

// NewConversationID generates a unique conversation identifier
func NewConversationID() string {
	return "conv_" + uuid.NewString()
}

// ValidateConversationID checks the id format shared by every backend
func ValidateConversationID(id string) error {
	if !conversationIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidConversationID, id)
	}
	return nil
}

// boundedStore keeps only the most recent turns of each conversation.
type boundedStore struct {
	Store
	maxTurns int
}

func (b *boundedStore) Save(ctx context.Context, conversationID string, turns []analysis.Turn) error {
	return b.Store.Save(ctx, conversationID, TrimTurns(turns, b.maxTurns))
}

// TrimTurns returns the last maxTurns turns. The cut moves forward by one turn
// when needed so the kept history starts with a user turn.
func TrimTurns(turns []analysis.Turn, maxTurns int) []analysis.Turn {
	if maxTurns <= 0 || len(turns) <= maxTurns {
		return turns
	}
	start := len(turns) - maxTurns
	if turns[start].Role != analysis.RoleUser && start+1 < len(turns) {
		start++
	}
	return turns[start:]
}

func copyTurns(turns []analysis.Turn) []analysis.Turn {
	out := make([]analysis.Turn, len(turns))
	copy(out, turns)
	return out
}
