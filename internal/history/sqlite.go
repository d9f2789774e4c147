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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/arogyaplus/arogya-assistant/internal/analysis"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps conversations in a SQLite database
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path. ":memory:" gives a
// private in-memory database.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// initSchema creates the conversations table if it doesn't exist
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			turns TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`

	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Load returns the saved turns of a conversation
func (s *SQLiteStore) Load(ctx context.Context, conversationID string) ([]analysis.Turn, error) {
	if err := ValidateConversationID(conversationID); err != nil {
		return nil, err
	}

	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT turns FROM conversations WHERE id = ?", conversationID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return []analysis.Turn{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	turns := []analysis.Turn{}
	if err := json.Unmarshal([]byte(raw), &turns); err != nil {
		return nil, fmt.Errorf("failed to decode conversation %s: %w", conversationID, err)
	}
	return turns, nil
}

// Save replaces the saved turns of a conversation
func (s *SQLiteStore) Save(ctx context.Context, conversationID string, turns []analysis.Turn) error {
	if err := ValidateConversationID(conversationID); err != nil {
		return err
	}
	if turns == nil {
		turns = []analysis.Turn{}
	}

	data, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("failed to encode conversation: %w", err)
	}

	query := `
		INSERT OR REPLACE INTO conversations (id, turns, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
	`
	if _, err := s.db.ExecContext(ctx, query, conversationID, string(data)); err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

// Delete removes a conversation
func (s *SQLiteStore) Delete(ctx context.Context, conversationID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", conversationID); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

// Ping checks the database connection
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
