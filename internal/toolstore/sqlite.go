package toolstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists tool outputs in a SQLite database so refs survive the
// process and can be inspected across runs.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tool_outputs (
	id           TEXT PRIMARY KEY,
	tool_call_id TEXT NOT NULL,
	tool_name    TEXT NOT NULL,
	content      TEXT NOT NULL,
	is_error     INTEGER NOT NULL DEFAULT 0,
	byte_size    INTEGER NOT NULL,
	line_count   INTEGER NOT NULL,
	created_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_tool_outputs_call ON tool_outputs(tool_call_id);
`

// OpenSQLite opens (creating if needed) a store at path. Use ":memory:" for
// an ephemeral database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("toolstore: open sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("toolstore: init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, rec Record) (Ref, error) {
	ref := Ref{
		ID:        uuid.NewString(),
		ByteSize:  len(rec.Content),
		LineCount: strings.Count(rec.Content, "\n") + 1,
	}
	isErr := 0
	if rec.IsError {
		isErr = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tool_outputs (id, tool_call_id, tool_name, content, is_error, byte_size, line_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ref.ID, rec.ToolCallID, rec.ToolName, rec.Content, isErr, ref.ByteSize, ref.LineCount)
	if err != nil {
		return Ref{}, fmt.Errorf("toolstore: save: %w", err)
	}
	return ref, nil
}

func (s *SQLiteStore) content(ctx context.Context, refID string) (string, error) {
	var content string
	err := s.db.QueryRowContext(ctx, `SELECT content FROM tool_outputs WHERE id = ?`, refID).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("toolstore: unknown ref %q", refID)
	}
	if err != nil {
		return "", fmt.Errorf("toolstore: read: %w", err)
	}
	return content, nil
}

// Read implements Store.
func (s *SQLiteStore) Read(ctx context.Context, refID string, opts ReadOptions) (string, error) {
	content, err := s.content(ctx, refID)
	if err != nil {
		return "", err
	}
	return readLines(content, opts), nil
}

// Grep implements Store.
func (s *SQLiteStore) Grep(ctx context.Context, refID string, opts GrepOptions) (string, error) {
	content, err := s.content(ctx, refID)
	if err != nil {
		return "", err
	}
	return grepLines(content, opts)
}
