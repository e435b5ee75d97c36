// Package db provides the central SQLite database for the BIA agent.
// A single bia.db file holds tenants, the product catalog, conversation
// sessions, behavior patterns, learning logs, and handoff registrations.
// The memory database (FTS5/embeddings) remains separate — see pkg/bia/memory.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // SQLite driver.
)

// schema is the DDL executed on every startup (idempotent via IF NOT EXISTS).
const schema = `
-- Tenants (one row per partner/affiliate).
CREATE TABLE IF NOT EXISTS tenants (
    id                TEXT PRIMARY KEY,
    name              TEXT NOT NULL,
    agent_name        TEXT NOT NULL DEFAULT 'BIA',
    agent_personality TEXT NOT NULL DEFAULT '',
    api_credential    TEXT NOT NULL DEFAULT '',
    is_active         INTEGER NOT NULL DEFAULT 1,
    created_at        TEXT NOT NULL,
    updated_at        TEXT NOT NULL
);

-- Global product catalog (prices stored in cents).
CREATE TABLE IF NOT EXISTS products (
    id             TEXT PRIMARY KEY,
    name           TEXT NOT NULL,
    description    TEXT NOT NULL DEFAULT '',
    price_cents    INTEGER NOT NULL DEFAULT 0,
    sku            TEXT NOT NULL DEFAULT '',
    category       TEXT NOT NULL DEFAULT '',
    width_cm       INTEGER NOT NULL DEFAULT 0,
    length_cm      INTEGER NOT NULL DEFAULT 0,
    height_cm      INTEGER NOT NULL DEFAULT 0,
    weight_kg      REAL NOT NULL DEFAULT 0,
    warranty_years INTEGER NOT NULL DEFAULT 0,
    is_active      INTEGER NOT NULL DEFAULT 1
);

-- Conversation turns (append-only, one row per message).
CREATE TABLE IF NOT EXISTS session_messages (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id TEXT NOT NULL,
    tenant_id       TEXT NOT NULL,
    role            TEXT NOT NULL,
    content         TEXT NOT NULL,
    created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_session_messages_cid ON session_messages(conversation_id);

-- Approved behavior patterns, fed by learning-log promotion.
CREATE TABLE IF NOT EXISTS behavior_patterns (
    id                TEXT PRIMARY KEY,
    tenant_id         TEXT NOT NULL,
    name              TEXT NOT NULL,
    type              TEXT NOT NULL DEFAULT 'general',
    trigger_condition TEXT NOT NULL DEFAULT '',
    response_template TEXT NOT NULL DEFAULT '',
    confidence_score  REAL NOT NULL DEFAULT 0,
    is_active         INTEGER NOT NULL DEFAULT 1,
    metadata          TEXT NOT NULL DEFAULT '{}',
    created_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_behavior_patterns_tid ON behavior_patterns(tenant_id, is_active);

-- Candidate patterns awaiting confidence-based promotion.
CREATE TABLE IF NOT EXISTS learning_logs (
    id               TEXT PRIMARY KEY,
    tenant_id        TEXT NOT NULL,
    conversation_id  TEXT,
    pattern_data     TEXT NOT NULL,
    confidence_score REAL NOT NULL DEFAULT 0,
    status           TEXT NOT NULL DEFAULT 'pending',
    reviewer_notes   TEXT NOT NULL DEFAULT '',
    created_at       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_learning_logs_status ON learning_logs(status, tenant_id);

-- Handoff registrations (consumed by the human operator surface).
CREATE TABLE IF NOT EXISTS handoffs (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id TEXT NOT NULL,
    tenant_id       TEXT NOT NULL,
    reason          TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL DEFAULT 'pending',
    created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_handoffs_tid ON handoffs(tenant_id, status);
`

// Open opens (or creates) the central bia.db at the given path.
// It enables WAL mode for concurrent read performance and creates all tables.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		path = "./data/bia.db"
	}

	// Ensure parent directory exists.
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory %q: %w", dir, err)
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", path, err)
	}

	// Verify connectivity.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Create schema (idempotent).
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return db, nil
}

// OpenMemory opens an in-memory database with the full schema.
// Used by tests and the chat REPL's ephemeral mode.
func OpenMemory() (*sql.DB, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open in-memory database: %w", err)
	}
	// Each sqlite connection gets its own :memory: database; keep the
	// pool at one connection so everyone sees the same data.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return db, nil
}
