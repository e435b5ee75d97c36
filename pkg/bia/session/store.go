// Package session persists conversation history in the central SQLite
// database. Each conversation keeps a sliding window of recent turns and
// expires after a TTL, mirroring an ephemeral chat session.
package session

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/slimquality/bia/pkg/bia/memory"
)

const (
	// DefaultTTL is how long a conversation stays retrievable.
	DefaultTTL = 24 * time.Hour

	// DefaultWindow is the number of recent turns loaded for context.
	DefaultWindow = 20
)

// Message is a single conversation turn.
type Message struct {
	Role      string
	Content   string
	CreatedAt time.Time
}

// Store reads and writes conversation history.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	ttl    time.Duration
	window int
}

// NewStore creates a session store over the central database.
// ttl <= 0 and window <= 0 fall back to the defaults.
func NewStore(db *sql.DB, ttl time.Duration, window int, logger *slog.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger, ttl: ttl, window: window}
}

// Append records one turn for the conversation.
func (s *Store) Append(ctx context.Context, tenantID, conversationID, role, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_messages (conversation_id, tenant_id, role, content, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		conversationID, tenantID, role, content, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("append session message: %w", err)
	}
	return nil
}

// History returns the most recent turns inside the TTL, oldest first,
// capped at the configured window.
func (s *Store) History(ctx context.Context, tenantID, conversationID string) ([]Message, error) {
	cutoff := time.Now().UTC().Add(-s.ttl).Format(time.RFC3339)
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, created_at FROM session_messages
		 WHERE conversation_id = ? AND tenant_id = ? AND created_at >= ?
		 ORDER BY id DESC LIMIT ?`,
		conversationID, tenantID, cutoff, s.window)
	if err != nil {
		return nil, fmt.Errorf("load session history: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		var created string
		if err := rows.Scan(&m.Role, &m.Content, &created); err != nil {
			return nil, fmt.Errorf("scan session message: %w", err)
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339, created)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query is newest-first for the LIMIT; flip back to chronological.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Transcript returns the full conversation (no window cap) for the
// learning engine. Satisfies memory.TranscriptSource.
func (s *Store) Transcript(ctx context.Context, tenantID, conversationID string) ([]memory.TranscriptEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content FROM session_messages
		 WHERE conversation_id = ? AND tenant_id = ?
		 ORDER BY id ASC`,
		conversationID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	defer rows.Close()

	var entries []memory.TranscriptEntry
	for rows.Next() {
		var e memory.TranscriptEntry
		if err := rows.Scan(&e.Role, &e.Content); err != nil {
			return nil, fmt.Errorf("scan transcript entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Purge deletes messages older than the TTL. Meant to run from the
// maintenance cron alongside the approval supervisor.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-s.ttl).Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM session_messages WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Debug("expired session messages purged", "count", n)
	}
	return n, nil
}
