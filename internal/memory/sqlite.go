package memory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// LongTermStore is the SQLite-backed archive tier. Every interaction
// evicted from the short-term buffer lands here.
type LongTermStore struct {
	db *sql.DB
}

// NewLongTermStore opens (creating if needed) the archive database.
func NewLongTermStore(dbPath string) (*LongTermStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &LongTermStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

func (s *LongTermStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS long_term_memory (
		id TEXT PRIMARY KEY,
		query TEXT NOT NULL,
		answer TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		tags TEXT,
		backend TEXT NOT NULL,
		latency_ms INTEGER DEFAULT 0,
		input_tokens INTEGER DEFAULT 0,
		output_tokens INTEGER DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_long_term_timestamp ON long_term_memory(timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Insert archives one interaction. An empty ID gets a fresh UUIDv7 so
// archive rows sort by creation time.
func (s *LongTermStore) Insert(ctx context.Context, it Interaction) error {
	id := it.ID
	if id == "" {
		u, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate id: %w", err)
		}
		id = u.String()
	}

	ts := it.CompletedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO long_term_memory (id, query, answer, timestamp, tags, backend, latency_ms, input_tokens, output_tokens)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, it.Query, it.Answer, ts, it.Tags, it.Backend, it.LatencyMS, it.InputTokens, it.OutputTokens)
	if err != nil {
		return fmt.Errorf("insert interaction: %w", err)
	}
	return nil
}

// Relevant returns up to limit archived interactions whose query or
// answer contains the search text, newest first. Matching is plain
// substring matching; an empty search returns nothing.
func (s *LongTermStore) Relevant(ctx context.Context, search string, limit int) ([]Interaction, error) {
	if search == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 3
	}

	pattern := "%" + search + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, query, answer, timestamp, tags, backend, latency_ms, input_tokens, output_tokens
		FROM long_term_memory
		WHERE query LIKE ? OR answer LIKE ?
		ORDER BY timestamp DESC
		LIMIT ?`,
		pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("query relevant: %w", err)
	}
	defer rows.Close()

	var out []Interaction
	for rows.Next() {
		var it Interaction
		var tags sql.NullString
		if err := rows.Scan(&it.ID, &it.Query, &it.Answer, &it.CompletedAt, &tags, &it.Backend, &it.LatencyMS, &it.InputTokens, &it.OutputTokens); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		it.Tags = tags.String
		out = append(out, it)
	}
	return out, rows.Err()
}

// Count reports the number of archived interactions.
func (s *LongTermStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM long_term_memory`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count interactions: %w", err)
	}
	return n, nil
}

// ClearAll removes every archived interaction.
func (s *LongTermStore) ClearAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM long_term_memory`); err != nil {
		return fmt.Errorf("clear archive: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *LongTermStore) Close() error {
	return s.db.Close()
}
