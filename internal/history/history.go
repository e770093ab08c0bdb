// Package history keeps an append-only event log of agent lifecycle
// changes in SQLite. The log is advisory: losing it never affects
// tracked state, so writers log-and-continue on failure.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Event is one recorded lifecycle change.
type Event struct {
	ID        int64
	AgentID   string
	AgentName string
	Event     string
	Detail    string
	CreatedAt time.Time
}

// DB wraps the SQLite event log. Thread-safe for concurrent use within
// one process; WAL mode plus busy timeout makes concurrent processes
// safe too.
type DB struct {
	db *sql.DB
}

// Open creates or opens the event log at dbPath with WAL mode and a busy
// timeout, and applies the schema.
func Open(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("history: mkdir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}

	// WAL mode: allows concurrent readers while writing
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: wal mode: %w", err)
	}

	// Busy timeout: wait up to 5s if another process holds a lock
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: busy timeout: %w", err)
	}

	h := &DB{db: db}
	if err := h.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return h, nil
}

func (h *DB) migrate() error {
	_, err := h.db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_id   TEXT NOT NULL,
			agent_name TEXT NOT NULL DEFAULT '',
			event      TEXT NOT NULL,
			detail     TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_events_agent ON events(agent_id, id);
	`)
	if err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	return nil
}

// Close checkpoints WAL and closes the database.
func (h *DB) Close() error {
	_, _ = h.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return h.db.Close()
}

// Record appends one event.
func (h *DB) Record(agentID, agentName, event, detail string) error {
	_, err := h.db.Exec(
		`INSERT INTO events (agent_id, agent_name, event, detail, created_at) VALUES (?, ?, ?, ?, ?)`,
		agentID, agentName, event, detail, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("history: record: %w", err)
	}
	return nil
}

// Recent returns the newest events, most recent first.
func (h *DB) Recent(limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := h.db.Query(
		`SELECT id, agent_id, agent_name, event, detail, created_at
		 FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ForAgent returns the newest events for one agent, most recent first.
func (h *DB) ForAgent(agentID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := h.db.Query(
		`SELECT id, agent_id, agent_name, event, detail, created_at
		 FROM events WHERE agent_id = ? ORDER BY id DESC LIMIT ?`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("history: for agent: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.AgentID, &e.AgentName, &e.Event, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
