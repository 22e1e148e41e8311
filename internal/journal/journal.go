// Package journal persists supervisor lifecycle events to SQLite so that
// operators can see what the supervisor did to each agent process after
// the fact: spawns, exits, restarts, and stops.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Event kinds recorded by the supervisor.
const (
	KindSpawn   = "spawn"
	KindExit    = "exit"
	KindRestart = "restart"
	KindStop    = "stop"
)

const schema = `
CREATE TABLE IF NOT EXISTS run_events (
	id INTEGER PRIMARY KEY,
	run_id TEXT NOT NULL,
	role TEXT NOT NULL,
	kind TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_run_events_role ON run_events(role, at);
`

// Entry is one recorded lifecycle event.
type Entry struct {
	RunID  string
	Role   string
	Kind   string
	Detail string
	At     time.Time
}

// Journal is an append-only SQLite log of supervisor events.
type Journal struct {
	db *sql.DB
}

// Open creates or opens the journal at path, creating parent directories
// as needed.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Record appends one event.
func (j *Journal) Record(e Entry) error {
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := j.db.Exec(
		`INSERT INTO run_events (run_id, role, kind, detail, at) VALUES (?, ?, ?, ?, ?)`,
		e.RunID, e.Role, e.Kind, e.Detail, at.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record %s/%s: %w", e.Role, e.Kind, err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	rows, err := j.db.Query(
		`SELECT run_id, role, kind, detail, at FROM run_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var at string
		if err := rows.Scan(&e.RunID, &e.Role, &e.Kind, &e.Detail, &at); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if t, perr := time.Parse(time.RFC3339Nano, at); perr == nil {
			e.At = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// RestartCount returns how many restarts were recorded for a role.
func (j *Journal) RestartCount(role string) (int, error) {
	var n int
	err := j.db.QueryRow(
		`SELECT COUNT(*) FROM run_events WHERE role = ? AND kind = ?`, role, KindRestart,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count restarts: %w", err)
	}
	return n, nil
}

// Close releases the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
