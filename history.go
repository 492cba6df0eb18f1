package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	defaultHistoryLimit = 20
	promptHistoryLimit  = 1000
)

type historyEntry struct {
	ID         int64
	Input      string
	Project    string
	ExecutedAt time.Time
	Duration   time.Duration
	Rows       int64
	Err        string
}

// historyStore persists every line entered at the prompt. A nil store is
// valid and records nothing.
type historyStore struct {
	db   *sql.DB
	path string
}

func openHistoryStore(path string) (*historyStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		// Every new connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := migrateHistoryStore(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &historyStore{db: db, path: path}, nil
}

func migrateHistoryStore(db *sql.DB) error {
	statements := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			input TEXT NOT NULL,
			project TEXT NOT NULL DEFAULT '',
			executed_at INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			row_count INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS history_executed_at ON history (executed_at);`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("history store migration failed: %w", err)
		}
	}
	return nil
}

func (s *historyStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *historyStore) Add(e historyEntry) error {
	if s == nil || s.db == nil {
		return nil
	}
	input := strings.TrimSpace(e.Input)
	if input == "" {
		return nil
	}
	if e.ExecutedAt.IsZero() {
		e.ExecutedAt = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO history (input, project, executed_at, duration_ms, row_count, error)
		VALUES (?, ?, ?, ?, ?, ?)`,
		input, e.Project, e.ExecutedAt.UnixMicro(), e.Duration.Milliseconds(), e.Rows, e.Err)
	return err
}

// Recent returns the last n entries, oldest first.
func (s *historyStore) Recent(n int) ([]historyEntry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	rows, err := s.db.Query(`SELECT id, input, project, executed_at, duration_ms, row_count, error
		FROM (SELECT * FROM history ORDER BY id DESC LIMIT ?) ORDER BY id ASC`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []historyEntry
	for rows.Next() {
		var (
			e        historyEntry
			micros   int64
			duration int64
		)
		if err := rows.Scan(&e.ID, &e.Input, &e.Project, &micros, &duration, &e.Rows, &e.Err); err != nil {
			return nil, err
		}
		e.ExecutedAt = time.UnixMicro(micros)
		e.Duration = time.Duration(duration) * time.Millisecond
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Inputs returns up to n distinct recent inputs, oldest first, for the line
// editor's history.
func (s *historyStore) Inputs(n int) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	rows, err := s.db.Query(`SELECT input FROM (
			SELECT input, MAX(id) AS last_id FROM history GROUP BY input ORDER BY last_id DESC LIMIT ?
		) ORDER BY last_id ASC`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var inputs []string
	for rows.Next() {
		var input string
		if err := rows.Scan(&input); err != nil {
			return nil, err
		}
		inputs = append(inputs, input)
	}
	return inputs, rows.Err()
}

var historySchema = []Column{
	{Name: "id", Type: TypeInteger},
	{Name: "executed_at", Type: TypeTimestamp},
	{Name: "project", Type: TypeString},
	{Name: "input", Type: TypeString},
	{Name: "duration_ms", Type: TypeInteger},
	{Name: "rows", Type: TypeInteger},
	{Name: "error", Type: TypeString},
}

func historyResult(entries []historyEntry) *ResultSet {
	rows := make([]Row, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, Row{
			"id":          Integer(e.ID),
			"executed_at": Timestamp(e.ExecutedAt),
			"project":     optString(e.Project),
			"input":       String(e.Input),
			"duration_ms": Integer(e.Duration.Milliseconds()),
			"rows":        Integer(e.Rows),
			"error":       optString(e.Err),
		})
	}
	return newResultSet(historySchema, rows)
}
