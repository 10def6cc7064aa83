// Package ledger records every file the sync loop stages, so that runs can
// be audited after the fact.
package ledger

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// Entry is one staged file.
type Entry struct {
	Name     string    `json:"name"`
	Device   string    `json:"device"`
	Source   string    `json:"source"`
	ItemTime time.Time `json:"item_time"`
	Size     int       `json:"size"`
	StagedAt time.Time `json:"staged_at"`
	RunID    string    `json:"run_id"`
}

// Ledger is a SQLite backed log of staged files.
type Ledger struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens (creating if needed) the ledger database at path. The special
// path ":memory:" opens a private in-memory database.
func Open(path string) (*Ledger, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	// an in-memory database exists per connection
	db.SetMaxOpenConns(1)

	l := &Ledger{db: db}
	if err := l.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize ledger: %w", err)
	}
	return l, nil
}

func (l *Ledger) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS staged_files (
		name TEXT PRIMARY KEY,
		device TEXT NOT NULL,
		source TEXT NOT NULL,
		item_time DATETIME NOT NULL,
		size INTEGER NOT NULL,
		staged_at DATETIME NOT NULL,
		run_id TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_item_time ON staged_files(item_time);
	CREATE INDEX IF NOT EXISTS idx_device ON staged_files(device);
	`

	_, err := l.db.Exec(schema)
	return err
}

// Record stores e, replacing an earlier entry for the same name.
func (l *Ledger) Record(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.StagedAt.IsZero() {
		e.StagedAt = time.Now()
	}

	_, err := l.db.Exec(`
		INSERT OR REPLACE INTO staged_files (name, device, source, item_time, size, staged_at, run_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.Name, e.Device, e.Source, e.ItemTime.UTC(), e.Size, e.StagedAt.UTC(), e.RunID)
	if err != nil {
		return fmt.Errorf("failed to record %s: %w", e.Name, err)
	}

	log.Debug().
		Str("name", e.Name).
		Str("source", e.Source).
		Str("run", e.RunID).
		Msg("Recorded staged file")

	return nil
}

// Seen reports whether name has been recorded.
func (l *Ledger) Seen(name string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var n int
	err := l.db.QueryRow("SELECT COUNT(*) FROM staged_files WHERE name = ?", name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to query %s: %w", name, err)
	}
	return n > 0, nil
}

// Recent returns up to limit entries, newest item first.
func (l *Ledger) Recent(limit int) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rows, err := l.db.Query(`
		SELECT name, device, source, item_time, size, staged_at, run_id
		FROM staged_files
		ORDER BY item_time DESC, name DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		err := rows.Scan(&e.Name, &e.Device, &e.Source, &e.ItemTime, &e.Size, &e.StagedAt, &e.RunID)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Stats summarises the ledger.
type Stats struct {
	Files   int64
	Devices int64
	Newest  *time.Time
}

func (l *Ledger) Stats() (*Stats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := &Stats{}
	err := l.db.QueryRow(`
		SELECT COUNT(*), COUNT(DISTINCT device) FROM staged_files
	`).Scan(&stats.Files, &stats.Devices)
	if err != nil {
		return nil, err
	}

	if stats.Files == 0 {
		return stats, nil
	}

	// MAX() loses the column type, so read the newest row instead
	var newest time.Time
	err = l.db.QueryRow(`
		SELECT item_time FROM staged_files ORDER BY item_time DESC LIMIT 1
	`).Scan(&newest)
	if err != nil {
		return nil, err
	}
	stats.Newest = &newest

	return stats, nil
}

// Close closes the database connection
func (l *Ledger) Close() error {
	return l.db.Close()
}
