// Package journal persists the durable record of phase completion, enabling
// resumable, idempotent re-runs. State is kept in SQLite: one current row per
// phase plus an append-only event history.
package journal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration
)

// ErrNotFound is returned when a phase has no journal entry; callers treat
// that as NotStarted.
var ErrNotFound = errors.New("phase not recorded")

// Status is the persisted terminal state of a phase.
type Status string

const (
	StatusPending           Status = "pending"
	StatusCompleted         Status = "completed"
	StatusFailed            Status = "failed"
	StatusSkippedIdempotent Status = "skipped-idempotent"
)

// Entry is the journal value for one phase. It is stored as a single JSON
// document so newer orchestrator versions can add fields without breaking
// older rows: unknown fields are ignored on read, missing fields decode to
// zero values.
type Entry struct {
	Status      Status    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Warnings    []string  `json:"warnings,omitempty"`
	Diagnostic  string    `json:"diagnostic,omitempty"`
}

// Satisfied reports whether the entry shows the phase's effect in place,
// either from a completed run or an idempotent skip. Re-runs record skips
// over completed rows, so checks that only accepted StatusCompleted would
// wrongly re-execute from the third run onward.
func (e Entry) Satisfied() bool {
	return e.Status == StatusCompleted || e.Status == StatusSkippedIdempotent
}

// Event is one append-only history record.
type Event struct {
	Seq     uint64
	RunID   string
	PhaseID string
	Entry   Entry
}

// Journal is a SQLite-backed phase journal.
type Journal struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens or creates a journal at the given path, creating parent
// directories as needed.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating journal dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Journal{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS phase_state (
			phase_id TEXT PRIMARY KEY,
			doc      TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS events (
			seq      INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id   TEXT NOT NULL,
			phase_id TEXT NOT NULL,
			ts       TEXT NOT NULL,
			doc      TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_events_phase ON events(phase_id);
	`)
	return err
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record upserts the current state of a phase and appends a history event.
// Both writes happen in one transaction so the journal never shows a state
// without its event.
func (j *Journal) Record(runID, phaseID string, entry Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	doc, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling journal entry: %w", err)
	}

	tx, err := j.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning journal tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO phase_state (phase_id, doc) VALUES (?, ?)
		ON CONFLICT(phase_id) DO UPDATE SET doc = excluded.doc
	`, phaseID, string(doc)); err != nil {
		return fmt.Errorf("upserting phase state: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO events (run_id, phase_id, ts, doc) VALUES (?, ?, ?, ?)
	`, runID, phaseID, entry.Timestamp.Format(time.RFC3339Nano), string(doc)); err != nil {
		return fmt.Errorf("appending journal event: %w", err)
	}

	return tx.Commit()
}

// Get returns the current entry for a phase, or ErrNotFound.
func (j *Journal) Get(phaseID string) (Entry, error) {
	row := j.db.QueryRow(`SELECT doc FROM phase_state WHERE phase_id = ?`, phaseID)

	var doc string
	err := row.Scan(&doc)
	if err == sql.ErrNoRows {
		return Entry{}, fmt.Errorf("phase %s: %w", phaseID, ErrNotFound)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("reading phase state: %w", err)
	}

	return decodeEntry(doc)
}

// All returns the current entry for every recorded phase.
func (j *Journal) All() (map[string]Entry, error) {
	rows, err := j.db.Query(`SELECT phase_id, doc FROM phase_state`)
	if err != nil {
		return nil, fmt.Errorf("reading phase states: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]Entry)
	for rows.Next() {
		var phaseID, doc string
		if err := rows.Scan(&phaseID, &doc); err != nil {
			return nil, fmt.Errorf("scanning phase state: %w", err)
		}
		entry, err := decodeEntry(doc)
		if err != nil {
			return nil, err
		}
		entries[phaseID] = entry
	}
	return entries, rows.Err()
}

// Events returns the most recent history events, newest first.
func (j *Journal) Events(limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.Query(`
		SELECT seq, run_id, phase_id, doc FROM events
		ORDER BY seq DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("reading events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var doc string
		if err := rows.Scan(&e.Seq, &e.RunID, &e.PhaseID, &doc); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		entry, err := decodeEntry(doc)
		if err != nil {
			return nil, err
		}
		e.Entry = entry
		events = append(events, e)
	}
	return events, rows.Err()
}

// decodeEntry parses a stored JSON document. Unknown fields are ignored so
// rows written by newer versions still read cleanly.
func decodeEntry(doc string) (Entry, error) {
	var entry Entry
	if err := json.Unmarshal([]byte(doc), &entry); err != nil {
		return Entry{}, fmt.Errorf("decoding journal entry: %w", err)
	}
	return entry, nil
}
