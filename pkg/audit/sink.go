package audit

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Sink persists the hash chain to a SQLite file so the trail survives
// restarts and can be verified offline. Reopening the file resumes the
// chain from its last entry.
type Sink struct {
	db    *sql.DB
	chain *ChainLogger

	// OnError receives write failures; entries still extend the
	// in-memory chain so one bad write does not fork it.
	OnError func(error)
}

func OpenSink(path string) (*Sink, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open audit sink: %w", err)
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS audit_entries (
    seq           INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp     TEXT NOT NULL,
    previous_hash TEXT NOT NULL,
    payload       TEXT NOT NULL,
    hash          TEXT NOT NULL
)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure audit schema: %w", err)
	}

	var lastHash string
	err = db.QueryRow(`SELECT hash FROM audit_entries ORDER BY seq DESC LIMIT 1`).Scan(&lastHash)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		_ = db.Close()
		return nil, fmt.Errorf("read last audit hash: %w", err)
	}

	return &Sink{db: db, chain: ResumeChainLogger(lastHash)}, nil
}

func (s *Sink) Append(payload string) *LogEntry {
	entry := s.chain.Append(payload)

	_, err := s.db.Exec(
		`INSERT INTO audit_entries (timestamp, previous_hash, payload, hash) VALUES (?, ?, ?, ?)`,
		entry.Timestamp, entry.PreviousHash, entry.Payload, entry.Hash)
	if err != nil && s.OnError != nil {
		s.OnError(fmt.Errorf("persist audit entry: %w", err))
	}
	return entry
}

// Entries loads the full trail in append order.
func (s *Sink) Entries() ([]*LogEntry, error) {
	rows, err := s.db.Query(
		`SELECT timestamp, previous_hash, payload, hash FROM audit_entries ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("read audit entries: %w", err)
	}
	defer rows.Close()

	var out []*LogEntry
	for rows.Next() {
		e := &LogEntry{}
		if err := rows.Scan(&e.Timestamp, &e.PreviousHash, &e.Payload, &e.Hash); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Sink) Close() error {
	return s.db.Close()
}
