// Package local keeps best-effort session snapshots in a SQLite file. When a
// browser tab is force-closed mid-session, the UI posts a final state dump
// here; the server reconciles pending snapshots into the document store on
// the next startup.
package local

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS session_snapshots (
    session_id TEXT PRIMARY KEY,
    data TEXT NOT NULL,
    saved_at DATETIME NOT NULL
);
`

// SnapshotStore is a file-backed store for unload snapshots.
type SnapshotStore struct {
	db *sql.DB
}

func NewSnapshotStore(path string) (*SnapshotStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate snapshot database: %w", err)
	}

	return &SnapshotStore{db: db}, nil
}

func (s *SnapshotStore) Close() error {
	return s.db.Close()
}

// Put stores the snapshot for a session, replacing any previous one.
func (s *SnapshotStore) Put(ctx context.Context, sessionID string, data []byte, savedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO session_snapshots (session_id, data, saved_at)
		VALUES (?, ?, ?)
	`, sessionID, string(data), savedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to store snapshot for session %s: %w", sessionID, err)
	}
	return nil
}

// Pending is one stored snapshot awaiting reconciliation.
type Pending struct {
	SessionID string
	Data      []byte
	SavedAt   time.Time
}

// List returns all pending snapshots.
func (s *SnapshotStore) List(ctx context.Context) ([]Pending, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, data, saved_at FROM session_snapshots ORDER BY saved_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var pending []Pending
	for rows.Next() {
		var p Pending
		var data string
		if err := rows.Scan(&p.SessionID, &data, &p.SavedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		p.Data = []byte(data)
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// Delete removes a reconciled snapshot.
func (s *SnapshotStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session_snapshots WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot for session %s: %w", sessionID, err)
	}
	return nil
}
