// Package storage keeps a small SQLite ledger of actions performed against
// the site, used to enforce daily quotas across process restarts. Scraped
// content is never written here.
package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Action types recorded in the ledger.
const (
	ActionLogin             = "login"
	ActionProfileVisit      = "profile_visit"
	ActionConnectionRequest = "connection_request"
)

// Retention is how long recorded actions are kept.
const Retention = 30 * 24 * time.Hour

// Action represents any action performed
type Action struct {
	ID         int64
	ActionType string
	Timestamp  time.Time
}

// Store is an open action ledger.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the ledger at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection keeps writes serialized
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS actions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		action_type TEXT NOT NULL,
		timestamp INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_actions_type ON actions(action_type);
	CREATE INDEX IF NOT EXISTS idx_actions_timestamp ON actions(timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordAction records an action (for rate limiting)
func (s *Store) RecordAction(actionType string) error {
	query := `INSERT INTO actions (action_type, timestamp) VALUES (?, ?)`

	if _, err := s.db.Exec(query, actionType, s.now().Unix()); err != nil {
		return fmt.Errorf("failed to record action: %w", err)
	}
	return nil
}

// ActionsInLastHour returns the number of actions of a specific type in the last hour
func (s *Store) ActionsInLastHour(actionType string) (int, error) {
	return s.countSince(actionType, s.now().Add(-time.Hour))
}

// ActionsToday returns the number of actions of a specific type since local midnight
func (s *Store) ActionsToday(actionType string) (int, error) {
	now := s.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return s.countSince(actionType, midnight)
}

func (s *Store) countSince(actionType string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM actions WHERE action_type = ? AND timestamp >= ?`

	var count int
	if err := s.db.QueryRow(query, actionType, since.Unix()).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get action count: %w", err)
	}
	return count, nil
}

// RecentActions returns the newest actions first, at most limit of them.
func (s *Store) RecentActions(limit int) ([]Action, error) {
	rows, err := s.db.Query(`
		SELECT id, action_type, timestamp FROM actions
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}
	defer rows.Close()

	var actions []Action
	for rows.Next() {
		var a Action
		var ts int64
		if err := rows.Scan(&a.ID, &a.ActionType, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		a.Timestamp = time.Unix(ts, 0)
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// CleanupOldActions removes actions older than Retention and returns how
// many were deleted.
func (s *Store) CleanupOldActions() (int64, error) {
	cutoff := s.now().Add(-Retention).Unix()
	result, err := s.db.Exec(`DELETE FROM actions WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old actions: %w", err)
	}
	return result.RowsAffected()
}

// Stats returns per-type counts for today plus the ledger total.
func (s *Store) Stats() (map[string]int, error) {
	stats := make(map[string]int)

	var total int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM actions").Scan(&total); err != nil {
		return nil, err
	}
	stats["total_actions"] = total

	for _, actionType := range []string{ActionLogin, ActionProfileVisit, ActionConnectionRequest} {
		n, err := s.ActionsToday(actionType)
		if err != nil {
			return nil, err
		}
		stats[actionType+"s_today"] = n
	}
	return stats, nil
}
