package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/0tSystemsPublicRepos/mirage/internal/deception"
	"github.com/0tSystemsPublicRepos/mirage/internal/response"
)

// SQLiteDB persists closed incidents and deception events. The pipeline
// writes best-effort and never retries; reads serve the CLI and the
// status API.
type SQLiteDB struct {
	db *sql.DB
	mu sync.RWMutex
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	s := &SQLiteDB{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS incidents (
			id TEXT PRIMARY KEY,
			threat_type TEXT NOT NULL,
			source_ip TEXT,
			score REAL NOT NULL,
			opened_at TIMESTAMP NOT NULL,
			closed_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS incident_actions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			incident_id TEXT NOT NULL,
			action TEXT NOT NULL,
			status TEXT NOT NULL,
			detail TEXT,
			FOREIGN KEY (incident_id) REFERENCES incidents(id)
		)`,
		`CREATE TABLE IF NOT EXISTS deception_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			honeypot_id TEXT NOT NULL,
			source_ip TEXT,
			occurred_at TIMESTAMP NOT NULL,
			bytes_read INTEGER NOT NULL DEFAULT 0,
			details TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_type ON incidents(threat_type)`,
		`CREATE INDEX IF NOT EXISTS idx_events_source ON deception_events(source_ip)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteDB) GetDB() *sql.DB { return s.db }

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// SaveIncident stores a closed incident with its action results.
// Re-saving the same incident id replaces the previous row.
func (s *SQLiteDB) SaveIncident(rec response.IncidentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO incidents (id, threat_type, source_ip, score, opened_at, closed_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET score = excluded.score, closed_at = excluded.closed_at`,
		rec.ID, rec.ThreatType, rec.SourceIP, rec.Score, rec.OpenedAt, rec.ClosedAt,
	)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM incident_actions WHERE incident_id = ?`, rec.ID); err != nil {
		return err
	}

	for _, ar := range rec.Actions {
		_, err = tx.Exec(
			`INSERT INTO incident_actions (incident_id, action, status, detail) VALUES (?, ?, ?, ?)`,
			rec.ID, string(ar.Action), ar.Status, ar.Detail,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// SaveConnectionEvent stores one deception event for audit.
func (s *SQLiteDB) SaveConnectionEvent(ev deception.ConnectionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO deception_events (honeypot_id, source_ip, occurred_at, bytes_read, details)
		 VALUES (?, ?, ?, ?, ?)`,
		ev.HoneypotID, ev.SourceIP, ev.Timestamp, ev.BytesRead, ev.Details,
	)
	return err
}

// GetRecentIncidents returns recent incidents newest first, each with its
// action results flattened to a JSON string.
func (s *SQLiteDB) GetRecentIncidents(limit int) ([]map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, threat_type, COALESCE(source_ip, ''), score, opened_at, closed_at
		 FROM incidents ORDER BY closed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]interface{}
	for rows.Next() {
		var id, threatType, sourceIP string
		var score float64
		var openedAt, closedAt string
		if err := rows.Scan(&id, &threatType, &sourceIP, &score, &openedAt, &closedAt); err != nil {
			return nil, err
		}

		actions, err := s.actionsFor(id)
		if err != nil {
			return nil, err
		}
		actionsJSON, _ := json.Marshal(actions)

		out = append(out, map[string]interface{}{
			"id":          id,
			"threat_type": threatType,
			"source_ip":   sourceIP,
			"score":       score,
			"opened_at":   openedAt,
			"closed_at":   closedAt,
			"actions":     string(actionsJSON),
		})
	}
	return out, rows.Err()
}

// GetIncident returns one incident by id, or nil when not found.
func (s *SQLiteDB) GetIncident(id string) (map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		`SELECT id, threat_type, COALESCE(source_ip, ''), score, opened_at, closed_at
		 FROM incidents WHERE id = ?`, id)

	var incID, threatType, sourceIP string
	var score float64
	var openedAt, closedAt string
	err := row.Scan(&incID, &threatType, &sourceIP, &score, &openedAt, &closedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	actions, err := s.actionsFor(incID)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"id":          incID,
		"threat_type": threatType,
		"source_ip":   sourceIP,
		"score":       score,
		"opened_at":   openedAt,
		"closed_at":   closedAt,
		"actions":     actions,
	}, nil
}

// actionsFor holds no lock of its own; callers hold at least a read lock.
func (s *SQLiteDB) actionsFor(incidentID string) ([]map[string]string, error) {
	rows, err := s.db.Query(
		`SELECT action, status, COALESCE(detail, '') FROM incident_actions WHERE incident_id = ? ORDER BY id`,
		incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]string
	for rows.Next() {
		var action, status, detail string
		if err := rows.Scan(&action, &status, &detail); err != nil {
			return nil, err
		}
		out = append(out, map[string]string{"action": action, "status": status, "detail": detail})
	}
	return out, rows.Err()
}

// IncidentStats returns totals grouped by threat type.
func (s *SQLiteDB) IncidentStats() (total int64, byType map[string]int64, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byType = make(map[string]int64)

	rows, err := s.db.Query(`SELECT threat_type, COUNT(*) FROM incidents GROUP BY threat_type`)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var threatType string
		var count int64
		if err := rows.Scan(&threatType, &count); err != nil {
			return 0, nil, err
		}
		byType[threatType] = count
		total += count
	}
	return total, byType, rows.Err()
}

// GetRecentEvents returns recent deception events, newest first.
func (s *SQLiteDB) GetRecentEvents(limit int) ([]map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, honeypot_id, COALESCE(source_ip, ''), occurred_at, bytes_read, COALESCE(details, '')
		 FROM deception_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]interface{}
	for rows.Next() {
		var id, bytesRead int64
		var honeypotID, sourceIP, occurredAt, details string
		if err := rows.Scan(&id, &honeypotID, &sourceIP, &occurredAt, &bytesRead, &details); err != nil {
			return nil, err
		}
		out = append(out, map[string]interface{}{
			"id":          id,
			"honeypot_id": honeypotID,
			"source_ip":   sourceIP,
			"occurred_at": occurredAt,
			"bytes_read":  bytesRead,
			"details":     details,
		})
	}
	return out, rows.Err()
}

// TopSources returns the most frequent event sources.
func (s *SQLiteDB) TopSources(limit int) ([]map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT source_ip, COUNT(*) as hits FROM deception_events
		 WHERE source_ip != '' GROUP BY source_ip ORDER BY hits DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]interface{}
	for rows.Next() {
		var sourceIP string
		var hits int64
		if err := rows.Scan(&sourceIP, &hits); err != nil {
			return nil, err
		}
		out = append(out, map[string]interface{}{"source_ip": sourceIP, "hits": hits})
	}
	return out, rows.Err()
}
