// Package callstore reads call metadata from the SQLite-backed call store.
package callstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// CallRecord describes one recorded phone call and where its audio lives.
// Records are read-only inputs to the pipeline.
type CallRecord struct {
	ID           int64
	FechaLlamada time.Time
	UserType     string
	AudioPath    string
	AgentID      string
	Duration     int // seconds, 0 when unknown
}

// Store queries call metadata.
type Store struct {
	db *sql.DB
}

// Open connects to the call store database.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open call store: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies the store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// EnsureSchema creates the calls table when it does not exist. Production
// deployments point the DSN at a populated replica; this exists for local
// runs and tests.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS calls (
			id INTEGER PRIMARY KEY,
			fecha_llamada TEXT NOT NULL,
			user_type TEXT NOT NULL DEFAULT 'unknown',
			audio_path TEXT NOT NULL DEFAULT '',
			agent_id TEXT,
			duration INTEGER
		)`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Insert adds a call record. Used by tests and backfill tooling.
func (s *Store) Insert(ctx context.Context, rec CallRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO calls (id, fecha_llamada, user_type, audio_path, agent_id, duration)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.FechaLlamada.UTC().Format(time.RFC3339),
		rec.UserType,
		rec.AudioPath,
		nullableString(rec.AgentID),
		rec.Duration,
	)
	if err != nil {
		return fmt.Errorf("insert call %d: %w", rec.ID, err)
	}
	return nil
}

// CallsByDateRange returns all calls with audio in [from, to] (inclusive,
// whole days) in chronological order. Ordering here is what the batch
// scheduler later preserves in its result list.
func (s *Store) CallsByDateRange(ctx context.Context, from, to time.Time) ([]CallRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, fecha_llamada, user_type, audio_path, COALESCE(agent_id, ''), COALESCE(duration, 0)
		FROM calls
		WHERE DATE(fecha_llamada) BETWEEN DATE(?) AND DATE(?)
		  AND audio_path != ''
		ORDER BY fecha_llamada ASC`,
		from.Format("2006-01-02"), to.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	defer rows.Close()

	var records []CallRecord
	for rows.Next() {
		var (
			rec   CallRecord
			fecha string
		)
		if err := rows.Scan(&rec.ID, &fecha, &rec.UserType, &rec.AudioPath, &rec.AgentID, &rec.Duration); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		rec.FechaLlamada, err = parseFecha(fecha)
		if err != nil {
			logrus.WithFields(logrus.Fields{"call_id": rec.ID, "fecha": fecha}).Warn("Skipping call with unparseable timestamp")
			continue
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calls: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"from":  from.Format("2006-01-02"),
		"to":    to.Format("2006-01-02"),
		"calls": len(records),
	}).Info("Fetched calls from store")

	return records, nil
}

// parseFecha accepts the timestamp shapes the store has produced over time.
func parseFecha(raw string) (time.Time, error) {
	layouts := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
