// Package sqlite provides the SQLite usage and request log store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Storage implements usage.Store and usage.LogStore using SQLite
type Storage struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// New creates a new SQLite storage instance
func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite works best with single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	storage := &Storage{db: db}

	if err := storage.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return storage, nil
}

// createSchema creates the database schema
func (s *Storage) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS usage_months (
		model_id            TEXT PRIMARY KEY,
		year_month          TEXT NOT NULL,
		total_cost          REAL DEFAULT 0,
		total_input_tokens  INTEGER DEFAULT 0,
		total_output_tokens INTEGER DEFAULT 0,
		last_updated        TEXT DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS usage_days (
		model_id      TEXT NOT NULL,
		day           TEXT NOT NULL,
		cost          REAL DEFAULT 0,
		input_tokens  INTEGER DEFAULT 0,
		output_tokens INTEGER DEFAULT 0,
		PRIMARY KEY (model_id, day)
	);

	CREATE TABLE IF NOT EXISTS request_logs (
		id            TEXT PRIMARY KEY,
		request_id    TEXT NOT NULL,
		model         TEXT NOT NULL,
		family        TEXT NOT NULL,
		input_tokens  INTEGER DEFAULT 0,
		output_tokens INTEGER DEFAULT 0,
		cost_usd      REAL DEFAULT 0,
		status_code   INTEGER,
		finish_reason TEXT,
		error_message TEXT,
		dropped_attachments INTEGER NOT NULL DEFAULT 0,
		duration_ms   INTEGER,
		created_at    DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_logs_created ON request_logs(created_at);
	CREATE INDEX IF NOT EXISTS idx_logs_model ON request_logs(model);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return s.migrateRequestLogs()
}

// Ping checks that the database is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStorageClosed
	}
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}

// generateID creates a new unique ID with a prefix
func generateID(prefix string) string {
	return prefix + "_" + uuid.New().String()[:8]
}
