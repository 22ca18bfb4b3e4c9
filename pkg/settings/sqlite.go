package settings

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS settings (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);
`

// SQLiteStore keeps settings in a single-table SQLite database
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	log    zerolog.Logger

	stmtGet *sql.Stmt
	stmtSet *sql.Stmt
}

// NewSQLiteStore opens (creating if needed) the database at dbPath
func NewSQLiteStore(dbPath string, log zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	s := &SQLiteStore{db: db, dbPath: dbPath, log: log}

	if s.stmtGet, err = db.Prepare(`SELECT value FROM settings WHERE key = ?`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}
	if s.stmtSet, err = db.Prepare(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`); err != nil {
		s.stmtGet.Close()
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	return s, nil
}

// Get returns the value of key, or "" when absent
func (s *SQLiteStore) Get(key string) (string, error) {
	var value string
	err := s.stmtGet.QueryRow(key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, nil
}

// Set upserts key
func (s *SQLiteStore) Set(key, value string) error {
	if _, err := s.stmtSet.Exec(key, value, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("failed to save setting %s: %w", key, err)
	}
	s.log.Debug().Str("key", key).Str("path", s.dbPath).Msg("Settings saved")
	return nil
}

// Path returns the database file path
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// Close releases the prepared statements and the database
func (s *SQLiteStore) Close() error {
	if s.stmtGet != nil {
		s.stmtGet.Close()
	}
	if s.stmtSet != nil {
		s.stmtSet.Close()
	}
	return s.db.Close()
}
