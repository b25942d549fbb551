// Package store provides storage backends for LangRelay.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/langrelay/langrelay/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists preferences and the inbound journal in a SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN (a file path).
// The containing directory is created if absent.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) GetLanguages(sender string) ([]string, error) {
	if sender == "" {
		return nil, models.ErrEmptySender
	}
	var encoded string
	err := s.db.QueryRow(`SELECT languages FROM preferences WHERE sender = ?`, sender).Scan(&encoded)
	if err == sql.ErrNoRows {
		return []string{}, nil
	}
	if err != nil {
		slog.Error("SQLiteStore.GetLanguages query failed", "error", err, "sender", sender)
		return nil, fmt.Errorf("failed to query languages for %s: %w", sender, err)
	}
	var codes []string
	if err := json.Unmarshal([]byte(encoded), &codes); err != nil {
		slog.Error("SQLiteStore.GetLanguages decode failed", "error", err, "sender", sender)
		return nil, fmt.Errorf("failed to decode languages for %s: %w", sender, err)
	}
	return codes, nil
}

func (s *SQLiteStore) SetLanguages(sender string, codes []string) error {
	if sender == "" {
		return models.ErrEmptySender
	}
	encoded, err := json.Marshal(dedupeCodes(codes))
	if err != nil {
		return fmt.Errorf("failed to encode languages for %s: %w", sender, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO preferences (sender, languages, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(sender) DO UPDATE SET languages = excluded.languages, updated_at = excluded.updated_at`,
		sender, string(encoded), time.Now(),
	)
	if err != nil {
		slog.Error("SQLiteStore.SetLanguages write failed", "error", err, "sender", sender)
		return fmt.Errorf("%w: set languages for %s: %v", models.ErrPersistence, sender, err)
	}
	slog.Debug("SQLiteStore.SetLanguages succeeded", "sender", sender, "count", len(codes))
	return nil
}

func (s *SQLiteStore) AddLanguage(sender, code string) error {
	if sender == "" {
		return models.ErrEmptySender
	}
	// Read-modify-write inside a transaction so concurrent deliveries for the
	// same sender cannot lose an update.
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: begin add language for %s: %v", models.ErrPersistence, sender, err)
	}
	defer tx.Rollback()

	var encoded string
	var codes []string
	err = tx.QueryRow(`SELECT languages FROM preferences WHERE sender = ?`, sender).Scan(&encoded)
	switch {
	case err == sql.ErrNoRows:
		codes = nil
	case err != nil:
		return fmt.Errorf("%w: read languages for %s: %v", models.ErrPersistence, sender, err)
	default:
		if err := json.Unmarshal([]byte(encoded), &codes); err != nil {
			return fmt.Errorf("failed to decode languages for %s: %w", sender, err)
		}
	}
	for _, c := range codes {
		if c == code {
			return nil // idempotent
		}
	}
	codes = append(codes, code)
	updated, err := json.Marshal(codes)
	if err != nil {
		return fmt.Errorf("failed to encode languages for %s: %w", sender, err)
	}
	_, err = tx.Exec(
		`INSERT INTO preferences (sender, languages, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(sender) DO UPDATE SET languages = excluded.languages, updated_at = excluded.updated_at`,
		sender, string(updated), time.Now(),
	)
	if err != nil {
		slog.Error("SQLiteStore.AddLanguage write failed", "error", err, "sender", sender, "code", code)
		return fmt.Errorf("%w: add language %s for %s: %v", models.ErrPersistence, code, sender, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit add language for %s: %v", models.ErrPersistence, sender, err)
	}
	slog.Debug("SQLiteStore.AddLanguage succeeded", "sender", sender, "code", code)
	return nil
}

func (s *SQLiteStore) Clear(sender string) error {
	if sender == "" {
		return models.ErrEmptySender
	}
	_, err := s.db.Exec(`DELETE FROM preferences WHERE sender = ?`, sender)
	if err != nil {
		slog.Error("SQLiteStore.Clear failed", "error", err, "sender", sender)
		return fmt.Errorf("%w: clear languages for %s: %v", models.ErrPersistence, sender, err)
	}
	return nil
}

func (s *SQLiteStore) GetRomaji(sender string) (bool, error) {
	if sender == "" {
		return false, models.ErrEmptySender
	}
	var enabled bool
	err := s.db.QueryRow(`SELECT use_romaji FROM preferences WHERE sender = ?`, sender).Scan(&enabled)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		slog.Error("SQLiteStore.GetRomaji query failed", "error", err, "sender", sender)
		return false, fmt.Errorf("failed to query romaji toggle for %s: %w", sender, err)
	}
	return enabled, nil
}

func (s *SQLiteStore) SetRomaji(sender string, enabled bool) error {
	if sender == "" {
		return models.ErrEmptySender
	}
	_, err := s.db.Exec(
		`INSERT INTO preferences (sender, languages, use_romaji, updated_at) VALUES (?, '[]', ?, ?)
		 ON CONFLICT(sender) DO UPDATE SET use_romaji = excluded.use_romaji, updated_at = excluded.updated_at`,
		sender, enabled, time.Now(),
	)
	if err != nil {
		slog.Error("SQLiteStore.SetRomaji write failed", "error", err, "sender", sender)
		return fmt.Errorf("%w: set romaji toggle for %s: %v", models.ErrPersistence, sender, err)
	}
	slog.Debug("SQLiteStore.SetRomaji succeeded", "sender", sender, "enabled", enabled)
	return nil
}

func (s *SQLiteStore) RecordInbound(messageID, sender string) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO inbound_journal (message_id, sender, received_at) VALUES (?, ?, ?)`,
		messageID, sender, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("record inbound failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) MarkProcessed(messageID string) error {
	_, err := s.db.Exec(
		`UPDATE inbound_journal SET processed_at = ? WHERE message_id = ?`,
		time.Now(), messageID,
	)
	if err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) PurgeJournalBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM inbound_journal WHERE received_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge journal failed: %w", err)
	}
	removed, _ := res.RowsAffected()
	return removed, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
