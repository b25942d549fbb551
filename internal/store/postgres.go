// Package store provides storage backends for LangRelay.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/langrelay/langrelay/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists preferences and the inbound journal in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) GetLanguages(sender string) ([]string, error) {
	if sender == "" {
		return nil, models.ErrEmptySender
	}
	var encoded string
	err := s.db.QueryRow(`SELECT languages FROM preferences WHERE sender = $1`, sender).Scan(&encoded)
	if err == sql.ErrNoRows {
		return []string{}, nil
	}
	if err != nil {
		slog.Error("PostgresStore.GetLanguages query failed", "error", err, "sender", sender)
		return nil, fmt.Errorf("failed to query languages for %s: %w", sender, err)
	}
	var codes []string
	if err := json.Unmarshal([]byte(encoded), &codes); err != nil {
		slog.Error("PostgresStore.GetLanguages decode failed", "error", err, "sender", sender)
		return nil, fmt.Errorf("failed to decode languages for %s: %w", sender, err)
	}
	return codes, nil
}

func (s *PostgresStore) SetLanguages(sender string, codes []string) error {
	if sender == "" {
		return models.ErrEmptySender
	}
	encoded, err := json.Marshal(dedupeCodes(codes))
	if err != nil {
		return fmt.Errorf("failed to encode languages for %s: %w", sender, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO preferences (sender, languages, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (sender) DO UPDATE SET languages = EXCLUDED.languages, updated_at = EXCLUDED.updated_at`,
		sender, string(encoded), time.Now(),
	)
	if err != nil {
		slog.Error("PostgresStore.SetLanguages write failed", "error", err, "sender", sender)
		return fmt.Errorf("%w: set languages for %s: %v", models.ErrPersistence, sender, err)
	}
	slog.Debug("PostgresStore.SetLanguages succeeded", "sender", sender, "count", len(codes))
	return nil
}

func (s *PostgresStore) AddLanguage(sender, code string) error {
	if sender == "" {
		return models.ErrEmptySender
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: begin add language for %s: %v", models.ErrPersistence, sender, err)
	}
	defer tx.Rollback()

	var encoded string
	var codes []string
	// FOR UPDATE serializes concurrent read-modify-write on the same sender.
	err = tx.QueryRow(`SELECT languages FROM preferences WHERE sender = $1 FOR UPDATE`, sender).Scan(&encoded)
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
		`INSERT INTO preferences (sender, languages, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (sender) DO UPDATE SET languages = EXCLUDED.languages, updated_at = EXCLUDED.updated_at`,
		sender, string(updated), time.Now(),
	)
	if err != nil {
		slog.Error("PostgresStore.AddLanguage write failed", "error", err, "sender", sender, "code", code)
		return fmt.Errorf("%w: add language %s for %s: %v", models.ErrPersistence, code, sender, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit add language for %s: %v", models.ErrPersistence, sender, err)
	}
	slog.Debug("PostgresStore.AddLanguage succeeded", "sender", sender, "code", code)
	return nil
}

func (s *PostgresStore) Clear(sender string) error {
	if sender == "" {
		return models.ErrEmptySender
	}
	_, err := s.db.Exec(`DELETE FROM preferences WHERE sender = $1`, sender)
	if err != nil {
		slog.Error("PostgresStore.Clear failed", "error", err, "sender", sender)
		return fmt.Errorf("%w: clear languages for %s: %v", models.ErrPersistence, sender, err)
	}
	return nil
}

func (s *PostgresStore) GetRomaji(sender string) (bool, error) {
	if sender == "" {
		return false, models.ErrEmptySender
	}
	var enabled bool
	err := s.db.QueryRow(`SELECT use_romaji FROM preferences WHERE sender = $1`, sender).Scan(&enabled)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		slog.Error("PostgresStore.GetRomaji query failed", "error", err, "sender", sender)
		return false, fmt.Errorf("failed to query romaji toggle for %s: %w", sender, err)
	}
	return enabled, nil
}

func (s *PostgresStore) SetRomaji(sender string, enabled bool) error {
	if sender == "" {
		return models.ErrEmptySender
	}
	_, err := s.db.Exec(
		`INSERT INTO preferences (sender, languages, use_romaji, updated_at) VALUES ($1, '[]', $2, $3)
		 ON CONFLICT (sender) DO UPDATE SET use_romaji = EXCLUDED.use_romaji, updated_at = EXCLUDED.updated_at`,
		sender, enabled, time.Now(),
	)
	if err != nil {
		slog.Error("PostgresStore.SetRomaji write failed", "error", err, "sender", sender)
		return fmt.Errorf("%w: set romaji toggle for %s: %v", models.ErrPersistence, sender, err)
	}
	slog.Debug("PostgresStore.SetRomaji succeeded", "sender", sender, "enabled", enabled)
	return nil
}

func (s *PostgresStore) RecordInbound(messageID, sender string) error {
	_, err := s.db.Exec(
		`INSERT INTO inbound_journal (message_id, sender, received_at) VALUES ($1, $2, $3)
		 ON CONFLICT (message_id) DO NOTHING`,
		messageID, sender, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("record inbound failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkProcessed(messageID string) error {
	_, err := s.db.Exec(
		`UPDATE inbound_journal SET processed_at = $1 WHERE message_id = $2`,
		time.Now(), messageID,
	)
	if err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) PurgeJournalBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM inbound_journal WHERE received_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge journal failed: %w", err)
	}
	removed, _ := res.RowsAffected()
	return removed, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
